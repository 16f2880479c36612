package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

const schemaVersion = "http://json-schema.org/draft-07/schema#"

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaJSON     []byte
	schemaErr      error
)

func newReflector() jsonschema.Reflector {
	return jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		ExpandedStruct:             true,
		DoNotReference:             true,
		Anonymous:                  true,
		RequiredFromJSONSchemaTags: false,
	}
}

func loadSchema() {
	reflector := newReflector()
	s := reflector.Reflect(&Document{})
	s.Version = schemaVersion
	s.Title = "Image workflow pipeline"
	s.Description = "Exported pipeline document"

	schemaJSON, schemaErr = json.MarshalIndent(s, "", "  ")
	if schemaErr != nil {
		schemaErr = errors.Wrap(schemaErr, "unable to marshal pipeline schema")
		return
	}
	compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if schemaErr != nil {
		schemaErr = errors.Wrap(schemaErr, "unable to compile pipeline schema")
	}
}

// Schema returns the JSON schema every exported pipeline document satisfies.
func Schema() ([]byte, error) {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return nil, schemaErr
	}
	return append([]byte(nil), schemaJSON...), nil
}

// ValidateDocument checks raw bytes against the pipeline schema. Anything that
// is not a well-formed pipeline document yields ErrUnrecognizedPipeline.
func ValidateDocument(data []byte) error {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return schemaErr
	}

	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.Wrapf(ErrUnrecognizedPipeline, "not JSON: %v", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.Wrap(ErrUnrecognizedPipeline, strings.Join(problems, "; "))
}
