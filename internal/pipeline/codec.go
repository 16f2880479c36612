package pipeline

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// FormatVersion is written into every exported document.
const FormatVersion = 1

// Document is the serialized form of a Pipeline.
type Document struct {
	FormatVersion int         `json:"format_version"`
	Name          string      `json:"name"`
	Steps         []Command   `json:"steps" jsonschema:"minItems=1"`
	FinalStage    *FinalStage `json:"final_stage,omitempty"`
}

func toDocument(p *Pipeline) Document {
	doc := Document{
		FormatVersion: FormatVersion,
		Name:          p.Name,
		Steps:         make([]Command, len(p.Steps)),
		FinalStage:    p.FinalStage.Clone(),
	}
	for i, step := range p.Steps {
		doc.Steps[i] = step.Clone()
	}
	return doc
}

// Encode writes p as an indented JSON document, final stage included.
func Encode(w io.Writer, p *Pipeline) error {
	if p == nil || p.IsEmpty() {
		return ErrEmptyPipeline
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(toDocument(p)); err != nil {
		return errors.Wrapf(err, "unable to encode pipeline %q", p.Name)
	}
	return nil
}

// Decode reads a pipeline document. The whole input is validated before any
// pipeline is built, so a failure never yields a partial pipeline.
func Decode(r io.Reader) (*Pipeline, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read pipeline document")
	}
	return DecodeBytes(data)
}

func DecodeBytes(data []byte) (*Pipeline, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(ErrUnrecognizedPipeline, "%v", err)
	}
	if doc.FormatVersion != FormatVersion {
		return nil, errors.Wrapf(ErrUnrecognizedPipeline, "unsupported format version %d", doc.FormatVersion)
	}

	p := &Pipeline{
		Name:       doc.Name,
		Steps:      make([]Command, len(doc.Steps)),
		FinalStage: doc.FinalStage,
	}
	for i, step := range doc.Steps {
		p.Steps[i] = step.Clone()
	}
	if p.FinalStage != nil && p.FinalStage.Attributes == nil {
		p.FinalStage.Attributes = make(map[string]Arg)
	}
	return p, nil
}
