// Typed primitive arguments carried by recorded commands
package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// ArgKind identifies the primitive type held by an Arg.
type ArgKind int

const (
	KindFloat ArgKind = iota
	KindInt
	KindBool
	KindString
)

var argKindNames = map[ArgKind]string{
	KindFloat:  "float",
	KindInt:    "int",
	KindBool:   "bool",
	KindString: "string",
}

func (k ArgKind) String() string {
	if name, ok := argKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseArgKind maps a serialized kind name back to an ArgKind.
func ParseArgKind(name string) (ArgKind, error) {
	for kind, n := range argKindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, errors.Errorf("unknown argument kind %q", name)
}

// Arg is a single scalar command parameter. The kind travels with the value
// so a float recorded as 2.0 is replayed as a float, never as an int.
type Arg struct {
	kind ArgKind
	f    float64
	i    int64
	b    bool
	s    string
}

func Float(v float64) Arg { return Arg{kind: KindFloat, f: v} }
func Int(v int64) Arg     { return Arg{kind: KindInt, i: v} }
func Bool(v bool) Arg     { return Arg{kind: KindBool, b: v} }
func String(v string) Arg { return Arg{kind: KindString, s: v} }

func (a Arg) Kind() ArgKind { return a.kind }

// Finite reports whether a can be exported. Only NaN and infinite floats cannot.
func (a Arg) Finite() bool {
	return a.kind != KindFloat || !(math.IsNaN(a.f) || math.IsInf(a.f, 0))
}

// AsFloat returns the numeric value of float and int args.
func (a Arg) AsFloat() (float64, bool) {
	switch a.kind {
	case KindFloat:
		return a.f, true
	case KindInt:
		return float64(a.i), true
	}
	return 0, false
}

// AsInt returns the value of int args.
func (a Arg) AsInt() (int64, bool) {
	if a.kind != KindInt {
		return 0, false
	}
	return a.i, true
}

func (a Arg) AsBool() (bool, bool) {
	if a.kind != KindBool {
		return false, false
	}
	return a.b, true
}

func (a Arg) AsString() (string, bool) {
	if a.kind != KindString {
		return "", false
	}
	return a.s, true
}

// Equal reports whether both args have the same kind and value.
func (a Arg) Equal(other Arg) bool {
	return a == other
}

func (a Arg) String() string {
	switch a.kind {
	case KindFloat:
		return strconv.FormatFloat(a.f, 'g', -1, 64)
	case KindInt:
		return strconv.FormatInt(a.i, 10)
	case KindBool:
		return strconv.FormatBool(a.b)
	case KindString:
		return strconv.Quote(a.s)
	}
	return "?"
}

type argJSON struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (a Arg) MarshalJSON() ([]byte, error) {
	var (
		value []byte
		err   error
	)
	switch a.kind {
	case KindFloat:
		if !a.Finite() {
			return nil, errors.Wrapf(ErrNonFiniteValue, "cannot marshal %v", a.f)
		}
		value, err = json.Marshal(a.f)
	case KindInt:
		value, err = json.Marshal(a.i)
	case KindBool:
		value, err = json.Marshal(a.b)
	case KindString:
		value, err = json.Marshal(a.s)
	default:
		return nil, errors.Errorf("cannot marshal argument of %s", a.kind)
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal argument value")
	}
	return json.Marshal(argJSON{Kind: a.kind.String(), Value: value})
}

func (a *Arg) UnmarshalJSON(data []byte) error {
	var raw argJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unable to decode argument")
	}
	kind, err := ParseArgKind(raw.Kind)
	if err != nil {
		return err
	}

	out := Arg{kind: kind}
	switch kind {
	case KindFloat:
		err = json.Unmarshal(raw.Value, &out.f)
	case KindInt:
		err = json.Unmarshal(raw.Value, &out.i)
	case KindBool:
		err = json.Unmarshal(raw.Value, &out.b)
	case KindString:
		err = json.Unmarshal(raw.Value, &out.s)
	}
	if err != nil {
		return errors.Wrapf(err, "argument value does not match kind %s", kind)
	}
	*a = out
	return nil
}

// JSONSchema describes the serialized form of an Arg for the export schema.
func (Arg) JSONSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("kind", &jsonschema.Schema{
		Type: "string",
		Enum: []any{"float", "int", "bool", "string"},
	})
	props.Set("value", &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "number"},
			{Type: "boolean"},
			{Type: "string"},
		},
	})
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             []string{"kind", "value"},
		AdditionalProperties: jsonschema.FalseSchema,
	}
}
