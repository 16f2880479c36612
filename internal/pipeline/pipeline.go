// Package pipeline holds the recorded workflow model: commands, pipelines,
// the downstream final stage, the error taxonomy and the export codec.
package pipeline

import (
	"fmt"
	"strings"
)

// Command is one recorded step: a registry identifier plus the concrete
// arguments it was applied with.
type Command struct {
	Identifier string `json:"identifier" jsonschema:"minLength=1"`
	Args       []Arg  `json:"args"`
}

// NewCommand builds a command, copying args.
func NewCommand(identifier string, args ...Arg) Command {
	return Command{Identifier: identifier, Args: append([]Arg{}, args...)}
}

func (c Command) Clone() Command {
	return NewCommand(c.Identifier, c.Args...)
}

func (c Command) Equal(other Command) bool {
	if c.Identifier != other.Identifier || len(c.Args) != len(other.Args) {
		return false
	}
	for i := range c.Args {
		if !c.Args[i].Equal(other.Args[i]) {
			return false
		}
	}
	return true
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Identifier
	}
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Identifier, strings.Join(parts, ", "))
}

// Pipeline is an ordered, named sequence of commands. Steps are replayed in
// slice order.
type Pipeline struct {
	Name       string
	Steps      []Command
	FinalStage *FinalStage
}

func New(name string) *Pipeline {
	return &Pipeline{Name: name}
}

func (p *Pipeline) Len() int { return len(p.Steps) }

func (p *Pipeline) IsEmpty() bool { return len(p.Steps) == 0 }

// Append adds a step to the end of the pipeline.
func (p *Pipeline) Append(cmd Command) {
	p.Steps = append(p.Steps, cmd.Clone())
}

// RemoveAt deletes the step at index, shifting later steps down by one.
func (p *Pipeline) RemoveAt(index int) (Command, error) {
	if index < 0 || index >= len(p.Steps) {
		return Command{}, ErrStepOutOfRange
	}
	removed := p.Steps[index]
	p.Steps = append(p.Steps[:index], p.Steps[index+1:]...)
	return removed, nil
}

// RemoveIdentifier deletes the first step whose identifier matches.
func (p *Pipeline) RemoveIdentifier(identifier string) (int, error) {
	for i, step := range p.Steps {
		if step.Identifier == identifier {
			_, err := p.RemoveAt(i)
			return i, err
		}
	}
	return -1, ErrStepNotFound
}

// Identifiers lists step identifiers in replay order.
func (p *Pipeline) Identifiers() []string {
	ids := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		ids[i] = step.Identifier
	}
	return ids
}

// Clone returns a deep copy, including the final stage.
func (p *Pipeline) Clone() *Pipeline {
	if p == nil {
		return nil
	}
	out := &Pipeline{Name: p.Name, FinalStage: p.FinalStage.Clone()}
	if p.Steps != nil {
		out.Steps = make([]Command, len(p.Steps))
		for i, step := range p.Steps {
			out.Steps[i] = step.Clone()
		}
	}
	return out
}
