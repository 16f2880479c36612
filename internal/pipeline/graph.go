package pipeline

import (
	"fmt"
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1"
)

// BranchFunc reports the output suffixes of a one-to-many command, or nil
// when the command produces a single image.
type BranchFunc func(identifier string) []string

const (
	inputVertex  = "input"
	outputVertex = "output"
)

// Graph builds the data-flow graph of p. The working image flows through
// one-to-one steps; one-to-many steps hang their outputs off to the side and
// the chain continues from the step's input.
func Graph(p *Pipeline, branches BranchFunc) (graph.Graph[string, string], error) {
	g := graph.New(graph.StringHash, graph.Directed())

	chainColour, err := hexColour(70, 130, 180)
	if err != nil {
		return nil, err
	}
	fanColour, err := hexColour(240, 128, 0)
	if err != nil {
		return nil, err
	}

	if err := g.AddVertex(inputVertex, graph.VertexAttribute("shape", "oval")); err != nil {
		return nil, errors.Wrap(err, "unable to add input vertex")
	}

	current := inputVertex
	for i, step := range p.Steps {
		name := fmt.Sprintf("%d: %s", i, step.String())
		var suffixes []string
		if branches != nil {
			suffixes = branches(step.Identifier)
		}

		colour := chainColour
		if len(suffixes) > 0 {
			colour = fanColour
		}
		err := g.AddVertex(name,
			graph.VertexAttribute("shape", "box"),
			graph.VertexAttribute("style", "filled"),
			graph.VertexAttribute("color", colour),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add vertex for step %d", i)
		}
		if err := g.AddEdge(current, name); err != nil {
			return nil, errors.Wrapf(err, "unable to link step %d", i)
		}

		if len(suffixes) == 0 {
			current = name
			continue
		}
		for _, suffix := range suffixes {
			branch := fmt.Sprintf("%d: %s_%s", i, step.Identifier, suffix)
			if err := g.AddVertex(branch, graph.VertexAttribute("shape", "note")); err != nil {
				return nil, errors.Wrapf(err, "unable to add branch %s", branch)
			}
			if err := g.AddEdge(name, branch); err != nil {
				return nil, errors.Wrapf(err, "unable to link branch %s", branch)
			}
		}
	}

	if err := g.AddVertex(outputVertex, graph.VertexAttribute("shape", "oval")); err != nil {
		return nil, errors.Wrap(err, "unable to add output vertex")
	}
	if err := g.AddEdge(current, outputVertex); err != nil {
		return nil, errors.Wrap(err, "unable to link output vertex")
	}
	return g, nil
}

// WriteDOT renders p as a Graphviz DOT document.
func WriteDOT(w io.Writer, p *Pipeline, branches BranchFunc) error {
	g, err := Graph(p, branches)
	if err != nil {
		return err
	}
	if err := draw.DOT(g, w, draw.GraphAttribute("label", p.Name)); err != nil {
		return errors.Wrapf(err, "unable to draw pipeline %q", p.Name)
	}
	return nil
}

func hexColour(r, g, b uint8) (string, error) {
	c, err := colors.RGB(r, g, b)
	if err != nil {
		return "", errors.Wrap(err, "unable to get colour")
	}
	return c.ToHEX().String(), nil
}
