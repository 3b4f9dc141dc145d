// Package drawer renders the expanded batch plan as a DOT graph.
// Pipelines sharing a stage option merge into one vertex per option, so
// the drawing shows the combination tree rather than one disconnected
// chain per pipeline.
package drawer

import (
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/go-sweep/pkg/sweep"
	"github.com/askiada/go-sweep/pkg/sweep/evaluate"
)

const rootVertex = "data"

const maxRGB = 240

// PlanDrawer accumulates pipelines into a plan graph and writes it out
// as a DOT file.
type PlanDrawer struct {
	graph       graph.Graph[string, string]
	dotFileName string

	// traversals counts how many pipelines pass through each vertex;
	// failures counts how many of those failed at or before the vertex.
	traversals map[string]int
	failures   map[string]int
}

// NewPlanDrawer creates a plan drawer writing to the given DOT file.
func NewPlanDrawer(dotFileName string) (*PlanDrawer, error) {
	d := &PlanDrawer{
		graph:       graph.New(graph.StringHash, graph.Directed()),
		dotFileName: dotFileName,
		traversals:  make(map[string]int),
		failures:    make(map[string]int),
	}
	if err := d.graph.AddVertex(rootVertex); err != nil {
		return nil, errors.Wrap(err, "unable to add root vertex")
	}
	return d, nil
}

// AddPipeline merges one pipeline chain into the plan graph.
func (d *PlanDrawer) AddPipeline(pipe *sweep.Pipeline) error {
	parent := rootVertex
	for _, stage := range pipe.Stages {
		key := vertexKey(stage.Kind, stage.Label)
		if err := d.graph.AddVertex(key, graph.VertexAttribute("label", stage.Label)); err != nil &&
			!errors.Is(err, graph.ErrVertexAlreadyExists) {
			return errors.Wrapf(err, "unable to add vertex %s", key)
		}
		if err := d.graph.AddEdge(parent, key); err != nil &&
			!errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return errors.Wrapf(err, "unable to add edge from %s to %s", parent, key)
		}
		d.traversals[key]++
		parent = key
	}
	return nil
}

// Annotate colours the plan with the run outcome: each stage vertex
// shows how many pipelines traversed it and shades from blue to red
// with its failure rate.
func (d *PlanDrawer) Annotate(pipelines []*sweep.Pipeline, results map[string]*evaluate.Result) error {
	for _, pipe := range pipelines {
		result, ok := results[pipe.ID()]
		if !ok {
			continue
		}
		for i, stage := range result.Stages {
			if stage.Failed {
				d.failures[vertexKey(pipe.Stages[i].Kind, stage.Label)]++
			}
		}
	}

	for key, total := range d.traversals {
		_, properties, err := d.graph.VertexWithProperties(key)
		if err != nil {
			return errors.Wrapf(err, "unable to get vertex properties for %s", key)
		}

		failed := d.failures[key]
		properties.Attributes["xlabel"] = fmt.Sprintf("%d run, %d failed", total, failed)

		fraction := float64(failed) / float64(total)
		shade, err := colors.RGB(uint8(maxRGB*fraction), 0, uint8(maxRGB*(1-fraction))) //nolint
		if err != nil {
			return errors.Wrap(err, "unable to get colour")
		}
		properties.Attributes["color"] = shade.ToHEX().String()
	}
	return nil
}

// Draw writes the plan graph as a DOT file.
func (d *PlanDrawer) Draw() error {
	file, err := os.Create(d.dotFileName)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", d.dotFileName)
	}
	defer file.Close()

	if err := dot(d.graph, file, graphAttribute("rankdir", "LR")); err != nil {
		return errors.Wrapf(err, "unable to render dot file %s", d.dotFileName)
	}
	return nil
}

func vertexKey(kind sweep.StageKind, label string) string {
	return string(kind) + "/" + label
}

//nolint:lll //this is a template
const dotTemplate = `strict {{.GraphType}} {
	{{range $k, $v := .Attributes}}
		{{$k}}="{{$v}}";
	{{end}}
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}{{$.EdgeOperator}} "{{.Target}}" [ {{range $k, $v := .EdgeAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.EdgeWeight}} ]{{else}}[ {{range $k, $v := .HTMLAttributes}}{{$k}}={{$v}}, {{end}} {{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.SourceWeight}} ]{{end}};
	{{end}}
	}
	`

type description struct {
	GraphType    string
	Attributes   map[string]string
	EdgeOperator string
	Statements   []statement
}

type statement struct {
	Source           interface{}
	Target           interface{}
	SourceAttributes map[string]string
	HTMLAttributes   map[string]string
	EdgeAttributes   map[string]string
	SourceWeight     int
	EdgeWeight       int
}

func dot[K comparable, T any](g graph.Graph[K, T], wrt io.Writer, options ...func(*description)) error {
	desc, err := generateDOT(g, options...)
	if err != nil {
		return errors.Wrap(err, "failed to generate DOT description")
	}

	return renderDOT(wrt, desc)
}

func graphAttribute(key, value string) func(*description) {
	return func(d *description) {
		d.Attributes[key] = value
	}
}

func generateDOT[K comparable, T any](gra graph.Graph[K, T], options ...func(*description)) (description, error) {
	desc := description{
		GraphType:    "graph",
		Attributes:   make(map[string]string),
		EdgeOperator: "--",
		Statements:   make([]statement, 0),
	}

	for _, option := range options {
		option(&desc)
	}

	if gra.Traits().IsDirected {
		desc.GraphType = "digraph"
		desc.EdgeOperator = "->"
	}

	adjacencyMap, err := gra.AdjacencyMap()
	if err != nil {
		return desc, errors.Wrap(err, "unable to get adjacency map")
	}

	for vertex, adjacencies := range adjacencyMap {
		_, sourceProperties, err := gra.VertexWithProperties(vertex)
		if err != nil {
			return desc, errors.Wrap(err, "unable to get vertex properties")
		}

		htmlAttributes := make(map[string]string)

		if xlabel, ok := sourceProperties.Attributes["xlabel"]; ok {
			var name interface{} = vertex
			if label, ok := sourceProperties.Attributes["label"]; ok {
				name = label
			}
			htmlAttributes["label"] = fmt.Sprintf(`<%+v <BR /> <FONT POINT-SIZE="12">%s</FONT>>`, name, xlabel)

			delete(sourceProperties.Attributes, "xlabel")
			delete(sourceProperties.Attributes, "label")
		}

		stmt := statement{
			Source:           vertex,
			SourceWeight:     sourceProperties.Weight,
			SourceAttributes: sourceProperties.Attributes,
			HTMLAttributes:   htmlAttributes,
		}
		desc.Statements = append(desc.Statements, stmt)

		for adjacency, edge := range adjacencies {
			stmt := statement{
				Source:         vertex,
				Target:         adjacency,
				EdgeWeight:     edge.Properties.Weight,
				EdgeAttributes: edge.Properties.Attributes,
			}
			desc.Statements = append(desc.Statements, stmt)
		}
	}

	return desc, nil
}

func renderDOT(wrt io.Writer, desc description) error {
	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return errors.Wrap(err, "failed to parse template")
	}

	if err := tpl.Execute(wrt, desc); err != nil {
		return errors.Wrap(err, "unable to execute template")
	}

	return nil
}
