// Package mediatest provides an in-memory media.Engine for tests. Graphs
// parsed by the fake keep every named element of the description, record
// state changes and pad usage, and let the test inject bus messages and
// failures.
package mediatest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fcclab/streamlab/internal/media"
)

// Engine is a fake media.Engine.
type Engine struct {
	mu sync.Mutex
	// Missing lists factories HasElement reports as absent.
	Missing  map[string]bool
	ParseErr error
	graphs   []*Graph
}

// NewEngine returns an engine where every factory exists.
func NewEngine() *Engine {
	return &Engine{Missing: map[string]bool{}}
}

// HasElement implements media.Engine.
func (e *Engine) HasElement(factory string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Missing[factory]
}

// Parse implements media.Engine.
func (e *Engine) Parse(description string) (media.Graph, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ParseErr != nil {
		return nil, e.ParseErr
	}
	g := NewGraph(fmt.Sprintf("pipeline%d", len(e.graphs)), description)
	e.graphs = append(e.graphs, g)
	return g, nil
}

// Last returns the most recently parsed graph.
func (e *Engine) Last() *Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.graphs) == 0 {
		return nil
	}
	return e.graphs[len(e.graphs)-1]
}

// Graph is a fake media.Graph.
type Graph struct {
	mu          sync.Mutex
	name        string
	description string
	state       media.State
	elements    map[string]*Element
	history     []media.State
	msgs        chan *media.Message
	closed      bool
	created     []*Element

	// FailElements makes NewElement fail for the given factories.
	FailElements map[string]error
	// FailLinks makes Link fail when the given element is the source.
	FailLinks map[string]error
	// FailSet makes Set fail for the given property on elements created
	// with NewElement.
	FailSet map[string]error
	// StuckState, when set, is reported by CurrentState instead of the
	// last requested state.
	StuckState media.State
}

// NewGraph builds a graph holding one element per "name=" token in the
// description.
func NewGraph(name, description string) *Graph {
	g := &Graph{
		name:         name,
		description:  description,
		state:        media.StateNull,
		elements:     map[string]*Element{},
		msgs:         make(chan *media.Message, 64),
		FailElements: map[string]error{},
		FailLinks:    map[string]error{},
		FailSet:      map[string]error{},
	}
	for _, stage := range strings.Split(description, "!") {
		fields := strings.Fields(stage)
		if len(fields) == 0 {
			continue
		}
		for _, f := range fields[1:] {
			if n, ok := strings.CutPrefix(f, "name="); ok {
				g.elements[n] = newElement(g, fields[0], n)
			}
		}
	}
	return g
}

// Name implements media.Graph.
func (g *Graph) Name() string { return g.name }

// Description returns the parsed description.
func (g *Graph) Description() string { return g.description }

// SetState implements media.Graph.
func (g *Graph) SetState(s media.State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
	g.history = append(g.history, s)
	return nil
}

// CurrentState implements media.Graph.
func (g *Graph) CurrentState(time.Duration) (media.State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.StuckState != media.StateVoidPending {
		return g.StuckState, nil
	}
	return g.state, nil
}

// History returns every state requested on the graph.
func (g *Graph) History() []media.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]media.State(nil), g.history...)
}

// Restarts counts NULL to PLAYING sequences after the first start.
func (g *Graph) Restarts() int {
	h := g.History()
	n := 0
	for i := 1; i < len(h); i++ {
		if h[i-1] == media.StateNull && h[i] == media.StatePlaying {
			n++
		}
	}
	return n
}

// SetStuck overrides the state reported by CurrentState.
func (g *Graph) SetStuck(s media.State) {
	g.mu.Lock()
	g.StuckState = s
	g.mu.Unlock()
}

// Post queues a bus message.
func (g *Graph) Post(msg *media.Message) {
	g.msgs <- msg
}

// PostPlaying queues the pipeline PAUSED to PLAYING state change.
func (g *Graph) PostPlaying() {
	g.Post(&media.Message{
		Type:         media.MessageStateChanged,
		Source:       g.name,
		FromPipeline: true,
		OldState:     media.StatePaused,
		NewState:     media.StatePlaying,
	})
}

// PostError queues an error from the named element.
func (g *Graph) PostError(source, text string) {
	g.Post(&media.Message{Type: media.MessageError, Source: source, Text: text})
}

// PostWarning queues a warning from the named element.
func (g *Graph) PostWarning(source, text string) {
	g.Post(&media.Message{Type: media.MessageWarning, Source: source, Text: text})
}

// PostEOS queues an end-of-stream from the pipeline.
func (g *Graph) PostEOS() {
	g.Post(&media.Message{Type: media.MessageEOS, Source: g.name, FromPipeline: true})
}

// Pop implements media.Graph.
func (g *Graph) Pop(timeout time.Duration) *media.Message {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m := <-g.msgs:
		return m
	case <-t.C:
		return nil
	}
}

// Element implements media.Graph.
func (g *Graph) Element(name string) (media.Element, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	el, ok := g.elements[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", media.ErrNoElement, name)
	}
	return el, nil
}

// Lookup returns the fake element for assertions.
func (g *Graph) Lookup(name string) *Element {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.elements[name]
}

// Names returns the names of all elements in the graph.
func (g *Graph) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.elements))
	for n := range g.elements {
		out = append(out, n)
	}
	return out
}

// NewElement implements media.Graph. The element is not part of the graph
// until Add.
func (g *Graph) NewElement(factory, name string) (media.Element, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.FailElements[factory]; err != nil {
		return nil, err
	}
	el := newElement(nil, factory, name)
	for prop, err := range g.FailSet {
		el.failSet[prop] = err
	}
	g.created = append(g.created, el)
	return el, nil
}

// Created returns every element made with NewElement, in order.
func (g *Graph) Created() []*Element {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Element(nil), g.created...)
}

// Add implements media.Graph.
func (g *Graph) Add(elements ...media.Element) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range elements {
		el := e.(*Element)
		if _, dup := g.elements[el.name]; dup {
			return fmt.Errorf("duplicate element %s", el.name)
		}
		el.graph = g
		g.elements[el.name] = el
	}
	return nil
}

// Remove implements media.Graph.
func (g *Graph) Remove(elements ...media.Element) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range elements {
		el := e.(*Element)
		if _, ok := g.elements[el.name]; !ok {
			return fmt.Errorf("%w: %s", media.ErrNoElement, el.name)
		}
		delete(g.elements, el.name)
		el.graph = nil
	}
	return nil
}

// Close implements media.Graph.
func (g *Graph) Close() {
	g.mu.Lock()
	g.closed = true
	g.state = media.StateNull
	g.mu.Unlock()
}

// Closed reports whether Close was called.
func (g *Graph) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Element is a fake media.Element.
type Element struct {
	mu       sync.Mutex
	graph    *Graph
	factory  string
	name     string
	props    map[string]any
	state    media.State
	links    map[string]bool
	pads     map[string]*Pad
	nextPad  int
	released int
	eos      bool
	failSet  map[string]error
	states   []media.State
}

func newElement(g *Graph, factory, name string) *Element {
	return &Element{
		graph:   g,
		factory: factory,
		name:    name,
		props:   map[string]any{},
		state:   media.StateNull,
		links:   map[string]bool{},
		pads:    map[string]*Pad{},
		failSet: map[string]error{},
	}
}

// Name implements media.Element.
func (e *Element) Name() string { return e.name }

// Factory returns the element factory name.
func (e *Element) Factory() string { return e.factory }

// Set implements media.Element.
func (e *Element) Set(property string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.failSet[property]; err != nil {
		return err
	}
	e.props[property] = value
	return nil
}

// Property implements media.Element.
func (e *Element) Property(property string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[property]
	if !ok {
		return nil, fmt.Errorf("%s has no property %s", e.name, property)
	}
	return v, nil
}

// Link implements media.Element.
func (e *Element) Link(dst media.Element) error {
	if g := e.graph; g != nil {
		g.mu.Lock()
		err := g.FailLinks[e.name]
		g.mu.Unlock()
		if err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.links[dst.Name()] = true
	return nil
}

// Unlink implements media.Element.
func (e *Element) Unlink(dst media.Element) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.links, dst.Name())
}

// LinkedTo reports whether the element links to the named element.
func (e *Element) LinkedTo(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.links[name]
}

// SetState implements media.Element.
func (e *Element) SetState(s media.State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
	e.states = append(e.states, s)
	return nil
}

// States returns every state requested with SetState.
func (e *Element) States() []media.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]media.State(nil), e.states...)
}

// CurrentState implements media.Element.
func (e *Element) CurrentState(time.Duration) (media.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// SyncStateWithParent implements media.Element.
func (e *Element) SyncStateWithParent() error {
	if e.graph == nil {
		return errors.New("element has no parent")
	}
	s, _ := e.graph.CurrentState(0)
	return e.SetState(s)
}

// RequestPad implements media.Element.
func (e *Element) RequestPad(template string) (media.Pad, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	name := strings.Replace(template, "%u", fmt.Sprint(e.nextPad), 1)
	e.nextPad++
	p := &Pad{name: name, owner: e}
	e.pads[name] = p
	return p, nil
}

// ReleasePad implements media.Element.
func (e *Element) ReleasePad(p media.Pad) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pads[p.Name()]; ok {
		delete(e.pads, p.Name())
		e.released++
	}
}

// RequestedPads returns the number of request pads not yet released.
func (e *Element) RequestedPads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pads)
}

// ReleasedPads returns the number of released request pads.
func (e *Element) ReleasedPads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

// StaticPad implements media.Element.
func (e *Element) StaticPad(name string) (media.Pad, error) {
	return &Pad{name: name, owner: e}, nil
}

// ReceivedEOS reports whether an EOS was sent into one of the element's pads.
func (e *Element) ReceivedEOS() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eos
}

// Pad is a fake media.Pad.
type Pad struct {
	mu    sync.Mutex
	name  string
	owner *Element
	peer  *Pad
}

// Name implements media.Pad.
func (p *Pad) Name() string { return p.name }

// Link implements media.Pad.
func (p *Pad) Link(sink media.Pad) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.peer != nil {
		return fmt.Errorf("pad %s already linked", p.name)
	}
	p.peer = sink.(*Pad)
	return nil
}

// Unlink implements media.Pad.
func (p *Pad) Unlink(media.Pad) {
	p.mu.Lock()
	p.peer = nil
	p.mu.Unlock()
}

// SendEOS implements media.Pad.
func (p *Pad) SendEOS() bool {
	p.owner.mu.Lock()
	p.owner.eos = true
	p.owner.mu.Unlock()
	return true
}
