//go:build gst

// Package gstmedia implements media.Engine on top of go-gst. It is compiled
// only with the gst build tag since it needs the GStreamer development
// headers; without the tag New returns an engine that reports
// media.ErrUnavailable.
package gstmedia

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"

	"github.com/fcclab/streamlab/internal/media"
)

var initOnce sync.Once

// Available reports whether this binary carries the GStreamer backend.
const Available = true

type engine struct{}

// New initializes GStreamer once and returns the engine.
func New() media.Engine {
	initOnce.Do(func() { gst.Init(nil) })
	return engine{}
}

func (engine) HasElement(factory string) bool {
	return gst.Find(factory) != nil
}

func (engine) Parse(description string) (media.Graph, error) {
	p, err := gst.NewPipelineFromString(description)
	if err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	return &graph{pipeline: p, bus: p.GetPipelineBus()}, nil
}

type graph struct {
	pipeline *gst.Pipeline
	bus      *gst.Bus
}

func (g *graph) Name() string { return g.pipeline.GetName() }

func (g *graph) SetState(s media.State) error {
	return g.pipeline.SetState(gst.State(s))
}

func (g *graph) CurrentState(timeout time.Duration) (media.State, error) {
	ret, cur := g.pipeline.GetState(gst.StateVoidPending, gst.ClockTime(timeout.Nanoseconds()))
	if ret == gst.StateChangeFailure {
		return media.State(cur), fmt.Errorf("pipeline state query failed")
	}
	return media.State(cur), nil
}

func (g *graph) Pop(timeout time.Duration) *media.Message {
	msg := g.bus.TimedPop(timeout)
	if msg == nil {
		return nil
	}
	return g.convert(msg)
}

func (g *graph) convert(msg *gst.Message) *media.Message {
	out := &media.Message{Source: msg.Source()}
	out.FromPipeline = out.Source == g.pipeline.GetName()
	switch msg.Type() {
	case gst.MessageEOS:
		out.Type = media.MessageEOS
	case gst.MessageError:
		out.Type = media.MessageError
		if gerr := msg.ParseError(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
	case gst.MessageWarning:
		out.Type = media.MessageWarning
		if gerr := msg.ParseWarning(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
	case gst.MessageStateChanged:
		out.Type = media.MessageStateChanged
		old, cur := msg.ParseStateChanged()
		out.OldState = media.State(old)
		out.NewState = media.State(cur)
	default:
		return nil
	}
	return out
}

func (g *graph) Element(name string) (media.Element, error) {
	e, err := g.pipeline.GetElementByName(name)
	if err != nil || e == nil {
		return nil, fmt.Errorf("%w: %s", media.ErrNoElement, name)
	}
	return &element{e: e}, nil
}

func (g *graph) NewElement(factory, name string) (media.Element, error) {
	e, err := gst.NewElementWithName(factory, name)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", factory, err)
	}
	return &element{e: e}, nil
}

func (g *graph) Add(elements ...media.Element) error {
	for _, el := range elements {
		if err := g.pipeline.Add(unwrap(el)); err != nil {
			return fmt.Errorf("add %s: %w", el.Name(), err)
		}
	}
	return nil
}

func (g *graph) Remove(elements ...media.Element) error {
	for _, el := range elements {
		if err := g.pipeline.Remove(unwrap(el)); err != nil {
			return fmt.Errorf("remove %s: %w", el.Name(), err)
		}
	}
	return nil
}

func (g *graph) Close() {
	_ = g.pipeline.SetState(gst.StateNull)
}

type element struct {
	e *gst.Element
}

func unwrap(el media.Element) *gst.Element {
	return el.(*element).e
}

func (el *element) Name() string { return el.e.GetName() }

func (el *element) Set(property string, value any) error {
	return el.e.SetProperty(property, value)
}

func (el *element) Property(property string) (any, error) {
	v, err := el.e.GetProperty(property)
	if err != nil {
		return nil, err
	}
	if st, ok := v.(*gst.Structure); ok && st != nil {
		return st.Values(), nil
	}
	return v, nil
}

func (el *element) Link(dst media.Element) error {
	return el.e.Link(unwrap(dst))
}

func (el *element) Unlink(dst media.Element) {
	el.e.Unlink(unwrap(dst))
}

func (el *element) SetState(s media.State) error {
	return el.e.SetState(gst.State(s))
}

func (el *element) CurrentState(timeout time.Duration) (media.State, error) {
	ret, cur := el.e.GetState(gst.StateVoidPending, gst.ClockTime(timeout.Nanoseconds()))
	if ret == gst.StateChangeFailure {
		return media.State(cur), fmt.Errorf("%s state query failed", el.Name())
	}
	return media.State(cur), nil
}

func (el *element) SyncStateWithParent() error {
	if !el.e.SyncStateWithParent() {
		return fmt.Errorf("%s could not sync state with parent", el.Name())
	}
	return nil
}

func (el *element) RequestPad(template string) (media.Pad, error) {
	p := el.e.GetRequestPad(template)
	if p == nil {
		return nil, fmt.Errorf("%s: no request pad for %s", el.Name(), template)
	}
	return &pad{p: p}, nil
}

func (el *element) ReleasePad(p media.Pad) {
	el.e.ReleaseRequestPad(p.(*pad).p)
}

func (el *element) StaticPad(name string) (media.Pad, error) {
	p := el.e.GetStaticPad(name)
	if p == nil {
		return nil, fmt.Errorf("%s: no pad %s", el.Name(), name)
	}
	return &pad{p: p}, nil
}

type pad struct {
	p *gst.Pad
}

func (p *pad) Name() string { return p.p.GetName() }

func (p *pad) Link(sink media.Pad) error {
	if ret := p.p.Link(sink.(*pad).p); ret != gst.PadLinkOK {
		return fmt.Errorf("link %s to %s: %v", p.Name(), sink.Name(), ret)
	}
	return nil
}

func (p *pad) Unlink(sink media.Pad) {
	p.p.Unlink(sink.(*pad).p)
}

func (p *pad) SendEOS() bool {
	return p.p.SendEvent(gst.NewEOSEvent())
}
