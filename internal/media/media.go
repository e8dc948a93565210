// Package media is the boundary between streamlab and the GStreamer object
// model. The viewer and the graph publisher only see these interfaces; the
// real implementation lives in gstmedia and a scriptable fake in mediatest.
package media

import (
	"errors"
	"time"
)

// ErrUnavailable is returned by engines that were built without GStreamer.
var ErrUnavailable = errors.New("media engine unavailable")

// ErrNoElement is returned when a named element is not part of a graph.
var ErrNoElement = errors.New("no such element")

// State mirrors the GStreamer element states.
type State int

// Element states in transition order.
const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return "VOID_PENDING"
	}
}

// MessageType classifies bus messages the callers react to.
type MessageType int

// Bus message kinds.
const (
	MessageEOS MessageType = iota + 1
	MessageError
	MessageWarning
	MessageStateChanged
)

func (t MessageType) String() string {
	switch t {
	case MessageEOS:
		return "eos"
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageStateChanged:
		return "state-changed"
	default:
		return "unknown"
	}
}

// Message is a decoded bus message.
type Message struct {
	Type MessageType
	// Source is the name of the emitting element.
	Source string
	// FromPipeline is set when the top-level graph emitted the message.
	FromPipeline bool
	Text         string
	Debug        string
	OldState     State
	NewState     State
}

// Engine creates graphs from description strings.
type Engine interface {
	Parse(description string) (Graph, error)
	HasElement(factory string) bool
}

// Graph is a running or stopped pipeline.
type Graph interface {
	Name() string
	SetState(State) error
	// CurrentState waits up to timeout for a pending change to settle.
	CurrentState(timeout time.Duration) (State, error)
	// Pop returns the next bus message or nil after timeout.
	Pop(timeout time.Duration) *Message
	Element(name string) (Element, error)
	NewElement(factory, name string) (Element, error)
	Add(elements ...Element) error
	Remove(elements ...Element) error
	Close()
}

// Element is a node in a graph.
type Element interface {
	Name() string
	Set(property string, value any) error
	Property(property string) (any, error)
	Link(dst Element) error
	Unlink(dst Element)
	SetState(State) error
	CurrentState(timeout time.Duration) (State, error)
	SyncStateWithParent() error
	RequestPad(template string) (Pad, error)
	ReleasePad(Pad)
	StaticPad(name string) (Pad, error)
}

// Pad is a link point on an element.
type Pad interface {
	Name() string
	Link(sink Pad) error
	Unlink(sink Pad)
	SendEOS() bool
}
