package property

import (
	"fmt"
	"sync"

	"github.com/nerrad567/propcore/internal/coretype"
)

// HandlerID identifies a subscription on an Emitter.
type HandlerID uint64

// Handler receives events raised by an object.
type Handler[A any] func(sender *Object, args A)

type subscription[A any] struct {
	id HandlerID
	fn Handler[A]
}

// Emitter is a synchronous multicast event. Handlers run inline on the
// goroutine that raised the event, in subscription order.
//
// All methods are safe for concurrent use. A nil *Emitter has no listeners.
type Emitter[A any] struct {
	mu       sync.Mutex
	handlers []subscription[A]
	nextID   HandlerID
	muted    bool
}

// NewEmitter creates an emitter with no handlers.
func NewEmitter[A any]() *Emitter[A] {
	return &Emitter[A]{}
}

// Subscribe adds h and returns the id that removes it again.
func (e *Emitter[A]) Subscribe(h Handler[A]) HandlerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.handlers = append(e.handlers, subscription[A]{id: e.nextID, fn: h})
	return e.nextID
}

// Unsubscribe removes a handler. It reports whether id was subscribed.
func (e *Emitter[A]) Unsubscribe(id HandlerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.handlers {
		if s.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Mute suppresses Trigger until Unmute is called.
func (e *Emitter[A]) Mute() {
	e.mu.Lock()
	e.muted = true
	e.mu.Unlock()
}

// Unmute re-enables Trigger.
func (e *Emitter[A]) Unmute() {
	e.mu.Lock()
	e.muted = false
	e.mu.Unlock()
}

// HandlerCount returns the number of subscribed handlers.
func (e *Emitter[A]) HandlerCount() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

// HasListeners reports whether Trigger would call any handler.
func (e *Emitter[A]) HasListeners() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.muted && len(e.handlers) > 0
}

// Trigger calls every handler with sender and args. A panicking handler
// does not stop the remaining handlers; the first panic is returned
// wrapped in ErrGeneral.
func (e *Emitter[A]) Trigger(sender *Object, args A) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	if e.muted || len(e.handlers) == 0 {
		e.mu.Unlock()
		return nil
	}
	handlers := make([]subscription[A], len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	var first error
	for _, s := range handlers {
		if err := callHandler(s.fn, sender, args); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func callHandler[A any](fn Handler[A], sender *Object, args A) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: event handler panic: %v", ErrGeneral, r)
		}
	}()
	fn(sender, args)
	return nil
}

// clone copies the subscriptions into a new emitter.
func (e *Emitter[A]) clone() *Emitter[A] {
	c := NewEmitter[A]()
	if e == nil {
		return c
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c.handlers = append(c.handlers, e.handlers...)
	c.nextID = e.nextID
	c.muted = e.muted
	return c
}

// channelScope selects between per-name and broadcast emitters.
type channelScope int

const (
	scopeNamed channelScope = iota
	scopeAny
)

// channel keys the read and write emitter maps of an object.
type channel struct {
	scope channelScope
	name  string
}

func named(name string) channel { return channel{scope: scopeNamed, name: name} }

var anyChannel = channel{scope: scopeAny}

// ValueEventType says why a value event was raised.
type ValueEventType int

// Value event types.
const (
	EventUpdate ValueEventType = iota
	EventClear
	EventRead
)

func (t ValueEventType) String() string {
	switch t {
	case EventUpdate:
		return "update"
	case EventClear:
		return "clear"
	case EventRead:
		return "read"
	}
	return "unknown"
}

// ValueEventArgs is passed to read and write handlers. Write handlers may
// replace the value about to be stored, read handlers the value about to
// be returned; stored state is never changed by a read handler.
type ValueEventArgs struct {
	Property   *Property
	OldValue   any
	Type       ValueEventType
	IsUpdating bool

	value    any
	replaced bool
}

// Value returns the value being written or read. For EventClear it is the
// property's default.
func (a *ValueEventArgs) Value() any {
	return a.value
}

// SetValue replaces the value. Write replacements go through the full
// validation pipeline before they are stored.
func (a *ValueEventArgs) SetValue(v any) error {
	n, err := coretype.Normalize(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	a.value = n
	a.replaced = true
	return nil
}

// EndUpdateEventArgs is passed to OnEndUpdate handlers.
type EndUpdateEventArgs struct {
	// Properties lists the names changed by the transaction, in the order
	// they were first written.
	Properties []string
	// ParentUpdating reports whether the owner is still inside its own
	// update when this object's transaction ended.
	ParentUpdating bool
}

// CoreEventID identifies a structural change notification.
type CoreEventID int

// Core event ids.
const (
	CorePropertyValueChanged CoreEventID = iota
	CorePropertyAdded
	CorePropertyRemoved
	CorePropertyOrderChanged
	CoreUpdateEnd
)

func (id CoreEventID) String() string {
	switch id {
	case CorePropertyValueChanged:
		return "property_value_changed"
	case CorePropertyAdded:
		return "property_added"
	case CorePropertyRemoved:
		return "property_removed"
	case CorePropertyOrderChanged:
		return "property_order_changed"
	case CoreUpdateEnd:
		return "update_end"
	}
	return "unknown"
}

// CoreEvent is the upward notification forwarded to external collaborators.
type CoreEvent struct {
	ID CoreEventID
	// Path is the raising object's path in its tree.
	Path string
	// Name is the property concerned, for value and add/remove events.
	Name string
	// Value is the new value for CorePropertyValueChanged.
	Value any
	// Property is the definition for CorePropertyAdded.
	Property *Property
	// Changes maps names to final values for CoreUpdateEnd.
	Changes *coretype.Dict
	// Order is the new custom order for CorePropertyOrderChanged.
	Order []string
}

// CoreEventTrigger receives core events from an object tree.
type CoreEventTrigger func(sender *Object, ev CoreEvent)
