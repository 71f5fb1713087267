package core

import (
	"sync"

	"github.com/spaghettifunk/vulx/engine/containers"
)

type EventContext struct {
	Data struct {
		I32 [4]int32
		U32 [4]uint32
		F32 [4]float32
		U16 [8]uint16
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed.
	/* Context usage:
	 * u16 key_code = data.U16[0];
	 */
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released.
	/* Context usage:
	 * u16 key_code = data.U16[0];
	 */
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * u32 width = data.U32[0];
	 * u32 height = data.U32[1];
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

// DefaultEventQueueSize bounds the events posted between two Dispatch calls.
const DefaultEventQueueSize = 256

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type postedEvent struct {
	code   SystemEventCode
	sender interface{}
	data   EventContext
}

// EventBus delivers events to registered listeners. Fire runs the callbacks
// immediately; Post queues the event until the owner calls Dispatch, which
// lets window callbacks hand events to the render loop.
type EventBus struct {
	mu         sync.Mutex
	registered map[SystemEventCode][]registeredEvent
	queue      *containers.RingQueue[postedEvent]
}

func NewEventBus(queueSize int) *EventBus {
	if queueSize <= 0 {
		queueSize = DefaultEventQueueSize
	}
	return &EventBus{
		registered: make(map[SystemEventCode][]registeredEvent),
		queue:      containers.NewRingQueue[postedEvent](queueSize),
	}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listeners will not be registered again and will cause this to return false.
 * @param code The event code to listen for.
 * @param listener A pointer to a listener instance. Can be nil.
 * @param onEvent The callback function to be invoked when the event code is fired.
 * @returns true if the event is successfully registered; otherwise false.
 */
func (b *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code < 0 || code >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	b.registered[code] = append(b.registered[code], registeredEvent{listener: listener, callback: onEvent})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code.
 * @returns true if the listener was found and removed.
 */
func (b *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func (b *EventBus) Fire(code SystemEventCode, sender interface{}, data EventContext) bool {
	b.mu.Lock()
	events := append([]registeredEvent(nil), b.registered[code]...)
	b.mu.Unlock()
	for _, e := range events {
		if e.callback(code, sender, e.listener, data) {
			return true
		}
	}
	return false
}

// Post queues an event for the next Dispatch. It fails when the queue is full.
func (b *EventBus) Post(code SystemEventCode, sender interface{}, data EventContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Enqueue(postedEvent{code: code, sender: sender, data: data})
}

// Dispatch fires every queued event in posting order and returns how many
// were delivered. Events posted by the callbacks wait for the next call.
func (b *EventBus) Dispatch() int {
	b.mu.Lock()
	pending := make([]postedEvent, 0, b.queue.Len())
	for !b.queue.IsEmpty() {
		e, _ := b.queue.Dequeue()
		pending = append(pending, e)
	}
	b.mu.Unlock()
	for _, e := range pending {
		b.Fire(e.code, e.sender, e.data)
	}
	return len(pending)
}

// Shutdown drops every registration and queued event.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = make(map[SystemEventCode][]registeredEvent)
	for !b.queue.IsEmpty() {
		_, _ = b.queue.Dequeue()
	}
}

func KeyEventContext(key KeyCode) EventContext {
	var ctx EventContext
	ctx.Data.U16[0] = uint16(key)
	return ctx
}

func ResizeEventContext(width, height uint32) EventContext {
	var ctx EventContext
	ctx.Data.U32[0] = width
	ctx.Data.U32[1] = height
	return ctx
}
