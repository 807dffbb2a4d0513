package core

import (
	"sync"

	"github.com/spaghettifunk/renderworld/engine/containers"
)

// System internal event codes. Application should use codes beyond 255.
type EventCode uint16

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT EventCode = 0x01
	// Keyboard key pressed. Data: *KeyEvent
	EVENT_CODE_KEY_PRESSED EventCode = 0x02
	// Keyboard key released. Data: *KeyEvent
	EVENT_CODE_KEY_RELEASED EventCode = 0x03
	// Mouse button pressed. Data: *MouseEvent
	EVENT_CODE_BUTTON_PRESSED EventCode = 0x04
	// Mouse button released. Data: *MouseEvent
	EVENT_CODE_BUTTON_RELEASED EventCode = 0x05
	// Mouse moved. Data: *MouseEvent
	EVENT_CODE_MOUSE_MOVED EventCode = 0x06
	// Mouse wheel. Data: *MouseEvent, Z holds the delta
	EVENT_CODE_MOUSE_WHEEL EventCode = 0x07
	// Resized/resolution changed from the OS. Data: *SystemEvent
	EVENT_CODE_RESIZED EventCode = 0x08
	// The map file backing the world changed on disk. Data: *FileEvent
	EVENT_CODE_MAP_CHANGED EventCode = 0x09

	MAX_EVENT_CODE EventCode = 0xFF
)

type EventContext struct {
	Type EventCode
	Data interface{}
}

type KeyEvent struct {
	KeyCode KeyCode
}

type MouseEvent struct {
	Button Button
	X      int32
	Y      int32
	Z      int8
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type FileEvent struct {
	Path string
}

// Should return true if handled.
type FnOnEvent func(context EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventSystem dispatches events to registered listeners. Fire delivers
// immediately on the calling goroutine; Post queues the event so that
// platform callbacks and watcher goroutines can hand events to the main
// loop, which drains them with Dispatch.
type EventSystem struct {
	mu         sync.Mutex
	queue      *containers.RingQueue[EventContext]
	registered map[EventCode][]*registeredEvent
}

func NewEventSystem(queueSize int) *EventSystem {
	return &EventSystem{
		queue:      containers.NewRingQueue[EventContext](queueSize),
		registered: make(map[EventCode][]*registeredEvent),
	}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener combos will not be registered again and will cause this to return false.
 */
func (es *EventSystem) Register(code EventCode, listener interface{}, onEvent FnOnEvent) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	for _, e := range es.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code `%d`", code)
			return false
		}
	}
	es.registered[code] = append(es.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes the listener for the code. Returns false if it was not registered.
func (es *EventSystem) Unregister(code EventCode, listener interface{}) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	events := es.registered[code]
	for i, e := range events {
		if e.listener == listener {
			es.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 */
func (es *EventSystem) Fire(context EventContext) bool {
	es.mu.Lock()
	events := append([]*registeredEvent(nil), es.registered[context.Type]...)
	es.mu.Unlock()

	for _, e := range events {
		if e.callback(context) {
			return true
		}
	}
	return false
}

// Post queues an event for the next Dispatch. It is safe to call from any goroutine.
func (es *EventSystem) Post(context EventContext) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	if err := es.queue.Enqueue(context); err != nil {
		LogWarn("dropping event `%d`: %s", context.Type, err)
		return err
	}
	return nil
}

// Dispatch fires every queued event in order and returns how many were delivered.
func (es *EventSystem) Dispatch() int {
	n := 0
	for {
		es.mu.Lock()
		context, err := es.queue.Dequeue()
		es.mu.Unlock()
		if err != nil {
			return n
		}
		es.Fire(context)
		n++
	}
}
