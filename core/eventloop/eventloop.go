// Package eventloop provides the event loop that serializes every state change of a process.
//
// Components register handlers for the event types they are interested in.
// Transport goroutines and the proposal driver post events with AddEvent,
// and the goroutine running Run invokes the handlers one event at a time.
// Handlers therefore never run concurrently with each other (except those registered with UnsafeRunInAddEvent),
// and state owned by the handlers needs no further locking.
package eventloop

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/relab/flooding/core/logging"
)

// EventLoop accepts events of any type and executes registered event handlers.
type EventLoop struct {
	logger logging.Logger
	eventQ queue

	mut sync.Mutex // protects the following:

	ctx context.Context // set by Run

	handlers map[reflect.Type][]handler

	tickers  map[int]*ticker
	tickerID int
}

// New returns a new event loop with the requested initial buffer size.
func New(logger logging.Logger, bufferSize uint) *EventLoop {
	return &EventLoop{
		logger:   logger,
		ctx:      context.Background(),
		eventQ:   newQueue(bufferSize),
		handlers: make(map[reflect.Type][]handler),
		tickers:  make(map[int]*ticker),
	}
}

// Register registers a handler for events of type T with the given handler options, if any.
// The returned id can be passed to Unregister.
func Register[T any](el *EventLoop, handlerFunc func(T), opts ...HandlerOption) int {
	return el.registerHandler(typeOf[T](), func(event any) {
		handlerFunc(event.(T))
	}, opts)
}

// Unregister removes the handler with the given id for events of type T.
func Unregister[T any](el *EventLoop, id int) {
	el.unregisterHandler(typeOf[T](), id)
}

// RegisterHandler registers the given event handler for the type of eventType with the given handler options, if any.
// If no handler options are provided, the default handler options will be used.
func (el *EventLoop) RegisterHandler(eventType any, callback EventHandler, opts ...HandlerOption) int {
	return el.registerHandler(reflect.TypeOf(eventType), callback, opts)
}

// UnregisterHandler unregisters the handler for the type of eventType with the given id.
func (el *EventLoop) UnregisterHandler(eventType any, id int) {
	el.unregisterHandler(reflect.TypeOf(eventType), id)
}

func (el *EventLoop) registerHandler(t reflect.Type, callback EventHandler, opts []HandlerOption) int {
	h := handler{callback: callback}
	for _, opt := range opts {
		opt(&h.opts)
	}

	el.mut.Lock()
	defer el.mut.Unlock()

	handlers := el.handlers[t]

	// search for a free slot for the handler
	i := 0
	for ; i < len(handlers); i++ {
		if handlers[i].callback == nil {
			break
		}
	}

	// no free slots; have to grow the list
	if i == len(handlers) {
		handlers = append(handlers, h)
	} else {
		handlers[i] = h
	}

	el.handlers[t] = handlers
	return i
}

func (el *EventLoop) unregisterHandler(t reflect.Type, id int) {
	el.mut.Lock()
	defer el.mut.Unlock()
	handlers := el.handlers[t]
	if id < 0 || id >= len(handlers) {
		return
	}
	handlers[id].callback = nil
}

// AddEvent adds an event to the event queue.
// Handlers registered with UnsafeRunInAddEvent are invoked before AddEvent returns.
func (el *EventLoop) AddEvent(event any) {
	if event == nil {
		return
	}
	// run handlers with runInAddEvent option
	el.processEvent(event, true)
	el.eventQ.push(event)
}

// Context returns the context associated with the event loop.
// Usually, this context will be the one passed to Run.
// However, if Tick is used instead of Run, Context will return
// the last context that was passed to Tick.
// If neither Run nor Tick have been called,
// Context returns context.Background.
func (el *EventLoop) Context() context.Context {
	el.mut.Lock()
	defer el.mut.Unlock()

	return el.ctx
}

func (el *EventLoop) setContext(ctx context.Context) {
	el.mut.Lock()
	defer el.mut.Unlock()

	el.ctx = ctx
}

// Run runs the event loop. A context object can be provided to stop the event loop.
func (el *EventLoop) Run(ctx context.Context) {
	el.setContext(ctx)

loop:
	for {
		event, ok := el.eventQ.pop()
		if !ok {
			select {
			case <-el.eventQ.ready():
				continue loop
			case <-ctx.Done():
				break loop
			}
		}
		el.handle(event)
	}

	// handle the events that were in the queue when we got canceled before quitting.
	l := el.eventQ.len()
	for range l {
		event, _ := el.eventQ.pop()
		if _, ok := event.(startTickerEvent); ok {
			continue
		}
		el.processEvent(event, false)
	}
}

// Tick processes a single event. Returns true if an event was handled.
func (el *EventLoop) Tick(ctx context.Context) bool {
	el.setContext(ctx)

	event, ok := el.eventQ.pop()
	if !ok {
		return false
	}
	el.handle(event)
	return true
}

func (el *EventLoop) handle(event any) {
	if e, ok := event.(startTickerEvent); ok {
		el.startTicker(e.tickerID)
		return
	}
	el.processEvent(event, false)
}

var handlerListPool = sync.Pool{
	New: func() any { return make([]EventHandler, 0, 10) },
}

// processEvent dispatches the event to the correct handler.
func (el *EventLoop) processEvent(event any, runningInAddEvent bool) {
	t := reflect.TypeOf(event)

	// Must copy handlers to a list so that they can be executed after unlocking the mutex.
	// There should be few handlers (< 10) registered for each event type.
	priorityList := handlerListPool.Get().([]EventHandler)
	handlerList := handlerListPool.Get().([]EventHandler)

	el.mut.Lock()
	for _, handler := range el.handlers[t] {
		if handler.opts.runInAddEvent != runningInAddEvent || handler.callback == nil {
			continue
		}
		if handler.opts.priority {
			priorityList = append(priorityList, handler.callback)
		} else {
			handlerList = append(handlerList, handler.callback)
		}
	}
	el.mut.Unlock()

	for _, handler := range priorityList {
		handler(event)
	}

	priorityList = priorityList[:0]
	handlerListPool.Put(priorityList)

	for _, handler := range handlerList {
		handler(event)
	}

	handlerList = handlerList[:0]
	handlerListPool.Put(handlerList)
}

// AddTicker adds a ticker with the specified interval and returns the ticker id.
// The ticker will send the event returned by callback on the event loop at regular intervals.
// The returned ticker id can be used to remove the ticker with RemoveTicker.
// The ticker will not be started before the event loop is running.
func (el *EventLoop) AddTicker(interval time.Duration, callback func(tick time.Time) (event any)) int {
	el.mut.Lock()

	id := el.tickerID
	el.tickerID++

	el.tickers[id] = &ticker{
		interval: interval,
		callback: callback,
		cancel:   func() {}, // initialized to empty function to avoid nil
	}

	el.mut.Unlock()

	// We want the ticker to inherit the context of the event loop,
	// so we need to start the ticker from the run loop.
	el.eventQ.push(startTickerEvent{id})

	return id
}

// RemoveTicker removes the ticker with the specified id.
// If the ticker was removed, RemoveTicker will return true.
// If the ticker does not exist, false will be returned instead.
func (el *EventLoop) RemoveTicker(id int) bool {
	el.mut.Lock()
	defer el.mut.Unlock()

	ticker, ok := el.tickers[id]
	if !ok {
		return false
	}
	ticker.cancel()
	delete(el.tickers, id)
	return true
}

func (el *EventLoop) startTicker(id int) {
	// lock the mutex such that the ticker cannot be removed until we have started it
	el.mut.Lock()
	defer el.mut.Unlock()

	ticker, ok := el.tickers[id]
	if !ok {
		return
	}
	ctx := el.ctx
	ctx, ticker.cancel = context.WithCancel(ctx)
	go el.runTicker(ctx, ticker)
}

func (el *EventLoop) runTicker(ctx context.Context, ticker *ticker) {
	t := time.NewTicker(ticker.interval)
	defer t.Stop()

	if ctx.Err() != nil {
		return
	}

	// send the first event immediately
	el.AddEvent(ticker.callback(time.Now()))

	for {
		select {
		case tick := <-t.C:
			el.AddEvent(ticker.callback(tick))
		case <-ctx.Done():
			return
		}
	}
}
