package connection

import (
	"encoding/json"
	"sync"
	"time"
)

// EventHandler receives events of one type: the event's data and the full event.
type EventHandler func(data json.RawMessage, ev InboundEvent)

// ReconnectHandler receives each scheduled reconnect attempt.
type ReconnectHandler func(attempt, maxAttempts int, delay time.Duration)

// handlerList is an ordered set of callbacks.
type handlerList[F any] struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []handlerEntry[F]
}

type handlerEntry[F any] struct {
	id uint64
	fn F
}

// add registers fn and returns a func that removes it.
func (l *handlerList[F]) add(fn F) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, handlerEntry[F]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *handlerList[F]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

// snapshot returns the current callbacks in registration order.
func (l *handlerList[F]) snapshot() []F {
	l.mu.RLock()
	defer l.mu.RUnlock()

	fns := make([]F, len(l.entries))
	for i, e := range l.entries {
		fns[i] = e.fn
	}
	return fns
}

// observers holds every notification subscriber of a Manager.
type observers struct {
	connected    handlerList[func()]
	disconnected handlerList[func()]
	closed       handlerList[func(code int, reason string)]
	errors       handlerList[func(error)]
	reconnecting handlerList[ReconnectHandler]
	maxAttempts  handlerList[func()]
	message      handlerList[func(InboundEvent)]

	typedMu sync.Mutex
	typed   map[string]*handlerList[EventHandler]
}

func (o *observers) typedList(eventType string, create bool) *handlerList[EventHandler] {
	o.typedMu.Lock()
	defer o.typedMu.Unlock()

	l, ok := o.typed[eventType]
	if !ok && create {
		if o.typed == nil {
			o.typed = make(map[string]*handlerList[EventHandler])
		}
		l = &handlerList[EventHandler]{}
		o.typed[eventType] = l
	}
	return l
}

// dispatch delivers ev to message subscribers, then to subscribers of ev.Type.
func (o *observers) dispatch(ev InboundEvent) {
	for _, fn := range o.message.snapshot() {
		fn(ev)
	}

	l := o.typedList(ev.Type, false)
	if l == nil {
		return
	}
	for _, fn := range l.snapshot() {
		fn(ev.Data, ev)
	}
}

// notices collects notifications produced under the manager mutex so they
// can be delivered after it is released.
type notices []func()

func (n *notices) add(f func()) {
	*n = append(*n, f)
}

func (n notices) fire() {
	for _, f := range n {
		f()
	}
}

func (o *observers) notifyConnected(n *notices) {
	n.add(func() {
		for _, fn := range o.connected.snapshot() {
			fn()
		}
	})
}

func (o *observers) notifyDisconnected(n *notices) {
	n.add(func() {
		for _, fn := range o.disconnected.snapshot() {
			fn()
		}
	})
}

func (o *observers) notifyClosed(n *notices, code int, reason string) {
	n.add(func() {
		for _, fn := range o.closed.snapshot() {
			fn(code, reason)
		}
	})
}

func (o *observers) notifyError(n *notices, err error) {
	n.add(func() {
		for _, fn := range o.errors.snapshot() {
			fn(err)
		}
	})
}

func (o *observers) notifyReconnecting(n *notices, attempt, maxAttempts int, delay time.Duration) {
	n.add(func() {
		for _, fn := range o.reconnecting.snapshot() {
			fn(attempt, maxAttempts, delay)
		}
	})
}

func (o *observers) notifyMaxAttempts(n *notices) {
	n.add(func() {
		for _, fn := range o.maxAttempts.snapshot() {
			fn()
		}
	})
}
