package cdp

import (
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"

	"github.com/grafana/devtools-scenarios/log"
)

// eventBufferSize is the per subscriber backlog. Events are dropped (and
// logged) when a subscriber falls this far behind.
const eventBufferSize = 256

// Event is a CDP event received from the browser.
type Event struct {
	Name cdproto.MethodType
	Data interface{}

	sessionID target.SessionID
}

// SessionID returns the session the event was emitted for. Browser level
// events have an empty session ID.
func (e *Event) SessionID() target.SessionID {
	return e.sessionID
}

type subscriber struct {
	sessionID target.SessionID
	ch        chan *Event
}

type eventWatcher struct {
	logger *log.Logger

	subsMu sync.RWMutex
	subs   map[cdproto.MethodType][]*subscriber
	closed bool
}

func newEventWatcher(logger *log.Logger) *eventWatcher {
	return &eventWatcher{
		logger: logger,
		subs:   make(map[cdproto.MethodType][]*subscriber),
	}
}

// subscribe registers a channel receiving the given events. An empty
// sessionID receives the events of every session. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (w *eventWatcher) subscribe(
	sessionID target.SessionID, events ...cdproto.MethodType,
) (<-chan *Event, func()) {
	sub := &subscriber{
		sessionID: sessionID,
		ch:        make(chan *Event, eventBufferSize),
	}

	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	if w.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	for _, evt := range events {
		w.subs[evt] = append(w.subs[evt], sub)
	}

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { w.unsubscribe(sub) })
	}
}

func (w *eventWatcher) unsubscribe(sub *subscriber) {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	if w.closed {
		return
	}
	for name, subs := range w.subs {
		kept := subs[:0]
		for _, s := range subs {
			if s != sub {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(w.subs, name)
			continue
		}
		w.subs[name] = kept
	}
	close(sub.ch)
}

func (w *eventWatcher) notify(evt *Event) {
	w.subsMu.RLock()
	defer w.subsMu.RUnlock()

	for _, sub := range w.subs[evt.Name] {
		if sub.sessionID != "" && sub.sessionID != evt.sessionID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			w.logger.Warnf("cdp:eventWatcher:notify", "dropping %q for sid:%v, subscriber is full", evt.Name, evt.sessionID)
		}
	}
}

// close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (w *eventWatcher) close() {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	if w.closed {
		return
	}
	w.closed = true

	seen := make(map[*subscriber]bool)
	for _, subs := range w.subs {
		for _, s := range subs {
			if seen[s] {
				continue
			}
			seen[s] = true
			close(s.ch)
		}
	}
	w.subs = nil
}
