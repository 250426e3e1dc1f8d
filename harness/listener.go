package harness

import (
	"sync"

	"github.com/chromedp/cdproto"

	"github.com/grafana/devtools-scenarios/cdp"
)

// On calls handler with every one of events the session's page emits, one
// event at a time, until the returned function is called or the session is
// closed.
//
// The returned function unsubscribes and waits until the events received
// before it was called have been handled. It must not be called from
// handler. Calling it more than once is safe.
func (s *Session) On(handler func(evt *cdp.Event), events ...cdproto.MethodType) func() {
	ch, unsubscribe := s.client.Subscribe(s.ctx, events...)
	done := make(chan struct{})

	var once sync.Once
	cancel := func() {
		once.Do(unsubscribe)
		<-done
	}

	s.listenersMu.Lock()
	s.listeners = append(s.listeners, cancel)
	s.listenersMu.Unlock()

	s.listenersWg.Add(1)
	go func() {
		defer s.listenersWg.Done()
		defer close(done)
		for evt := range ch {
			if s.observer != nil {
				s.observer(evt)
			}
			handler(evt)
		}
	}()

	return cancel
}
