package plugins

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType identifies a plugin lifecycle event
type EventType string

const (
	EventLoaded        EventType = "loaded"
	EventUnloaded      EventType = "unloaded"
	EventError         EventType = "error"
	EventEnabled       EventType = "enabled"
	EventDisabled      EventType = "disabled"
	EventConfigUpdated EventType = "config_updated"
)

// Event is delivered to subscribers when a plugin changes state
type Event struct {
	ID     uuid.UUID
	Type   EventType
	Plugin string
	Err    error
	Time   time.Time
}

type subscription struct {
	id uint64
	fn func(Event)
}

// subscribers is an ordered list of event handlers. Handlers run
// synchronously on the emitting goroutine, in subscription order.
type subscribers struct {
	mu   sync.RWMutex
	next uint64
	subs []subscription
	log  *logrus.Logger
}

func (s *subscribers) subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	id := s.next
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *subscribers) emit(typ EventType, plugin string, err error) {
	s.mu.RLock()
	subs := append([]subscription(nil), s.subs...)
	s.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	ev := Event{
		ID:     uuid.New(),
		Type:   typ,
		Plugin: plugin,
		Err:    err,
		Time:   time.Now(),
	}
	for _, sub := range subs {
		s.deliver(sub.fn, ev)
	}
}

func (s *subscribers) deliver(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"plugin": ev.Plugin,
				"event":  ev.Type,
				"panic":  r,
			}).Error("Event subscriber panicked")
		}
	}()
	fn(ev)
}
