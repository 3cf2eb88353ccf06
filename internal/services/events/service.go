// Package events broadcasts analysis progress to websocket subscribers.
package events

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
)

// subscriberBuffer bounds how many undelivered events a slow subscriber can
// hold before new events are dropped for it.
const subscriberBuffer = 64

// Service implements EventService with a fan-out channel per subscriber
type Service struct {
	subscribers map[int]chan models.ProgressEvent
	nextID      int
	allowed     map[string]bool
	mu          sync.Mutex
	closed      bool
	logger      arbor.ILogger
}

// NewService creates a new event service. allowedEvents whitelists event
// types; empty allows all.
func NewService(logger arbor.ILogger, allowedEvents []string) interfaces.EventService {
	var allowed map[string]bool
	if len(allowedEvents) > 0 {
		allowed = make(map[string]bool, len(allowedEvents))
		for _, e := range allowedEvents {
			allowed[e] = true
		}
	}
	return &Service{
		subscribers: make(map[int]chan models.ProgressEvent),
		allowed:     allowed,
		logger:      logger,
	}
}

// Publish sends an event to all current subscribers. Events for saturated
// subscribers are dropped rather than blocking the publisher.
func (s *Service) Publish(event models.ProgressEvent) {
	if s.allowed != nil && !s.allowed[event.Type] {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Debug().
				Int("subscriber", id).
				Str("event_type", event.Type).
				Msg("Dropping event for slow subscriber")
		}
	}
}

// Subscribe registers a new subscriber channel and returns an unsubscribe
// function. The channel is closed on unsubscribe or service shutdown.
func (s *Service) Subscribe() (<-chan models.ProgressEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.ProgressEvent, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch

	s.logger.Debug().Int("subscriber", id).Int("total", len(s.subscribers)).Msg("Event subscriber registered")

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

// Close shuts down the event service and closes all subscriber channels
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}

	s.logger.Info().Msg("Event service closed")
	return nil
}
