package queue

import (
	"context"
	"log/slog"

	"moodreply/app/label"

	"github.com/samber/do"
)

const bufferSize = 64

var _ do.Shutdownable = (*Service)(nil)

type Service struct {
	queue chan Message
}

// Message is one classified user turn.
type Message struct {
	SessionID string
	Emotion   label.Emotion
	Intent    label.Intent
}

func New(_ *do.Injector) (*Service, error) {
	return &Service{
		queue: make(chan Message, bufferSize),
	}, nil
}

// Add enqueues without blocking and reports whether the message was accepted.
func (s *Service) Add(msg Message) (accepted bool) {
	defer func() {
		if r := recover(); r != nil {
			accepted = false
		}
	}()

	select {
	case s.queue <- msg:
		return true
	default:
		slog.Warn("message queue is full", "session_id", msg.SessionID)
		return false
	}
}

// Put waits for room in the queue.
func (s *Service) Put(ctx context.Context, msg Message) error {
	select {
	case s.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Channel() <-chan Message {
	return s.queue
}

func (s *Service) Shutdown() error {
	close(s.queue)

	return nil
}
