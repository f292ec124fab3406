package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"moodreply/app/label"
	"moodreply/app/service/queue"
	"moodreply/app/service/session"

	"github.com/samber/do"
)

const DefaultSessionID = "console"

// Service drives sessions from line-oriented input, one turn per line:
// "emotion intent" or "session emotion intent".
type Service struct {
	sessionMgr *session.Manager
	queueSvc   *queue.Service
	out        io.Writer
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*session.Manager](di),
		do.MustInvoke[*queue.Service](di),
		os.Stdout,
	), nil
}

func NewService(sessionMgr *session.Manager, queueSvc *queue.Service, out io.Writer) *Service {
	return &Service{
		sessionMgr: sessionMgr,
		queueSvc:   queueSvc,
		out:        out,
	}
}

// Run answers turns read from in until the input ends, "quit" is read or ctx
// is cancelled. On cancel in is closed when it is an io.Closer so the reader
// goroutine returns; otherwise it stays blocked until the next line arrives.
func (s *Service) Run(ctx context.Context, in io.Reader) error {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readDone := make(chan error, 1)
	go func() {
		readDone <- s.readTurns(readCtx, in)
	}()

	for {
		select {
		case <-ctx.Done():
			if closer, ok := in.(io.Closer); ok {
				if err := closer.Close(); err != nil {
					slog.Debug("Failed to close input", "error", err)
				}
			}
			return nil
		case msg, ok := <-s.queueSvc.Channel():
			if !ok {
				return nil
			}
			if err := s.process(msg); err != nil {
				return err
			}
		case err := <-readDone:
			if drainErr := s.drain(); drainErr != nil {
				return drainErr
			}
			return err
		}
	}
}

func (s *Service) drain() error {
	for {
		select {
		case msg, ok := <-s.queueSvc.Channel():
			if !ok {
				return nil
			}
			if err := s.process(msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Service) process(msg queue.Message) error {
	start := time.Now()

	reply := s.sessionMgr.Respond(msg.SessionID, msg.Emotion, msg.Intent)

	if _, err := fmt.Fprintln(s.out, reply.Text); err != nil {
		return fmt.Errorf("failed to write reply: %w", err)
	}

	slog.Debug("Processed turn",
		"session_id", msg.SessionID,
		"emotion", reply.Emotion,
		"intent", reply.Intent,
		"turn", reply.Turn,
		"duration", time.Since(start))

	return nil
}

func (s *Service) readTurns(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		msg, err := ParseLine(line)
		if err != nil {
			slog.Warn("Skipping malformed line", "line", line, "error", err)
			continue
		}

		if err = s.queueSvc.Put(ctx, msg); err != nil {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	return nil
}

// ParseLine parses "emotion intent" or "session emotion intent".
func ParseLine(line string) (queue.Message, error) {
	fields := strings.Fields(line)

	switch len(fields) {
	case 2:
		return queue.Message{
			SessionID: DefaultSessionID,
			Emotion:   label.Emotion(fields[0]),
			Intent:    label.Intent(fields[1]),
		}, nil
	case 3:
		return queue.Message{
			SessionID: fields[0],
			Emotion:   label.Emotion(fields[1]),
			Intent:    label.Intent(fields[2]),
		}, nil
	default:
		return queue.Message{}, fmt.Errorf("expected 2 or 3 fields, got %d", len(fields))
	}
}
