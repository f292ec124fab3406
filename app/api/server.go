package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"moodreply/app/config"
	"moodreply/app/label"
	"moodreply/app/service/conversation"
	"moodreply/app/service/selector"
	"moodreply/app/service/session"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/do"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg        *config.Config
	sessionMgr *session.Manager
	validate   *validator.Validate
	app        *fiber.App
}

type openRequest struct {
	Seed *uint64 `json:"seed"`
}

type openResponse struct {
	SessionID string `json:"session_id"`
}

type turnRequest struct {
	Emotion string `json:"emotion" validate:"required"`
	Intent  string `json:"intent" validate:"required"`
}

type statsResponse struct {
	selector.Stats
	Sessions int `json:"sessions"`
}

func New(di *do.Injector) (*Server, error) {
	return NewServer(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[*session.Manager](di),
	), nil
}

func NewServer(cfg *config.Config, sessionMgr *session.Manager) *Server {
	s := &Server{
		cfg:        cfg,
		sessionMgr: sessionMgr,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "moodreply",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())

	router := s.app.Group("/api")
	router.Post("/sessions", s.openSession)
	router.Post("/sessions/:id/turns", s.respond)
	router.Get("/sessions/:id", s.getSession)
	router.Put("/sessions/:id", s.restoreSession)
	router.Delete("/sessions/:id", s.closeSession)
	router.Get("/stats", s.stats)

	return s
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.HTTP.Listen)
	}()

	slog.Info("HTTP API listening", "addr", s.cfg.HTTP.Listen)

	select {
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return fmt.Errorf("failed to shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server stopped: %w", err)
	}
}

func (s *Server) openSession(c *fiber.Ctx) error {
	var req openRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
		}
	}

	id := s.sessionMgr.Open(req.Seed)

	return c.Status(fiber.StatusCreated).JSON(openResponse{SessionID: id})
}

func (s *Server) respond(c *fiber.Ctx) error {
	var req turnRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	reply := s.sessionMgr.Respond(sessionID(c), label.Emotion(req.Emotion), label.Intent(req.Intent))

	return c.JSON(reply)
}

func (s *Server) getSession(c *fiber.Ctx) error {
	snap, ok := s.sessionMgr.Snapshot(sessionID(c))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}

	return c.JSON(snap)
}

func (s *Server) restoreSession(c *fiber.Ctx) error {
	var snap conversation.Snapshot
	if err := c.BodyParser(&snap); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}

	if err := s.sessionMgr.Restore(sessionID(c), snap); err != nil {
		if errors.Is(err, conversation.ErrInvalidSnapshot) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return fmt.Errorf("failed to restore session: %w", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) closeSession(c *fiber.Ctx) error {
	if !s.sessionMgr.Close(sessionID(c)) {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) stats(c *fiber.Ctx) error {
	return c.JSON(statsResponse{
		Stats:    s.sessionMgr.Stats(),
		Sessions: s.sessionMgr.Len(),
	})
}

// sessionID copies the route parameter, fiber reuses its buffer after the
// handler returns.
func sessionID(c *fiber.Ctx) string {
	return strings.Clone(c.Params("id"))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	if code >= fiber.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err)
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
