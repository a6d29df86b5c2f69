// Package server exposes the pipeline over HTTP: submission, status polling,
// result retrieval, and a health check.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"summaryd/internal/domain"
	"summaryd/internal/queue"
	"summaryd/internal/resultstore"
	"summaryd/internal/service"
	"summaryd/internal/statusstore"
)

const healthPingTimeout = 2 * time.Second

type Server struct {
	app      *fiber.App
	svc      *service.Service
	statuses statusstore.Store
	results  resultstore.Store
	queue    queue.Queue
	validate *validator.Validate
	log      *slog.Logger
}

func New(
	svc *service.Service,
	statuses statusstore.Store,
	results resultstore.Store,
	q queue.Queue,
	log *slog.Logger,
) *Server {
	s := &Server{
		app:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		svc:      svc,
		statuses: statuses,
		results:  results,
		queue:    q,
		validate: validator.New(),
		log:      log,
	}

	s.app.Post("/summarize", s.handleSummarize)
	s.app.Get("/check-status/:document_id", s.handleCheckStatus)
	s.app.Get("/result/:document_id", s.handleGetResult)
	s.app.Get("/health", s.handleHealth)

	return s
}

func (s *Server) Listen(addr string) error {
	s.log.Info("HTTP server listening",
		"addr", addr)

	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

type summarizeRequest struct {
	DocumentID string `json:"document_id" validate:"omitempty,max=128"`
	Text       string `json:"text"        validate:"required"`
}

func (s *Server) handleSummarize(c *fiber.Ctx) error {
	var req summarizeRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := s.validate.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	res, err := s.svc.Submit(c.UserContext(), req.DocumentID, req.Text)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return errorResponse(c, fiber.StatusBadRequest, err.Error())
		}

		s.log.ErrorContext(c.UserContext(), "Failed to submit document",
			"error", err)

		return errorResponse(c, fiber.StatusInternalServerError, "submission failed")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"document_id": res.DocumentID,
		"status":      res.Status,
		"message":     "Summarization queued",
	})
}

func (s *Server) handleCheckStatus(c *fiber.Ctx) error {
	documentID := c.Params("document_id")

	res, err := s.svc.GetStatus(c.UserContext(), documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errorResponse(c, fiber.StatusNotFound, "Document not found")
		}

		s.log.ErrorContext(c.UserContext(), "Failed to read status",
			"error", err,
			"documentID", documentID)

		return errorResponse(c, fiber.StatusInternalServerError, "status lookup failed")
	}

	body := fiber.Map{
		"document_id": res.DocumentID,
		"status":      res.Status,
		"updated_at":  res.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if res.Status == domain.StatusFailed {
		body["error"] = res.ErrorMessage
	}

	return c.Status(fiber.StatusOK).JSON(body)
}

func (s *Server) handleGetResult(c *fiber.Ctx) error {
	documentID := c.Params("document_id")

	res, err := s.svc.GetResult(c.UserContext(), documentID)
	if err == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"document_id": documentID,
			"status":      domain.StatusCompleted,
			"summary":     res.SummaryText,
		})
	}

	if errors.Is(err, domain.ErrNotFound) {
		return errorResponse(c, fiber.StatusNotFound, "Document not found")
	}

	var failed *domain.JobFailedError
	if errors.As(err, &failed) {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"document_id": documentID,
			"status":      domain.StatusFailed,
			"error":       failed.Message,
		})
	}

	// Not a failure from the client's point of view: the job simply has
	// not finished, so report the current state for the next poll.
	if errors.Is(err, domain.ErrNotReady) {
		status, statusErr := s.svc.GetStatus(c.UserContext(), documentID)
		if statusErr == nil {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"document_id": documentID,
				"status":      status.Status,
				"message":     "Document is still being processed",
			})
		}
	}

	s.log.ErrorContext(c.UserContext(), "Failed to read result",
		"error", err,
		"documentID", documentID)

	return errorResponse(c, fiber.StatusInternalServerError, "result lookup failed")
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthPingTimeout)
	defer cancel()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"statuses":  pingState(s.statuses.Ping(ctx)),
		"documents": pingState(s.results.Ping(ctx)),
		"queue":     pingState(s.queue.Ping(ctx)),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func pingState(err error) string {
	if err != nil {
		return "down"
	}

	return "up"
}

func errorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
