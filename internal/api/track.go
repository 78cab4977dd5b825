package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/tracklens/internal/metrics"
	"github.com/tracklens/internal/store"
	"github.com/tracklens/internal/tracker"
)

// Enqueuer hands an accepted tracking request to the queue. Implemented by
// jobqueue.JobQueue; stubbed in handler tests.
type Enqueuer interface {
	EnqueueTrack(ctx context.Context, projectID, orgID string, data tracker.Request) error
}

type urlPayload struct {
	Name     string `json:"name"`
	FileType string `json:"file_type"`
	Type     string `json:"type,omitempty"`
	Src      string `json:"src"`
}

type trackRequest struct {
	Input          *string      `json:"input"`
	Output         *string      `json:"output"`
	Event          string       `json:"event"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Model          string       `json:"model"`
	URLs           []urlPayload `json:"urls,omitempty"`
}

type trackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// validate mirrors the ingestion schema: input, output, event and model are
// required; urls entries need a known file type and a parseable src.
func (r *trackRequest) validate() error {
	if r.Input == nil {
		return fmt.Errorf("input is required")
	}
	if r.Output == nil {
		return fmt.Errorf("output is required")
	}
	if r.Event == "" {
		return fmt.Errorf("event is required")
	}
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	for i, u := range r.URLs {
		switch store.AttachmentType(u.FileType) {
		case store.AttachmentImage, store.AttachmentVideo, store.AttachmentWebsite:
		default:
			return fmt.Errorf("urls[%d].file_type must be one of image, video, website", i)
		}
		parsed, err := url.Parse(u.Src)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("urls[%d].src must be a valid URL", i)
		}
	}
	return nil
}

func (r *trackRequest) toTrackerRequest() tracker.Request {
	req := tracker.Request{
		Input:          *r.Input,
		Output:         *r.Output,
		Event:          r.Event,
		ConversationID: r.ConversationID,
		Model:          r.Model,
	}
	for _, u := range r.URLs {
		req.URLs = append(req.URLs, store.Attachment{
			Name:     u.Name,
			FileType: store.AttachmentType(u.FileType),
			Type:     u.Type,
			Src:      u.Src,
		})
	}
	return req
}

// handleTrack accepts one interaction record, authenticates the caller by
// API key, and enqueues it. The caller never waits on classification.
func (s *Server) handleTrack(c echo.Context) error {
	ctx := c.Request().Context()

	key, err := bearerToken(c)
	if err != nil {
		metrics.IngestRequests.WithLabelValues("unauthorized").Inc()
		return c.JSON(http.StatusUnauthorized, trackResponse{Success: false, Message: err.Error()})
	}

	project, err := s.resolver.ResolveAPIKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.IngestRequests.WithLabelValues("unauthorized").Inc()
			return c.JSON(http.StatusUnauthorized, trackResponse{Success: false, Message: "Invalid API key"})
		}
		log.Error().Err(err).Msg("API key lookup failed")
		metrics.IngestRequests.WithLabelValues("error").Inc()
		return c.JSON(http.StatusInternalServerError, trackResponse{Success: false, Message: "Internal server error"})
	}

	if !s.limiter.Allow(project.ID) {
		metrics.IngestRequests.WithLabelValues("rate_limited").Inc()
		return c.JSON(http.StatusTooManyRequests, trackResponse{Success: false, Message: "Rate limit exceeded"})
	}

	var body trackRequest
	if err := c.Bind(&body); err != nil {
		metrics.IngestRequests.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, trackResponse{Success: false, Message: "Malformed request body"})
	}
	if err := body.validate(); err != nil {
		metrics.IngestRequests.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, trackResponse{Success: false, Message: err.Error()})
	}

	if err := s.enqueuer.EnqueueTrack(ctx, project.ID, project.OrganizationID, body.toTrackerRequest()); err != nil {
		log.Error().
			Err(err).
			Str("project_id", project.ID).
			Str("event", body.Event).
			Msg("Failed to enqueue tracking job")
		metrics.IngestRequests.WithLabelValues("error").Inc()
		return c.JSON(http.StatusInternalServerError, trackResponse{Success: false, Message: "Internal server error"})
	}

	metrics.IngestRequests.WithLabelValues("accepted").Inc()
	return c.JSON(http.StatusAccepted, trackResponse{Success: true, Message: "Tracking data queued successfully"})
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("Authorization header required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("Invalid authorization header format")
	}
	return parts[1], nil
}
