package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// SnapshotReader reads cached attempt metadata.
type SnapshotReader interface {
	Get(ctx context.Context, attemptID int64) (*model.AttemptSnapshot, error)
}

// EventLister reads the session audit trail.
type EventLister interface {
	ListByAttempt(ctx context.Context, attemptID, studentID int64, limit int) ([]model.SessionEvent, error)
}

// AttemptHandler serves read-only views of attempt sessions over HTTP.
type AttemptHandler struct {
	registry  *session.Registry
	snapshots SnapshotReader
	events    EventLister
	log       zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(registry *session.Registry, snapshots SnapshotReader, events EventLister, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		registry:  registry,
		snapshots: snapshots,
		events:    events,
		log:       log.With().Str("component", "attempt_handler").Logger(),
	}
}

type eventsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// GetView godoc
// GET /api/v1/attempts/:attempt_id/view
// Returns the live view model when a session is connected, otherwise the
// cached attempt snapshot.
func (h *AttemptHandler) GetView(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	if m, found := h.registry.Get(attemptID); found && m.StudentID() == claims.UserID {
		response.Success(c, http.StatusOK, gin.H{
			"live": true,
			"view": m.ViewModel(),
			"home": m.HomeRoute(),
		})
		return
	}

	snapshot, err := h.snapshots.Get(c.Request.Context(), attemptID)
	if errors.Is(err, repository.ErrSnapshotNotFound) || (err == nil && snapshot.StudentID != claims.UserID) {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("attempt_id", attemptID).Msg("Failed to read attempt snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"live":     false,
		"snapshot": snapshot,
	})
}

// ListEvents godoc
// GET /api/v1/attempts/:attempt_id/events?limit=100
func (h *AttemptHandler) ListEvents(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	var q eventsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if q.Limit == 0 {
		q.Limit = 100
	}

	events, err := h.events.ListByAttempt(c.Request.Context(), attemptID, claims.UserID, q.Limit)
	if err != nil {
		h.log.Error().Err(err).Int64("attempt_id", attemptID).Msg("Failed to list session events")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if events == nil {
		events = []model.SessionEvent{}
	}

	response.Success(c, http.StatusOK, events)
}

func parseAttemptID(c *gin.Context) (int64, bool) {
	attemptID, err := strconv.ParseInt(c.Param("attempt_id"), 10, 64)
	if err != nil || attemptID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return attemptID, true
}
