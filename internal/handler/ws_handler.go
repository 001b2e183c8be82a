package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/apperr"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/proctoring"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/validator"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// Backend is the rendiciones API acting for one student.
type Backend interface {
	session.API
	proctoring.Uploader
}

// SessionLocker keeps a single live connection per attempt across instances.
type SessionLocker interface {
	Acquire(ctx context.Context, attemptID int64, owner string) (bool, error)
	Refresh(ctx context.Context, attemptID int64, owner string) (bool, error)
	Release(ctx context.Context, attemptID int64, owner string) error
	TTL() time.Duration
}

// WSHandlerConfig wires a WSHandler. Uploader, Ticks, Journal, Cache and
// Locks are optional.
type WSHandlerConfig struct {
	NewBackend     func(token string) Backend
	Uploader       proctoring.Uploader
	Ticks          session.Ticks
	Journal        session.Journal
	Cache          session.SnapshotCache
	Locks          SessionLocker
	Registry       *session.Registry
	Options        session.Options
	MediaTimeout   time.Duration
	AllowedOrigins []string
}

// WSHandler drives attempt sessions over WebSocket.
type WSHandler struct {
	cfg      WSHandlerConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(cfg WSHandlerConfig, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		cfg:      cfg,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(cfg.AllowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream?token=...&curso=...
// Upgrades to WebSocket and drives the attempt: view models flow out, student
// actions and camera data flow in.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := strconv.ParseInt(c.Param("attempt_id"), 10, 64)
	if err != nil || attemptID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	// An unparsable course hint is treated as absent.
	courseHint, _ := strconv.ParseInt(c.Query("curso"), 10, 64)

	connID := uuid.New().String()
	wsLog := h.log.With().
		Int64("student_id", claims.UserID).
		Int64("attempt_id", attemptID).
		Str("conn_id", connID).
		Str("request_id", response.GetRequestID(c)).
		Logger()

	if h.cfg.Locks != nil {
		ok, err := h.cfg.Locks.Acquire(c.Request.Context(), attemptID, connID)
		if err != nil {
			wsLog.Error().Err(err).Msg("Session lock error")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
		if !ok {
			response.Fail(c, http.StatusConflict, response.ErrAttemptLocked)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.releaseLock(attemptID, connID)
		wsLog.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	defer h.releaseLock(attemptID, connID)
	conn.SetReadLimit(ws.MaxMessageSize)

	out := ws.NewWriter(conn)

	backend := h.cfg.NewBackend(middleware.GetToken(c))
	var uploader proctoring.Uploader = backend
	if h.cfg.Uploader != nil {
		uploader = h.cfg.Uploader
	}
	capturer := proctoring.NewRemoteCapturer(func(cmd proctoring.Command) error {
		return out.WriteTyped(ws.MediaResponse{Event: ws.EventMedia, Command: cmd})
	}, h.cfg.MediaTimeout)

	opts := h.cfg.Options
	opts.StudentID = claims.UserID
	m := session.New(session.Deps{
		API:      backend,
		Uploader: uploader,
		Capturer: capturer,
		Ticks:    h.cfg.Ticks,
		Journal:  h.cfg.Journal,
		Cache:    h.cfg.Cache,
		Log:      wsLog,
	}, opts)

	if err := h.cfg.Registry.Register(attemptID, m); err != nil {
		m.Close()
		out.WriteError(string(response.ErrAttemptLocked), response.GetMessage(response.ErrAttemptLocked))
		out.Close(websocket.ClosePolicyViolation, string(response.ErrAttemptLocked))
		return
	}
	defer h.cfg.Registry.Unregister(attemptID, m)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	views, unsubscribe := m.Subscribe()
	defer unsubscribe()
	go h.forwardViews(m, views, out, wsLog)

	if h.cfg.Locks != nil {
		go h.keepLock(ctx, attemptID, connID, conn, out, wsLog)
	}

	go func() {
		if err := m.Load(ctx, attemptID, courseHint); err != nil {
			wsLog.Warn().Err(err).Msg("Attempt load failed")
		}
	}()

	wsLog.Info().Msg("Student connected")

	for {
		msgType, data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			capturer.PushChunk(data)
			continue
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			out.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
			continue
		}
		h.dispatch(ctx, env.Action, data, m, capturer, out, wsLog)
	}
}

// dispatch runs one student action. Actions that wait on the network or on the
// browser run in their own goroutine so the read loop keeps feeding camera
// answers and chunks.
func (h *WSHandler) dispatch(ctx context.Context, action ws.Action, data []byte, m *session.Machine, capturer *proctoring.RemoteCapturer, out *ws.Writer, wsLog zerolog.Logger) {
	switch action {
	case ws.ActionPing:
		out.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	case ws.ActionNavigate:
		var req ws.NavigateRequest
		if decodeAction(data, &req, out) {
			m.Navigate(*req.Index)
		}
	case ws.ActionNext:
		m.Next()
	case ws.ActionPrev:
		m.Prev()

	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if decodeAction(data, &req, out) {
			writeSessionError(out, m.RecordAnswer(req.AnswerPatch))
		}
	case ws.ActionRetrySave:
		var req ws.RetrySaveRequest
		if decodeAction(data, &req, out) {
			writeSessionError(out, m.RetrySave(req.QuestionID))
		}

	case ws.ActionSignal:
		var req ws.SignalRequest
		if decodeAction(data, &req, out) {
			go m.Signal(ctx, req.Motive)
		}

	case ws.ActionStartProctoring:
		go func() {
			// Camera failures are already part of the view model.
			if err := m.StartProctoring(ctx); err != nil && !errors.Is(err, apperr.Proctoring) {
				writeSessionError(out, err)
			}
		}()
	case ws.ActionMediaResult:
		var req ws.MediaResultRequest
		if decodeAction(data, &req, out) {
			capturer.Resolve(req.Granted, req.Reason)
		}
	case ws.ActionMediaStopped:
		capturer.Stopped()

	case ws.ActionOpenFinalizeModal:
		m.OpenFinalizeModal()
	case ws.ActionCloseFinalizeModal:
		m.CloseFinalizeModal()
	case ws.ActionCloseWarnModal:
		m.CloseWarnModal()

	case ws.ActionFinalize:
		go func() {
			if err := m.Finalize(ctx); err != nil {
				wsLog.Info().Err(err).Msg("Finalize rejected")
				writeSessionError(out, err)
			}
		}()

	default:
		wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
		out.WriteError(string(response.ErrUnknownAction), response.GetMessage(response.ErrUnknownAction)+" "+string(action))
	}
}

func (h *WSHandler) forwardViews(m *session.Machine, views <-chan session.ViewModel, out *ws.Writer, wsLog zerolog.Logger) {
	for vm := range views {
		err := out.WriteTyped(ws.ViewResponse{Event: ws.EventView, Home: m.HomeRoute(), Data: vm})
		if err != nil {
			wsLog.Debug().Err(err).Msg("View write failed")
		}
	}
}

// keepLock refreshes the attempt lock and drops the connection once another
// connection has taken the attempt over.
func (h *WSHandler) keepLock(ctx context.Context, attemptID int64, connID string, conn *websocket.Conn, out *ws.Writer, wsLog zerolog.Logger) {
	every := h.cfg.Locks.TTL() / 3
	if every <= 0 {
		every = 10 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, err := h.cfg.Locks.Refresh(ctx, attemptID, connID)
		if err != nil {
			wsLog.Warn().Err(err).Msg("Session lock refresh failed")
			continue
		}
		if !ok {
			wsLog.Warn().Msg("Session lock lost, closing connection")
			out.WriteError(string(response.ErrSessionLost), response.GetMessage(response.ErrSessionLost))
			out.Close(websocket.ClosePolicyViolation, string(response.ErrSessionLost))
			conn.Close()
			return
		}
	}
}

func (h *WSHandler) releaseLock(attemptID int64, connID string) {
	if h.cfg.Locks == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.cfg.Locks.Release(ctx, attemptID, connID); err != nil {
		h.log.Warn().Err(err).Int64("attempt_id", attemptID).Msg("Session lock release failed")
	}
}

// decodeAction parses and validates an action payload, reporting failures
// to the client.
func decodeAction(data []byte, dst any, out *ws.Writer) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		out.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		out.WriteFields(string(response.ErrValidation), response.GetMessage(response.ErrValidation), fields)
		return false
	}
	return true
}

// sessionErrCode maps a session error onto the API error codes.
func sessionErrCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, apperr.ErrSuspended):
		return response.ErrAttemptSuspended
	case errors.Is(err, apperr.ErrFinalizeInProgress):
		return response.ErrFinalizeInProgress
	case errors.Is(err, session.ErrNotInProgress):
		return response.ErrNotInProgress
	case errors.Is(err, session.ErrClosed):
		return response.ErrSessionNotFound
	case errors.Is(err, apperr.Proctoring):
		return response.ErrCameraRequired
	default:
		return response.ErrInternal
	}
}

func writeSessionError(out *ws.Writer, err error) {
	if err == nil {
		return
	}
	code := sessionErrCode(err)
	out.WriteError(string(code), apperr.UserMessage(err, response.GetMessage(code)))
}
