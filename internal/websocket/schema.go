package websocket

import (
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/proctoring"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing               Action = "ping"
	ActionNavigate           Action = "navigate"
	ActionNext               Action = "next"
	ActionPrev               Action = "prev"
	ActionAnswer             Action = "answer"
	ActionRetrySave          Action = "retry_save"
	ActionSignal             Action = "signal"
	ActionStartProctoring    Action = "start_proctoring"
	ActionMediaResult        Action = "media_result"
	ActionMediaStopped       Action = "media_stopped"
	ActionOpenFinalizeModal  Action = "open_finalize_modal"
	ActionCloseFinalizeModal Action = "close_finalize_modal"
	ActionCloseWarnModal     Action = "close_warn_modal"
	ActionFinalize           Action = "finalize"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// NavigateRequest jumps to a question by position.
type NavigateRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"i" binding:"required,min=0"`
}

// AnswerRequest patches the current question's answer. Omitted fields are
// left untouched.
type AnswerRequest struct {
	Action Action `json:"action"`
	model.AnswerPatch
}

// RetrySaveRequest re-runs a failed save. A zero id means the current question.
type RetrySaveRequest struct {
	Action     Action `json:"action"`
	QuestionID int64  `json:"id_pregunta" binding:"min=0"`
}

// SignalRequest reports suspicious behaviour seen by the browser.
type SignalRequest struct {
	Action Action       `json:"action"`
	Motive model.Motive `json:"motivo" binding:"required,oneof=NO_FACE TAB_SWITCH WINDOW_BLUR"`
}

// MediaResultRequest answers a media.acquire command.
type MediaResultRequest struct {
	Action  Action `json:"action"`
	Granted bool   `json:"granted"`
	Reason  string `json:"reason" binding:"omitempty,oneof=denied unsupported failed"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventView  Event = "view"
	EventMedia Event = "media"
	EventError Event = "error"
	EventPong  Event = "pong"
)

// ViewResponse carries the latest view model.
type ViewResponse struct {
	Event Event  `json:"event"`
	Home  string `json:"home"`
	Data  any    `json:"data"`
}

// MediaResponse asks the browser to operate its camera.
type MediaResponse struct {
	Event   Event              `json:"event"`
	Command proctoring.Command `json:"command"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code,omitempty"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
