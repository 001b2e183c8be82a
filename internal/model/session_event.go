package model

import "time"

// SessionEventKind enumerates audited session lifecycle events.
type SessionEventKind string

const (
	SessionEventLoaded          SessionEventKind = "LOADED"
	SessionEventLoadFailed      SessionEventKind = "LOAD_FAILED"
	SessionEventSaveFailed      SessionEventKind = "SAVE_FAILED"
	SessionEventProctoringStart SessionEventKind = "PROCTORING_STARTED"
	SessionEventProctoringError SessionEventKind = "PROCTORING_ERROR"
	SessionEventVideoStored     SessionEventKind = "VIDEO_STORED"
	SessionEventFraudWarning    SessionEventKind = "FRAUD_WARNING"
	SessionEventSuspended       SessionEventKind = "SUSPENDED"
	SessionEventFinalizeFailed  SessionEventKind = "FINALIZE_FAILED"
	SessionEventSubmitted       SessionEventKind = "SUBMITTED"
	SessionEventAutoFinalize    SessionEventKind = "AUTO_FINALIZE"
)

// SessionEvent is one audited step of an attempt session.
type SessionEvent struct {
	AttemptID  int64            `json:"attempt_id"`
	StudentID  int64            `json:"student_id,omitempty"`
	Kind       SessionEventKind `json:"kind"`
	Detail     string           `json:"detail,omitempty"`
	RecordedAt time.Time        `json:"recorded_at"`
}
