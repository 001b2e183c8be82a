package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/proctoring"
)

// API is the slice of the rendiciones backend a session needs.
type API interface {
	GetProfile(ctx context.Context) (*model.Profile, error)
	GetAttemptQuestions(ctx context.Context, attemptID int64) (*model.AttemptQuestions, error)
	AutosaveAnswer(ctx context.Context, attemptID, questionID int64, answer model.LocalAnswer) error
	FinalizeAttempt(ctx context.Context, attemptID int64) error
	GetResult(ctx context.Context, attemptID int64) (*model.Result, error)
	StartProctoring(ctx context.Context, attemptID int64) error
	SaveProctoringVideoURL(ctx context.Context, attemptID int64, url string) error
	ReportFraudWarning(ctx context.Context, attemptID int64, motive model.Motive) (*model.WarningReply, error)
}

// Ticks is a shared one-second clock.
type Ticks interface {
	Subscribe(fn func(time.Time)) (cancel func())
}

// Journal records session events for auditing. Publishing is best-effort.
type Journal interface {
	Publish(ctx context.Context, event model.SessionEvent) error
}

// SnapshotCache keeps attempt metadata available outside a live session.
type SnapshotCache interface {
	Save(ctx context.Context, snapshot *model.AttemptSnapshot) error
	Invalidate(ctx context.Context, attemptID int64) error
}

// Deps are the collaborators of a Machine. Ticks, Journal and Cache are
// optional.
type Deps struct {
	API      API
	Uploader proctoring.Uploader
	Capturer proctoring.Capturer
	Ticks    Ticks
	Journal  Journal
	Cache    SnapshotCache
	Log      zerolog.Logger
}

// Options tune a Machine.
type Options struct {
	Debounce   time.Duration
	ChunkEvery time.Duration
	// StudentID tags journal events.
	StudentID int64
	Now       func() time.Time
}
