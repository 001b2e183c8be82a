package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-attempt/internal/answers"
	"github.com/stemsi/exstem-attempt/internal/apperr"
	"github.com/stemsi/exstem-attempt/internal/autosave"
	"github.com/stemsi/exstem-attempt/internal/countdown"
	"github.com/stemsi/exstem-attempt/internal/fraud"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/proctoring"
)

// Phase is the session lifecycle position.
type Phase string

const (
	PhaseLoading    Phase = "LOADING"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseFinalizing Phase = "FINALIZING"
	PhaseSubmitted  Phase = "SUBMITTED"
	PhaseSuspended  Phase = "SUSPENDED"
	PhaseFailed     Phase = "FAILED"
)

// Student-facing messages.
const (
	MsgInvalidAttempt    = "ID de intento inválido."
	MsgLoadFailed        = "No se pudo cargar la rendición."
	MsgAttemptNotFound   = "No se encontró la rendición."
	MsgSuspendedFinalize = "Intento suspendido. No puedes finalizar."
	MsgCameraRequired    = "Debes activar la cámara para finalizar."
	MsgFinalizeFailed    = "Error al finalizar."
)

// Machine drives one student's attempt: loading, navigation, answers,
// proctoring, fraud warnings, the countdown and submission. Every state
// change is projected into a ViewModel and pushed to subscribers.
type Machine struct {
	deps Deps
	opts Options
	log  zerolog.Logger
	out  *stream

	ctx    context.Context
	cancel context.CancelFunc

	mu                 sync.Mutex
	gen                uint64
	closed             bool
	version            uint64
	phase              Phase
	attemptID          int64
	safeCourseID       int64
	profile            *model.Profile
	evaluation         *model.Evaluation
	attempt            *model.Attempt
	flat               []model.FlatQuestion
	current            int
	errMsg             string
	delivered          bool
	suspended          bool
	showFinalizeModal  bool
	result             *model.Result
	proctoringRequired bool

	answers   *answers.Store
	pipeline  *autosave.Pipeline
	capture   *proctoring.Capture
	monitor   *fraud.Monitor
	countdown *countdown.Countdown
	stopTicks func()
}

// New creates a Machine in LOADING with nothing loaded.
func New(deps Deps, opts Options) *Machine {
	if opts.Debounce <= 0 {
		opts.Debounce = autosave.DefaultDebounce
	}
	if opts.ChunkEvery <= 0 {
		opts.ChunkEvery = proctoring.DefaultChunkEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		deps:    deps,
		opts:    opts,
		log:     deps.Log.With().Str("component", "session").Logger(),
		out:     newStream(),
		ctx:     ctx,
		cancel:  cancel,
		phase:   PhaseLoading,
		answers: answers.NewStore(),
	}
}

// Load fetches the attempt and resets every per-attempt piece of state.
// courseHint is the course the student came from, zero when unknown.
func (m *Machine) Load(ctx context.Context, attemptID, courseHint int64) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.gen++
	gen := m.gen
	release := m.detach()
	m.reset(attemptID, courseHint)
	if attemptID <= 0 {
		m.phase = PhaseFailed
		m.errMsg = MsgInvalidAttempt
	}
	vm := m.frame()
	m.mu.Unlock()

	release()
	m.out.publish(vm)

	if attemptID <= 0 {
		return apperr.LoadError(MsgInvalidAttempt, nil)
	}

	log := m.log.With().Int64("attempt_id", attemptID).Logger()

	var (
		profile *model.Profile
		data    *model.AttemptQuestions
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := m.deps.API.GetProfile(gctx)
		profile = p
		return err
	})
	g.Go(func() error {
		d, err := m.deps.API.GetAttemptQuestions(gctx, attemptID)
		data = d
		return err
	})
	err := g.Wait()
	if err == nil && (data == nil || data.Attempt == nil) {
		err = errors.New("attempt missing from payload")
	}

	if err != nil {
		fallback := MsgLoadFailed
		if apperr.IsNotFound(err) {
			fallback = MsgAttemptNotFound
		}
		msg := apperr.UserMessage(err, fallback)
		log.Error().Err(err).Msg("Failed to load attempt")

		m.mu.Lock()
		if !m.isCurrent(gen) {
			m.mu.Unlock()
			return nil
		}
		m.phase = PhaseFailed
		m.errMsg = msg
		vm := m.frame()
		m.mu.Unlock()

		m.out.publish(vm)
		m.record(attemptID, model.SessionEventLoadFailed, msg)
		return apperr.LoadError(msg, err)
	}

	flat := model.BuildFlat(data.Standalone, data.Blocks)
	store := answers.NewStore()
	store.Hydrate(flat)

	m.mu.Lock()
	if !m.isCurrent(gen) {
		m.mu.Unlock()
		return nil
	}
	m.profile = profile
	m.evaluation = data.Evaluation
	m.attempt = data.Attempt
	m.flat = flat
	m.answers = store
	m.current = 0
	if m.safeCourseID == 0 {
		m.safeCourseID = data.CourseIDHint()
	}
	m.proctoringRequired = data.Evaluation != nil && data.Evaluation.UsesCamera
	m.wire(gen, attemptID, store, log)
	var deadline *time.Time
	if data.Evaluation != nil && data.Evaluation.Timed {
		deadline = data.Attempt.ScheduledEnd
	}
	m.countdown.Reset(deadline, m.opts.Now())

	inProgress := data.Attempt.InProgress()
	if inProgress {
		m.phase = PhaseInProgress
	} else {
		m.phase = PhaseSubmitted
		m.delivered = true
	}
	capture := m.capture
	vm = m.frame()
	m.mu.Unlock()

	m.out.publish(vm)
	log.Info().
		Int("questions", len(flat)).
		Bool("in_progress", inProgress).
		Bool("proctoring", capture != nil).
		Msg("Attempt loaded")

	m.record(attemptID, model.SessionEventLoaded, string(data.Attempt.Status))
	m.saveSnapshot(data)

	if !inProgress {
		m.loadResult(ctx, gen, attemptID)
		m.publishIf(gen)
		return nil
	}
	if capture != nil {
		go func() { _ = m.startProctoring(m.ctx, gen) }()
	}
	return nil
}

// wire builds the per-attempt collaborators. Caller holds m.mu.
func (m *Machine) wire(gen uint64, attemptID int64, store *answers.Store, log zerolog.Logger) {
	m.pipeline = autosave.New(autosave.Config{
		Debounce: m.opts.Debounce,
		Save: func(ctx context.Context, questionID int64, answer model.LocalAnswer) error {
			return m.deps.API.AutosaveAnswer(ctx, attemptID, questionID, answer)
		},
		Source: store.Get,
		OnStatus: func(questionID int64, st model.SaveState) {
			if st.Error != "" {
				m.record(attemptID, model.SessionEventSaveFailed, fmt.Sprintf("question %d", questionID))
			}
			m.publishIf(gen)
		},
		OnSuspended: func(_ int64, err error) {
			m.suspend(gen, apperr.UserMessage(err, fraud.SuspendedMessage), "autosave")
		},
		Log: log.With().Str("component", "autosave").Logger(),
		Now: m.opts.Now,
	})

	m.monitor = fraud.NewMonitor(fraud.Config{
		AttemptID: attemptID,
		Reporter:  m.deps.API,
		Active: func() bool {
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.isCurrent(gen) && m.proctoringRequired && !m.delivered && !m.suspended
		},
		OnWarning: func(warnings int) {
			m.record(attemptID, model.SessionEventFraudWarning, fmt.Sprintf("warnings=%d", warnings))
			m.publishIf(gen)
		},
		OnSuspend: func(warnings int) {
			m.record(attemptID, model.SessionEventFraudWarning, fmt.Sprintf("warnings=%d", warnings))
			m.suspend(gen, fraud.SuspendedMessage, "fraud")
		},
		Log: log.With().Str("component", "fraud_monitor").Logger(),
	})

	if m.proctoringRequired {
		m.capture = proctoring.New(proctoring.Config{
			AttemptID:  attemptID,
			Capturer:   m.deps.Capturer,
			Server:     m.deps.API,
			Uploader:   m.deps.Uploader,
			ChunkEvery: m.opts.ChunkEvery,
			Log:        log.With().Str("component", "proctoring").Logger(),
			OnChange:   func() { m.publishIf(gen) },
		})
	}

	m.countdown = countdown.New(
		func(string) { m.publishIf(gen) },
		func() { m.autoFinalize(gen) },
	)
	if m.deps.Ticks != nil {
		m.stopTicks = m.deps.Ticks.Subscribe(m.Tick)
	}
}

// reset clears per-attempt state. Caller holds m.mu.
func (m *Machine) reset(attemptID, courseHint int64) {
	m.phase = PhaseLoading
	m.attemptID = attemptID
	m.safeCourseID = 0
	if courseHint > 0 {
		m.safeCourseID = courseHint
	}
	m.profile = nil
	m.evaluation = nil
	m.attempt = nil
	m.flat = nil
	m.current = 0
	m.errMsg = ""
	m.delivered = false
	m.suspended = false
	m.showFinalizeModal = false
	m.result = nil
	m.proctoringRequired = false
	m.answers = answers.NewStore()
}

// detach unhooks the per-attempt collaborators and returns the function that
// shuts them down. Caller holds m.mu; the returned func must run unlocked.
func (m *Machine) detach() func() {
	pipeline, capture, monitor, stopTicks := m.pipeline, m.capture, m.monitor, m.stopTicks
	m.pipeline, m.capture, m.monitor, m.stopTicks, m.countdown = nil, nil, nil, nil, nil

	return func() {
		if stopTicks != nil {
			stopTicks()
		}
		if monitor != nil {
			monitor.Detach()
		}
		if pipeline != nil {
			pipeline.Close()
		}
		if capture != nil {
			capture.Teardown()
		}
	}
}

// isCurrent reports whether results tagged with gen may still be applied.
// Caller holds m.mu.
func (m *Machine) isCurrent(gen uint64) bool {
	return !m.closed && m.gen == gen
}

// frame bumps the version and projects. Caller holds m.mu.
func (m *Machine) frame() ViewModel {
	m.version++
	return m.project()
}

func (m *Machine) publishIf(gen uint64) {
	m.mu.Lock()
	if !m.isCurrent(gen) {
		m.mu.Unlock()
		return
	}
	vm := m.frame()
	m.mu.Unlock()
	m.out.publish(vm)
}

func (m *Machine) publish() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	vm := m.frame()
	m.mu.Unlock()
	m.out.publish(vm)
}

// AttemptID returns the attempt being driven.
func (m *Machine) AttemptID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attemptID
}

// StudentID returns the student the machine acts for.
func (m *Machine) StudentID() int64 {
	return m.opts.StudentID
}

// ViewModel returns the current projection.
func (m *Machine) ViewModel() ViewModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.project()
}

// Subscribe returns a stream of view models starting with the latest one.
// Slow readers only ever see the newest frame.
func (m *Machine) Subscribe() (<-chan ViewModel, func()) {
	return m.out.subscribe()
}

// Navigate moves to question i. Out-of-range indexes are ignored.
func (m *Machine) Navigate(i int) {
	m.mu.Lock()
	if m.closed || i < 0 || i >= len(m.flat) || i == m.current {
		m.mu.Unlock()
		return
	}
	m.current = i
	vm := m.frame()
	m.mu.Unlock()
	m.out.publish(vm)
}

// Prev moves one question back.
func (m *Machine) Prev() {
	m.mu.Lock()
	i := m.current - 1
	m.mu.Unlock()
	m.Navigate(i)
}

// Next moves one question forward.
func (m *Machine) Next() {
	m.mu.Lock()
	i := m.current + 1
	m.mu.Unlock()
	m.Navigate(i)
}

// RecordAnswer merges patch into the current question's answer and schedules
// its autosave.
func (m *Machine) RecordAnswer(patch model.AnswerPatch) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.suspended:
		m.mu.Unlock()
		return apperr.ErrSuspended
	case m.delivered || m.phase != PhaseInProgress || m.pipeline == nil || len(m.flat) == 0:
		m.mu.Unlock()
		return ErrNotInProgress
	}
	if patch.Empty() {
		m.mu.Unlock()
		return nil
	}
	qid := m.flat[clampIndex(m.current, len(m.flat))].QuestionID
	store, pipeline := m.answers, m.pipeline
	m.mu.Unlock()

	store.Merge(qid, patch)
	pipeline.Request(qid)
	return nil
}

// RetrySave re-runs the save of questionID, or of the current question when
// questionID is zero.
func (m *Machine) RetrySave(questionID int64) error {
	m.mu.Lock()
	if m.suspended {
		m.mu.Unlock()
		return apperr.ErrSuspended
	}
	if m.pipeline == nil || m.delivered {
		m.mu.Unlock()
		return ErrNotInProgress
	}
	if questionID == 0 && len(m.flat) > 0 {
		questionID = m.flat[clampIndex(m.current, len(m.flat))].QuestionID
	}
	pipeline := m.pipeline
	m.mu.Unlock()

	if questionID == 0 {
		return nil
	}
	pipeline.Retry(questionID)
	return nil
}

// Tick advances the countdown.
func (m *Machine) Tick(now time.Time) {
	m.mu.Lock()
	cd := m.countdown
	m.mu.Unlock()
	if cd != nil {
		cd.Tick(now)
	}
}

// Signal forwards a suspicious-behaviour signal to the fraud monitor. It
// reports whether a warning was registered.
func (m *Machine) Signal(ctx context.Context, motive model.Motive) bool {
	m.mu.Lock()
	monitor := m.monitor
	m.mu.Unlock()
	if monitor == nil {
		return false
	}
	return monitor.Signal(ctx, motive)
}

// StartProctoring (re)starts camera capture for the loaded attempt. It blocks
// until the student answers the permission prompt.
func (m *Machine) StartProctoring(ctx context.Context) error {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	return m.startProctoring(ctx, gen)
}

func (m *Machine) startProctoring(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	if !m.isCurrent(gen) {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.suspended {
		m.mu.Unlock()
		return apperr.ErrSuspended
	}
	if m.phase != PhaseInProgress || m.delivered {
		m.mu.Unlock()
		return ErrNotInProgress
	}
	capture, monitor, attemptID := m.capture, m.monitor, m.attemptID
	m.mu.Unlock()
	if capture == nil {
		return nil
	}

	if err := capture.Start(ctx); err != nil {
		m.record(attemptID, model.SessionEventProctoringError, apperr.UserMessage(err, ""))
		return err
	}

	// Guards come back only if the attempt is still open once the prompt
	// is answered. Suspend, submit and reload tear the capture down
	// themselves.
	m.mu.Lock()
	open := m.isCurrent(gen) && m.phase == PhaseInProgress && !m.suspended
	m.mu.Unlock()
	if !open {
		return nil
	}
	if capture.State() == proctoring.StateRecording {
		monitor.Attach()
		m.record(attemptID, model.SessionEventProctoringStart, "")
	}
	m.publishIf(gen)
	return nil
}

// OpenFinalizeModal shows the submit confirmation.
func (m *Machine) OpenFinalizeModal() {
	m.setFinalizeModal(true)
}

// CloseFinalizeModal hides the submit confirmation.
func (m *Machine) CloseFinalizeModal() {
	m.setFinalizeModal(false)
}

func (m *Machine) setFinalizeModal(open bool) {
	m.mu.Lock()
	if m.closed || m.showFinalizeModal == open {
		m.mu.Unlock()
		return
	}
	if open && (m.phase != PhaseInProgress || m.suspended) {
		m.mu.Unlock()
		return
	}
	m.showFinalizeModal = open
	vm := m.frame()
	m.mu.Unlock()
	m.out.publish(vm)
}

// CloseWarnModal acknowledges the fraud warning.
func (m *Machine) CloseWarnModal() {
	m.mu.Lock()
	monitor := m.monitor
	m.mu.Unlock()
	if monitor == nil {
		return
	}
	monitor.Acknowledge()
	m.publish()
}

// HomeRoute is where the student goes after leaving the attempt.
func (m *Machine) HomeRoute() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.safeCourseID > 0 {
		return fmt.Sprintf("/curso/%d", m.safeCourseID)
	}
	return "/mis-cursos"
}

// Done reports whether no further student input can change the attempt.
func (m *Machine) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed || m.delivered
}

// Close tears down timers, autosave, fraud listeners and capture. Results of
// operations still in flight are discarded.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	release := m.detach()
	m.mu.Unlock()

	m.cancel()
	release()
	m.out.close()
}
