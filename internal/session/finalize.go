package session

import (
	"context"
	"errors"
	"time"

	"github.com/stemsi/exstem-attempt/internal/apperr"
	"github.com/stemsi/exstem-attempt/internal/autosave"
	"github.com/stemsi/exstem-attempt/internal/fraud"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/proctoring"
)

// Finalize submits the attempt: pending saves are flushed, the proctoring
// video is uploaded when required, then the attempt is closed server-side and
// the result fetched. On failure the session returns to IN_PROGRESS with the
// error shown.
func (m *Machine) Finalize(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	gen := m.gen
	if m.suspended {
		m.errMsg = MsgSuspendedFinalize
		m.showFinalizeModal = false
		vm := m.frame()
		m.mu.Unlock()
		m.out.publish(vm)
		return apperr.ErrSuspended
	}
	switch m.phase {
	case PhaseFinalizing:
		m.mu.Unlock()
		return apperr.ErrFinalizeInProgress
	case PhaseInProgress:
	default:
		m.mu.Unlock()
		return ErrNotInProgress
	}
	attemptID := m.attemptID
	if m.proctoringRequired && (m.capture == nil || !m.capture.Ready()) {
		m.errMsg = MsgCameraRequired
		m.showFinalizeModal = false
		vm := m.frame()
		m.mu.Unlock()
		m.out.publish(vm)
		m.record(attemptID, model.SessionEventFinalizeFailed, MsgCameraRequired)
		return apperr.ProctoringError(MsgCameraRequired, nil)
	}
	m.phase = PhaseFinalizing
	m.showFinalizeModal = false
	m.errMsg = ""
	pipeline, capture, monitor := m.pipeline, m.capture, m.monitor
	vm := m.frame()
	m.mu.Unlock()
	m.out.publish(vm)

	err := m.submit(ctx, gen, attemptID, pipeline, capture, monitor)
	if err == nil {
		return nil
	}

	if apperr.IsSuspended(err) && !errors.Is(err, apperr.ErrSuspended) {
		m.suspend(gen, apperr.UserMessage(err, MsgSuspendedFinalize), "finalize")
		return apperr.ErrSuspended
	}

	msg := apperr.UserMessage(err, MsgFinalizeFailed)
	m.log.Warn().Err(err).Int64("attempt_id", attemptID).Msg("Finalize failed")

	m.mu.Lock()
	if !m.isCurrent(gen) {
		m.mu.Unlock()
		return err
	}
	if m.phase == PhaseFinalizing {
		m.phase = PhaseInProgress
	}
	if !m.suspended {
		m.errMsg = msg
	}
	vm = m.frame()
	m.mu.Unlock()
	m.out.publish(vm)

	m.record(attemptID, model.SessionEventFinalizeFailed, msg)
	return err
}

func (m *Machine) submit(ctx context.Context, gen uint64, attemptID int64, pipeline *autosave.Pipeline, capture *proctoring.Capture, monitor *fraud.Monitor) error {
	if pipeline != nil {
		if err := pipeline.Flush(ctx); err != nil {
			return apperr.FinalizeError(MsgFinalizeFailed, err)
		}
	}

	m.mu.Lock()
	suspended, current := m.suspended, m.isCurrent(gen)
	m.mu.Unlock()
	if !current {
		return ErrClosed
	}
	if suspended {
		return apperr.ErrSuspended
	}

	if capture != nil {
		if _, err := capture.Upload(ctx); err != nil {
			return err
		}
		m.record(attemptID, model.SessionEventVideoStored, capture.VideoURL())
		monitor.Detach()
	}

	if err := m.deps.API.FinalizeAttempt(ctx, attemptID); err != nil {
		if apperr.IsSuspended(err) {
			return err
		}
		return apperr.FinalizeError(apperr.UserMessage(err, MsgFinalizeFailed), err)
	}

	m.invalidateSnapshot(attemptID)
	m.loadResult(ctx, gen, attemptID)

	m.mu.Lock()
	if !m.isCurrent(gen) {
		m.mu.Unlock()
		return nil
	}
	m.delivered = true
	if m.phase == PhaseFinalizing {
		m.phase = PhaseSubmitted
	}
	vm := m.frame()
	m.mu.Unlock()
	m.out.publish(vm)

	if capture != nil {
		capture.Teardown()
	}
	m.log.Info().Int64("attempt_id", attemptID).Msg("Attempt submitted")
	m.record(attemptID, model.SessionEventSubmitted, "")
	return nil
}

// autoFinalize runs when the countdown first reaches zero.
func (m *Machine) autoFinalize(gen uint64) {
	m.mu.Lock()
	ok := m.isCurrent(gen) && m.phase == PhaseInProgress && !m.delivered && !m.suspended
	attemptID := m.attemptID
	m.mu.Unlock()
	if !ok {
		return
	}

	m.log.Info().Int64("attempt_id", attemptID).Msg("Time is up, finalizing")
	m.record(attemptID, model.SessionEventAutoFinalize, "")
	go func() { _ = m.Finalize(m.ctx) }()
}

// suspend runs the suspension flow once: guards off, camera released, result
// fetched, attempt delivered.
func (m *Machine) suspend(gen uint64, msg, source string) {
	m.mu.Lock()
	if !m.isCurrent(gen) || m.suspended {
		m.mu.Unlock()
		return
	}
	m.suspended = true
	m.phase = PhaseSuspended
	m.errMsg = msg
	m.showFinalizeModal = false
	attemptID := m.attemptID
	pipeline, capture, monitor := m.pipeline, m.capture, m.monitor
	vm := m.frame()
	m.mu.Unlock()
	m.out.publish(vm)

	m.log.Warn().Int64("attempt_id", attemptID).Str("source", source).Msg("Attempt suspended")

	if monitor != nil {
		monitor.Suspend()
	}
	if pipeline != nil {
		pipeline.Close()
	}
	if capture != nil {
		capture.Teardown()
	}

	m.record(attemptID, model.SessionEventSuspended, source)
	m.invalidateSnapshot(attemptID)
	m.loadResult(m.ctx, gen, attemptID)

	m.mu.Lock()
	if !m.isCurrent(gen) {
		m.mu.Unlock()
		return
	}
	m.delivered = true
	vm = m.frame()
	m.mu.Unlock()
	m.out.publish(vm)
}

// loadResult fetches the attempt result. A failure leaves the result empty.
func (m *Machine) loadResult(ctx context.Context, gen uint64, attemptID int64) {
	result, err := m.deps.API.GetResult(ctx, attemptID)
	if err != nil {
		m.log.Warn().Err(err).Int64("attempt_id", attemptID).Msg("Failed to fetch result")
		result = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isCurrent(gen) {
		return
	}
	m.result = result
	if result != nil && result.CourseID > 0 && m.safeCourseID == 0 {
		m.safeCourseID = result.CourseID
	}
}

func (m *Machine) record(attemptID int64, kind model.SessionEventKind, detail string) {
	if m.deps.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := m.deps.Journal.Publish(ctx, model.SessionEvent{
		AttemptID:  attemptID,
		StudentID:  m.opts.StudentID,
		Kind:       kind,
		Detail:     detail,
		RecordedAt: m.opts.Now(),
	})
	if err != nil {
		m.log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to publish session event")
	}
}

func (m *Machine) saveSnapshot(data *model.AttemptQuestions) {
	if m.deps.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := m.deps.Cache.Save(ctx, &model.AttemptSnapshot{
		StudentID:  m.opts.StudentID,
		Evaluation: data.Evaluation,
		Attempt:    data.Attempt,
		CachedAt:   m.opts.Now(),
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to cache attempt snapshot")
	}
}

func (m *Machine) invalidateSnapshot(attemptID int64) {
	if m.deps.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := m.deps.Cache.Invalidate(ctx, attemptID); err != nil {
		m.log.Warn().Err(err).Int64("attempt_id", attemptID).Msg("Failed to invalidate attempt snapshot")
	}
}
