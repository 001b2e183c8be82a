package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/apperr"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// SaveFailedMessage is the per-question status shown after a failed save.
const SaveFailedMessage = "Error al guardar"

// DefaultDebounce is the quiet period before an edit is persisted.
const DefaultDebounce = 500 * time.Millisecond

// SaveFunc persists one question's answer.
type SaveFunc func(ctx context.Context, questionID int64, answer model.LocalAnswer) error

// SourceFunc reads the latest local answer at fire time.
type SourceFunc func(questionID int64) (model.LocalAnswer, bool)

// Config wires a Pipeline to its collaborators.
type Config struct {
	Debounce time.Duration
	Save     SaveFunc
	Source   SourceFunc

	// OnStatus receives every SaveState transition.
	OnStatus func(questionID int64, state model.SaveState)
	// OnSuspended is called when the backend rejects a save because the
	// attempt is suspended.
	OnSuspended func(questionID int64, err error)

	Log zerolog.Logger
	Now func() time.Time
}

type pendingSave struct {
	timer *time.Timer
	seq   uint64
}

// Pipeline debounces answer edits per question and persists the latest value.
// Each question id has its own timer; a save superseded by a newer one for the
// same question has its result dropped.
type Pipeline struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	armSeq   uint64
	pending  map[int64]pendingSave
	fireSeq  map[int64]uint64
	inflight map[int64]int
	status   map[int64]model.SaveState
	waiters  []chan struct{}
}

// New creates a Pipeline. Save and Source are required.
func New(cfg Config) *Pipeline {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[int64]pendingSave),
		fireSeq:  make(map[int64]uint64),
		inflight: make(map[int64]int),
		status:   make(map[int64]model.SaveState),
	}
}

// Request schedules a save of the question's current answer after the
// debounce window. Repeated requests within the window collapse into one.
func (p *Pipeline) Request(questionID int64) {
	p.arm(questionID, p.cfg.Debounce)
}

// Retry saves the question's current answer without waiting for the window.
func (p *Pipeline) Retry(questionID int64) {
	p.arm(questionID, 0)
}

func (p *Pipeline) arm(questionID int64, delay time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if prev, ok := p.pending[questionID]; ok {
		prev.timer.Stop()
	}
	p.armSeq++
	seq := p.armSeq
	p.pending[questionID] = pendingSave{
		timer: time.AfterFunc(delay, func() { p.fire(questionID, seq) }),
		seq:   seq,
	}
	st := p.status[questionID]
	st.Saving = true
	st.Error = ""
	p.status[questionID] = st
	p.mu.Unlock()

	p.emit(questionID, st)
}

func (p *Pipeline) fire(questionID int64, seq uint64) {
	p.mu.Lock()
	cur, ok := p.pending[questionID]
	if p.closed || !ok || cur.seq != seq {
		p.mu.Unlock()
		return
	}
	delete(p.pending, questionID)
	p.fireSeq[questionID]++
	mySeq := p.fireSeq[questionID]
	p.inflight[questionID]++
	p.mu.Unlock()

	defer p.done(questionID)

	answer, _ := p.cfg.Source(questionID)
	err := p.cfg.Save(p.ctx, questionID, answer)

	p.mu.Lock()
	if p.closed || p.fireSeq[questionID] != mySeq {
		p.mu.Unlock()
		return
	}
	suspended := err != nil && apperr.IsSuspended(err)
	st := model.SaveState{Error: SaveFailedMessage}
	if err == nil {
		now := p.cfg.Now()
		st = model.SaveState{SavedAt: &now}
	}
	p.status[questionID] = st
	p.mu.Unlock()

	if err != nil {
		p.cfg.Log.Warn().Err(err).
			Int64("question_id", questionID).
			Bool("suspended", suspended).
			Msg("Autosave failed")
	}

	p.emit(questionID, st)
	if suspended && p.cfg.OnSuspended != nil {
		p.cfg.OnSuspended(questionID, err)
	}
}

// done releases one in-flight slot after the callbacks ran, so Flush only
// returns once every outcome has been delivered.
func (p *Pipeline) done(questionID int64) {
	p.mu.Lock()
	p.inflight[questionID]--
	if p.inflight[questionID] <= 0 {
		delete(p.inflight, questionID)
	}
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

func (p *Pipeline) emit(questionID int64, st model.SaveState) {
	if p.cfg.OnStatus != nil {
		p.cfg.OnStatus(questionID, st)
	}
}

// Status returns the last known SaveState for a question.
func (p *Pipeline) Status(questionID int64) (model.SaveState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.status[questionID]
	return st, ok
}

// Flush fires every pending save immediately and waits until no save is in
// flight. Save failures are reported through the callbacks, not returned.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.mu.Lock()
	due := make(map[int64]uint64, len(p.pending))
	for qid, ps := range p.pending {
		ps.timer.Stop()
		due[qid] = ps.seq
	}
	p.mu.Unlock()

	for qid, seq := range due {
		go p.fire(qid, seq)
	}

	for {
		p.mu.Lock()
		if p.closed || (len(p.pending) == 0 && len(p.inflight) == 0) {
			p.mu.Unlock()
			return nil
		}
		ch := make(chan struct{})
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops pending timers and cancels in-flight saves. Their results are
// discarded.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for qid, ps := range p.pending {
		ps.timer.Stop()
		delete(p.pending, qid)
	}
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	p.cancel()
	for _, ch := range waiters {
		close(ch)
	}
}
