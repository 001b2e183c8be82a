package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/answers"
	"github.com/stemsi/exstem-attempt/internal/apperr"
	"github.com/stemsi/exstem-attempt/internal/model"
)

type savedCall struct {
	questionID int64
	answer     model.LocalAnswer
}

type fakeSaver struct {
	mu    sync.Mutex
	calls []savedCall
	err   error
	block chan struct{}
}

func (f *fakeSaver) save(ctx context.Context, qid int64, a model.LocalAnswer) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, savedCall{qid, a})
	return f.err
}

func (f *fakeSaver) snapshot() []savedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedCall(nil), f.calls...)
}

func strp(s string) *string { return &s }

func newPipeline(t *testing.T, saver *fakeSaver, store *answers.Store, onSuspended func(int64, error)) *Pipeline {
	t.Helper()
	p := New(Config{
		Debounce:    20 * time.Millisecond,
		Save:        saver.save,
		Source:      store.Get,
		OnSuspended: onSuspended,
		Log:         zerolog.Nop(),
	})
	t.Cleanup(p.Close)
	return p
}

func TestBurstCollapsesIntoOneSave(t *testing.T) {
	store := answers.NewStore()
	saver := &fakeSaver{}
	p := newPipeline(t, saver, store, nil)

	for _, v := range []string{"h", "ho", "hol", "hola"} {
		store.Merge(7, model.AnswerPatch{Text: strp(v)})
		p.Request(7)
	}

	require.NoError(t, p.Flush(context.Background()))
	time.Sleep(60 * time.Millisecond)

	calls := saver.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(7), calls[0].questionID)
	assert.Equal(t, "hola", *calls[0].answer.Text)

	st, ok := p.Status(7)
	require.True(t, ok)
	assert.False(t, st.Saving)
	assert.NotNil(t, st.SavedAt)
	assert.Empty(t, st.Error)
}

func TestQuestionsSaveIndependently(t *testing.T) {
	store := answers.NewStore()
	saver := &fakeSaver{}
	p := newPipeline(t, saver, store, nil)

	store.Merge(1, model.AnswerPatch{Text: strp("uno")})
	p.Request(1)
	store.Merge(2, model.AnswerPatch{Text: strp("dos")})
	p.Request(2)

	require.Eventually(t, func() bool { return len(saver.snapshot()) == 2 },
		time.Second, 5*time.Millisecond)

	got := map[int64]string{}
	for _, c := range saver.snapshot() {
		got[c.questionID] = *c.answer.Text
	}
	assert.Equal(t, map[int64]string{1: "uno", 2: "dos"}, got)
}

func TestSaveFailureSetsErrorWithoutRetry(t *testing.T) {
	store := answers.NewStore()
	saver := &fakeSaver{err: errors.New("boom")}
	p := newPipeline(t, saver, store, func(int64, error) {
		t.Fatal("generic failure must not suspend")
	})

	store.Merge(3, model.AnswerPatch{Text: strp("x")})
	p.Request(3)
	require.NoError(t, p.Flush(context.Background()))

	st, _ := p.Status(3)
	assert.False(t, st.Saving)
	assert.Equal(t, SaveFailedMessage, st.Error)

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, saver.snapshot(), 1)

	saver.mu.Lock()
	saver.err = nil
	saver.mu.Unlock()

	p.Retry(3)
	require.NoError(t, p.Flush(context.Background()))
	st, _ = p.Status(3)
	assert.Empty(t, st.Error)
	assert.NotNil(t, st.SavedAt)
	assert.Len(t, saver.snapshot(), 2)
}

func TestSuspendedFailureNotifies(t *testing.T) {
	store := answers.NewStore()
	saver := &fakeSaver{err: &apperr.APIError{Op: "autosave_answer", Status: 423, Message: "Intento suspendido"}}

	var (
		mu  sync.Mutex
		got []int64
	)
	p := newPipeline(t, saver, store, func(qid int64, err error) {
		mu.Lock()
		got = append(got, qid)
		mu.Unlock()
		assert.True(t, apperr.IsSuspended(err))
	})

	store.Merge(5, model.AnswerPatch{Text: strp("y")})
	p.Request(5)
	require.NoError(t, p.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{5}, got)
}

func TestCloseDiscardsInflightResult(t *testing.T) {
	store := answers.NewStore()
	saver := &fakeSaver{block: make(chan struct{})}

	var statuses []model.SaveState
	var mu sync.Mutex
	p := New(Config{
		Debounce: time.Millisecond,
		Save:     saver.save,
		Source:   store.Get,
		OnStatus: func(_ int64, st model.SaveState) {
			mu.Lock()
			statuses = append(statuses, st)
			mu.Unlock()
		},
		Log: zerolog.Nop(),
	})

	p.Request(9)
	time.Sleep(20 * time.Millisecond)
	p.Close()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Saving)
}
