package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/session"
)

type fakeSnapshots map[int64]*model.AttemptSnapshot

func (f fakeSnapshots) Get(_ context.Context, attemptID int64) (*model.AttemptSnapshot, error) {
	s, ok := f[attemptID]
	if !ok {
		return nil, repository.ErrSnapshotNotFound
	}
	return s, nil
}

type fakeEvents struct {
	attemptID, studentID int64
	limit                int
}

func (f *fakeEvents) ListByAttempt(_ context.Context, attemptID, studentID int64, limit int) ([]model.SessionEvent, error) {
	f.attemptID, f.studentID, f.limit = attemptID, studentID, limit
	return []model.SessionEvent{{AttemptID: attemptID, StudentID: studentID, Kind: model.SessionEventLoaded}}, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func serve(r *gin.Engine, path string) (int, envelope) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func newAttemptRouter(h *AttemptHandler, studentID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/attempts", asStudent(studentID))
	g.GET("/:attempt_id/view", h.GetView)
	g.GET("/:attempt_id/events", h.ListEvents)
	return r
}

func TestGetViewPrefersLiveSession(t *testing.T) {
	registry := session.NewRegistry()
	m := session.New(session.Deps{API: &fakeBackend{}, Log: zerolog.Nop()}, session.Options{StudentID: 9})
	t.Cleanup(m.Close)
	require.NoError(t, m.Load(context.Background(), 42, 0))
	require.NoError(t, registry.Register(42, m))

	h := NewAttemptHandler(registry, fakeSnapshots{}, &fakeEvents{}, zerolog.Nop())

	code, env := serve(newAttemptRouter(h, 9), "/attempts/42/view")
	require.Equal(t, http.StatusOK, code)
	var body struct {
		Live bool              `json:"live"`
		Home string            `json:"home"`
		View session.ViewModel `json:"view"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.True(t, body.Live)
	assert.Equal(t, "/curso/5", body.Home)
	assert.Equal(t, session.PhaseInProgress, body.View.State)
	assert.Equal(t, 2, body.View.Total)

	// Another student never sees the live session.
	code, env = serve(newAttemptRouter(h, 10), "/attempts/42/view")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "SESSION_NOT_FOUND", env.Error.Code)
}

func TestGetViewFallsBackToSnapshot(t *testing.T) {
	snapshots := fakeSnapshots{
		7: {
			StudentID:  9,
			Evaluation: &model.Evaluation{ID: 3, Title: "Parcial 1"},
			Attempt:    &model.Attempt{ID: 7, Status: model.AttemptStatusInProgress},
			CachedAt:   time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		},
	}
	h := NewAttemptHandler(session.NewRegistry(), snapshots, &fakeEvents{}, zerolog.Nop())

	code, env := serve(newAttemptRouter(h, 9), "/attempts/7/view")
	require.Equal(t, http.StatusOK, code)
	var body struct {
		Live     bool                  `json:"live"`
		Snapshot model.AttemptSnapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.False(t, body.Live)
	assert.Equal(t, "Parcial 1", body.Snapshot.Evaluation.Title)

	cases := []struct {
		name    string
		student int64
		path    string
		code    int
		errCode string
	}{
		{"other student", 10, "/attempts/7/view", http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"unknown attempt", 9, "/attempts/8/view", http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"bad id", 9, "/attempts/x/view", http.StatusBadRequest, "INVALID_ID"},
		{"zero id", 9, "/attempts/0/view", http.StatusBadRequest, "INVALID_ID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := serve(newAttemptRouter(h, tc.student), tc.path)
			assert.Equal(t, tc.code, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.errCode, env.Error.Code)
		})
	}
}

func TestListEvents(t *testing.T) {
	events := &fakeEvents{}
	h := NewAttemptHandler(session.NewRegistry(), fakeSnapshots{}, events, zerolog.Nop())
	r := newAttemptRouter(h, 9)

	code, env := serve(r, "/attempts/42/events")
	require.Equal(t, http.StatusOK, code)
	var got []model.SessionEvent
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, model.SessionEventLoaded, got[0].Kind)
	assert.Equal(t, int64(42), events.attemptID)
	assert.Equal(t, int64(9), events.studentID)
	assert.Equal(t, 100, events.limit)

	code, _ = serve(r, "/attempts/42/events?limit=20")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 20, events.limit)

	code, env = serve(r, "/attempts/42/events?limit=5000")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}
