package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/service"
)

type fakeBackend struct {
	mu        sync.Mutex
	token     string
	saves     int
	finalized int
}

func (b *fakeBackend) GetProfile(context.Context) (*model.Profile, error) {
	return &model.Profile{ID: 9, Name: "Ana"}, nil
}

func (b *fakeBackend) GetAttemptQuestions(_ context.Context, attemptID int64) (*model.AttemptQuestions, error) {
	return &model.AttemptQuestions{
		Evaluation: &model.Evaluation{ID: 3, CourseID: 5, Title: "Parcial 1"},
		Attempt:    &model.Attempt{ID: attemptID, Status: model.AttemptStatusInProgress},
		Standalone: []model.Question{{ID: 1, Statement: "¿Uno?"}, {ID: 2, Statement: "¿Dos?"}},
	}, nil
}

func (b *fakeBackend) AutosaveAnswer(context.Context, int64, int64, model.LocalAnswer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	return nil
}

func (b *fakeBackend) FinalizeAttempt(context.Context, int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalized++
	return nil
}

func (b *fakeBackend) GetResult(_ context.Context, attemptID int64) (*model.Result, error) {
	return &model.Result{AttemptID: attemptID, CourseID: 5}, nil
}

func (b *fakeBackend) StartProctoring(context.Context, int64) error { return nil }

func (b *fakeBackend) SaveProctoringVideoURL(context.Context, int64, string) error { return nil }

func (b *fakeBackend) ReportFraudWarning(context.Context, int64, model.Motive) (*model.WarningReply, error) {
	return &model.WarningReply{}, nil
}

func (b *fakeBackend) UploadFile(context.Context, string, *model.Blob, model.UploadMeta) (string, error) {
	return "https://cdn.test/video.webm", nil
}

func (b *fakeBackend) setToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

func (b *fakeBackend) getToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

func (b *fakeBackend) counts() (saves, finalized int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves, b.finalized
}

// memLocker is an in-process SessionLocker.
type memLocker struct {
	mu     sync.Mutex
	owners map[int64]string
}

func newMemLocker() *memLocker { return &memLocker{owners: make(map[int64]string)} }

func (l *memLocker) Acquire(_ context.Context, attemptID int64, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.owners[attemptID]; taken {
		return false, nil
	}
	l.owners[attemptID] = owner
	return true, nil
}

func (l *memLocker) Refresh(_ context.Context, attemptID int64, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owners[attemptID] == owner, nil
}

func (l *memLocker) Release(_ context.Context, attemptID int64, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owners[attemptID] == owner {
		delete(l.owners, attemptID)
	}
	return nil
}

func (l *memLocker) TTL() time.Duration { return time.Minute }

func (l *memLocker) held(attemptID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.owners[attemptID]
	return ok
}

// asStudent stands in for the JWT middleware.
func asStudent(id int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeStudent, UserID: id})
		c.Set(middleware.ContextKeyToken, "tok")
		c.Next()
	}
}
