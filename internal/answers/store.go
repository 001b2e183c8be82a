package answers

import (
	"sync"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// Store holds the student's in-progress answers keyed by question id.
// Values handed out are deep copies.
type Store struct {
	mu      sync.RWMutex
	answers map[int64]model.LocalAnswer
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{answers: make(map[int64]model.LocalAnswer)}
}

// Hydrate replaces the store content with the responses the backend
// returned alongside each flat question.
func (s *Store) Hydrate(flat []model.FlatQuestion) {
	next := make(map[int64]model.LocalAnswer, len(flat))
	for _, item := range flat {
		if item.QuestionID == 0 {
			continue
		}
		next[item.QuestionID] = model.AnswerFromQuestion(item.Question)
	}

	s.mu.Lock()
	s.answers = next
	s.mu.Unlock()
}

// Merge applies a partial edit to one question and returns the merged value.
func (s *Store) Merge(questionID int64, patch model.AnswerPatch) model.LocalAnswer {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.answers[questionID].Merge(patch)
	s.answers[questionID] = merged
	return merged.Clone()
}

// Get returns the current answer for a question.
func (s *Store) Get(questionID int64) (model.LocalAnswer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.answers[questionID]
	if !ok {
		return model.LocalAnswer{}, false
	}
	return a.Clone(), true
}

// Answered reports whether the question holds any response.
func (s *Store) Answered(questionID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answers[questionID].Answered()
}

// Snapshot returns a deep copy of every answer.
func (s *Store) Snapshot() map[int64]model.LocalAnswer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]model.LocalAnswer, len(s.answers))
	for id, a := range s.answers {
		out[id] = a.Clone()
	}
	return out
}

// Len returns the number of tracked questions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers)
}
