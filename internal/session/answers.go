package session

import (
	"sync"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// AnswerStore maps question ids to the student's latest answer. Entries
// are never removed during a session.
type AnswerStore struct {
	mu     sync.RWMutex
	order  []model.ID
	values map[model.ID]model.Answer
}

// NewAnswerStore creates an empty store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{values: make(map[model.ID]model.Answer)}
}

// Set records an answer, overwriting any previous one.
func (s *AnswerStore) Set(questionID model.ID, answer model.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[questionID]; !ok {
		s.order = append(s.order, questionID)
	}
	s.values[questionID] = answer
}

// Len returns the number of answered questions.
func (s *AnswerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns the submission payload: touched questions only, in the
// order they were first answered.
func (s *AnswerStore) Snapshot() []model.AnswerItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AnswerItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, model.AnswerItem{QuestionID: id, Answer: s.values[id].Value})
	}
	return out
}

// Answers returns a copy of the current map for display.
func (s *AnswerStore) Answers() map[model.ID]model.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.ID]model.Answer, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
