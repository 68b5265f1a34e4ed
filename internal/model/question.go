package model

import (
	"errors"
	"fmt"
	"sort"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeEssay          QuestionType = "essay"
)

// OptionType tells the shell how to render an option value.
type OptionType string

const (
	OptionTypeText  OptionType = "text"
	OptionTypeImage OptionType = "image"
)

// Option is one choice of a multiple choice question. For image options
// Value is the image URL.
type Option struct {
	Type  OptionType `json:"type"`
	Value string     `json:"value"`
}

// Question is a single exam question as served to a student.
type Question struct {
	ID       ID           `json:"id"`
	Question string       `json:"question"`
	Type     QuestionType `json:"type"`
	Options  []Option     `json:"options,omitempty"`
	Index    int          `json:"index"`
}

// QuestionSet is the response of the question fetch.
type QuestionSet struct {
	Questions []Question `json:"questions"`
}

// Validate checks the per-kind invariants of a question.
func (q Question) Validate() error {
	if q.ID == "" {
		return errors.New("question without id")
	}
	switch q.Type {
	case QuestionTypeMultipleChoice:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %s: multiple choice without options", q.ID)
		}
	case QuestionTypeEssay:
	default:
		return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
	return nil
}

// HasOption reports whether value is one of the question's option values.
func (q Question) HasOption(value string) bool {
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// SortForDisplay returns a copy of questions ordered multiple choice first,
// then essay, each group by Index ascending. Ties keep their fetch order.
func SortForDisplay(questions []Question) []Question {
	out := make([]Question, len(questions))
	copy(out, questions)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Type != b.Type {
			return a.Type == QuestionTypeMultipleChoice
		}
		return a.Index < b.Index
	})
	for i := range out {
		if out[i].Type == QuestionTypeEssay {
			out[i].Options = nil
		}
	}
	return out
}
