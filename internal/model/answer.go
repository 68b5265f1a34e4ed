package model

// AnswerKind tags the shape of an answer value.
type AnswerKind string

const (
	AnswerKindText      AnswerKind = "text"
	AnswerKindSelection AnswerKind = "selection"
)

// Answer is a student's answer to one question: free text for essays, the
// chosen option value for multiple choice.
type Answer struct {
	Kind  AnswerKind `json:"kind"`
	Value string     `json:"value"`
}

// TextAnswer builds an essay answer.
func TextAnswer(v string) Answer { return Answer{Kind: AnswerKindText, Value: v} }

// SelectionAnswer builds a multiple choice answer.
func SelectionAnswer(v string) Answer { return Answer{Kind: AnswerKindSelection, Value: v} }

// AnswerItem is one entry of an exam submission payload.
type AnswerItem struct {
	QuestionID ID     `json:"question_id"`
	Answer     string `json:"answer"`
}

// SubmissionRequest is the body of the exam submission call.
type SubmissionRequest struct {
	Answers []AnswerItem `json:"answers"`
}

// SetAnswerRequest is the shell payload for recording an answer.
type SetAnswerRequest struct {
	Kind  AnswerKind `json:"kind" binding:"required,oneof=text selection"`
	Value string     `json:"value" binding:"max=20000"`
}
