package backend

import (
	"fmt"
	"net/url"

	"github.com/stemsi/exstem-proctor/internal/model"
)

type PathStruct struct{}

func NewPathStruct() *PathStruct {
	return &PathStruct{}
}

// Exam returns the path of an exam descriptor
func (p *PathStruct) Exam(examID string) string {
	return fmt.Sprintf("/exams/%s", url.PathEscape(examID))
}

// ExamQuestions returns the path of an exam's question set
func (p *PathStruct) ExamQuestions(examID string) string {
	return fmt.Sprintf("/exams/%s/questions", url.PathEscape(examID))
}

// TodayExams returns the path of the student's exam list for today
func (p *PathStruct) TodayExams() string {
	return "/exams/today"
}

// SessionStart returns the path that opens a session for an exam
func (p *PathStruct) SessionStart(examID string) string {
	return fmt.Sprintf("/exam-sessions/%s/start", url.PathEscape(examID))
}

// SessionTabSwitch returns the path that records a violation
func (p *PathStruct) SessionTabSwitch(handle model.SessionHandle) string {
	return fmt.Sprintf("/exam-sessions/%s/tab-switch", url.PathEscape(handle.String()))
}

// SessionFinish returns the path that closes a session
func (p *PathStruct) SessionFinish(handle model.SessionHandle) string {
	return fmt.Sprintf("/exam-sessions/%s/finish", url.PathEscape(handle.String()))
}

// SessionVideo returns the path that receives the session recording
func (p *PathStruct) SessionVideo(handle model.SessionHandle) string {
	return fmt.Sprintf("/exam-sessions/%s/upload-video", url.PathEscape(handle.String()))
}

// Submission returns the path that receives an exam's answers
func (p *PathStruct) Submission(examID string) string {
	return fmt.Sprintf("/exam-submissions/%s", url.PathEscape(examID))
}

var Path = NewPathStruct()
