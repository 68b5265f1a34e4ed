package model

// Exam is the exam descriptor fetched once when a session page loads.
type Exam struct {
	ID       ID      `json:"id"`
	Title    string  `json:"title"`
	Duration Minutes `json:"duration"`
	Type     string  `json:"type,omitempty"`
	Date     string  `json:"date,omitempty"`
}

// LobbyQuery filters the list of today's exams.
type LobbyQuery struct {
	Search string `form:"search" binding:"omitempty,max=100"`
	Sort   string `form:"sort" binding:"omitempty,oneof=title date duration"`
	Order  string `form:"order" binding:"omitempty,oneof=asc desc"`
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// LobbyPage is one page of today's exams as returned by the backend.
type LobbyPage struct {
	Data []Exam `json:"data"`
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
}
