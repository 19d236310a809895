package model

import (
	"encoding/json"
	"time"
)

// SubmitQuizRequest is the HTTP submission body. CorrectCount is a pointer so
// an explicit zero passes the required check.
type SubmitQuizRequest struct {
	QuizID         int  `json:"quizId" binding:"required,gt=0"`
	LessonID       *int `json:"lessonId" binding:"omitempty,min=1"`
	CourseID       *int `json:"courseId" binding:"omitempty,min=1"`
	QuestionsTotal int  `json:"questionsTotal" binding:"required,min=1"`
	CorrectCount   *int `json:"correctCount" binding:"required,min=0"`
}

// AttemptSummary is the attempt slice of the submission response, re-read
// from storage rather than echoed from memory.
type AttemptSummary struct {
	QuizID         int       `json:"quizId"`
	Score          int       `json:"score"`
	Passed         bool      `json:"passed"`
	CorrectCount   int       `json:"correctCount"`
	QuestionsTotal int       `json:"questionsTotal"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SubmitQuizResponse mirrors the contract the frontend already consumes:
// the stored attempt plus the Users service's stats snapshot, passed through
// verbatim.
type SubmitQuizResponse struct {
	Attempt AttemptSummary  `json:"attempt"`
	Stats   json.RawMessage `json:"stats"`
}

// LessonsTotalsRequest asks the Lessons service for catalog totals scoped to
// a course.
type LessonsTotalsRequest struct {
	CourseID *int `json:"courseId"`
}

type LessonsTotals struct {
	LessonsTotal int `json:"lessonsTotal"`
	QuizzesTotal int `json:"quizzesTotal"`
}

// QuizStatsUpdate is pushed to the Users service; its reply, not this bundle,
// is authoritative for the caller.
type QuizStatsUpdate struct {
	UserID string          `json:"userId"`
	Stats  QuizStatsBundle `json:"stats"`
}

type QuizStatsBundle struct {
	QuizzesTotal     int       `json:"quizzesTotal"`
	QuizzesPassed    int64     `json:"quizzesPassed"`
	AverageScore     float64   `json:"averageScore"`
	LessonsTotal     int       `json:"lessonsTotal"`
	LessonsCompleted int64     `json:"lessonsCompleted"`
	LastActiveAt     time.Time `json:"lastActiveAt"`
}
