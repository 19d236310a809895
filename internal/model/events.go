package model

import "time"

const EventTypeQuizSubmitted = "quiz.submitted"

// QuizSubmittedEvent is the fan-out notification emitted after a submission
// is persisted, and the inbound shape consumed from peers producing the same
// event type. It is never stored as its own entity.
type QuizSubmittedEvent struct {
	Type       string               `json:"type"`
	MessageID  string               `json:"messageId"`
	OccurredAt time.Time            `json:"occurredAt"`
	Payload    QuizSubmittedPayload `json:"payload"`
}

type QuizSubmittedPayload struct {
	UserID         string `json:"userId"`
	QuizID         int    `json:"quizId"`
	LessonID       *int   `json:"lessonId"`
	CourseID       *int   `json:"courseId"`
	QuestionsTotal int    `json:"questionsTotal"`
	CorrectCount   int    `json:"correctCount"`
	Score          int    `json:"score"`
	Passed         bool   `json:"passed"`
}
