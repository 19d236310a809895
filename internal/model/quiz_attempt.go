package model

import (
	"time"
)

// QuizAttempt is the single persistent entity of this service: one row per
// (user, quiz) pair, overwritten on every resubmission. MessageID is the
// idempotency token for the event-driven path and is unique per submission
// event, not per row lifetime.
type QuizAttempt struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID      string    `gorm:"column:message_id;size:100;uniqueIndex" json:"messageId"`
	UserID         string    `gorm:"column:user_id;size:64;uniqueIndex:idx_user_quiz" json:"userId"`
	QuizID         int       `gorm:"column:quiz_id;uniqueIndex:idx_user_quiz;index" json:"quizId"`
	LessonID       *int      `gorm:"column:lesson_id" json:"lessonId"`
	CourseID       *int      `gorm:"column:course_id" json:"courseId"`
	QuestionsTotal int       `gorm:"column:questions_total;not null" json:"questionsTotal"`
	CorrectCount   int       `gorm:"column:correct_count;not null" json:"correctCount"`
	Score          int       `gorm:"column:score;not null" json:"score"` // 0..100
	Passed         bool      `gorm:"column:passed;default:false" json:"passed"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// UserQuizStats are the per-user aggregates computed over quiz_attempts.
type UserQuizStats struct {
	CountAll                 int64   `json:"countAll"`
	CountPassed              int64   `json:"countPassed"`
	AverageScore             float64 `json:"averageScore"`
	DistinctLessonsTotal     int64   `json:"distinctLessonsTotal"`
	DistinctLessonsCompleted int64   `json:"distinctLessonsCompleted"`
}
