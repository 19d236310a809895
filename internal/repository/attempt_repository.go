package repository

import (
	"quiz_analytics_service/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// Upsert inserts the attempt or, when a row for (user_id, quiz_id) already
// exists, overwrites all non-key fields. The conflict resolution happens in
// the database, so concurrent writers for the same key are last-writer-wins
// without a read-modify-write race.
func (r *AttemptRepository) Upsert(attempt *model.QuizAttempt) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "quiz_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"message_id", "lesson_id", "course_id", "questions_total",
			"correct_count", "score", "passed", "updated_at",
		}),
	}).Create(attempt).Error
}

func (r *AttemptRepository) FindByUserAndQuiz(userID string, quizID int) (*model.QuizAttempt, error) {
	var a model.QuizAttempt
	if err := r.DB.Where("user_id = ? AND quiz_id = ?", userID, quizID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByMessageID backs duplicate-delivery detection on the event path.
func (r *AttemptRepository) FindByMessageID(messageID string) (*model.QuizAttempt, error) {
	var a model.QuizAttempt
	if err := r.DB.Where("message_id = ?", messageID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// AggregateForUser computes the user's counters over all of their rows.
// distinct_lessons_completed only counts lessons with a passed attempt.
func (r *AttemptRepository) AggregateForUser(userID string) (*model.UserQuizStats, error) {
	var stats model.UserQuizStats
	err := r.DB.Model(&model.QuizAttempt{}).
		Select(`COUNT(*) AS count_all,
			COALESCE(SUM(CASE WHEN passed THEN 1 ELSE 0 END), 0) AS count_passed,
			COALESCE(AVG(score), 0) AS average_score,
			COUNT(DISTINCT lesson_id) AS distinct_lessons_total,
			COUNT(DISTINCT CASE WHEN passed THEN lesson_id END) AS distinct_lessons_completed`).
		Where("user_id = ?", userID).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
