package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"quiz_analytics_service/internal/config"
	"quiz_analytics_service/internal/model"
	"quiz_analytics_service/internal/repository"
	"quiz_analytics_service/internal/util"
	"quiz_analytics_service/pkg/broker"
	"quiz_analytics_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RPCCaller is a blocking request/reply client to one peer service.
type RPCCaller interface {
	Call(ctx context.Context, pattern string, req, resp interface{}) error
}

// EventEmitter publishes fire-and-forget domain events. The caller must
// inspect and log the returned error; it is never allowed to propagate.
type EventEmitter interface {
	Emit(ctx context.Context, topic string, event interface{}) error
}

const lessonsTotalsCacheTTL = 5 * time.Minute

// AnalyticsService runs the quiz-submission reconciliation workflow:
// score -> idempotent persist -> Lessons RPC -> local aggregates ->
// Users RPC -> best-effort event -> response. Steps are strictly sequential;
// each feeds the next.
type AnalyticsService struct {
	Attempts *repository.AttemptRepository
	Lessons  RPCCaller
	Users    RPCCaller
	Bus      EventEmitter
	Cache    *redis.Client
	Config   *config.Config
}

func NewAnalyticsService(
	attempts *repository.AttemptRepository,
	lessons RPCCaller,
	users RPCCaller,
	bus EventEmitter,
	rdb *redis.Client,
	cfg *config.Config,
) *AnalyticsService {
	return &AnalyticsService{
		Attempts: attempts,
		Lessons:  lessons,
		Users:    users,
		Bus:      bus,
		Cache:    rdb,
		Config:   cfg,
	}
}

// ComputeScore clamps the raw counts and derives the percentage score.
func ComputeScore(questionsTotal, correctCount int) (total, correct, score int) {
	total = questionsTotal
	if total < 1 {
		total = 1
	}
	correct = correctCount
	if correct < 0 {
		correct = 0
	}
	if correct > total {
		correct = total
	}
	score = int(math.Round(float64(correct) / float64(total) * 100))
	return total, correct, score
}

// SubmitQuiz handles a synchronous submission for the authenticated actor.
// The attempt row is durably upserted before any peer call, so a downstream
// failure leaves a persisted attempt with no stats update; this is a
// deliberate at-least-once trade-off, not rolled back.
func (s *AnalyticsService) SubmitQuiz(ctx context.Context, userID string, req *model.SubmitQuizRequest) (*model.SubmitQuizResponse, error) {
	total, correct, score := ComputeScore(req.QuestionsTotal, derefInt(req.CorrectCount))
	passed := score >= s.Config.PassingThreshold()

	messageID := uuid.New().String()
	now := time.Now()
	attempt := &model.QuizAttempt{
		MessageID:      messageID,
		UserID:         userID,
		QuizID:         req.QuizID,
		LessonID:       req.LessonID,
		CourseID:       req.CourseID,
		QuestionsTotal: total,
		CorrectCount:   correct,
		Score:          score,
		Passed:         passed,
		UpdatedAt:      now,
	}
	if err := s.Attempts.Upsert(attempt); err != nil {
		return nil, fmt.Errorf("persist attempt: %w", err)
	}

	totals, err := s.lessonTotals(ctx, req.CourseID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrPeerUnavailable, err)
	}

	agg, err := s.Attempts.AggregateForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}

	var snapshot json.RawMessage
	update := model.QuizStatsUpdate{
		UserID: userID,
		Stats: model.QuizStatsBundle{
			QuizzesTotal:     totals.QuizzesTotal,
			QuizzesPassed:    agg.CountPassed,
			AverageScore:     agg.AverageScore,
			LessonsTotal:     totals.LessonsTotal,
			LessonsCompleted: agg.DistinctLessonsCompleted,
			LastActiveAt:     time.Now(),
		},
	}
	if err := s.Users.Call(ctx, broker.PatternUsersApplyQuizStats, update, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrPeerUnavailable, err)
	}

	evt := model.QuizSubmittedEvent{
		Type:       model.EventTypeQuizSubmitted,
		MessageID:  messageID,
		OccurredAt: time.Now(),
		Payload: model.QuizSubmittedPayload{
			UserID:         userID,
			QuizID:         req.QuizID,
			LessonID:       req.LessonID,
			CourseID:       req.CourseID,
			QuestionsTotal: total,
			CorrectCount:   correct,
			Score:          score,
			Passed:         passed,
		},
	}
	if err := s.Bus.Emit(ctx, model.EventTypeQuizSubmitted, evt); err != nil {
		logger.Log.Warn("Failed to emit quiz.submitted", zap.Error(err))
	}

	// re-read instead of echoing the in-memory row, in case the store
	// normalized anything
	stored, err := s.Attempts.FindByUserAndQuiz(userID, req.QuizID)
	if err != nil {
		return nil, fmt.Errorf("reload attempt: %w", err)
	}

	return &model.SubmitQuizResponse{
		Attempt: model.AttemptSummary{
			QuizID:         stored.QuizID,
			Score:          stored.Score,
			Passed:         stored.Passed,
			CorrectCount:   stored.CorrectCount,
			QuestionsTotal: stored.QuestionsTotal,
			UpdatedAt:      stored.UpdatedAt,
		},
		Stats: snapshot,
	}, nil
}

// HandleQuizSubmitted replicates an attempt that arrived as an event from
// another producer. Redelivery of the same messageId is a no-op; it never
// calls the peers and never emits.
func (s *AnalyticsService) HandleQuizSubmitted(ctx context.Context, evt *model.QuizSubmittedEvent) error {
	_, err := s.Attempts.FindByMessageID(evt.MessageID)
	if err == nil {
		logger.Log.Debug("Duplicate quiz.submitted delivery",
			zap.String("messageId", evt.MessageID))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("duplicate check: %w", err)
	}

	p := evt.Payload
	return s.Attempts.Upsert(&model.QuizAttempt{
		MessageID:      evt.MessageID,
		UserID:         p.UserID,
		QuizID:         p.QuizID,
		LessonID:       p.LessonID,
		CourseID:       p.CourseID,
		QuestionsTotal: p.QuestionsTotal,
		CorrectCount:   p.CorrectCount,
		Score:          p.Score,
		Passed:         p.Passed,
		UpdatedAt:      time.Now(),
	})
}

// lessonTotals asks the Lessons service for catalog totals, with a short
// redis cache in front since totals change rarely. A nil cache client skips
// caching entirely.
func (s *AnalyticsService) lessonTotals(ctx context.Context, courseID *int) (*model.LessonsTotals, error) {
	key := "lessons:totals:all"
	if courseID != nil {
		key = "lessons:totals:" + strconv.Itoa(*courseID)
	}

	if s.Cache != nil {
		if raw, err := s.Cache.Get(ctx, key).Result(); err == nil {
			var totals model.LessonsTotals
			if err := json.Unmarshal([]byte(raw), &totals); err == nil {
				return &totals, nil
			}
		}
	}

	var totals model.LessonsTotals
	req := model.LessonsTotalsRequest{CourseID: courseID}
	if err := s.Lessons.Call(ctx, broker.PatternLessonsCountTotals, req, &totals); err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if b, err := json.Marshal(totals); err == nil {
			if err := s.Cache.Set(ctx, key, b, lessonsTotalsCacheTTL).Err(); err != nil {
				logger.Log.Debug("Lessons totals cache write failed", zap.Error(err))
			}
		}
	}

	return &totals, nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
