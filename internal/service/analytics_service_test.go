package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"quiz_analytics_service/internal/config"
	"quiz_analytics_service/internal/model"
	"quiz_analytics_service/internal/repository"
	"quiz_analytics_service/pkg/broker"
	"quiz_analytics_service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// fakeCaller stands in for a peer RPC client, replying with canned JSON.
type fakeCaller struct {
	calls []string
	reqs  []interface{}
	resp  string
	err   error
}

func (f *fakeCaller) Call(ctx context.Context, pattern string, req, resp interface{}) error {
	f.calls = append(f.calls, pattern)
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return f.err
	}
	if resp != nil && f.resp != "" {
		return json.Unmarshal([]byte(f.resp), resp)
	}
	return nil
}

type fakeEmitter struct {
	topics []string
	events []interface{}
	err    error
}

func (f *fakeEmitter) Emit(ctx context.Context, topic string, event interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.events = append(f.events, event)
	return nil
}

type testEnv struct {
	svc     *AnalyticsService
	repo    *repository.AttemptRepository
	lessons *fakeCaller
	users   *fakeCaller
	bus     *fakeEmitter
}

func newTestEnv(t *testing.T, passingScore string) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.QuizAttempt{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := repository.NewAttemptRepository(db)
	lessons := &fakeCaller{resp: `{"lessonsTotal":10,"quizzesTotal":5}`}
	users := &fakeCaller{resp: `{"ok":true}`}
	bus := &fakeEmitter{}
	cfg := &config.Config{Scoring: config.ScoringConfig{PassingScore: passingScore}}

	return &testEnv{
		svc:     NewAnalyticsService(repo, lessons, users, bus, nil, cfg),
		repo:    repo,
		lessons: lessons,
		users:   users,
		bus:     bus,
	}
}

func intPtr(v int) *int { return &v }

func submitReq() *model.SubmitQuizRequest {
	return &model.SubmitQuizRequest{
		QuizID:         42,
		LessonID:       intPtr(7),
		CourseID:       intPtr(3),
		QuestionsTotal: 10,
		CorrectCount:   intPtr(8),
	}
}

func TestComputeScore(t *testing.T) {
	cases := []struct {
		name                   string
		questionsTotal         int
		correctCount           int
		wantTotal, wantCorrect int
		wantScore              int
	}{
		{"plain", 10, 8, 10, 8, 80},
		{"perfect", 10, 10, 10, 10, 100},
		{"zero correct", 10, 0, 10, 0, 0},
		{"correct above total clamps", 10, 15, 10, 10, 100},
		{"negative correct clamps", 10, -3, 10, 0, 0},
		{"zero total floors to one", 0, 5, 1, 1, 100},
		{"rounding up", 3, 2, 3, 2, 67},
		{"rounding half", 8, 7, 8, 7, 88},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total, correct, score := ComputeScore(tc.questionsTotal, tc.correctCount)
			if total != tc.wantTotal || correct != tc.wantCorrect || score != tc.wantScore {
				t.Fatalf("got total=%d correct=%d score=%d, want %d/%d/%d",
					total, correct, score, tc.wantTotal, tc.wantCorrect, tc.wantScore)
			}
			if score < 0 || score > 100 {
				t.Fatalf("score out of range: %d", score)
			}
		})
	}
}

func TestSubmitQuiz_EndToEnd(t *testing.T) {
	env := newTestEnv(t, "70")

	res, err := env.svc.SubmitQuiz(context.Background(), "1", submitReq())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if res.Attempt.QuizID != 42 || res.Attempt.Score != 80 || !res.Attempt.Passed {
		t.Fatalf("unexpected attempt: %+v", res.Attempt)
	}
	if res.Attempt.CorrectCount != 8 || res.Attempt.QuestionsTotal != 10 {
		t.Fatalf("unexpected counts: %+v", res.Attempt)
	}
	if string(res.Stats) != `{"ok":true}` {
		t.Fatalf("stats should pass the Users reply through verbatim, got %s", res.Stats)
	}

	if len(env.lessons.calls) != 1 || env.lessons.calls[0] != broker.PatternLessonsCountTotals {
		t.Fatalf("lessons calls: %v", env.lessons.calls)
	}
	if len(env.users.calls) != 1 || env.users.calls[0] != broker.PatternUsersApplyQuizStats {
		t.Fatalf("users calls: %v", env.users.calls)
	}

	update, ok := env.users.reqs[0].(model.QuizStatsUpdate)
	if !ok {
		t.Fatalf("users request type: %T", env.users.reqs[0])
	}
	if update.UserID != "1" {
		t.Fatalf("users update userId: %q", update.UserID)
	}
	if update.Stats.QuizzesTotal != 5 || update.Stats.LessonsTotal != 10 {
		t.Fatalf("catalog totals not merged: %+v", update.Stats)
	}
	if update.Stats.QuizzesPassed != 1 || update.Stats.AverageScore != 80 || update.Stats.LessonsCompleted != 1 {
		t.Fatalf("local aggregates not merged: %+v", update.Stats)
	}

	if len(env.bus.topics) != 1 || env.bus.topics[0] != model.EventTypeQuizSubmitted {
		t.Fatalf("emitted topics: %v", env.bus.topics)
	}
	evt, ok := env.bus.events[0].(model.QuizSubmittedEvent)
	if !ok {
		t.Fatalf("event type: %T", env.bus.events[0])
	}
	if evt.Type != "quiz.submitted" || evt.MessageID == "" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Payload.UserID != "1" || evt.Payload.Score != 80 || !evt.Payload.Passed {
		t.Fatalf("unexpected event payload: %+v", evt.Payload)
	}

	stored, err := env.repo.FindByUserAndQuiz("1", 42)
	if err != nil {
		t.Fatalf("stored row: %v", err)
	}
	if stored.MessageID != evt.MessageID {
		t.Fatalf("event messageId should match the stored row")
	}
}

func TestSubmitQuiz_LessonsFailureIsTerminalAfterPersist(t *testing.T) {
	env := newTestEnv(t, "70")
	env.lessons.err = errors.New("rpc timeout")

	_, err := env.svc.SubmitQuiz(context.Background(), "1", submitReq())
	if err == nil {
		t.Fatalf("expected terminal error")
	}

	// the attempt row is already durable at this point
	stored, ferr := env.repo.FindByUserAndQuiz("1", 42)
	if ferr != nil {
		t.Fatalf("attempt should be persisted: %v", ferr)
	}
	if stored.Score != 80 || !stored.Passed {
		t.Fatalf("unexpected persisted row: %+v", stored)
	}

	if len(env.users.calls) != 0 {
		t.Fatalf("users must not be called after lessons failure")
	}
	if len(env.bus.topics) != 0 {
		t.Fatalf("no event may be published after lessons failure")
	}
}

func TestSubmitQuiz_UsersFailureIsTerminal(t *testing.T) {
	env := newTestEnv(t, "70")
	env.users.err = errors.New("users unavailable")

	_, err := env.svc.SubmitQuiz(context.Background(), "1", submitReq())
	if err == nil {
		t.Fatalf("expected terminal error")
	}
	if len(env.bus.topics) != 0 {
		t.Fatalf("no event may be published after users failure")
	}
	if _, ferr := env.repo.FindByUserAndQuiz("1", 42); ferr != nil {
		t.Fatalf("attempt should be persisted: %v", ferr)
	}
}

func TestSubmitQuiz_EmitFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t, "70")
	env.bus.err = errors.New("broker gone")

	res, err := env.svc.SubmitQuiz(context.Background(), "1", submitReq())
	if err != nil {
		t.Fatalf("publish failure must not fail the workflow: %v", err)
	}
	if res.Attempt.Score != 80 {
		t.Fatalf("unexpected response: %+v", res.Attempt)
	}
}

func TestSubmitQuiz_ResubmissionOverwrites(t *testing.T) {
	env := newTestEnv(t, "70")

	if _, err := env.svc.SubmitQuiz(context.Background(), "1", submitReq()); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second := submitReq()
	second.CorrectCount = intPtr(4)
	res, err := env.svc.SubmitQuiz(context.Background(), "1", second)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if res.Attempt.Score != 40 || res.Attempt.Passed {
		t.Fatalf("second submission should win: %+v", res.Attempt)
	}

	var count int64
	env.repo.DB.Model(&model.QuizAttempt{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single row for the pair, got %d", count)
	}
}

func TestSubmitQuiz_PassingThreshold(t *testing.T) {
	cases := []struct {
		name         string
		passingScore string
		wantPassed   bool
	}{
		{"default applies", "70", true},
		{"raised threshold fails the same score", "90", false},
		{"exact threshold passes", "80", true},
		{"non-numeric falls back to 70", "not-a-number", true},
		{"unset falls back to 70", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.passingScore)
			res, err := env.svc.SubmitQuiz(context.Background(), "1", submitReq())
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if res.Attempt.Score != 80 {
				t.Fatalf("score: %d", res.Attempt.Score)
			}
			if res.Attempt.Passed != tc.wantPassed {
				t.Fatalf("passed=%v, want %v", res.Attempt.Passed, tc.wantPassed)
			}
		})
	}
}

func quizEvent(messageID string) *model.QuizSubmittedEvent {
	return &model.QuizSubmittedEvent{
		Type:      model.EventTypeQuizSubmitted,
		MessageID: messageID,
		Payload: model.QuizSubmittedPayload{
			UserID:         "1",
			QuizID:         42,
			QuestionsTotal: 10,
			CorrectCount:   8,
			Score:          80,
			Passed:         true,
		},
	}
}

func TestHandleQuizSubmitted_StoresNewEvent(t *testing.T) {
	env := newTestEnv(t, "70")

	if err := env.svc.HandleQuizSubmitted(context.Background(), quizEvent("m1")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	stored, err := env.repo.FindByMessageID("m1")
	if err != nil {
		t.Fatalf("stored row: %v", err)
	}
	if stored.UserID != "1" || stored.QuizID != 42 || stored.Score != 80 {
		t.Fatalf("unexpected row: %+v", stored)
	}

	// replication never talks to the peers and never re-emits
	if len(env.lessons.calls) != 0 || len(env.users.calls) != 0 || len(env.bus.topics) != 0 {
		t.Fatalf("event path must not call out")
	}
}

func TestHandleQuizSubmitted_DuplicateDeliveryIsNoop(t *testing.T) {
	env := newTestEnv(t, "70")

	if err := env.svc.HandleQuizSubmitted(context.Background(), quizEvent("m1")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// a redelivery with the same messageId but different payload must not
	// touch the row
	dup := quizEvent("m1")
	dup.Payload.Score = 10
	dup.Payload.Passed = false
	if err := env.svc.HandleQuizSubmitted(context.Background(), dup); err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}

	stored, err := env.repo.FindByMessageID("m1")
	if err != nil {
		t.Fatalf("stored row: %v", err)
	}
	if stored.Score != 80 || !stored.Passed {
		t.Fatalf("duplicate delivery mutated the row: %+v", stored)
	}

	var count int64
	env.repo.DB.Model(&model.QuizAttempt{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}

func TestHandleQuizSubmitted_FreshMessageIDOverwritesPair(t *testing.T) {
	env := newTestEnv(t, "70")

	if err := env.svc.HandleQuizSubmitted(context.Background(), quizEvent("m1")); err != nil {
		t.Fatalf("first: %v", err)
	}

	next := quizEvent("m2")
	next.Payload.Score = 50
	next.Payload.Passed = false
	if err := env.svc.HandleQuizSubmitted(context.Background(), next); err != nil {
		t.Fatalf("second: %v", err)
	}

	stored, err := env.repo.FindByUserAndQuiz("1", 42)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.MessageID != "m2" || stored.Score != 50 {
		t.Fatalf("later event should win the pair: %+v", stored)
	}

	var count int64
	env.repo.DB.Model(&model.QuizAttempt{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one row for the pair, got %d", count)
	}
}
