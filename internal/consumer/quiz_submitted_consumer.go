package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"quiz_analytics_service/internal/model"
	"quiz_analytics_service/internal/service"
	"quiz_analytics_service/pkg/broker"
)

// AnalyticsConsumer is the asynchronous inbound adapter: it binds the
// quiz.submitted pattern on our durable queue to the duplicate-safe
// replication path of the workflow.
type AnalyticsConsumer struct {
	Service *service.AnalyticsService
}

func NewAnalyticsConsumer(svc *service.AnalyticsService) *AnalyticsConsumer {
	return &AnalyticsConsumer{Service: svc}
}

func (c *AnalyticsConsumer) Register(consumer *broker.Consumer) {
	consumer.Handle(broker.PatternQuizSubmitted, c.handleQuizSubmitted)
}

func (c *AnalyticsConsumer) handleQuizSubmitted(ctx context.Context, data json.RawMessage) error {
	var evt model.QuizSubmittedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Errorf("%w: decode quiz.submitted: %v", broker.ErrDrop, err)
	}
	if evt.MessageID == "" {
		return fmt.Errorf("%w: quiz.submitted without messageId", broker.ErrDrop)
	}

	// any other error nacks the message back for redelivery
	return c.Service.HandleQuizSubmitted(ctx, &evt)
}
