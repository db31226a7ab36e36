package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/notify-relay/internal/domain"
	"github.com/kursadbilgin/notify-relay/internal/provider"
	"go.uber.org/zap"
)

func newTestPipeline(
	t *testing.T,
	repo *fakeNotificationRepo,
	templates *fakeTemplateRepo,
	attempts *fakeAttemptRepo,
	p *fakeProvider,
) *DeliveryPipeline {
	t.Helper()

	pipeline, err := NewDeliveryPipeline(repo, templates, attempts, p, &fakeRateLimiter{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeliveryPipeline() error = %v", err)
	}
	pipeline.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	pipeline.randIntn = func(n int) int { return 0 }
	return pipeline
}

func TestDeliveryPipelineTemplateRenderSuccess(t *testing.T) {
	t.Parallel()

	var sentMessage string
	var gotAttempt *domain.DeliveryAttempt
	markedSent := false

	repo := &fakeNotificationRepo{
		markSentFn: func(ctx context.Context, id string) error {
			markedSent = true
			return nil
		},
		markFailedFn: func(ctx context.Context, id string) error {
			t.Fatal("MarkFailed must not be called on success")
			return nil
		},
	}
	templates := &fakeTemplateRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Template, error) {
			if id != "t1" {
				t.Fatalf("template id = %q, want t1", id)
			}
			return &domain.Template{ID: "t1", Body: "Hi {{name}}"}, nil
		},
	}
	attempts := &fakeAttemptRepo{
		createFn: func(ctx context.Context, a *domain.DeliveryAttempt) error {
			gotAttempt = a
			return nil
		},
	}
	p := &fakeProvider{
		name: "webhook",
		sendFn: func(ctx context.Context, channel, recipient, message string) (*provider.Response, error) {
			sentMessage = message
			return &provider.Response{StatusCode: 202, ProviderID: "provider-123"}, nil
		},
	}

	pipeline := newTestPipeline(t, repo, templates, attempts, p)

	tplID := "t1"
	err := pipeline.Deliver(context.Background(), domain.Notification{
		ID:          "n1",
		Channel:     "sms",
		Recipient:   "+15550001111",
		Payload:     domain.Payload{"name": "Ann"},
		TemplateID:  &tplID,
		Status:      domain.StatusProcessing,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if sentMessage != "Hi Ann" {
		t.Fatalf("message = %q, want %q", sentMessage, "Hi Ann")
	}
	if !markedSent {
		t.Fatal("notification should be marked sent")
	}
	if gotAttempt == nil {
		t.Fatal("attempt should be recorded")
	}
	if gotAttempt.AttemptNo != 1 {
		t.Fatalf("attempt no = %d, want 1", gotAttempt.AttemptNo)
	}
	if gotAttempt.Status != domain.AttemptSuccess {
		t.Fatalf("attempt status = %s, want success", gotAttempt.Status)
	}
	if gotAttempt.Provider != "webhook" {
		t.Fatalf("attempt provider = %q, want webhook", gotAttempt.Provider)
	}
	if !strings.Contains(gotAttempt.ProviderResponse, "provider-123") {
		t.Fatalf("provider response %q should carry the provider id", gotAttempt.ProviderResponse)
	}
}

func TestDeliveryPipelineMissingTemplateFallsBackToPayload(t *testing.T) {
	t.Parallel()

	var sentMessage string
	markedSent := false

	repo := &fakeNotificationRepo{
		markSentFn: func(ctx context.Context, id string) error {
			markedSent = true
			return nil
		},
	}
	templates := &fakeTemplateRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Template, error) {
			return nil, domain.ErrNotFound
		},
	}
	p := &fakeProvider{
		sendFn: func(ctx context.Context, channel, recipient, message string) (*provider.Response, error) {
			sentMessage = message
			return &provider.Response{StatusCode: 200}, nil
		},
	}

	pipeline := newTestPipeline(t, repo, templates, &fakeAttemptRepo{}, p)

	tplID := "missing"
	err := pipeline.Deliver(context.Background(), domain.Notification{
		ID:          "n1",
		Channel:     "sms",
		Recipient:   "+15550001111",
		Payload:     domain.Payload{"name": "Ann"},
		TemplateID:  &tplID,
		Status:      domain.StatusProcessing,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if sentMessage != `{"name":"Ann"}` {
		t.Fatalf("message = %q, want serialized payload", sentMessage)
	}
	if !markedSent {
		t.Fatal("missing template degrades silently; notification still sent")
	}
}

func TestDeliveryPipelineRawPayloadSerialization(t *testing.T) {
	t.Parallel()

	var sentMessage string
	p := &fakeProvider{
		sendFn: func(ctx context.Context, channel, recipient, message string) (*provider.Response, error) {
			sentMessage = message
			return &provider.Response{StatusCode: 200}, nil
		},
	}

	pipeline := newTestPipeline(t, &fakeNotificationRepo{}, &fakeTemplateRepo{}, &fakeAttemptRepo{}, p)

	err := pipeline.Deliver(context.Background(), domain.Notification{
		ID:          "n1",
		Channel:     "email",
		Recipient:   "ann@example.com",
		Payload:     domain.Payload{"subject": "hello"},
		Status:      domain.StatusProcessing,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if sentMessage != `{"subject":"hello"}` {
		t.Fatalf("message = %q, want serialized payload", sentMessage)
	}
}

func TestDeliveryPipelineProviderFailureMarksFailed(t *testing.T) {
	t.Parallel()

	var gotAttempt *domain.DeliveryAttempt
	markedFailed := false

	repo := &fakeNotificationRepo{
		markSentFn: func(ctx context.Context, id string) error {
			t.Fatal("MarkSent must not be called on failure")
			return nil
		},
		markFailedFn: func(ctx context.Context, id string) error {
			markedFailed = true
			return nil
		},
	}
	attempts := &fakeAttemptRepo{
		createFn: func(ctx context.Context, a *domain.DeliveryAttempt) error {
			gotAttempt = a
			return nil
		},
	}
	p := &fakeProvider{
		sendFn: func(ctx context.Context, channel, recipient, message string) (*provider.Response, error) {
			return nil, &provider.Error{StatusCode: 400, Message: "bad recipient"}
		},
	}

	pipeline := newTestPipeline(t, repo, &fakeTemplateRepo{}, attempts, p)

	err := pipeline.Deliver(context.Background(), domain.Notification{
		ID:          "n1",
		Channel:     "sms",
		Recipient:   "+15550001111",
		Status:      domain.StatusProcessing,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("Deliver() must contain provider failures, got %v", err)
	}

	if !markedFailed {
		t.Fatal("notification should be marked failed")
	}
	if gotAttempt == nil {
		t.Fatal("failed attempt should still be recorded")
	}
	if gotAttempt.Status != domain.AttemptFailure {
		t.Fatalf("attempt status = %s, want failure", gotAttempt.Status)
	}
	if !strings.Contains(gotAttempt.ProviderResponse, "bad recipient") {
		t.Fatalf("provider response %q should carry the error", gotAttempt.ProviderResponse)
	}
}

func TestDeliveryPipelineTransientFailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	retryScheduled := false
	var nextAttemptAt time.Time

	repo := &fakeNotificationRepo{
		markFailedFn: func(ctx context.Context, id string) error {
			t.Fatal("MarkFailed must not be called when attempts remain")
			return nil
		},
		scheduleRetryFn: func(ctx context.Context, id string, at time.Time) error {
			retryScheduled = true
			nextAttemptAt = at
			return nil
		},
	}
	p := &fakeProvider{
		sendFn: func(ctx context.Context, channel, recipient, message string) (*provider.Response, error) {
			return nil, &provider.Error{StatusCode: 503, Message: "unavailable", Transient: true}
		},
	}

	pipeline := newTestPipeline(t, repo, &fakeTemplateRepo{}, &fakeAttemptRepo{}, p)

	err := pipeline.Deliver(context.Background(), domain.Notification{
		ID:           "n1",
		Channel:      "sms",
		Recipient:    "+15550001111",
		Status:       domain.StatusProcessing,
		AttemptCount: 0,
		MaxAttempts:  3,
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if !retryScheduled {
		t.Fatal("retry should be scheduled")
	}
	wantAt := time.Unix(1_700_000_000, 0).Add(time.Second)
	if !nextAttemptAt.Equal(wantAt) {
		t.Fatalf("nextAttemptAt = %v, want %v", nextAttemptAt, wantAt)
	}
}

func TestDeliveryPipelineSingleAttemptNeverRetries(t *testing.T) {
	t.Parallel()

	markedFailed := false
	repo := &fakeNotificationRepo{
		markFailedFn: func(ctx context.Context, id string) error {
			markedFailed = true
			return nil
		},
		scheduleRetryFn: func(ctx context.Context, id string, at time.Time) error {
			t.Fatal("retry must not be scheduled with a single allowed attempt")
			return nil
		},
	}
	p := &fakeProvider{
		sendFn: func(ctx context.Context, channel, recipient, message string) (*provider.Response, error) {
			return nil, &provider.Error{StatusCode: 503, Message: "unavailable", Transient: true}
		},
	}

	pipeline := newTestPipeline(t, repo, &fakeTemplateRepo{}, &fakeAttemptRepo{}, p)

	err := pipeline.Deliver(context.Background(), domain.Notification{
		ID:          "n1",
		Channel:     "sms",
		Recipient:   "+15550001111",
		Status:      domain.StatusProcessing,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if !markedFailed {
		t.Fatal("transient failure with no attempts left must mark failed")
	}
}

func TestDeliveryPipelineAttemptNoIsMonotonic(t *testing.T) {
	t.Parallel()

	var gotAttempt *domain.DeliveryAttempt
	attempts := &fakeAttemptRepo{
		createFn: func(ctx context.Context, a *domain.DeliveryAttempt) error {
			gotAttempt = a
			return nil
		},
	}

	pipeline := newTestPipeline(t, &fakeNotificationRepo{}, &fakeTemplateRepo{}, attempts, &fakeProvider{})

	err := pipeline.Deliver(context.Background(), domain.Notification{
		ID:           "n1",
		Channel:      "sms",
		Recipient:    "+15550001111",
		Status:       domain.StatusProcessing,
		AttemptCount: 2,
		MaxAttempts:  5,
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if gotAttempt.AttemptNo != 3 {
		t.Fatalf("attempt no = %d, want 3", gotAttempt.AttemptNo)
	}
}

func TestDeliveryPipelineStoreErrorDuringAttemptLogFailsNotification(t *testing.T) {
	t.Parallel()

	markedFailed := false
	repo := &fakeNotificationRepo{
		markFailedFn: func(ctx context.Context, id string) error {
			markedFailed = true
			return nil
		},
	}
	attempts := &fakeAttemptRepo{
		createFn: func(ctx context.Context, a *domain.DeliveryAttempt) error {
			return errors.New("insert failed")
		},
	}

	pipeline := newTestPipeline(t, repo, &fakeTemplateRepo{}, attempts, &fakeProvider{})

	err := pipeline.Deliver(context.Background(), domain.Notification{
		ID:          "n1",
		Channel:     "sms",
		Recipient:   "+15550001111",
		Status:      domain.StatusProcessing,
		MaxAttempts: 1,
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if !markedFailed {
		t.Fatal("store failure inside the pipeline must resolve to failed status")
	}
}

func TestComputeRetryDelayGrowsAndCaps(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(t, &fakeNotificationRepo{}, &fakeTemplateRepo{}, &fakeAttemptRepo{}, &fakeProvider{})

	if got := pipeline.computeRetryDelay(1); got != time.Second {
		t.Fatalf("delay(1) = %v, want 1s", got)
	}
	if got := pipeline.computeRetryDelay(3); got != 4*time.Second {
		t.Fatalf("delay(3) = %v, want 4s", got)
	}
	if got := pipeline.computeRetryDelay(20); got != maxRetryDelay {
		t.Fatalf("delay(20) = %v, want %v", got, maxRetryDelay)
	}
}
