package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/token-lifecycle/internal/events"
	"github.com/spec-kit/token-lifecycle/internal/observability"
)

// AuditService records session lifecycle events in logs and metrics.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventSessionOpened, a.handleSessionOpened)
	a.dispatcher.Subscribe(events.EventAccessRefreshed, a.handleAccessRefreshed)
	a.dispatcher.Subscribe(events.EventSessionRevoked, a.handleSessionRevoked)
	a.dispatcher.Subscribe(events.EventLoginFailed, a.handleLoginFailed)
}

func (a *AuditService) handleSessionOpened(_ context.Context, event events.Event) error {
	via := ""
	if p, ok := event.Payload.(events.SessionOpenedPayload); ok {
		via = p.Via
	}
	a.logger.Info("SessionOpened",
		zap.String("event_id", event.ID),
		zap.String("subject_id", event.SubjectID),
		zap.String("email", event.Email),
		zap.String("via", via))
	a.metrics.RecordLifecycle(string(event.Type)+"|"+via, 1)
	return nil
}

func (a *AuditService) handleAccessRefreshed(_ context.Context, event events.Event) error {
	a.logger.Info("AccessRefreshed",
		zap.String("event_id", event.ID),
		zap.String("subject_id", event.SubjectID),
		zap.Any("payload", event.Payload))
	a.metrics.RecordLifecycle(string(event.Type), 1)
	return nil
}

func (a *AuditService) handleSessionRevoked(_ context.Context, event events.Event) error {
	p, _ := event.Payload.(events.SessionRevokedPayload)
	count := p.Count
	if count <= 0 {
		count = 1
	}
	a.logger.Info("SessionRevoked",
		zap.String("event_id", event.ID),
		zap.String("subject_id", event.SubjectID),
		zap.String("reason", string(p.Reason)),
		zap.Int("count", count))
	a.metrics.RecordLifecycle(string(event.Type)+"|"+string(p.Reason), count)
	return nil
}

func (a *AuditService) handleLoginFailed(_ context.Context, event events.Event) error {
	p, _ := event.Payload.(events.LoginFailedPayload)
	a.logger.Warn("LoginFailed",
		zap.String("event_id", event.ID),
		zap.String("email", event.Email),
		zap.Bool("throttled", p.Throttled))
	key := string(event.Type)
	if p.Throttled {
		key += "|throttled"
	}
	a.metrics.RecordLifecycle(key, 1)
	return nil
}
