package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/campusworks/campusworks/internal/audit"
	"github.com/campusworks/campusworks/internal/rbac"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePushDefaults materializes a catalog entry's default roles
	// into role permission sets across every active organisation.
	TaskTypePushDefaults = "rbac:push_defaults"
	// TaskTypeAuditRetention prunes audit rows past the retention window.
	TaskTypeAuditRetention = "audit:retention"
)

// PushDefaultsPayload names the catalog entry to push.
type PushDefaultsPayload struct {
	PermissionID string `json:"permission_id"`
}

// AuditRetentionPayload carries the retention window for a prune run.
type AuditRetentionPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewPushDefaultsTask constructs an Asynq task for a push-defaults run.
func NewPushDefaultsTask(payload PushDefaultsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePushDefaults, data), nil
}

// NewAuditRetentionTask constructs an Asynq task for an audit prune run.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditRetention, data), nil
}

// NewPushDefaultsHandler binds the push-defaults task to the rbac service.
// The run is idempotent, so a retry after partial failure is safe.
func NewPushDefaultsHandler(service *rbac.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PushDefaultsPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		report, err := service.PushPermissionToOrganisations(ctx, payload.PermissionID)
		if err != nil {
			logger.Error("push defaults",
				slog.String("permission_id", payload.PermissionID),
				slog.Any("error", err))
			return err
		}
		logger.Info("push defaults complete",
			slog.String("permission_id", report.PermissionID),
			slog.Int64("organisations", report.Organisations),
			slog.Int64("roles_granted", report.RolesGranted))
		return nil
	}
}

// NewAuditRetentionHandler binds the audit prune task to the audit service.
func NewAuditRetentionHandler(service *audit.Service, fallback time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditRetentionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		retention := payload.Retention
		if retention <= 0 {
			retention = fallback
		}
		deleted, err := service.Prune(ctx, retention)
		if err != nil {
			logger.Error("audit retention", slog.Any("error", err))
			return err
		}
		logger.Info("audit retention complete", slog.Int64("deleted", deleted))
		return nil
	}
}
