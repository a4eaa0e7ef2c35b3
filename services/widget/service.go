package widget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"widget-controlplane/pkg/db/option"
	"widget-controlplane/pkg/db/pagination"
	"widget-controlplane/pkg/errutil"
	"widget-controlplane/pkg/keygen"
	"widget-controlplane/pkg/repository"
	"widget-controlplane/services/license"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// keyIssueAttempts bounds creation retries on widget key collisions.
const keyIssueAttempts = 3

// QuotaExceededError is returned when a license is at its tier's widget
// capacity. Tier and limit are part of the error so the caller can render an
// upgrade prompt.
type QuotaExceededError struct {
	Tier  license.Tier
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("widget limit reached for %s tier (limit %d)", e.Tier, e.Limit)
}

type CreateWidgetRequest struct {
	LicenseID string         `json:"license_id"`
	Name      string         `json:"name"`
	Config    datatypes.JSON `json:"config"`
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	repo repository.Repository[Widget]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		repo: repository.ProvideStore[Widget](p.DB),
	}
}

// CreateWithLimit reserves one unit of widget capacity and creates the widget,
// as a single reserve-or-fail operation. The license row is locked for the
// duration of the transaction so concurrent creations against the same scope
// serialize: counting current non-deleted widgets and inserting happen under
// the lock, which is what makes "N callers, one slot, one winner" hold. A bare
// count-then-insert without the lock would overbook.
func (s *Service) CreateWithLimit(ctx context.Context, req *CreateWidgetRequest) (*Widget, error) {
	zapLog := s.logger(ctx)

	if req.LicenseID == "" {
		return nil, errutil.BadRequest("license_id is required")
	}

	var (
		created *Widget
		lastErr error
	)

	for attempt := 0; attempt < keyIssueAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var lic license.License
			if err := option.LockForUpdate()(tx).
				Where("id = ?", req.LicenseID).
				First(&lic).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errutil.NotFound("license not found")
				}
				return fmt.Errorf("lock license row: %w", err)
			}

			policy := license.PolicyFor(lic.Tier)
			if policy.WidgetLimit != license.Unlimited {
				var count int64
				if err := tx.Model(&Widget{}).
					Where("license_id = ? AND status <> ?", lic.ID, StatusDeleted).
					Count(&count).Error; err != nil {
					return fmt.Errorf("count widgets: %w", err)
				}

				if count >= int64(policy.WidgetLimit) {
					return &QuotaExceededError{Tier: lic.Tier, Limit: policy.WidgetLimit}
				}
			}

			now := time.Now()
			w := &Widget{
				ID:        s.node.Generate().String(),
				CreatedAt: now,
				UpdatedAt: now,
				LicenseID: lic.ID,
				WidgetKey: keygen.WidgetKey(),
				Name:      req.Name,
				Status:    StatusActive,
				Config:    req.Config,
				Version:   1,
			}
			if w.Config == nil {
				w.Config = datatypes.JSON([]byte(`{}`))
			}

			if err := tx.Create(w).Error; err != nil {
				return err
			}

			created = w
			return nil
		})

		if err == nil {
			return created, nil
		}

		if errors.Is(err, gorm.ErrDuplicatedKey) {
			zapLog.Warn("widget key collision, regenerating", zap.Int("attempt", attempt+1))
			lastErr = err
			continue
		}

		var quotaErr *QuotaExceededError
		if errors.As(err, &quotaErr) {
			zapLog.Info("widget creation rejected, quota exceeded",
				zap.String("license_id", req.LicenseID),
				zap.String("tier", string(quotaErr.Tier)),
				zap.Int("limit", quotaErr.Limit),
			)
			return nil, err
		}

		return nil, err
	}

	zapLog.Error("exhausted widget key issuance attempts", zap.Error(lastErr))
	return nil, errutil.Internal("failed to issue widget key", errutil.WithErr(lastErr))
}

func (s *Service) Get(ctx context.Context, id string) (*Widget, error) {
	w, err := s.repo.FindOne(ctx, &Widget{ID: id})
	if err != nil {
		return nil, errutil.Unavailable("failed to get widget", errutil.WithErr(err))
	}
	if w == nil || w.Status == StatusDeleted {
		return nil, errutil.NotFound("widget not found")
	}
	return w, nil
}

// List returns one page of non-deleted widgets for a license, ordered by
// creation time, with an opaque cursor for the next page.
func (s *Service) List(ctx context.Context, licenseID string, p pagination.Pagination) ([]*Widget, *pagination.PageInfo, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	opts := []option.QueryOption{
		option.Where("status <> ?", StatusDeleted),
		option.OrderBy("created_at, id"),
		option.ApplyPagination(pagination.Pagination{Limit: limit + 1}),
	}

	if p.Cursor != "" {
		cursor, err := pagination.DecodeCursor(p.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor")
		}
		after, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor")
		}
		opts = append(opts, option.Where(
			"created_at > ? OR (created_at = ? AND id > ?)",
			after, after, cursor.ID,
		))
	}

	widgets, err := s.repo.Find(ctx, &Widget{LicenseID: licenseID}, opts...)
	if err != nil {
		return nil, nil, errutil.Unavailable("failed to list widgets", errutil.WithErr(err))
	}

	info := &pagination.PageInfo{}
	if len(widgets) > limit {
		widgets = widgets[:limit]
		last := widgets[len(widgets)-1]
		next, err := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
			ID:        last.ID,
		})
		if err != nil {
			return nil, nil, errutil.Internal("failed to encode cursor", errutil.WithErr(err))
		}
		info.NextCursor = next
		info.HasMore = true
	}

	return widgets, info, nil
}

// UpdateConfig replaces the widget config and bumps the monotonic version.
func (s *Service) UpdateConfig(ctx context.Context, id string, config datatypes.JSON) (*Widget, error) {
	zapLog := s.logger(ctx)

	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&Widget{}).
		Where("id = ?", w.ID).
		Updates(map[string]interface{}{
			"config":     config,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		}).Error; err != nil {
		zapLog.Error("failed to update widget config", zap.Error(err), zap.String("widget_id", id))
		return nil, errutil.Internal("failed to update widget config", errutil.WithErr(err))
	}

	return s.Get(ctx, id)
}

// UpdateStatus pauses or resumes a widget. Deleted widgets stay deleted;
// resurrecting one would sidestep quota enforcement.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Widget, error) {
	if status != StatusActive && status != StatusPaused {
		return nil, errutil.BadRequest("status must be active or paused")
	}

	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, w.ID, map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}); err != nil {
		return nil, errutil.Internal("failed to update widget status", errutil.WithErr(err))
	}

	w.Status = status
	return w, nil
}

// Deploy stamps the widget as deployed.
func (s *Service) Deploy(ctx context.Context, id string) (*Widget, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.repo.Update(ctx, w.ID, map[string]interface{}{
		"deployed_at": now,
		"updated_at":  now,
	}); err != nil {
		return nil, errutil.Internal("failed to mark widget deployed", errutil.WithErr(err))
	}

	w.DeployedAt = &now
	return w, nil
}

// Delete soft-deletes the widget, freeing one unit of quota. Rows are never
// purged.
func (s *Service) Delete(ctx context.Context, id string) error {
	zapLog := s.logger(ctx)

	res := s.db.WithContext(ctx).Model(&Widget{}).
		Where("id = ? AND status <> ?", id, StatusDeleted).
		Updates(map[string]interface{}{
			"status":     StatusDeleted,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		zapLog.Error("failed to delete widget", zap.Error(res.Error), zap.String("widget_id", id))
		return errutil.Internal("failed to delete widget", errutil.WithErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound("widget not found")
	}

	return nil
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}
