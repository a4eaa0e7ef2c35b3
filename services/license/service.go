package license

import (
	"context"
	"errors"
	"time"

	"widget-controlplane/pkg/domainutil"
	"widget-controlplane/pkg/errutil"
	"widget-controlplane/pkg/keygen"
	"widget-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Rejection reasons returned by Validate. The exact wording is part of the
// validate contract consumed by the serving layer.
const (
	ReasonNotFound            = "License not found"
	ReasonInactive            = "License is not active"
	ReasonExpired             = "License has expired"
	ReasonDomainNotAuthorized = "Domain not authorized"
)

// keyIssueAttempts bounds issuance retries on license key collisions.
const keyIssueAttempts = 3

// CacheInvalidator is notified whenever a license mutates in a way that
// affects previously served bundles.
type CacheInvalidator interface {
	InvalidateLicense(ctx context.Context, licenseID string)
}

// LicenseInfo is the non-sensitive projection returned on successful
// validation. The key and domain list are never echoed back.
type LicenseInfo struct {
	ID        string     `json:"license_id"`
	UserID    string     `json:"user_id"`
	Tier      Tier       `json:"tier"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type ValidationResult struct {
	Valid   bool         `json:"valid"`
	Reason  string       `json:"reason,omitempty"`
	License *LicenseInfo `json:"license,omitempty"`
}

type CreateLicenseRequest struct {
	UserID    string     `json:"user_id"`
	Tier      Tier       `json:"tier"`
	Domains   []string   `json:"domains"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type Service struct {
	db          *gorm.DB
	node        *snowflake.Node
	repo        repository.Repository[License]
	invalidator CacheInvalidator
	now         func() time.Time
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Node        *snowflake.Node
	Invalidator CacheInvalidator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		repo:        repository.ProvideStore[License](p.DB),
		invalidator: p.Invalidator,
		now:         time.Now,
	}
}

// Validate decides whether the given key may be used from the given domain.
// Rejections are values, not errors; only store failures surface as errors.
// Read-only and safe for arbitrarily many concurrent callers.
func (s *Service) Validate(ctx context.Context, key, domain string) (*ValidationResult, error) {
	zapLog := s.logger(ctx)

	if key == "" {
		return &ValidationResult{Valid: false, Reason: ReasonNotFound}, nil
	}

	rows, err := s.repo.Find(ctx, &License{LicenseKey: key})
	if err != nil {
		zapLog.Error("failed to look up license by key", zap.Error(err))
		return nil, errutil.Unavailable("failed to look up license", errutil.WithErr(err))
	}

	if len(rows) == 0 {
		return &ValidationResult{Valid: false, Reason: ReasonNotFound}, nil
	}
	if len(rows) > 1 {
		// A unique index guards the column; more than one row is an anomaly
		// worth flagging, not failing on.
		zapLog.Warn("multiple licenses share one key, using first",
			zap.String("license_id", rows[0].ID),
			zap.Int("rows", len(rows)),
		)
	}
	lic := rows[0]

	if lic.Status != StatusActive {
		return &ValidationResult{Valid: false, Reason: ReasonInactive}, nil
	}

	if lic.ExpiresAt != nil && !lic.ExpiresAt.After(s.now()) {
		return &ValidationResult{Valid: false, Reason: ReasonExpired}, nil
	}

	if !domainAuthorized(lic, domain) {
		return &ValidationResult{Valid: false, Reason: ReasonDomainNotAuthorized}, nil
	}

	return &ValidationResult{
		Valid: true,
		License: &LicenseInfo{
			ID:        lic.ID,
			UserID:    lic.UserID,
			Tier:      lic.Tier,
			ExpiresAt: lic.ExpiresAt,
		},
	}, nil
}

// domainAuthorized matches by exact normalized equality. No subdomain
// wildcarding in either direction; an empty domain list authorizes nothing.
func domainAuthorized(lic *License, domain string) bool {
	normalized := domainutil.Normalize(domain)
	if normalized == "" {
		return false
	}
	for _, d := range lic.Domains {
		if domainutil.Normalize(d) == normalized {
			return true
		}
	}
	return false
}

// Create issues a new license with tier defaults and a fresh key, retrying on
// the (negligible but possible) key collision.
func (s *Service) Create(ctx context.Context, req *CreateLicenseRequest) (*License, error) {
	zapLog := s.logger(ctx)

	if req.UserID == "" {
		return nil, errutil.BadRequest("user_id is required")
	}
	if !ValidTier(req.Tier) {
		return nil, errutil.BadRequest("unknown tier")
	}

	policy := PolicyFor(req.Tier)

	domains, err := normalizeDomains(req.Domains, policy.DomainLimit)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < keyIssueAttempts; attempt++ {
		now := s.now()
		lic := &License{
			ID:              s.node.Generate().String(),
			CreatedAt:       now,
			UpdatedAt:       now,
			UserID:          req.UserID,
			LicenseKey:      keygen.LicenseKey(),
			Tier:            req.Tier,
			Domains:         domains,
			DomainLimit:     policy.DomainLimit,
			BrandingEnabled: policy.BrandingEnabled,
			Status:          StatusActive,
			ExpiresAt:       req.ExpiresAt,
		}

		if err := s.repo.Create(ctx, lic); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				zapLog.Warn("license key collision, regenerating", zap.Int("attempt", attempt+1))
				lastErr = err
				continue
			}
			zapLog.Error("failed to create license", zap.Error(err))
			return nil, errutil.Internal("failed to create license", errutil.WithErr(err))
		}

		return lic, nil
	}

	zapLog.Error("exhausted license key issuance attempts", zap.Error(lastErr))
	return nil, errutil.Internal("failed to issue license key", errutil.WithErr(lastErr))
}

func (s *Service) Get(ctx context.Context, id string) (*License, error) {
	lic, err := s.repo.FindOne(ctx, &License{ID: id})
	if err != nil {
		return nil, errutil.Unavailable("failed to get license", errutil.WithErr(err))
	}
	if lic == nil {
		return nil, errutil.NotFound("license not found")
	}
	return lic, nil
}

// GetByKey resolves a license by its key. Used by the bundle serving layer
// after validation succeeds.
func (s *Service) GetByKey(ctx context.Context, key string) (*License, error) {
	if key == "" {
		return nil, errutil.NotFound("license not found")
	}
	lic, err := s.repo.FindOne(ctx, &License{LicenseKey: key})
	if err != nil {
		return nil, errutil.Unavailable("failed to get license", errutil.WithErr(err))
	}
	if lic == nil {
		return nil, errutil.NotFound("license not found")
	}
	return lic, nil
}

// UpdateDomains replaces the authorized domain list. Entries are normalized
// and deduplicated; the count is enforced against the license's domain quota.
func (s *Service) UpdateDomains(ctx context.Context, id string, domains []string) (*License, error) {
	zapLog := s.logger(ctx)

	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	normalized, err := normalizeDomains(domains, lic.DomainLimit)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, lic.ID, map[string]interface{}{
		"domains":    pq.StringArray(normalized),
		"updated_at": s.now(),
	}); err != nil {
		zapLog.Error("failed to update license domains", zap.Error(err), zap.String("license_id", id))
		return nil, errutil.Internal("failed to update license domains", errutil.WithErr(err))
	}

	lic.Domains = pq.StringArray(normalized)
	s.invalidate(ctx, lic.ID)

	return lic, nil
}

// UpdateStatus transitions the license status. Licenses are never hard
// deleted; cancellation and reactivation are the only manual transitions.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*License, error) {
	zapLog := s.logger(ctx)

	if status.String() == "" {
		return nil, errutil.BadRequest("unknown status")
	}

	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if lic.Status == status {
		return lic, nil
	}

	if err := s.repo.Update(ctx, lic.ID, map[string]interface{}{
		"status":     status,
		"updated_at": s.now(),
	}); err != nil {
		zapLog.Error("failed to update license status", zap.Error(err), zap.String("license_id", id))
		return nil, errutil.Internal("failed to update license status", errutil.WithErr(err))
	}

	lic.Status = status
	s.invalidate(ctx, lic.ID)

	return lic, nil
}

// SweepExpired flips active licenses past their expiry to expired and returns
// how many rows changed. Invoked by the background expiry task.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	zapLog := s.logger(ctx)
	now := s.now()

	var expiring []*License
	if err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", StatusActive, now).
		Find(&expiring).Error; err != nil {
		zapLog.Error("failed to find expiring licenses", zap.Error(err))
		return 0, err
	}

	if len(expiring) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(expiring))
	for _, lic := range expiring {
		ids = append(ids, lic.ID)
	}

	res := s.db.WithContext(ctx).Model(&License{}).
		Where("id IN ? AND status = ?", ids, StatusActive).
		Updates(map[string]interface{}{
			"status":     StatusExpired,
			"updated_at": now,
		})
	if res.Error != nil {
		zapLog.Error("failed to expire licenses", zap.Error(res.Error))
		return 0, res.Error
	}

	for _, id := range ids {
		s.invalidate(ctx, id)
	}

	zapLog.Info("expired licenses swept", zap.Int64("count", res.RowsAffected))
	return res.RowsAffected, nil
}

func (s *Service) invalidate(ctx context.Context, licenseID string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateLicense(ctx, licenseID)
	}
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

// normalizeDomains canonicalizes the list, drops empties, deduplicates while
// preserving order, and enforces the quota unless it is Unlimited.
func normalizeDomains(domains []string, limit int) ([]string, error) {
	out := make([]string, 0, len(domains))
	seen := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		normalized := domainutil.Normalize(d)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}

	if limit != Unlimited && len(out) > limit {
		return nil, errutil.UnprocessableEntity("domain limit exceeded")
	}

	return out, nil
}
