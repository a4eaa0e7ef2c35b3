package bundle

import (
	"context"

	"widget-controlplane/pkg/errutil"
	"widget-controlplane/services/license"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	source   Source
	cache    *Cache
	licenses *license.Service
	group    singleflight.Group
}

type ServiceParams struct {
	fx.In
	Source   Source
	Cache    *Cache
	Licenses *license.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		source:   p.Source,
		cache:    p.Cache,
		licenses: p.Licenses,
	}
}

// Serve returns the injected bundle for the license, from cache when the
// license's flag-affecting fields are unchanged. Misses for the same license
// collapse through singleflight so the base bundle is read and injected once.
func (s *Service) Serve(ctx context.Context, lic *license.License) (string, error) {
	fp := Fingerprint(lic)

	if cached, ok := s.cache.Get(lic.ID, fp); ok {
		cacheHits.Inc()
		return cached, nil
	}
	cacheMiss.Inc()

	v, err, _ := s.group.Do(lic.ID+"|"+fp, func() (interface{}, error) {
		if cached, ok := s.cache.Get(lic.ID, fp); ok {
			return cached, nil
		}

		src, err := s.source.Load(ctx)
		if err != nil {
			return "", errutil.Unavailable("failed to load base bundle", errutil.WithErr(err))
		}

		injected, err := InjectLicenseFlags(src, lic)
		if err != nil {
			return "", err
		}

		s.cache.Set(lic.ID, fp, injected)
		return injected, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// ServeByKey validates the key/domain pair and serves the customized bundle.
// Validation rejections surface as forbidden errors carrying the reason.
func (s *Service) ServeByKey(ctx context.Context, key, domain string) (string, error) {
	zapLog := s.logger(ctx)

	result, err := s.licenses.Validate(ctx, key, domain)
	if err != nil {
		return "", err
	}

	if !result.Valid {
		zapLog.Info("bundle request rejected",
			zap.String("reason", result.Reason),
			zap.String("domain", domain),
		)
		return "", errutil.Forbidden(result.Reason)
	}

	lic, err := s.licenses.GetByKey(ctx, key)
	if err != nil {
		return "", err
	}

	return s.Serve(ctx, lic)
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}
