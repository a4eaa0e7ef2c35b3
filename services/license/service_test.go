package license

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"widget-controlplane/pkg/db/option"
	"widget-controlplane/pkg/errutil"
	"widget-controlplane/pkg/repository"
	"widget-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockLicenseRepository struct {
	findFn    func(ctx context.Context, query *License, opts ...option.QueryOption) ([]*License, error)
	findOneFn func(ctx context.Context, query *License, opts ...option.QueryOption) (*License, error)
	createFn  func(ctx context.Context, resource *License) error
}

func (m *mockLicenseRepository) WithTrx(tx *gorm.DB) repository.Repository[License] {
	return m
}

func (m *mockLicenseRepository) Find(ctx context.Context, query *License, opts ...option.QueryOption) ([]*License, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *mockLicenseRepository) FindOne(ctx context.Context, query *License, opts ...option.QueryOption) (*License, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *mockLicenseRepository) Create(ctx context.Context, resource *License) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *mockLicenseRepository) Update(context.Context, string, any) error     { return nil }
func (m *mockLicenseRepository) BatchCreate(context.Context, []*License) error { return nil }
func (m *mockLicenseRepository) BatchUpdate(context.Context, []*License) error { return nil }
func (m *mockLicenseRepository) Count(context.Context, *License) (int64, error) {
	return 0, nil
}

type recordingInvalidator struct {
	ids []string
}

func (r *recordingInvalidator) InvalidateLicense(_ context.Context, licenseID string) {
	r.ids = append(r.ids, licenseID)
}

func newTestService(t *testing.T, models ...any) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, append([]any{&License{}}, models...)...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node}), db
}

func seedLicense(t *testing.T, db *gorm.DB, lic *License) *License {
	t.Helper()

	now := time.Now()
	if lic.ID == "" {
		lic.ID = "lic_" + lic.LicenseKey
	}
	if lic.CreatedAt.IsZero() {
		lic.CreatedAt = now
	}
	if lic.UpdatedAt.IsZero() {
		lic.UpdatedAt = now
	}
	require.NoError(t, db.Create(lic).Error)
	return lic
}

func TestValidateSuccess(t *testing.T) {
	svc, db := newTestService(t)
	expires := time.Now().Add(24 * time.Hour)
	seedLicense(t, db, &License{
		UserID:     "user_1",
		LicenseKey: "aaaabbbbccccddddeeeeffff00001111",
		Tier:       TierPro,
		Domains:    pq.StringArray{"example.com"},
		Status:     StatusActive,
		ExpiresAt:  &expires,
	})

	result, err := svc.Validate(context.Background(), "aaaabbbbccccddddeeeeffff00001111", "https://www.Example.com/pricing")
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Empty(t, result.Reason)
	require.NotNil(t, result.License)
	require.Equal(t, "user_1", result.License.UserID)
	require.Equal(t, TierPro, result.License.Tier)
}

func TestValidateNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Validate(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef", "example.com")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, ReasonNotFound, result.Reason)
	require.Nil(t, result.License)
}

func TestValidateEmptyKey(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Validate(context.Background(), "", "example.com")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, ReasonNotFound, result.Reason)
}

func TestValidateInactive(t *testing.T) {
	svc, db := newTestService(t)
	for _, status := range []Status{StatusCancelled, StatusExpired} {
		key := "1111111111111111111111111111111" + string(status[0])
		seedLicense(t, db, &License{
			UserID:     "user_1",
			LicenseKey: key,
			Tier:       TierBasic,
			Domains:    pq.StringArray{"example.com"},
			Status:     status,
		})

		result, err := svc.Validate(context.Background(), key, "example.com")
		require.NoError(t, err)
		require.False(t, result.Valid)
		require.Equal(t, ReasonInactive, result.Reason)
	}
}

func TestValidateExpired(t *testing.T) {
	svc, db := newTestService(t)
	expired := time.Now().Add(-24 * time.Hour)
	seedLicense(t, db, &License{
		UserID:     "user_1",
		LicenseKey: "22223333444455556666777788889999",
		Tier:       TierPro,
		Domains:    pq.StringArray{"example.com"},
		Status:     StatusActive,
		ExpiresAt:  &expired,
	})

	// The domain matches; expiry must win regardless.
	result, err := svc.Validate(context.Background(), "22223333444455556666777788889999", "example.com")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, ReasonExpired, result.Reason)
}

func TestValidateExpiresExactlyNow(t *testing.T) {
	svc, db := newTestService(t)
	boundary := time.Now().Add(time.Hour)
	seedLicense(t, db, &License{
		UserID:     "user_1",
		LicenseKey: "2222333344445555666677778888aaaa",
		Tier:       TierPro,
		Domains:    pq.StringArray{"example.com"},
		Status:     StatusActive,
		ExpiresAt:  &boundary,
	})
	svc.now = func() time.Time { return boundary }

	result, err := svc.Validate(context.Background(), "2222333344445555666677778888aaaa", "example.com")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, ReasonExpired, result.Reason)
}

func TestValidateNeverExpires(t *testing.T) {
	svc, db := newTestService(t)
	seedLicense(t, db, &License{
		UserID:     "user_1",
		LicenseKey: "2222333344445555666677778888bbbb",
		Tier:       TierBasic,
		Domains:    pq.StringArray{"example.com"},
		Status:     StatusActive,
	})

	result, err := svc.Validate(context.Background(), "2222333344445555666677778888bbbb", "example.com")
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestValidateNoSubdomainMatch(t *testing.T) {
	svc, db := newTestService(t)
	expires := time.Now().Add(24 * time.Hour)
	seedLicense(t, db, &License{
		UserID:     "user_1",
		LicenseKey: "aaaa1111bbbb2222cccc3333dddd4444",
		Tier:       TierPro,
		Domains:    pq.StringArray{"example.com"},
		Status:     StatusActive,
		ExpiresAt:  &expires,
	})

	for _, domain := range []string{"sub.example.com", "example.com.evil.io", "notexample.com"} {
		result, err := svc.Validate(context.Background(), "aaaa1111bbbb2222cccc3333dddd4444", domain)
		require.NoError(t, err)
		require.False(t, result.Valid, "domain %s should not be authorized", domain)
		require.Equal(t, ReasonDomainNotAuthorized, result.Reason)
	}
}

func TestValidateUnlimitedTierStillBoundsDomains(t *testing.T) {
	svc, db := newTestService(t)
	seedLicense(t, db, &License{
		UserID:      "user_1",
		LicenseKey:  "aaaa1111bbbb2222cccc3333dddd5555",
		Tier:        TierAgency,
		Domains:     pq.StringArray{"a.com", "b.com"},
		DomainLimit: Unlimited,
		Status:      StatusActive,
	})

	// Unlimited bounds the count of listed domains, not "any domain".
	result, err := svc.Validate(context.Background(), "aaaa1111bbbb2222cccc3333dddd5555", "c.com")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, ReasonDomainNotAuthorized, result.Reason)

	result, err = svc.Validate(context.Background(), "aaaa1111bbbb2222cccc3333dddd5555", "b.com")
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestValidateEmptyDomainList(t *testing.T) {
	svc, db := newTestService(t)
	seedLicense(t, db, &License{
		UserID:      "user_1",
		LicenseKey:  "aaaa1111bbbb2222cccc3333dddd6666",
		Tier:        TierAgency,
		Domains:     pq.StringArray{},
		DomainLimit: Unlimited,
		Status:      StatusActive,
	})

	result, err := svc.Validate(context.Background(), "aaaa1111bbbb2222cccc3333dddd6666", "example.com")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, ReasonDomainNotAuthorized, result.Reason)
}

func TestValidateEmptyDomainInput(t *testing.T) {
	svc, db := newTestService(t)
	seedLicense(t, db, &License{
		UserID:     "user_1",
		LicenseKey: "aaaa1111bbbb2222cccc3333dddd7777",
		Tier:       TierBasic,
		Domains:    pq.StringArray{"example.com"},
		Status:     StatusActive,
	})

	for _, domain := range []string{"", "   "} {
		result, err := svc.Validate(context.Background(), "aaaa1111bbbb2222cccc3333dddd7777", domain)
		require.NoError(t, err)
		require.False(t, result.Valid)
		require.Equal(t, ReasonDomainNotAuthorized, result.Reason)
	}
}

func TestValidateStoreError(t *testing.T) {
	svc := &Service{
		repo: &mockLicenseRepository{
			findFn: func(context.Context, *License, ...option.QueryOption) ([]*License, error) {
				return nil, errors.New("connection refused")
			},
		},
		now: time.Now,
	}

	_, err := svc.Validate(context.Background(), "aaaabbbbccccddddeeeeffff00001111", "example.com")
	require.Error(t, err)

	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusServiceUnavailable, base.Code)
}

func TestValidateDuplicateKeyAnomalyUsesFirstRow(t *testing.T) {
	svc := &Service{
		repo: &mockLicenseRepository{
			findFn: func(context.Context, *License, ...option.QueryOption) ([]*License, error) {
				return []*License{
					{ID: "lic_1", UserID: "user_1", Status: StatusActive, Domains: pq.StringArray{"example.com"}},
					{ID: "lic_2", UserID: "user_2", Status: StatusActive, Domains: pq.StringArray{"other.com"}},
				}, nil
			},
		},
		now: time.Now,
	}

	result, err := svc.Validate(context.Background(), "aaaabbbbccccddddeeeeffff00001111", "example.com")
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "lic_1", result.License.ID)
}

func TestCreateAppliesTierDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	lic, err := svc.Create(context.Background(), &CreateLicenseRequest{
		UserID:  "user_1",
		Tier:    TierBasic,
		Domains: []string{"https://www.Example.com/path"},
	})
	require.NoError(t, err)
	require.Len(t, lic.LicenseKey, 32)
	require.Regexp(t, "^[0-9a-f]{32}$", lic.LicenseKey)
	require.Equal(t, StatusActive, lic.Status)
	require.Equal(t, 1, lic.DomainLimit)
	require.True(t, lic.BrandingEnabled)
	require.Equal(t, []string{"example.com"}, []string(lic.Domains))
}

func TestCreateAgencyDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	lic, err := svc.Create(context.Background(), &CreateLicenseRequest{
		UserID:  "user_1",
		Tier:    TierAgency,
		Domains: []string{"a.com", "b.com", "A.com", "c.com"},
	})
	require.NoError(t, err)
	require.Equal(t, Unlimited, lic.DomainLimit)
	require.False(t, lic.BrandingEnabled)
	require.Equal(t, []string{"a.com", "b.com", "c.com"}, []string(lic.Domains))
}

func TestCreateUnknownTier(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), &CreateLicenseRequest{
		UserID: "user_1",
		Tier:   Tier("platinum"),
	})
	require.Error(t, err)

	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusBadRequest, base.Code)
}

func TestCreateDomainLimitEnforced(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), &CreateLicenseRequest{
		UserID:  "user_1",
		Tier:    TierBasic,
		Domains: []string{"a.com", "b.com"},
	})
	require.Error(t, err)

	var base errutil.BaseError
	require.ErrorAs(t, err, &base)
	require.Equal(t, errutil.StatusUnprocessableEntity, base.Code)
}

func TestCreateRetriesOnKeyCollision(t *testing.T) {
	calls := 0
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := &Service{
		node: node,
		repo: &mockLicenseRepository{
			createFn: func(_ context.Context, lic *License) error {
				calls++
				if calls == 1 {
					return gorm.ErrDuplicatedKey
				}
				return nil
			},
		},
		now: time.Now,
	}

	lic, err := svc.Create(context.Background(), &CreateLicenseRequest{
		UserID: "user_1",
		Tier:   TierPro,
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, lic.LicenseKey, 32)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := &Service{
		node: node,
		repo: &mockLicenseRepository{
			createFn: func(context.Context, *License) error {
				return gorm.ErrDuplicatedKey
			},
		},
		now: time.Now,
	}

	_, err = svc.Create(context.Background(), &CreateLicenseRequest{
		UserID: "user_1",
		Tier:   TierPro,
	})
	require.Error(t, err)
}

func TestUpdateDomainsNormalizesAndInvalidates(t *testing.T) {
	svc, db := newTestService(t)
	inv := &recordingInvalidator{}
	svc.invalidator = inv

	lic := seedLicense(t, db, &License{
		UserID:      "user_1",
		LicenseKey:  "ffff1111eeee2222dddd3333cccc4444",
		Tier:        TierPro,
		Domains:     pq.StringArray{"old.com"},
		DomainLimit: 3,
		Status:      StatusActive,
	})

	updated, err := svc.UpdateDomains(context.Background(), lic.ID, []string{"HTTPS://WWW.New.com", "new.com", "other.com"})
	require.NoError(t, err)
	require.Equal(t, []string{"new.com", "other.com"}, []string(updated.Domains))
	require.Equal(t, []string{lic.ID}, inv.ids)

	var reloaded License
	require.NoError(t, db.First(&reloaded, "id = ?", lic.ID).Error)
	require.Equal(t, []string{"new.com", "other.com"}, []string(reloaded.Domains))
}

func TestUpdateDomainsOverLimit(t *testing.T) {
	svc, db := newTestService(t)
	lic := seedLicense(t, db, &License{
		UserID:      "user_1",
		LicenseKey:  "ffff1111eeee2222dddd3333cccc5555",
		Tier:        TierBasic,
		Domains:     pq.StringArray{"old.com"},
		DomainLimit: 1,
		Status:      StatusActive,
	})

	_, err := svc.UpdateDomains(context.Background(), lic.ID, []string{"a.com", "b.com"})
	require.Error(t, err)
}

func TestUpdateStatus(t *testing.T) {
	svc, db := newTestService(t)
	inv := &recordingInvalidator{}
	svc.invalidator = inv

	lic := seedLicense(t, db, &License{
		UserID:     "user_1",
		LicenseKey: "ffff1111eeee2222dddd3333cccc6666",
		Tier:       TierPro,
		Domains:    pq.StringArray{"example.com"},
		Status:     StatusActive,
	})

	updated, err := svc.UpdateStatus(context.Background(), lic.ID, StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, updated.Status)
	require.Equal(t, []string{lic.ID}, inv.ids)

	result, err := svc.Validate(context.Background(), lic.LicenseKey, "example.com")
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, ReasonInactive, result.Reason)
}

func TestSweepExpired(t *testing.T) {
	svc, db := newTestService(t)
	inv := &recordingInvalidator{}
	svc.invalidator = inv

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	expiring := seedLicense(t, db, &License{
		UserID:     "user_1",
		LicenseKey: "0000111122223333444455556666777a",
		Tier:       TierPro,
		Status:     StatusActive,
		ExpiresAt:  &past,
	})
	current := seedLicense(t, db, &License{
		UserID:     "user_2",
		LicenseKey: "0000111122223333444455556666777b",
		Tier:       TierPro,
		Status:     StatusActive,
		ExpiresAt:  &future,
	})
	perpetual := seedLicense(t, db, &License{
		UserID:     "user_3",
		LicenseKey: "0000111122223333444455556666777c",
		Tier:       TierAgency,
		Status:     StatusActive,
	})

	count, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, []string{expiring.ID}, inv.ids)

	var reloaded License
	require.NoError(t, db.First(&reloaded, "id = ?", expiring.ID).Error)
	require.Equal(t, StatusExpired, reloaded.Status)

	reloaded = License{}
	require.NoError(t, db.First(&reloaded, "id = ?", current.ID).Error)
	require.Equal(t, StatusActive, reloaded.Status)

	reloaded = License{}
	require.NoError(t, db.First(&reloaded, "id = ?", perpetual.ID).Error)
	require.Equal(t, StatusActive, reloaded.Status)
}

func TestFlagsDerivation(t *testing.T) {
	lic := &License{
		Tier:            TierAgency,
		BrandingEnabled: false,
		DomainLimit:     Unlimited,
	}

	flags := lic.Flags()
	require.Equal(t, "agency", flags.Tier)
	require.False(t, flags.BrandingEnabled)
	require.Equal(t, Unlimited, flags.DomainLimit)
	require.Equal(t, Unlimited, flags.WidgetLimit)
	require.True(t, flags.CustomThemes)
	require.True(t, flags.PrioritySupport)
}

func TestPolicyForUnknownTierFallsBack(t *testing.T) {
	require.Equal(t, PolicyFor(TierBasic), PolicyFor(Tier("bogus")))
}
