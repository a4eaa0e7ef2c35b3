package license

import (
	"time"

	"github.com/lib/pq"
)

type Tier string

const (
	TierBasic  Tier = "basic"
	TierPro    Tier = "pro"
	TierAgency Tier = "agency"
)

func (t Tier) String() string {
	switch t {
	case TierBasic, TierPro, TierAgency:
		return string(t)
	default:
		return ""
	}
}

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	switch s {
	case StatusActive, StatusExpired, StatusCancelled:
		return string(s)
	default:
		return ""
	}
}

type License struct {
	ID              string         `gorm:"column:id;primaryKey"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at"`
	UserID          string         `gorm:"column:user_id;index"`
	LicenseKey      string         `gorm:"column:license_key;uniqueIndex"`
	Tier            Tier           `gorm:"column:tier"`
	Domains         pq.StringArray `gorm:"column:domains;type:text[]"`
	DomainLimit     int            `gorm:"column:domain_limit"`
	BrandingEnabled bool           `gorm:"column:branding_enabled"`
	Status          Status         `gorm:"column:status"`
	ExpiresAt       *time.Time     `gorm:"column:expires_at"`
}

func (License) TableName() string {
	return "licenses"
}

// EntitlementFlags is the projection of a license that gets baked into served
// widget bundles. Derived on demand, never persisted.
type EntitlementFlags struct {
	Tier            string `json:"tier"`
	BrandingEnabled bool   `json:"brandingEnabled"`
	DomainLimit     int    `json:"domainLimit"`
	WidgetLimit     int    `json:"widgetLimit"`
	CustomThemes    bool   `json:"customThemes"`
	APIAccess       bool   `json:"apiAccess"`
	PrioritySupport bool   `json:"prioritySupport"`
}

// Flags derives the entitlement flags from the license row and its tier policy.
func (m *License) Flags() EntitlementFlags {
	policy := PolicyFor(m.Tier)
	return EntitlementFlags{
		Tier:            string(m.Tier),
		BrandingEnabled: m.BrandingEnabled,
		DomainLimit:     m.DomainLimit,
		WidgetLimit:     policy.WidgetLimit,
		CustomThemes:    policy.CustomThemes,
		APIAccess:       policy.APIAccess,
		PrioritySupport: policy.PrioritySupport,
	}
}

// Response is the JSON shape returned by the admin API. The license key is
// only present on issuance responses.
type Response struct {
	ID              string     `json:"license_id"`
	UserID          string     `json:"user_id"`
	LicenseKey      string     `json:"license_key,omitempty"`
	Tier            string     `json:"tier"`
	Domains         []string   `json:"domains"`
	DomainLimit     int        `json:"domain_limit"`
	BrandingEnabled bool       `json:"branding_enabled"`
	Status          string     `json:"status"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (m *License) ToResponse(withKey bool) *Response {
	resp := &Response{
		ID:              m.ID,
		UserID:          m.UserID,
		Tier:            string(m.Tier),
		Domains:         m.Domains,
		DomainLimit:     m.DomainLimit,
		BrandingEnabled: m.BrandingEnabled,
		Status:          string(m.Status),
		ExpiresAt:       m.ExpiresAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if withKey {
		resp.LicenseKey = m.LicenseKey
	}
	return resp
}
