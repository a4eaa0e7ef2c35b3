package widget

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusDeleted Status = "deleted"
)

func (s Status) String() string {
	switch s {
	case StatusActive, StatusPaused, StatusDeleted:
		return string(s)
	default:
		return ""
	}
}

// Widget is a deployed embed instance. Rows are soft-deleted only: the status
// flips to deleted and the row stays, so the quota count always excludes
// deleted rows explicitly.
type Widget struct {
	ID         string         `gorm:"column:id;primaryKey"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at"`
	LicenseID  string         `gorm:"column:license_id;index"`
	WidgetKey  string         `gorm:"column:widget_key;uniqueIndex"`
	Name       string         `gorm:"column:name"`
	Status     Status         `gorm:"column:status"`
	Config     datatypes.JSON `gorm:"column:config"`
	DeployedAt *time.Time     `gorm:"column:deployed_at"`
	Version    int64          `gorm:"column:version"`
}

func (Widget) TableName() string {
	return "widgets"
}

type Response struct {
	ID         string         `json:"widget_id"`
	LicenseID  string         `json:"license_id"`
	WidgetKey  string         `json:"widget_key"`
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	Config     datatypes.JSON `json:"config,omitempty"`
	DeployedAt *time.Time     `json:"deployed_at,omitempty"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (m *Widget) ToResponse() *Response {
	return &Response{
		ID:         m.ID,
		LicenseID:  m.LicenseID,
		WidgetKey:  m.WidgetKey,
		Name:       m.Name,
		Status:     string(m.Status),
		Config:     m.Config,
		DeployedAt: m.DeployedAt,
		Version:    m.Version,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
