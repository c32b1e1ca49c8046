package entity

import "time"

// Visibility scopes for a monitored connection.
const (
	ScopeTeamOnly = "TEAM_ONLY"
	ScopeOrgWide  = "ORG_WIDE"
	ScopeUserOnly = "USER_ONLY"
)

// DatabaseConnection describes one monitored target database. The
// pipeline treats it as read-only reference data owned by the identity
// system; only the visibility gate and the collectors consume it.
type DatabaseConnection struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string `gorm:"size:255;not null" json:"name" validate:"required"`
	DBType       string `gorm:"size:16;not null" json:"db_type" validate:"required,oneof=mysql postgres"`
	Host         string `gorm:"size:255;not null" json:"host" validate:"required"`
	Port         int    `json:"port" validate:"required,min=1,max=65535"`
	Username     string `gorm:"size:255" json:"username"`
	Password     string `gorm:"size:255" json:"-"`
	DatabaseName string `gorm:"size:255" json:"database_name"`

	VisibilityScope string `gorm:"size:16;not null;default:TEAM_ONLY" json:"visibility_scope" validate:"oneof=TEAM_ONLY ORG_WIDE USER_ONLY"`
	OwnerUserID     int64  `gorm:"index" json:"owner_user_id"`
	TeamID          int64  `gorm:"index" json:"team_id"`
	OrganizationID  int64  `gorm:"index" json:"organization_id"`
	AgentToken      string `gorm:"size:64" json:"-"`

	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DatabaseConnection) TableName() string {
	return "database_connections"
}

// TeamMember and OrgMember mirror the identity store's membership sets.
// They are written by the external tenant system and only read here.
type TeamMember struct {
	UserID int64 `gorm:"primaryKey" json:"user_id"`
	TeamID int64 `gorm:"primaryKey" json:"team_id"`
}

func (TeamMember) TableName() string {
	return "team_members"
}

type OrgMember struct {
	UserID         int64 `gorm:"primaryKey" json:"user_id"`
	OrganizationID int64 `gorm:"primaryKey" json:"organization_id"`
}

func (OrgMember) TableName() string {
	return "org_members"
}
