package gorm

import (
	"time"
)

type Invitation struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Code        string    `gorm:"column:code;uniqueIndex;size:64;not null"`
	Pin         string    `gorm:"column:pin;size:8;not null"`
	InvitedName string    `gorm:"column:invited_name;not null"`
	Status      string    `gorm:"column:status;size:16;not null;default:pending;index"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Invitation) TableName() string {
	return "invitations"
}

type Onboarding struct {
	ID             uint           `gorm:"column:id;primaryKey;autoIncrement"`
	InvitationCode string         `gorm:"column:invitation_code;uniqueIndex;size:64;not null"`
	VoiceConsent   bool           `gorm:"column:voice_consent;not null;default:false"`
	Responses      map[string]any `gorm:"column:responses;serializer:json"`
	SubmittedAt    time.Time      `gorm:"column:submitted_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (Onboarding) TableName() string {
	return "onboarding"
}

// Membership carries a partial unique index so at most one active membership
// exists per invitation, whatever the caller does.
type Membership struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement"`
	InvitationCode string    `gorm:"column:invitation_code;size:64;not null;uniqueIndex:idx_memberships_active_invitation,where:active = true"`
	MembershipCode string    `gorm:"column:membership_code;size:32;not null;uniqueIndex"`
	MembershipKey  string    `gorm:"column:membership_key;size:64;not null;uniqueIndex"`
	IssuedTo       string    `gorm:"column:issued_to"`
	Active         bool      `gorm:"column:active;not null;index"`
	IssuedAt       time.Time `gorm:"column:issued_at"`
}

// TableName specifies the table name for GORM
func (Membership) TableName() string {
	return "memberships"
}

// AllModels lists every table the relational store manages.
func AllModels() []any {
	return []any{&Invitation{}, &Onboarding{}, &Membership{}}
}
