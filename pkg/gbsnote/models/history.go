package models

import (
	"time"

	"gorm.io/gorm"
)

// LeadershipRecord is one interval of a user leading a GBS group. A NULL
// EndDate marks the ongoing assignment. Records are closed by setting
// EndDate, never deleted; the table is the audit trail of who led what when.
//
// Invariants (enforced in the history service, inside one transaction):
//   - at most one open record per group
//   - at most one open record per leader, across all groups
type LeadershipRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	GroupID   uint           `gorm:"not null;index" json:"group_id"`
	LeaderID  uint           `gorm:"not null;index" json:"leader_id"`
	StartDate time.Time      `gorm:"type:date;not null" json:"start_date"`
	EndDate   *time.Time     `gorm:"type:date" json:"end_date"`

	// Relationships
	Group  GbsGroup `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"group,omitempty"`
	Leader User     `gorm:"foreignKey:LeaderID" json:"leader,omitempty"`
}

// MembershipRecord is one interval of a user belonging to a GBS group, with
// the same open/closed discipline as LeadershipRecord, scoped per member:
// a user belongs to at most one group at a time.
type MembershipRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	GroupID   uint           `gorm:"not null;index" json:"group_id"`
	MemberID  uint           `gorm:"not null;index" json:"member_id"`
	StartDate time.Time      `gorm:"type:date;not null" json:"start_date"`
	EndDate   *time.Time     `gorm:"type:date" json:"end_date"`

	// Relationships
	Group  GbsGroup `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"group,omitempty"`
	Member User     `gorm:"foreignKey:MemberID" json:"member,omitempty"`
}
