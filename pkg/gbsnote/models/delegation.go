package models

import (
	"time"

	"gorm.io/gorm"
)

// DelegationGrant gives a second user temporary leader-equivalent rights
// over one group. Unlike the history records both bounds are required, and
// grants never touch the leadership ledger: the delegator stays the leader
// of record for the whole grant window.
type DelegationGrant struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	GbsGroupID  uint           `gorm:"not null;index" json:"gbs_group_id"`
	DelegatorID uint           `gorm:"not null;index" json:"delegator_id"`
	DelegateeID uint           `gorm:"not null;index" json:"delegatee_id"`
	StartDate   time.Time      `gorm:"type:date;not null" json:"start_date"`
	EndDate     time.Time      `gorm:"type:date;not null" json:"end_date"`

	// Relationships
	GbsGroup  GbsGroup `gorm:"foreignKey:GbsGroupID;constraint:OnDelete:CASCADE" json:"gbs_group,omitempty"`
	Delegator User     `gorm:"foreignKey:DelegatorID" json:"delegator,omitempty"`
	Delegatee User     `gorm:"foreignKey:DelegateeID" json:"delegatee,omitempty"`
}
