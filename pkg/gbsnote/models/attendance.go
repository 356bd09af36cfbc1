package models

import (
	"time"

	"gorm.io/gorm"
)

// WorshipStatus records whether the member attended Sunday worship
type WorshipStatus string

const (
	WorshipAttended WorshipStatus = "attended"
	WorshipOnline   WorshipStatus = "online"
	WorshipAbsent   WorshipStatus = "absent"
)

// MinistryStatus records whether the member served in a ministry that week
type MinistryStatus string

const (
	MinistryServing MinistryStatus = "serving"
	MinistryNone    MinistryStatus = "none"
)

// AttendanceRecord is one member's attendance facts for one reporting week.
// WeekStart is always the Sunday anchoring the week. A week is submitted as
// a batch: resubmission deletes every row for (group, week) and inserts the
// new set, so the unique index never sees a duplicate.
type AttendanceRecord struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	MemberID     uint           `gorm:"not null;uniqueIndex:idx_member_group_week" json:"member_id"`
	GbsGroupID   uint           `gorm:"not null;uniqueIndex:idx_member_group_week" json:"gbs_group_id"`
	WeekStart    time.Time      `gorm:"type:date;not null;uniqueIndex:idx_member_group_week" json:"week_start"`
	Worship      WorshipStatus  `gorm:"type:varchar(20);not null" json:"worship"`
	QTCount      int            `gorm:"default:0" json:"qt_count"`
	Ministry     MinistryStatus `gorm:"type:varchar(20);default:'none'" json:"ministry"`
	RecordedByID uint           `gorm:"not null" json:"recorded_by_id"`

	// Relationships
	Member     User     `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	GbsGroup   GbsGroup `gorm:"foreignKey:GbsGroupID;constraint:OnDelete:CASCADE" json:"gbs_group,omitempty"`
	RecordedBy User     `gorm:"foreignKey:RecordedByID" json:"recorded_by,omitempty"`
}
