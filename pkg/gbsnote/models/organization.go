package models

import (
	"time"

	"gorm.io/gorm"
)

// Department is the top of the organization tree (e.g. a university ministry
// department). Departments contain villages, villages contain GBS groups.
type Department struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"uniqueIndex;not null" json:"name"`

	// Relationships
	Villages []Village `gorm:"foreignKey:DepartmentID" json:"villages,omitempty"`
}

// Village is the middle tier of the tree, overseen by a village leader.
type Village struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	DepartmentID uint           `gorm:"not null;index" json:"department_id"`
	Name         string         `gorm:"not null" json:"name"`

	// Relationships
	Department Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Groups     []GbsGroup `gorm:"foreignKey:VillageID" json:"groups,omitempty"`
}

// GbsGroup is the smallest unit of the tree. The term window is the group's
// own lifecycle and is independent of who leads or belongs to it.
type GbsGroup struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	VillageID uint           `gorm:"not null;index" json:"village_id"`
	Name      string         `gorm:"not null" json:"name"`
	TermStart time.Time      `gorm:"type:date;not null" json:"term_start"`
	TermEnd   time.Time      `gorm:"type:date;not null" json:"term_end"`

	// Relationships
	Village     Village            `gorm:"foreignKey:VillageID" json:"village,omitempty"`
	Leaderships []LeadershipRecord `gorm:"foreignKey:GroupID" json:"leaderships,omitempty"`
	Memberships []MembershipRecord `gorm:"foreignKey:GroupID" json:"memberships,omitempty"`
}
