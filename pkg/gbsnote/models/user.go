package models

import (
	"time"

	"gorm.io/gorm"
)

// Role represents a user's role in the department hierarchy
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleMinister      Role = "minister"
	RoleVillageLeader Role = "village_leader"
	RoleLeader        Role = "leader"
	RoleMember        Role = "member"
)

// User represents a user in the system
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `json:"-"` // Empty for imported members who never log in
	Name         string         `gorm:"not null" json:"name"`
	Role         Role           `gorm:"type:varchar(20);default:'member'" json:"role"`

	// OwnedVillageID is set only for village leaders and identifies the
	// village whose groups they oversee.
	OwnedVillageID *uint `json:"owned_village_id,omitempty"`

	// Relationships
	OwnedVillage *Village `gorm:"foreignKey:OwnedVillageID" json:"owned_village,omitempty"`
	APIKeys      []APIKey `gorm:"foreignKey:UserID" json:"api_keys,omitempty"`
}
