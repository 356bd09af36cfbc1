package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: Department/Village/GbsGroup must be migrated before the history and
// attendance tables that reference them
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Department{},
		&Village{},
		&GbsGroup{},
		&LeadershipRecord{},
		&MembershipRecord{},
		&DelegationGrant{},
		&AttendanceRecord{},
		&APIKey{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
