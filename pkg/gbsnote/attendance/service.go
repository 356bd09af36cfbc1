package attendance

import (
	"errors"
	"time"

	"github.com/jkwon/gbsnote/pkg/gbsnote/access"
	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/history"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"gorm.io/gorm"
)

var (
	ErrInvalidWeekStart = errors.New("week start must be a Sunday")
	ErrNotGroupMember   = errors.New("member is not currently assigned to the group")
	ErrDuplicateMember  = errors.New("member appears more than once in the batch")
)

// Item is one member's attendance facts within a weekly batch.
type Item struct {
	MemberID uint
	Worship  models.WorshipStatus
	QTCount  int
	Ministry models.MinistryStatus
}

// Service records weekly attendance. A week is always written as a whole:
// submitting replaces everything previously stored for (group, week).
type Service struct {
	db       *gorm.DB
	resolver *access.Resolver
	ledger   *history.Service
}

// NewService creates a new attendance service
func NewService(db *gorm.DB, resolver *access.Resolver, ledger *history.Service) *Service {
	return &Service{db: db, resolver: resolver, ledger: ledger}
}

// SubmitWeek replaces the attendance facts for (groupID, weekStart) with
// items. weekStart must be a Sunday. Access is resolved for callerID as of
// today, and each member must belong to the group as of today — today, not
// weekStart, so backdated weeks are validated against the current roster.
// Delete and insert happen in one transaction; a resubmission with fewer
// items drops the omitted members' attendance for that week.
func (s *Service) SubmitWeek(groupID, callerID uint, weekStart, today time.Time, items []Item) ([]models.AttendanceRecord, error) {
	weekStart = dates.Normalize(weekStart)
	today = dates.Normalize(today)

	if !dates.IsSunday(weekStart) {
		return nil, ErrInvalidWeekStart
	}

	if err := s.resolver.CanManageGroup(callerID, groupID, today); err != nil {
		return nil, err
	}

	active, err := s.ledger.ActiveMembers(groupID, today)
	if err != nil {
		return nil, err
	}
	activeSet := make(map[uint]bool, len(active))
	for _, id := range active {
		activeSet[id] = true
	}

	seen := make(map[uint]bool, len(items))
	records := make([]models.AttendanceRecord, 0, len(items))
	for _, item := range items {
		if !activeSet[item.MemberID] {
			return nil, ErrNotGroupMember
		}
		if seen[item.MemberID] {
			return nil, ErrDuplicateMember
		}
		seen[item.MemberID] = true

		ministry := item.Ministry
		if ministry == "" {
			ministry = models.MinistryNone
		}
		records = append(records, models.AttendanceRecord{
			MemberID:     item.MemberID,
			GbsGroupID:   groupID,
			WeekStart:    weekStart,
			Worship:      item.Worship,
			QTCount:      item.QTCount,
			Ministry:     ministry,
			RecordedByID: callerID,
		})
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Full replace. Unscoped: the unique index spans soft-deleted
		// rows, so the old week must be removed for real.
		if err := tx.Unscoped().
			Where("gbs_group_id = ? AND week_start = ?", groupID, weekStart).
			Delete(&models.AttendanceRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// WeekRecords returns the stored facts for (groupID, weekStart), ordered by
// member. A pure projection with no access gating of its own.
func (s *Service) WeekRecords(groupID uint, weekStart time.Time) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	err := s.db.Preload("Member").
		Where("gbs_group_id = ? AND week_start = ?", groupID, dates.Normalize(weekStart)).
		Order("member_id ASC").Find(&records).Error
	return records, err
}
