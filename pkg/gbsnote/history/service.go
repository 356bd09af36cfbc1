package history

import (
	"errors"
	"time"

	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"gorm.io/gorm"
)

var (
	// ErrNoActiveLeader means no leadership record covers the requested
	// date. Callers must surface this, not substitute a default leader.
	ErrNoActiveLeader = errors.New("no active leader for group on that date")
	// ErrInvalidStart is returned for a zero start date. Closing the
	// superseded record would need start minus one day, which has no
	// meaning before the first representable date.
	ErrInvalidStart = errors.New("invalid assignment start date")
)

// Service maintains the leadership and membership ledgers: open-ended,
// date-ranged records of who leads or belongs to which GBS group. Records
// are closed by writing EndDate and never deleted.
//
// All reference dates are passed in by the caller; the service never reads
// the clock.
type Service struct {
	db *gorm.DB
}

// NewService creates a new history service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// covering scopes a query to records whose interval includes asOf.
func covering(q *gorm.DB, asOf time.Time) *gorm.DB {
	d := dates.Normalize(asOf)
	return q.Where("start_date <= ? AND (end_date IS NULL OR end_date >= ?)", d, d)
}

// AssignLeader makes leaderID the leader of groupID from start onward.
// Inside one transaction it closes the group's open record and the leader's
// open record on any other group (both with end = start - 1 day), then
// inserts the new open record. Re-assigning the already-current leader is a
// no-op and returns the existing record.
func (s *Service) AssignLeader(groupID, leaderID uint, start time.Time) (*models.LeadershipRecord, error) {
	start = dates.Normalize(start)
	if start.IsZero() || start.Year() <= 1 {
		return nil, ErrInvalidStart
	}

	var rec *models.LeadershipRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		closeDate := start.AddDate(0, 0, -1)

		// The group's open record, if any
		var open models.LeadershipRecord
		err := tx.Where("group_id = ? AND end_date IS NULL", groupID).First(&open).Error
		switch {
		case err == nil:
			if open.LeaderID == leaderID {
				// Already current: do not double-close
				rec = &open
				return nil
			}
			if err := tx.Model(&open).Update("end_date", closeDate).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Nothing to close on the group side
		default:
			return err
		}

		// The leader's open record on any other group: a user leads at
		// most one group at a time
		var other models.LeadershipRecord
		err = tx.Where("leader_id = ? AND group_id <> ? AND end_date IS NULL", leaderID, groupID).
			First(&other).Error
		switch {
		case err == nil:
			if err := tx.Model(&other).Update("end_date", closeDate).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		rec = &models.LeadershipRecord{
			GroupID:   groupID,
			LeaderID:  leaderID,
			StartDate: start,
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AssignMember moves memberID into groupID from start onward, with the same
// two-sided close-then-open rule as AssignLeader scoped per member.
func (s *Service) AssignMember(groupID, memberID uint, start time.Time) (*models.MembershipRecord, error) {
	start = dates.Normalize(start)
	if start.IsZero() || start.Year() <= 1 {
		return nil, ErrInvalidStart
	}

	var rec *models.MembershipRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		closeDate := start.AddDate(0, 0, -1)

		// The member's open record, wherever it is
		var open models.MembershipRecord
		err := tx.Where("member_id = ? AND end_date IS NULL", memberID).First(&open).Error
		switch {
		case err == nil:
			if open.GroupID == groupID {
				rec = &open
				return nil
			}
			if err := tx.Model(&open).Update("end_date", closeDate).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		rec = &models.MembershipRecord{
			GroupID:   groupID,
			MemberID:  memberID,
			StartDate: start,
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CurrentLeader returns the user leading groupID on asOf, or ErrNoActiveLeader
// when no record covers the date.
func (s *Service) CurrentLeader(groupID uint, asOf time.Time) (uint, error) {
	var rec models.LeadershipRecord
	err := covering(s.db.Where("group_id = ?", groupID), asOf).
		Order("start_date DESC").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNoActiveLeader
		}
		return 0, err
	}
	return rec.LeaderID, nil
}

// ActiveMembers returns the IDs of every member assigned to groupID on asOf.
func (s *Service) ActiveMembers(groupID uint, asOf time.Time) ([]uint, error) {
	var ids []uint
	err := covering(s.db.Model(&models.MembershipRecord{}).Where("group_id = ?", groupID), asOf).
		Pluck("member_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ActiveMemberCount returns how many members are assigned to groupID on asOf.
func (s *Service) ActiveMemberCount(groupID uint, asOf time.Time) (int64, error) {
	var count int64
	err := covering(s.db.Model(&models.MembershipRecord{}).Where("group_id = ?", groupID), asOf).
		Count(&count).Error
	return count, err
}

// LeaderHistory returns every leadership interval for a leader, oldest first.
// The history can span groups and villages.
func (s *Service) LeaderHistory(leaderID uint) ([]models.LeadershipRecord, error) {
	var recs []models.LeadershipRecord
	err := s.db.Preload("Group").Where("leader_id = ?", leaderID).
		Order("start_date ASC").Find(&recs).Error
	return recs, err
}

// GroupLeaderHistory returns every leadership interval for a group, oldest first.
func (s *Service) GroupLeaderHistory(groupID uint) ([]models.LeadershipRecord, error) {
	var recs []models.LeadershipRecord
	err := s.db.Preload("Leader").Where("group_id = ?", groupID).
		Order("start_date ASC").Find(&recs).Error
	return recs, err
}

// MemberHistory returns every membership interval for a member, oldest first.
func (s *Service) MemberHistory(memberID uint) ([]models.MembershipRecord, error) {
	var recs []models.MembershipRecord
	err := s.db.Preload("Group").Where("member_id = ?", memberID).
		Order("start_date ASC").Find(&recs).Error
	return recs, err
}
