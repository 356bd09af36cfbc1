package delegation

import (
	"errors"
	"time"

	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/history"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"gorm.io/gorm"
)

var (
	ErrInvalidRange          = errors.New("delegation start date is after its end date")
	ErrNotFutureStart        = errors.New("delegation must start strictly after today")
	ErrOverlappingDelegation = errors.New("an active delegation already covers part of that range")
	ErrNotCurrentLeader      = errors.New("delegator is not the group's current leader")
)

// Service manages time-boxed leader delegations. A grant lends
// leader-equivalent rights over one group to a second user without touching
// the leadership ledger.
type Service struct {
	db      *gorm.DB
	history *history.Service
}

// NewService creates a new delegation service
func NewService(db *gorm.DB, history *history.Service) *Service {
	return &Service{db: db, history: history}
}

// Grant creates a delegation of groupID's leadership from delegatorID to
// delegateeID over [start, end]. today is the caller-supplied reference
// date: start must be strictly after it, and the delegator must be the
// group's current leader as of it. At most one grant may cover any given
// date for a group.
func (s *Service) Grant(groupID, delegatorID, delegateeID uint, start, end, today time.Time) (*models.DelegationGrant, error) {
	start = dates.Normalize(start)
	end = dates.Normalize(end)
	today = dates.Normalize(today)

	if start.After(end) {
		return nil, ErrInvalidRange
	}
	if !start.After(today) {
		return nil, ErrNotFutureStart
	}

	current, err := s.history.CurrentLeader(groupID, today)
	if err != nil {
		if errors.Is(err, history.ErrNoActiveLeader) {
			return nil, ErrNotCurrentLeader
		}
		return nil, err
	}
	if current != delegatorID {
		return nil, ErrNotCurrentLeader
	}

	var grant *models.DelegationGrant
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Ranges overlap when neither ends before the other starts
		var count int64
		err := tx.Model(&models.DelegationGrant{}).
			Where("gbs_group_id = ? AND start_date <= ? AND end_date >= ?", groupID, end, start).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrOverlappingDelegation
		}

		grant = &models.DelegationGrant{
			GbsGroupID:  groupID,
			DelegatorID: delegatorID,
			DelegateeID: delegateeID,
			StartDate:   start,
			EndDate:     end,
		}
		return tx.Create(grant).Error
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// ActiveDelegatee returns the user holding a delegation over groupID on
// asOf. The bool is false when no grant covers the date.
func (s *Service) ActiveDelegatee(groupID uint, asOf time.Time) (uint, bool, error) {
	d := dates.Normalize(asOf)
	var grant models.DelegationGrant
	err := s.db.Where("gbs_group_id = ? AND start_date <= ? AND end_date >= ?", groupID, d, d).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return grant.DelegateeID, true, nil
}

// ActiveGrantsFor returns every grant that makes delegateeID an acting
// leader on asOf, across all groups.
func (s *Service) ActiveGrantsFor(delegateeID uint, asOf time.Time) ([]models.DelegationGrant, error) {
	d := dates.Normalize(asOf)
	var grants []models.DelegationGrant
	err := s.db.Preload("GbsGroup").
		Where("delegatee_id = ? AND start_date <= ? AND end_date >= ?", delegateeID, d, d).
		Order("start_date ASC").Find(&grants).Error
	return grants, err
}

// GrantsForGroup returns every grant ever issued for a group, oldest first.
func (s *Service) GrantsForGroup(groupID uint) ([]models.DelegationGrant, error) {
	var grants []models.DelegationGrant
	err := s.db.Where("gbs_group_id = ?", groupID).
		Order("start_date ASC").Find(&grants).Error
	return grants, err
}
