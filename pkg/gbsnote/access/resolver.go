package access

import (
	"errors"
	"time"

	"github.com/jkwon/gbsnote/pkg/gbsnote/delegation"
	"github.com/jkwon/gbsnote/pkg/gbsnote/history"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"gorm.io/gorm"
)

// ErrAccessDenied is returned whenever no rule permits the caller. It is
// distinct from a not-found error so handlers can answer 403 vs 404.
var ErrAccessDenied = errors.New("access denied")

// Resolver decides whether a caller may read or write a group's data on a
// given date, combining role, village ownership, the leadership ledger and
// the delegation overlay.
type Resolver struct {
	db         *gorm.DB
	ledger     *history.Service
	delegation *delegation.Service
}

// NewResolver creates a new access resolver
func NewResolver(db *gorm.DB, ledger *history.Service, delegation *delegation.Service) *Resolver {
	return &Resolver{db: db, ledger: ledger, delegation: delegation}
}

// groupRule is one predicate in the ordered chain. The first rule that
// allows wins; order is the tie-break policy and must not be rearranged.
type groupRule struct {
	name  string
	allow func(caller models.User, group models.GbsGroup, asOf time.Time) (bool, error)
}

func (r *Resolver) groupRules() []groupRule {
	return []groupRule{
		{
			name: "staff",
			allow: func(caller models.User, _ models.GbsGroup, _ time.Time) (bool, error) {
				return caller.Role == models.RoleAdmin || caller.Role == models.RoleMinister, nil
			},
		},
		{
			name: "village-owner",
			allow: func(caller models.User, group models.GbsGroup, _ time.Time) (bool, error) {
				if caller.Role != models.RoleVillageLeader || caller.OwnedVillageID == nil {
					return false, nil
				}
				return *caller.OwnedVillageID == group.VillageID, nil
			},
		},
		{
			name: "leader-or-delegate",
			allow: func(caller models.User, group models.GbsGroup, asOf time.Time) (bool, error) {
				if caller.Role != models.RoleLeader {
					return false, nil
				}
				current, err := r.ledger.CurrentLeader(group.ID, asOf)
				if err != nil && !errors.Is(err, history.ErrNoActiveLeader) {
					return false, err
				}
				if err == nil && current == caller.ID {
					return true, nil
				}
				delegatee, ok, err := r.delegation.ActiveDelegatee(group.ID, asOf)
				if err != nil {
					return false, err
				}
				return ok && delegatee == caller.ID, nil
			},
		},
	}
}

// CanManageGroup reports whether callerID may see or write groupID's data as
// of asOf. Returns nil when permitted, ErrAccessDenied when no rule matches,
// or gorm.ErrRecordNotFound when the caller or group does not exist.
func (r *Resolver) CanManageGroup(callerID, groupID uint, asOf time.Time) error {
	var caller models.User
	if err := r.db.First(&caller, callerID).Error; err != nil {
		return err
	}
	var group models.GbsGroup
	if err := r.db.First(&group, groupID).Error; err != nil {
		return err
	}

	for _, rule := range r.groupRules() {
		ok, err := rule.allow(caller, group, asOf)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrAccessDenied
}

// CanViewLeaderHistory reports whether callerID may view targetLeaderID's
// full leadership history. This check is deliberately coarser than
// CanManageGroup: history spans groups and villages, so a village leader who
// currently owns any village may view any leader's history. Self, admin and
// minister are always permitted.
func (r *Resolver) CanViewLeaderHistory(callerID, targetLeaderID uint) error {
	if callerID == targetLeaderID {
		return nil
	}

	var caller models.User
	if err := r.db.First(&caller, callerID).Error; err != nil {
		return err
	}

	switch caller.Role {
	case models.RoleAdmin, models.RoleMinister:
		return nil
	case models.RoleVillageLeader:
		if caller.OwnedVillageID != nil {
			return nil
		}
	}
	return ErrAccessDenied
}
