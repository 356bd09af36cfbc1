package access

import (
	"errors"
	"testing"
	"time"

	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/delegation"
	"github.com/jkwon/gbsnote/pkg/gbsnote/history"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	resolver *Resolver
	ledger   *history.Service
	grants   *delegation.Service

	village      models.Village
	otherVillage models.Village
	group        models.GbsGroup

	admin        models.User
	minister     models.User
	villageOwner models.User
	otherOwner   models.User
	leader       models.User
	outsider     models.User
}

func setup(t *testing.T) fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)

	dept := models.Department{Name: "Dept"}
	db.Create(&dept)
	village := models.Village{DepartmentID: dept.ID, Name: "V1"}
	db.Create(&village)
	otherVillage := models.Village{DepartmentID: dept.ID, Name: "V2"}
	db.Create(&otherVillage)
	group := models.GbsGroup{
		VillageID: village.ID,
		Name:      "G1",
		TermStart: date(t, "2024-01-01"),
		TermEnd:   date(t, "2024-12-31"),
	}
	db.Create(&group)

	mkUser := func(email string, role models.Role, owned *uint) models.User {
		u := models.User{Email: email, Name: email, Role: role, OwnedVillageID: owned}
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("Failed to create %s: %v", email, err)
		}
		return u
	}

	f := fixture{db: db}
	f.village = village
	f.otherVillage = otherVillage
	f.group = group
	f.admin = mkUser("admin@example.com", models.RoleAdmin, nil)
	f.minister = mkUser("minister@example.com", models.RoleMinister, nil)
	f.villageOwner = mkUser("v1@example.com", models.RoleVillageLeader, &village.ID)
	f.otherOwner = mkUser("v2@example.com", models.RoleVillageLeader, &otherVillage.ID)
	f.leader = mkUser("leader@example.com", models.RoleLeader, nil)
	f.outsider = mkUser("outsider@example.com", models.RoleLeader, nil)

	f.ledger = history.NewService(db)
	f.grants = delegation.NewService(db, f.ledger)
	f.resolver = NewResolver(db, f.ledger, f.grants)

	if _, err := f.ledger.AssignLeader(group.ID, f.leader.ID, date(t, "2024-01-01")); err != nil {
		t.Fatalf("AssignLeader failed: %v", err)
	}

	return f
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := dates.Parse(s)
	if err != nil {
		t.Fatalf("Bad test date %q: %v", s, err)
	}
	return d
}

func TestStaffAlwaysPermitted(t *testing.T) {
	f := setup(t)
	asOf := date(t, "2024-03-01")

	if err := f.resolver.CanManageGroup(f.admin.ID, f.group.ID, asOf); err != nil {
		t.Errorf("Admin should be permitted, got %v", err)
	}
	if err := f.resolver.CanManageGroup(f.minister.ID, f.group.ID, asOf); err != nil {
		t.Errorf("Minister should be permitted, got %v", err)
	}
}

func TestVillageLeaderScopedToOwnVillage(t *testing.T) {
	f := setup(t)
	asOf := date(t, "2024-03-01")

	if err := f.resolver.CanManageGroup(f.villageOwner.ID, f.group.ID, asOf); err != nil {
		t.Errorf("Owner of the group's village should be permitted, got %v", err)
	}
	if err := f.resolver.CanManageGroup(f.otherOwner.ID, f.group.ID, asOf); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Owner of another village should be denied, got %v", err)
	}
}

func TestCurrentLeaderPermitted(t *testing.T) {
	f := setup(t)

	if err := f.resolver.CanManageGroup(f.leader.ID, f.group.ID, date(t, "2024-03-01")); err != nil {
		t.Errorf("Current leader should be permitted, got %v", err)
	}
	if err := f.resolver.CanManageGroup(f.outsider.ID, f.group.ID, date(t, "2024-03-01")); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Leader with no ledger match should be denied, got %v", err)
	}
}

func TestFormerLeaderDeniedAfterSuccession(t *testing.T) {
	f := setup(t)

	successor := models.User{Email: "successor@example.com", Name: "Successor", Role: models.RoleLeader}
	f.db.Create(&successor)
	if _, err := f.ledger.AssignLeader(f.group.ID, successor.ID, date(t, "2024-06-02")); err != nil {
		t.Fatalf("AssignLeader failed: %v", err)
	}

	// Old leader keeps access for dates inside their interval
	if err := f.resolver.CanManageGroup(f.leader.ID, f.group.ID, date(t, "2024-05-30")); err != nil {
		t.Errorf("Former leader should be permitted for dates they led, got %v", err)
	}
	// but not afterwards
	if err := f.resolver.CanManageGroup(f.leader.ID, f.group.ID, date(t, "2024-06-10")); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Former leader should be denied after succession, got %v", err)
	}
	if err := f.resolver.CanManageGroup(successor.ID, f.group.ID, date(t, "2024-06-10")); err != nil {
		t.Errorf("Successor should be permitted, got %v", err)
	}
}

func TestDelegatePermittedDuringGrant(t *testing.T) {
	f := setup(t)

	if _, err := f.grants.Grant(f.group.ID, f.leader.ID, f.outsider.ID,
		date(t, "2024-03-10"), date(t, "2024-03-24"), date(t, "2024-03-01")); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	if err := f.resolver.CanManageGroup(f.outsider.ID, f.group.ID, date(t, "2024-03-15")); err != nil {
		t.Errorf("Delegate should be permitted inside the grant window, got %v", err)
	}
	if err := f.resolver.CanManageGroup(f.outsider.ID, f.group.ID, date(t, "2024-04-01")); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Delegate should be denied outside the grant window, got %v", err)
	}

	// The delegator keeps their own access throughout
	if err := f.resolver.CanManageGroup(f.leader.ID, f.group.ID, date(t, "2024-03-15")); err != nil {
		t.Errorf("Delegator should remain permitted, got %v", err)
	}
}

func TestUnknownCallerOrGroup(t *testing.T) {
	f := setup(t)
	asOf := date(t, "2024-03-01")

	if err := f.resolver.CanManageGroup(9999, f.group.ID, asOf); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected record-not-found for unknown caller, got %v", err)
	}
	if err := f.resolver.CanManageGroup(f.admin.ID, 9999, asOf); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Expected record-not-found for unknown group, got %v", err)
	}
}

func TestCanViewLeaderHistory(t *testing.T) {
	f := setup(t)

	// Self is always permitted
	if err := f.resolver.CanViewLeaderHistory(f.leader.ID, f.leader.ID); err != nil {
		t.Errorf("Self should be permitted, got %v", err)
	}
	if err := f.resolver.CanViewLeaderHistory(f.admin.ID, f.leader.ID); err != nil {
		t.Errorf("Admin should be permitted, got %v", err)
	}
	if err := f.resolver.CanViewLeaderHistory(f.minister.ID, f.leader.ID); err != nil {
		t.Errorf("Minister should be permitted, got %v", err)
	}

	// Any current village owner may view any leader's history, even one
	// whose groups are all in other villages. Coarser than the group
	// gate on purpose: history spans villages.
	if err := f.resolver.CanViewLeaderHistory(f.otherOwner.ID, f.leader.ID); err != nil {
		t.Errorf("Village owner should be permitted regardless of village, got %v", err)
	}

	// A village leader with no owned village is denied
	noVillage := models.User{Email: "nv@example.com", Name: "NV", Role: models.RoleVillageLeader}
	f.db.Create(&noVillage)
	if err := f.resolver.CanViewLeaderHistory(noVillage.ID, f.leader.ID); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Village leader without a village should be denied, got %v", err)
	}

	if err := f.resolver.CanViewLeaderHistory(f.outsider.ID, f.leader.ID); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("Unrelated leader should be denied, got %v", err)
	}
}
