package groups

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jkwon/gbsnote/pkg/gbsnote/access"
	"github.com/jkwon/gbsnote/pkg/gbsnote/auth"
	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/delegation"
	"github.com/jkwon/gbsnote/pkg/gbsnote/history"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	router *gin.Engine
	ledger *history.Service

	village models.Village
	group   models.GbsGroup

	admin  models.User
	owner  models.User
	leader models.User
	member models.User
}

func setup(t *testing.T) fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)

	f := fixture{db: db}

	dept := models.Department{Name: "Youth"}
	db.Create(&dept)
	f.village = models.Village{DepartmentID: dept.ID, Name: "V1"}
	db.Create(&f.village)
	f.group = models.GbsGroup{VillageID: f.village.ID, Name: "G1",
		TermStart: date(t, "2024-01-01"), TermEnd: date(t, "2024-12-31")}
	db.Create(&f.group)

	f.admin = mkUser(db, "admin@example.com", models.RoleAdmin, nil)
	f.owner = mkUser(db, "owner@example.com", models.RoleVillageLeader, &f.village.ID)
	f.leader = mkUser(db, "leader@example.com", models.RoleLeader, nil)
	f.member = mkUser(db, "member@example.com", models.RoleMember, nil)

	f.ledger = history.NewService(db)
	grants := delegation.NewService(db, f.ledger)
	resolver := access.NewResolver(db, f.ledger, grants)

	gin.SetMode(gin.TestMode)
	f.router = gin.New()
	handler := NewHandler(db, f.ledger, grants, resolver)
	api := f.router.Group("", auth.AuthMiddleware())
	handler.RegisterRoutes(api)

	return f
}

func mkUser(db *gorm.DB, email string, role models.Role, villageID *uint) models.User {
	u := models.User{Email: email, Name: email, Role: role, OwnedVillageID: villageID}
	db.Create(&u)
	return u
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := dates.Parse(s)
	if err != nil {
		t.Fatalf("Bad test date %q: %v", s, err)
	}
	return d
}

func (f fixture) do(t *testing.T, user models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.Role))
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func (f fixture) groupPath(suffix string) string {
	return fmt.Sprintf("/groups/%d/%s", f.group.ID, suffix)
}

func TestAssignLeaderEndpoint(t *testing.T) {
	f := setup(t)

	resp := f.do(t, f.admin, "POST", f.groupPath("leader"),
		AssignLeaderRequest{LeaderID: f.leader.ID, StartDate: "2024-01-01"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var rec IntervalResponse
	json.Unmarshal(resp.Body.Bytes(), &rec)
	if rec.UserID != f.leader.ID || rec.StartDate != "2024-01-01" || rec.EndDate != nil {
		t.Errorf("Unexpected record: %+v", rec)
	}

	// Read it back
	resp = f.do(t, f.admin, "GET", f.groupPath("leader?date=2024-06-01"), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var current map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &current)
	if uint(current["leader_id"].(float64)) != f.leader.ID {
		t.Errorf("Expected leader %d, got %v", f.leader.ID, current["leader_id"])
	}
}

func TestAssignLeaderDeniedForGroupLeader(t *testing.T) {
	f := setup(t)
	f.ledger.AssignLeader(f.group.ID, f.leader.ID, date(t, "2024-01-01"))

	// Leaders cannot rewrite their own ledger
	resp := f.do(t, f.leader, "POST", f.groupPath("leader"),
		AssignLeaderRequest{LeaderID: f.member.ID, StartDate: "2024-06-01"})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for group leader, got %d", resp.Code)
	}
}

func TestAssignLeaderByVillageOwner(t *testing.T) {
	f := setup(t)

	resp := f.do(t, f.owner, "POST", f.groupPath("leader"),
		AssignLeaderRequest{LeaderID: f.leader.ID, StartDate: "2024-01-01"})
	if resp.Code != http.StatusCreated {
		t.Errorf("Expected 201 for owning village leader, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAssignLeaderUnknownUser(t *testing.T) {
	f := setup(t)

	resp := f.do(t, f.admin, "POST", f.groupPath("leader"),
		AssignLeaderRequest{LeaderID: 999, StartDate: "2024-01-01"})
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown leader, got %d", resp.Code)
	}
}

func TestCurrentLeaderBeforeAnyRecord(t *testing.T) {
	f := setup(t)
	f.ledger.AssignLeader(f.group.ID, f.leader.ID, date(t, "2024-06-01"))

	resp := f.do(t, f.admin, "GET", f.groupPath("leader?date=2024-01-01"), nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before first record, got %d", resp.Code)
	}
}

func TestAssignAndListMembers(t *testing.T) {
	f := setup(t)
	f.ledger.AssignLeader(f.group.ID, f.leader.ID, date(t, "2024-01-01"))

	resp := f.do(t, f.admin, "POST", f.groupPath("members"),
		AssignMemberRequest{MemberID: f.member.ID, StartDate: "2024-01-01"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	// The group's leader can read the roster
	resp = f.do(t, f.leader, "GET", f.groupPath("members"), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var members []map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &members)
	if len(members) != 1 {
		t.Errorf("Expected 1 member, got %d", len(members))
	}

	// A plain member cannot
	resp = f.do(t, f.member, "GET", f.groupPath("members"), nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for plain member, got %d", resp.Code)
	}
}

func TestGroupLeaderHistoryEndpoint(t *testing.T) {
	f := setup(t)
	second := mkUser(f.db, "second@example.com", models.RoleLeader, nil)
	f.ledger.AssignLeader(f.group.ID, f.leader.ID, date(t, "2024-01-01"))
	f.ledger.AssignLeader(f.group.ID, second.ID, date(t, "2024-06-01"))

	resp := f.do(t, f.owner, "GET", f.groupPath("leaders"), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var recs []IntervalResponse
	json.Unmarshal(resp.Body.Bytes(), &recs)
	if len(recs) != 2 {
		t.Fatalf("Expected 2 intervals, got %d", len(recs))
	}
	if recs[0].EndDate == nil || *recs[0].EndDate != "2024-05-31" {
		t.Errorf("Expected first interval closed at 2024-05-31, got %v", recs[0].EndDate)
	}
	if recs[1].EndDate != nil {
		t.Errorf("Expected second interval open, got %v", *recs[1].EndDate)
	}
}

func TestLeaderHistoryVisibility(t *testing.T) {
	f := setup(t)
	f.ledger.AssignLeader(f.group.ID, f.leader.ID, date(t, "2024-01-01"))

	path := fmt.Sprintf("/leaders/%d/history", f.leader.ID)

	// Self, staff and any owning village leader may view
	for _, u := range []models.User{f.leader, f.admin, f.owner} {
		if resp := f.do(t, u, "GET", path, nil); resp.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", u.Email, resp.Code)
		}
	}

	if resp := f.do(t, f.member, "GET", path, nil); resp.Code != http.StatusForbidden {
		t.Errorf("Plain member: expected 403, got %d", resp.Code)
	}
}

func TestMemberHistoryVisibility(t *testing.T) {
	f := setup(t)
	f.ledger.AssignMember(f.group.ID, f.member.ID, date(t, "2024-01-01"))

	path := fmt.Sprintf("/members/%d/history", f.member.ID)

	resp := f.do(t, f.member, "GET", path, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Self: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var recs []IntervalResponse
	json.Unmarshal(resp.Body.Bytes(), &recs)
	if len(recs) != 1 {
		t.Errorf("Expected 1 interval, got %d", len(recs))
	}

	if resp := f.do(t, f.leader, "GET", path, nil); resp.Code != http.StatusForbidden {
		t.Errorf("Leader viewing another's member history: expected 403, got %d", resp.Code)
	}
}

func TestGrantDelegationEndpoint(t *testing.T) {
	f := setup(t)
	f.ledger.AssignLeader(f.group.ID, f.leader.ID, date(t, "2024-01-01"))
	delegatee := mkUser(f.db, "delegatee@example.com", models.RoleLeader, nil)

	// Strictly future window relative to the real clock
	start := dates.Format(dates.Normalize(time.Now()).AddDate(0, 0, 7))
	end := dates.Format(dates.Normalize(time.Now()).AddDate(0, 0, 14))

	resp := f.do(t, f.leader, "POST", f.groupPath("delegations"),
		GrantDelegationRequest{DelegateeID: delegatee.ID, StartDate: start, EndDate: end})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	// Same window again conflicts
	resp = f.do(t, f.leader, "POST", f.groupPath("delegations"),
		GrantDelegationRequest{DelegateeID: delegatee.ID, StartDate: start, EndDate: end})
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected 409 for overlapping grant, got %d", resp.Code)
	}

	// Non-leaders cannot delegate
	resp = f.do(t, f.member, "POST", f.groupPath("delegations"),
		GrantDelegationRequest{DelegateeID: delegatee.ID, StartDate: start, EndDate: end})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-leader delegator, got %d", resp.Code)
	}

	// Past window is rejected
	resp = f.do(t, f.leader, "POST", f.groupPath("delegations"),
		GrantDelegationRequest{DelegateeID: delegatee.ID, StartDate: "2020-01-01", EndDate: "2020-02-01"})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for past start, got %d", resp.Code)
	}

	resp = f.do(t, f.admin, "GET", f.groupPath("delegations"), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var grants []DelegationResponse
	json.Unmarshal(resp.Body.Bytes(), &grants)
	if len(grants) != 1 {
		t.Errorf("Expected 1 grant, got %d", len(grants))
	}
}
