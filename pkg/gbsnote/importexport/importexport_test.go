package importexport

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jkwon/gbsnote/pkg/gbsnote/access"
	"github.com/jkwon/gbsnote/pkg/gbsnote/auth"
	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/delegation"
	"github.com/jkwon/gbsnote/pkg/gbsnote/history"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"github.com/jkwon/gbsnote/pkg/gbsnote/statistics"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     *Service
	ledger  *history.Service
	router  *gin.Engine
	village models.Village
	group   models.GbsGroup
	admin   models.User
}

func setup(t *testing.T) fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	// Statistics exports fan out over goroutines; keep one :memory: connection
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)

	f := fixture{db: db}
	dept := models.Department{Name: "Youth"}
	db.Create(&dept)
	f.village = models.Village{DepartmentID: dept.ID, Name: "V1"}
	db.Create(&f.village)
	f.group = models.GbsGroup{VillageID: f.village.ID, Name: "G1",
		TermStart: date(t, "2024-01-01"), TermEnd: date(t, "2024-12-31")}
	db.Create(&f.group)

	f.admin = models.User{Email: "admin@example.com", Name: "Admin", Role: models.RoleAdmin}
	db.Create(&f.admin)

	f.ledger = history.NewService(db)
	grants := delegation.NewService(db, f.ledger)
	resolver := access.NewResolver(db, f.ledger, grants)
	stats := statistics.NewService(db, f.ledger)
	f.svc = NewService(db, f.ledger, stats)

	gin.SetMode(gin.TestMode)
	f.router = gin.New()
	handler := NewHandler(db, f.svc, resolver)
	api := f.router.Group("", auth.AuthMiddleware())
	handler.RegisterRoutes(api)

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

func (f fixture) addMemberWithAttendance(t *testing.T, email string, week time.Time, qt int) models.User {
	t.Helper()
	u := models.User{Email: email, Name: email, Role: models.RoleMember}
	f.db.Create(&u)
	if _, err := f.ledger.AssignMember(f.group.ID, u.ID, date(t, "2024-01-01")); err != nil {
		t.Fatalf("AssignMember failed: %v", err)
	}
	rec := models.AttendanceRecord{
		MemberID: u.ID, GbsGroupID: f.group.ID, WeekStart: week,
		Worship: models.WorshipAttended, QTCount: qt, Ministry: models.MinistryNone,
	}
	f.db.Create(&rec)
	return u
}

func TestExportWeekCSV(t *testing.T) {
	f := setup(t)
	week := date(t, "2024-01-07")
	f.addMemberWithAttendance(t, "a@example.com", week, 3)
	f.addMemberWithAttendance(t, "b@example.com", week, 5)

	var buf bytes.Buffer
	if err := f.svc.ExportWeek(&buf, f.group.ID, week); err != nil {
		t.Fatalf("ExportWeek failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Export is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "member_id" || rows[0][3] != "worship" {
		t.Errorf("Unexpected header: %v", rows[0])
	}
	if rows[1][2] != "2024-01-07" || rows[1][4] != "3" {
		t.Errorf("Unexpected first data row: %v", rows[1])
	}
}

func TestExportWeekEndpoint(t *testing.T) {
	f := setup(t)
	week := date(t, "2024-01-07")
	f.addMemberWithAttendance(t, "a@example.com", week, 3)

	token, _ := auth.GenerateToken(f.admin.ID, f.admin.Email, string(f.admin.Role))
	req, _ := http.NewRequest("GET", "/groups/1/attendance/export?week=2024-01-07", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Expected text/csv content type, got %s", ct)
	}
	if !strings.Contains(resp.Body.String(), "a@example.com") {
		t.Errorf("Expected member row in CSV, got: %s", resp.Body.String())
	}
}

func TestExportVillageStatisticsCSV(t *testing.T) {
	f := setup(t)
	week := date(t, "2024-01-07")
	f.addMemberWithAttendance(t, "a@example.com", week, 4)

	var buf bytes.Buffer
	if err := f.svc.ExportVillageStatistics(&buf, f.village.ID, week, week); err != nil {
		t.Fatalf("ExportVillageStatistics failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Export is not valid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header + 1 group row, got %d", len(rows))
	}
	if rows[1][1] != "G1" || rows[1][4] != "100.0" {
		t.Errorf("Unexpected group row: %v", rows[1])
	}
}

func TestImportMembers(t *testing.T) {
	f := setup(t)

	// One existing user, one new
	existing := models.User{Email: "old@example.com", Name: "Old", Role: models.RoleMember}
	f.db.Create(&existing)

	input := "email,name\nold@example.com,Old\nnew@example.com,New Person\n"
	result, err := f.svc.ImportMembers(strings.NewReader(input), f.group.ID, date(t, "2024-01-01"))
	if err != nil {
		t.Fatalf("ImportMembers failed: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("Expected 1 created, got %d", result.Created)
	}
	if result.Assigned != 2 {
		t.Errorf("Expected 2 assigned, got %d", result.Assigned)
	}

	members, err := f.ledger.ActiveMembers(f.group.ID, date(t, "2024-06-01"))
	if err != nil {
		t.Fatalf("ActiveMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("Expected 2 active members after import, got %d", len(members))
	}
}

func TestImportMembersBadHeader(t *testing.T) {
	f := setup(t)

	_, err := f.svc.ImportMembers(strings.NewReader("id,value\n1,2\n"), f.group.ID, date(t, "2024-01-01"))
	if !errors.Is(err, ErrBadHeader) {
		t.Errorf("Expected ErrBadHeader, got %v", err)
	}

	_, err = f.svc.ImportMembers(strings.NewReader(""), f.group.ID, date(t, "2024-01-01"))
	if !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Expected ErrEmptyFile, got %v", err)
	}
}

func TestImportMembersSkipsBadRows(t *testing.T) {
	f := setup(t)

	input := "email,name\n,NoEmail\nok@example.com,OK\n"
	result, err := f.svc.ImportMembers(strings.NewReader(input), f.group.ID, date(t, "2024-01-01"))
	if err != nil {
		t.Fatalf("ImportMembers failed: %v", err)
	}
	if result.Assigned != 1 || len(result.Skipped) != 1 {
		t.Errorf("Expected 1 assigned and 1 skipped, got %+v", result)
	}
}

func TestImportMembersEndpointRequiresStaff(t *testing.T) {
	f := setup(t)
	member := models.User{Email: "m@example.com", Name: "M", Role: models.RoleMember}
	f.db.Create(&member)

	token, _ := auth.GenerateToken(member.ID, member.Email, string(member.Role))
	body := strings.NewReader("email,name\nx@example.com,X\n")
	req, _ := http.NewRequest("POST", "/groups/1/members/import?start=2024-01-01", body)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-staff import, got %d", resp.Code)
	}
}

func TestImportMembersEndpoint(t *testing.T) {
	f := setup(t)

	token, _ := auth.GenerateToken(f.admin.ID, f.admin.Email, string(f.admin.Role))
	body := strings.NewReader("email,name\nx@example.com,X\ny@example.com,Y\n")
	req, _ := http.NewRequest("POST", "/groups/1/members/import?start=2024-01-01", body)
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result ImportResult
	json.Unmarshal(resp.Body.Bytes(), &result)
	if result.Created != 2 || result.Assigned != 2 {
		t.Errorf("Expected 2 created and assigned, got %+v", result)
	}
}
