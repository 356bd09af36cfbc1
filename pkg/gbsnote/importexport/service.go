package importexport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/history"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"github.com/jkwon/gbsnote/pkg/gbsnote/statistics"
	"gorm.io/gorm"
)

var (
	ErrBadHeader = errors.New("unrecognized CSV header")
	ErrEmptyFile = errors.New("CSV contains no data rows")
)

// ImportResult summarizes a bulk member import.
type ImportResult struct {
	Created  int      `json:"created"`
	Assigned int      `json:"assigned"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Service moves attendance data in and out as CSV.
type Service struct {
	db     *gorm.DB
	ledger *history.Service
	stats  *statistics.Service
}

// NewService creates a new import/export service
func NewService(db *gorm.DB, ledger *history.Service, stats *statistics.Service) *Service {
	return &Service{db: db, ledger: ledger, stats: stats}
}

// ExportWeek writes one group's stored attendance for a week as CSV.
func (s *Service) ExportWeek(w io.Writer, groupID uint, weekStart time.Time) error {
	var records []models.AttendanceRecord
	err := s.db.Preload("Member").
		Where("gbs_group_id = ? AND week_start = ?", groupID, dates.Normalize(weekStart)).
		Order("member_id ASC").Find(&records).Error
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"member_id", "member_name", "week_start", "worship", "qt_count", "ministry"}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.FormatUint(uint64(r.MemberID), 10),
			r.Member.Name,
			dates.Format(r.WeekStart),
			string(r.Worship),
			strconv.Itoa(r.QTCount),
			string(r.Ministry),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportVillageStatistics writes the per-group breakdown of a village's
// roll-up as CSV, one row per aggregated group.
func (s *Service) ExportVillageStatistics(w io.Writer, villageID uint, start, end time.Time) error {
	stats, err := s.stats.VillageStatistics(villageID, start, end)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"group_id", "group_name", "total_members", "attended_members", "attendance_rate", "average_qt"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, g := range stats.Groups {
		row := []string{
			strconv.FormatUint(uint64(g.GroupID), 10),
			g.GroupName,
			strconv.FormatInt(g.TotalMembers, 10),
			strconv.FormatInt(g.AttendedMembers, 10),
			fmt.Sprintf("%.1f", g.AttendanceRate),
			fmt.Sprintf("%.1f", g.AverageQT),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportMembers reads "email,name" rows and assigns each person to the group
// from start onward. Unknown emails become new member accounts; rows that
// cannot be processed are reported in Skipped, not fatal.
func (s *Service) ImportMembers(r io.Reader, groupID uint, start time.Time) (*ImportResult, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, err
	}
	if len(header) < 2 || !strings.EqualFold(header[0], "email") || !strings.EqualFold(header[1], "name") {
		return nil, ErrBadHeader
	}

	result := &ImportResult{}
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		email := strings.ToLower(strings.TrimSpace(row[0]))
		name := strings.TrimSpace(row[1])
		if email == "" {
			result.Skipped = append(result.Skipped, fmt.Sprintf("line %d: missing email", line))
			continue
		}

		var user models.User
		err = s.db.Where("email = ?", email).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{Email: email, Name: name, Role: models.RoleMember}
			if err := s.db.Create(&user).Error; err != nil {
				result.Skipped = append(result.Skipped, fmt.Sprintf("line %d: %v", line, err))
				continue
			}
			result.Created++
		case err != nil:
			return nil, err
		}

		if _, err := s.ledger.AssignMember(groupID, user.ID, start); err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		result.Assigned++
	}

	if result.Created == 0 && result.Assigned == 0 && len(result.Skipped) == 0 {
		return nil, ErrEmptyFile
	}
	return result, nil
}
