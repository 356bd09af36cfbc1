package statistics

import (
	"errors"
	"time"

	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/history"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	// ErrNotFound means the roll-up target has no child entities in the
	// requested range (a village without groups, a department without
	// villages). Deliberately not a zero-filled result.
	ErrNotFound = errors.New("no entities to aggregate in that range")
	// ErrNoActiveMembers means headcount at the range start is zero.
	ErrNoActiveMembers = errors.New("no active members at range start")
)

// WeeklyStat is one Sunday-anchored bucket of a group's attendance.
type WeeklyStat struct {
	WeekStart       string  `json:"week_start"`
	AttendedMembers int64   `json:"attended_members"`
	AttendanceRate  float64 `json:"attendance_rate"`
	AverageQT       float64 `json:"average_qt"`
}

// GroupStatistics is the per-group roll-up over a date range.
type GroupStatistics struct {
	GroupID         uint         `json:"group_id"`
	GroupName       string       `json:"group_name"`
	TotalMembers    int64        `json:"total_members"`
	AttendedMembers int64        `json:"attended_members"`
	AttendanceRate  float64      `json:"attendance_rate"`
	AverageQT       float64      `json:"average_qt"`
	Weekly          []WeeklyStat `json:"weekly"`
}

// VillageStatistics aggregates the village's groups.
type VillageStatistics struct {
	VillageID       uint              `json:"village_id"`
	VillageName     string            `json:"village_name"`
	TotalMembers    int64             `json:"total_members"`
	AttendedMembers int64             `json:"attended_members"`
	AttendanceRate  float64           `json:"attendance_rate"`
	AverageQT       float64           `json:"average_qt"`
	Groups          []GroupStatistics `json:"groups"`
}

// DepartmentStatistics aggregates the department's villages.
type DepartmentStatistics struct {
	DepartmentID    uint                `json:"department_id"`
	DepartmentName  string              `json:"department_name"`
	TotalMembers    int64               `json:"total_members"`
	AttendedMembers int64               `json:"attended_members"`
	AttendanceRate  float64             `json:"attendance_rate"`
	AverageQT       float64             `json:"average_qt"`
	Villages        []VillageStatistics `json:"villages"`
}

// Service computes attendance-rate and QT roll-ups bottom-up: GBS group,
// then village, then department. All reads, no mutations; per-group
// computation fans out in parallel.
type Service struct {
	db     *gorm.DB
	ledger *history.Service
}

// NewService creates a new statistics service
func NewService(db *gorm.DB, ledger *history.Service) *Service {
	return &Service{db: db, ledger: ledger}
}

// WeeklyBuckets returns the ordered Sundays covering [start, end]: the
// Sunday on or before start, then weekly steps while within end (inclusive).
func WeeklyBuckets(start, end time.Time) []time.Time {
	start = dates.Normalize(start)
	end = dates.Normalize(end)

	var buckets []time.Time
	for d := dates.SundayOnOrBefore(start); !d.After(end); d = d.AddDate(0, 0, 7) {
		buckets = append(buckets, d)
	}
	return buckets
}

// GroupStatistics rolls up one group over [start, end]. Headcount is fixed
// at the range start, not re-evaluated per bucket. Any stored fact counts
// the member as attended for its week, whatever the worship status says: a
// recorded QT or ministry entry without worship attendance still counts.
func (s *Service) GroupStatistics(groupID uint, start, end time.Time) (*GroupStatistics, error) {
	var group models.GbsGroup
	if err := s.db.First(&group, groupID).Error; err != nil {
		return nil, err
	}

	headcount, err := s.ledger.ActiveMemberCount(groupID, start)
	if err != nil {
		return nil, err
	}
	if headcount == 0 {
		return nil, ErrNoActiveMembers
	}

	stats := &GroupStatistics{
		GroupID:      group.ID,
		GroupName:    group.Name,
		TotalMembers: headcount,
	}

	buckets := WeeklyBuckets(start, end)
	var rateSum, qtSum float64
	for _, week := range buckets {
		var attended int64
		if err := s.db.Model(&models.AttendanceRecord{}).
			Where("gbs_group_id = ? AND week_start = ?", groupID, week).
			Count(&attended).Error; err != nil {
			return nil, err
		}

		var avgQT float64
		if attended > 0 {
			var totalQT int64
			if err := s.db.Model(&models.AttendanceRecord{}).
				Where("gbs_group_id = ? AND week_start = ?", groupID, week).
				Select("COALESCE(SUM(qt_count), 0)").Scan(&totalQT).Error; err != nil {
				return nil, err
			}
			avgQT = float64(totalQT) / float64(attended)
		}

		rate := 0.0
		if headcount > 0 {
			rate = float64(attended) / float64(headcount) * 100
		}

		stats.Weekly = append(stats.Weekly, WeeklyStat{
			WeekStart:       dates.Format(week),
			AttendedMembers: attended,
			AttendanceRate:  rate,
			AverageQT:       avgQT,
		})
		stats.AttendedMembers += attended
		rateSum += rate
		qtSum += avgQT
	}

	// Arithmetic mean across buckets, not member-weighted
	if n := len(buckets); n > 0 {
		stats.AttendanceRate = rateSum / float64(n)
		stats.AverageQT = qtSum / float64(n)
	}
	return stats, nil
}

// VillageStatistics aggregates every in-term group of the village over
// [start, end]. Groups with no members at the range start are skipped;
// totals are summed and rates are member-weighted means.
func (s *Service) VillageStatistics(villageID uint, start, end time.Time) (*VillageStatistics, error) {
	var village models.Village
	if err := s.db.First(&village, villageID).Error; err != nil {
		return nil, err
	}

	var groups []models.GbsGroup
	if err := s.db.Where("village_id = ? AND term_start <= ? AND term_end >= ?",
		villageID, dates.Normalize(end), dates.Normalize(start)).
		Order("id ASC").Find(&groups).Error; err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, ErrNotFound
	}

	// Read-only fan-out, one result slot per group
	results := make([]*GroupStatistics, len(groups))
	var g errgroup.Group
	for i, group := range groups {
		i, groupID := i, group.ID
		g.Go(func() error {
			stat, err := s.GroupStatistics(groupID, start, end)
			if err != nil {
				if errors.Is(err, ErrNoActiveMembers) {
					return nil // skip memberless groups
				}
				return err
			}
			results[i] = stat
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &VillageStatistics{
		VillageID:   village.ID,
		VillageName: village.Name,
	}
	for _, r := range results {
		if r != nil {
			stats.Groups = append(stats.Groups, *r)
		}
	}
	if len(stats.Groups) == 0 {
		return nil, ErrNoActiveMembers
	}

	var weightedRate, weightedQT float64
	for _, gs := range stats.Groups {
		stats.TotalMembers += gs.TotalMembers
		stats.AttendedMembers += gs.AttendedMembers
		weightedRate += gs.AttendanceRate * float64(gs.TotalMembers)
		weightedQT += gs.AverageQT * float64(gs.TotalMembers)
	}
	if stats.TotalMembers > 0 {
		stats.AttendanceRate = weightedRate / float64(stats.TotalMembers)
		stats.AverageQT = weightedQT / float64(stats.TotalMembers)
	}
	return stats, nil
}

// DepartmentStatistics aggregates the department's villages with the same
// member-weighted rule. Villages without aggregatable groups are skipped.
func (s *Service) DepartmentStatistics(departmentID uint, start, end time.Time) (*DepartmentStatistics, error) {
	var dept models.Department
	if err := s.db.First(&dept, departmentID).Error; err != nil {
		return nil, err
	}

	var villages []models.Village
	if err := s.db.Where("department_id = ?", departmentID).
		Order("id ASC").Find(&villages).Error; err != nil {
		return nil, err
	}
	if len(villages) == 0 {
		return nil, ErrNotFound
	}

	results := make([]*VillageStatistics, len(villages))
	var g errgroup.Group
	for i, village := range villages {
		i, villageID := i, village.ID
		g.Go(func() error {
			stat, err := s.VillageStatistics(villageID, start, end)
			if err != nil {
				if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoActiveMembers) {
					return nil
				}
				return err
			}
			results[i] = stat
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &DepartmentStatistics{
		DepartmentID:   dept.ID,
		DepartmentName: dept.Name,
	}
	for _, r := range results {
		if r != nil {
			stats.Villages = append(stats.Villages, *r)
		}
	}
	if len(stats.Villages) == 0 {
		return nil, ErrNoActiveMembers
	}

	var weightedRate, weightedQT float64
	for _, vs := range stats.Villages {
		stats.TotalMembers += vs.TotalMembers
		stats.AttendedMembers += vs.AttendedMembers
		weightedRate += vs.AttendanceRate * float64(vs.TotalMembers)
		weightedQT += vs.AverageQT * float64(vs.TotalMembers)
	}
	if stats.TotalMembers > 0 {
		stats.AttendanceRate = weightedRate / float64(stats.TotalMembers)
		stats.AverageQT = weightedQT / float64(stats.TotalMembers)
	}
	return stats, nil
}
