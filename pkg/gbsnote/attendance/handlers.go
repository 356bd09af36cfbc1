package attendance

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jkwon/gbsnote/pkg/gbsnote/access"
	"github.com/jkwon/gbsnote/pkg/gbsnote/auth"
	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"gorm.io/gorm"
)

// Handler handles attendance requests
type Handler struct {
	svc *Service
}

// NewHandler creates a new attendance handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SubmitItem is one member's facts in a weekly submission
type SubmitItem struct {
	MemberID uint   `json:"member_id" binding:"required"`
	Worship  string `json:"worship" binding:"required,oneof=attended online absent"`
	QTCount  int    `json:"qt_count" binding:"min=0"`
	Ministry string `json:"ministry" binding:"omitempty,oneof=serving none"`
}

// SubmitWeekRequest represents a weekly attendance submission
type SubmitWeekRequest struct {
	WeekStart string       `json:"week_start" binding:"required"`
	Items     []SubmitItem `json:"items" binding:"required"`
}

// RecordResponse represents one attendance fact in API responses
type RecordResponse struct {
	MemberID   uint   `json:"member_id"`
	MemberName string `json:"member_name,omitempty"`
	GroupID    uint   `json:"group_id"`
	WeekStart  string `json:"week_start"`
	Worship    string `json:"worship"`
	QTCount    int    `json:"qt_count"`
	Ministry   string `json:"ministry"`
}

// RegisterRoutes registers the attendance routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/groups/:id/attendance", h.SubmitWeek)
	rg.GET("/groups/:id/attendance", h.GetWeek)
}

// SubmitWeek replaces a group's attendance for one week
// @Summary Submit a week of attendance
// @Description Batch-replace a group's attendance facts for one Sunday-anchored week. Prior rows for the week are dropped.
// @Tags attendance
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body SubmitWeekRequest true "Week and per-member items"
// @Success 201 {array} RecordResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Access denied"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id}/attendance [post]
func (h *Handler) SubmitWeek(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)

	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var req SubmitWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	weekStart, err := dates.Parse(req.WeekStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid week_start date"})
		return
	}

	items := make([]Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = Item{
			MemberID: it.MemberID,
			Worship:  models.WorshipStatus(it.Worship),
			QTCount:  it.QTCount,
			Ministry: models.MinistryStatus(it.Ministry),
		}
	}

	records, err := h.svc.SubmitWeek(uint(groupID), callerID, weekStart, time.Now(), items)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidWeekStart),
			errors.Is(err, ErrNotGroupMember),
			errors.Is(err, ErrDuplicateMember):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, access.ErrAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit attendance"})
		}
		return
	}

	c.JSON(http.StatusCreated, toResponses(records))
}

// GetWeek returns a group's stored attendance for one week
// @Summary Get a week of attendance
// @Description Read the stored attendance facts for a group and week
// @Tags attendance
// @Produce json
// @Param id path int true "Group ID"
// @Param week query string true "Week start (Sunday, YYYY-MM-DD)"
// @Success 200 {array} RecordResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /groups/{id}/attendance [get]
func (h *Handler) GetWeek(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	weekStart, err := dates.Parse(c.Query("week"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing week parameter"})
		return
	}

	records, err := h.svc.WeekRecords(uint(groupID), weekStart)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch attendance"})
		return
	}

	c.JSON(http.StatusOK, toResponses(records))
}

func toResponses(records []models.AttendanceRecord) []RecordResponse {
	responses := make([]RecordResponse, len(records))
	for i, r := range records {
		responses[i] = RecordResponse{
			MemberID:   r.MemberID,
			MemberName: r.Member.Name,
			GroupID:    r.GbsGroupID,
			WeekStart:  dates.Format(r.WeekStart),
			Worship:    string(r.Worship),
			QTCount:    r.QTCount,
			Ministry:   string(r.Ministry),
		}
	}
	return responses
}
