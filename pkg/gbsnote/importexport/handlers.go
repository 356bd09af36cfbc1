package importexport

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jkwon/gbsnote/pkg/gbsnote/access"
	"github.com/jkwon/gbsnote/pkg/gbsnote/auth"
	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"github.com/jkwon/gbsnote/pkg/gbsnote/statistics"
	"gorm.io/gorm"
)

// Handler handles CSV import/export requests
type Handler struct {
	db       *gorm.DB
	svc      *Service
	resolver *access.Resolver
}

// NewHandler creates a new import/export handler
func NewHandler(db *gorm.DB, svc *Service, resolver *access.Resolver) *Handler {
	return &Handler{db: db, svc: svc, resolver: resolver}
}

// RegisterRoutes registers the import/export routes. Imports are staff-only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups/:id/attendance/export", h.ExportWeek)
	rg.GET("/statistics/villages/:id/export", h.ExportVillageStatistics)

	staff := rg.Group("", auth.RequireStaff())
	staff.POST("/groups/:id/members/import", h.ImportMembers)
}

// ExportWeek streams one group week of attendance as CSV
// @Summary Export a week of attendance as CSV
// @Tags import-export
// @Produce text/csv
// @Param id path int true "Group ID"
// @Param week query string true "Week start (Sunday, YYYY-MM-DD)"
// @Success 200 {string} string "CSV data"
// @Failure 403 {object} map[string]string "Access denied"
// @Security BearerAuth
// @Router /groups/{id}/attendance/export [get]
func (h *Handler) ExportWeek(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)

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

	if err := h.resolver.CanManageGroup(callerID, uint(groupID), dates.Normalize(time.Now())); err != nil {
		h.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("attendance_%d_%s.csv", groupID, dates.Format(weekStart))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	if err := h.svc.ExportWeek(c.Writer, uint(groupID), weekStart); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}

// ExportVillageStatistics streams a village roll-up as CSV
// @Summary Export village statistics as CSV
// @Tags import-export
// @Produce text/csv
// @Param id path int true "Village ID"
// @Param start query string true "Range start (YYYY-MM-DD)"
// @Param end query string true "Range end (YYYY-MM-DD)"
// @Success 200 {string} string "CSV data"
// @Failure 403 {object} map[string]string "Access denied"
// @Security BearerAuth
// @Router /statistics/villages/{id}/export [get]
func (h *Handler) ExportVillageStatistics(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)

	villageID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid village ID"})
		return
	}
	start, err := dates.Parse(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing start parameter"})
		return
	}
	end, err := dates.Parse(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing end parameter"})
		return
	}

	if err := h.canViewVillage(callerID, uint(villageID)); err != nil {
		h.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("village_%d_%s_%s.csv", villageID, dates.Format(start), dates.Format(end))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	if err := h.svc.ExportVillageStatistics(c.Writer, uint(villageID), start, end); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}

// ImportMembers bulk-assigns members to a group from an uploaded CSV
// @Summary Import group members from CSV
// @Description Read "email,name" rows from the request body. Unknown emails become new member accounts.
// @Tags import-export
// @Accept text/csv
// @Produce json
// @Param id path int true "Group ID"
// @Param start query string true "Membership start date (YYYY-MM-DD)"
// @Success 200 {object} ImportResult
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /groups/{id}/members/import [post]
func (h *Handler) ImportMembers(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}
	start, err := dates.Parse(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing start parameter"})
		return
	}

	if err := h.db.First(&models.GbsGroup{}, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	result, err := h.svc.ImportMembers(c.Request.Body, uint(groupID), start)
	if err != nil {
		switch {
		case errors.Is(err, ErrBadHeader), errors.Is(err, ErrEmptyFile):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Import failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) canViewVillage(callerID, villageID uint) error {
	var caller models.User
	if err := h.db.First(&caller, callerID).Error; err != nil {
		return err
	}
	switch caller.Role {
	case models.RoleAdmin, models.RoleMinister:
		return nil
	case models.RoleVillageLeader:
		if caller.OwnedVillageID != nil && *caller.OwnedVillageID == villageID {
			return nil
		}
	}
	return access.ErrAccessDenied
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, access.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, statistics.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, statistics.ErrNoActiveMembers):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Export failed"})
	}
}
