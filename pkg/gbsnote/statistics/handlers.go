package statistics

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

// Handler handles statistics requests
type Handler struct {
	db       *gorm.DB
	svc      *Service
	resolver *access.Resolver
}

// NewHandler creates a new statistics handler
func NewHandler(db *gorm.DB, svc *Service, resolver *access.Resolver) *Handler {
	return &Handler{db: db, svc: svc, resolver: resolver}
}

// RegisterRoutes registers the statistics routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/statistics/groups/:id", h.Group)
	rg.GET("/statistics/villages/:id", h.Village)
	rg.GET("/statistics/departments/:id", h.Department)
}

// parseRange pulls start/end query dates; both are required.
func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	start, err := dates.Parse(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing start parameter"})
		return time.Time{}, time.Time{}, false
	}
	end, err := dates.Parse(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or missing end parameter"})
		return time.Time{}, time.Time{}, false
	}
	if start.After(end) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must not be after end"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func respondStatsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNoActiveMembers):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, access.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
	}
}

// Group returns one group's roll-up
// @Summary Group statistics
// @Description Weekly attendance buckets and summary rates for one GBS group
// @Tags statistics
// @Produce json
// @Param id path int true "Group ID"
// @Param start query string true "Range start (YYYY-MM-DD)"
// @Param end query string true "Range end (YYYY-MM-DD)"
// @Success 200 {object} GroupStatistics
// @Failure 403 {object} map[string]string "Access denied"
// @Failure 404 {object} map[string]string "Not found"
// @Security BearerAuth
// @Router /statistics/groups/{id} [get]
func (h *Handler) Group(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)

	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	if err := h.resolver.CanManageGroup(callerID, uint(groupID), time.Now()); err != nil {
		respondStatsError(c, err)
		return
	}

	stats, err := h.svc.GroupStatistics(uint(groupID), start, end)
	if err != nil {
		respondStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Village returns a village's roll-up
// @Summary Village statistics
// @Description Member-weighted aggregate of the village's in-term groups
// @Tags statistics
// @Produce json
// @Param id path int true "Village ID"
// @Param start query string true "Range start (YYYY-MM-DD)"
// @Param end query string true "Range end (YYYY-MM-DD)"
// @Success 200 {object} VillageStatistics
// @Failure 403 {object} map[string]string "Access denied"
// @Failure 404 {object} map[string]string "Not found"
// @Security BearerAuth
// @Router /statistics/villages/{id} [get]
func (h *Handler) Village(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)

	villageID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid village ID"})
		return
	}
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	if err := h.canViewVillage(callerID, uint(villageID)); err != nil {
		respondStatsError(c, err)
		return
	}

	stats, err := h.svc.VillageStatistics(uint(villageID), start, end)
	if err != nil {
		respondStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Department returns a department's roll-up
// @Summary Department statistics
// @Description Member-weighted aggregate of the department's villages
// @Tags statistics
// @Produce json
// @Param id path int true "Department ID"
// @Param start query string true "Range start (YYYY-MM-DD)"
// @Param end query string true "Range end (YYYY-MM-DD)"
// @Success 200 {object} DepartmentStatistics
// @Failure 403 {object} map[string]string "Access denied"
// @Failure 404 {object} map[string]string "Not found"
// @Security BearerAuth
// @Router /statistics/departments/{id} [get]
func (h *Handler) Department(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)

	departmentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid department ID"})
		return
	}
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	var caller models.User
	if err := h.db.First(&caller, callerID).Error; err != nil {
		respondStatsError(c, err)
		return
	}
	if caller.Role != models.RoleAdmin && caller.Role != models.RoleMinister {
		respondStatsError(c, access.ErrAccessDenied)
		return
	}

	stats, err := h.svc.DepartmentStatistics(uint(departmentID), start, end)
	if err != nil {
		respondStatsError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// canViewVillage allows staff and the village's own leader.
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
