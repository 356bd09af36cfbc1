package organizations

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jkwon/gbsnote/pkg/gbsnote/auth"
	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"gorm.io/gorm"
)

// Handler handles the department/village/group tree
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new organizations handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateDepartmentRequest represents the request to create a department
type CreateDepartmentRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// CreateVillageRequest represents the request to create a village
type CreateVillageRequest struct {
	DepartmentID uint   `json:"department_id" binding:"required"`
	Name         string `json:"name" binding:"required,min=1,max=100"`
}

// CreateGroupRequest represents the request to create a GBS group
type CreateGroupRequest struct {
	VillageID uint   `json:"village_id" binding:"required"`
	Name      string `json:"name" binding:"required,min=1,max=100"`
	TermStart string `json:"term_start" binding:"required"`
	TermEnd   string `json:"term_end" binding:"required"`
}

// AssignVillageLeaderRequest represents the request to install a village leader
type AssignVillageLeaderRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// DepartmentResponse represents a department in API responses
type DepartmentResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Villages  int    `json:"villages,omitempty"`
	CreatedAt string `json:"created_at"`
}

// VillageResponse represents a village in API responses
type VillageResponse struct {
	ID           uint   `json:"id"`
	DepartmentID uint   `json:"department_id"`
	Name         string `json:"name"`
	LeaderID     *uint  `json:"leader_id,omitempty"`
	Groups       int    `json:"groups,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// GroupResponse represents a GBS group in API responses
type GroupResponse struct {
	ID        uint   `json:"id"`
	VillageID uint   `json:"village_id"`
	Name      string `json:"name"`
	TermStart string `json:"term_start"`
	TermEnd   string `json:"term_end"`
	CreatedAt string `json:"created_at"`
}

// RegisterRoutes registers the organization tree routes. Reads are open to
// any authenticated user; writes go through the staff-gated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/departments", h.ListDepartments)
	rg.GET("/departments/:id/villages", h.ListVillages)
	rg.GET("/villages/:id/groups", h.ListGroups)
	rg.GET("/groups/:id", h.GetGroup)

	staff := rg.Group("", auth.RequireStaff())
	staff.POST("/departments", h.CreateDepartment)
	staff.POST("/villages", h.CreateVillage)
	staff.POST("/groups", h.CreateGroup)
	staff.PUT("/villages/:id/leader", h.AssignVillageLeader)
}

// ListDepartments returns every department
// @Summary List departments
// @Tags organizations
// @Produce json
// @Success 200 {array} DepartmentResponse
// @Security BearerAuth
// @Router /departments [get]
func (h *Handler) ListDepartments(c *gin.Context) {
	var departments []models.Department
	if err := h.db.Order("id ASC").Find(&departments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch departments"})
		return
	}

	responses := make([]DepartmentResponse, len(departments))
	for i, d := range departments {
		var villageCount int64
		h.db.Model(&models.Village{}).Where("department_id = ?", d.ID).Count(&villageCount)
		responses[i] = DepartmentResponse{
			ID:        d.ID,
			Name:      d.Name,
			Villages:  int(villageCount),
			CreatedAt: d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	c.JSON(http.StatusOK, responses)
}

// CreateDepartment creates a department
// @Summary Create a department
// @Tags organizations
// @Accept json
// @Produce json
// @Param request body CreateDepartmentRequest true "Department details"
// @Success 201 {object} DepartmentResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Name already taken"
// @Security BearerAuth
// @Router /departments [post]
func (h *Handler) CreateDepartment(c *gin.Context) {
	var req CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	var existing models.Department
	if err := h.db.Where("name = ?", name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "A department with that name already exists"})
		return
	}

	department := models.Department{Name: name}
	if err := h.db.Create(&department).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create department"})
		return
	}

	c.JSON(http.StatusCreated, DepartmentResponse{
		ID:        department.ID,
		Name:      department.Name,
		CreatedAt: department.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// ListVillages returns a department's villages
// @Summary List a department's villages
// @Tags organizations
// @Produce json
// @Param id path int true "Department ID"
// @Success 200 {array} VillageResponse
// @Failure 404 {object} map[string]string "Department not found"
// @Security BearerAuth
// @Router /departments/{id}/villages [get]
func (h *Handler) ListVillages(c *gin.Context) {
	departmentID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid department ID"})
		return
	}

	if err := h.db.First(&models.Department{}, departmentID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Department not found"})
		return
	}

	var villages []models.Village
	if err := h.db.Where("department_id = ?", departmentID).Order("id ASC").Find(&villages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch villages"})
		return
	}

	responses := make([]VillageResponse, len(villages))
	for i, v := range villages {
		responses[i] = h.villageResponse(v)
	}
	c.JSON(http.StatusOK, responses)
}

// CreateVillage creates a village under a department
// @Summary Create a village
// @Tags organizations
// @Accept json
// @Produce json
// @Param request body CreateVillageRequest true "Village details"
// @Success 201 {object} VillageResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Department not found"
// @Security BearerAuth
// @Router /villages [post]
func (h *Handler) CreateVillage(c *gin.Context) {
	var req CreateVillageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.First(&models.Department{}, req.DepartmentID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Department not found"})
		return
	}

	village := models.Village{
		DepartmentID: req.DepartmentID,
		Name:         strings.TrimSpace(req.Name),
	}
	if err := h.db.Create(&village).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create village"})
		return
	}

	c.JSON(http.StatusCreated, h.villageResponse(village))
}

// ListGroups returns a village's GBS groups
// @Summary List a village's groups
// @Tags organizations
// @Produce json
// @Param id path int true "Village ID"
// @Success 200 {array} GroupResponse
// @Failure 404 {object} map[string]string "Village not found"
// @Security BearerAuth
// @Router /villages/{id}/groups [get]
func (h *Handler) ListGroups(c *gin.Context) {
	villageID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid village ID"})
		return
	}

	if err := h.db.First(&models.Village{}, villageID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Village not found"})
		return
	}

	var groups []models.GbsGroup
	if err := h.db.Where("village_id = ?", villageID).Order("id ASC").Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	responses := make([]GroupResponse, len(groups))
	for i, g := range groups {
		responses[i] = groupResponse(g)
	}
	c.JSON(http.StatusOK, responses)
}

// CreateGroup creates a GBS group under a village
// @Summary Create a GBS group
// @Description Create a group bounded by a ministry term
// @Tags organizations
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Village not found"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	termStart, err := dates.Parse(req.TermStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid term_start"})
		return
	}
	termEnd, err := dates.Parse(req.TermEnd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid term_end"})
		return
	}
	if termStart.After(termEnd) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "term_start must not be after term_end"})
		return
	}

	if err := h.db.First(&models.Village{}, req.VillageID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Village not found"})
		return
	}

	group := models.GbsGroup{
		VillageID: req.VillageID,
		Name:      strings.TrimSpace(req.Name),
		TermStart: termStart,
		TermEnd:   termEnd,
	}
	if err := h.db.Create(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	c.JSON(http.StatusCreated, groupResponse(group))
}

// GetGroup returns one GBS group
// @Summary Get a GBS group
// @Tags organizations
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} GroupResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [get]
func (h *Handler) GetGroup(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var group models.GbsGroup
	if err := h.db.First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	c.JSON(http.StatusOK, groupResponse(group))
}

// AssignVillageLeader installs a user as the village's leader
// @Summary Assign a village leader
// @Description Promote a user to village leader of one village. Any previous leader of that village is demoted to member.
// @Tags organizations
// @Accept json
// @Produce json
// @Param id path int true "Village ID"
// @Param request body AssignVillageLeaderRequest true "User to install"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "Village or user not found"
// @Security BearerAuth
// @Router /villages/{id}/leader [put]
func (h *Handler) AssignVillageLeader(c *gin.Context) {
	villageID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid village ID"})
		return
	}

	var req AssignVillageLeaderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.First(&models.Village{}, villageID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Village not found"})
		return
	}

	var user models.User
	if err := h.db.First(&user, req.UserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		// A village has one leader: demote the incumbent
		var incumbent models.User
		err := tx.Where("role = ? AND owned_village_id = ?", models.RoleVillageLeader, villageID).
			First(&incumbent).Error
		if err == nil && incumbent.ID != user.ID {
			if err := tx.Model(&incumbent).
				Updates(map[string]interface{}{"role": models.RoleMember, "owned_village_id": nil}).Error; err != nil {
				return err
			}
		}

		vID := uint(villageID)
		return tx.Model(&user).
			Updates(map[string]interface{}{"role": models.RoleVillageLeader, "owned_village_id": vID}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign village leader"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"village_id": villageID,
		"leader_id":  user.ID,
		"name":       user.Name,
	})
}

func (h *Handler) villageResponse(v models.Village) VillageResponse {
	resp := VillageResponse{
		ID:           v.ID,
		DepartmentID: v.DepartmentID,
		Name:         v.Name,
		CreatedAt:    v.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}

	var groupCount int64
	h.db.Model(&models.GbsGroup{}).Where("village_id = ?", v.ID).Count(&groupCount)
	resp.Groups = int(groupCount)

	var leader models.User
	if err := h.db.Where("role = ? AND owned_village_id = ?", models.RoleVillageLeader, v.ID).
		First(&leader).Error; err == nil {
		resp.LeaderID = &leader.ID
	}
	return resp
}

func groupResponse(g models.GbsGroup) GroupResponse {
	return GroupResponse{
		ID:        g.ID,
		VillageID: g.VillageID,
		Name:      g.Name,
		TermStart: dates.Format(g.TermStart),
		TermEnd:   dates.Format(g.TermEnd),
		CreatedAt: g.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
