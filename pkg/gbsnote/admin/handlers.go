package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jkwon/gbsnote/pkg/gbsnote/auth"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"gorm.io/gorm"
)

// Handler handles admin requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID              uint   `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	Role            string `json:"role"`
	OwnedVillageID  *uint  `json:"owned_village_id,omitempty"`
	CreatedAt       string `json:"created_at"`
	LeadershipCount int64  `json:"leadership_count"`
	MembershipCount int64  `json:"membership_count"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers        int64 `json:"total_users"`
	TotalDepartments  int64 `json:"total_departments"`
	TotalVillages     int64 `json:"total_villages"`
	TotalGroups       int64 `json:"total_groups"`
	TotalAttendance   int64 `json:"total_attendance"`
	OpenLeaderships   int64 `json:"open_leaderships"`
	OpenMemberships   int64 `json:"open_memberships"`
	ActiveDelegations int64 `json:"active_delegations"`
	AdminUsers        int64 `json:"admin_users"`
	ActiveAPIKeys     int64 `json:"active_api_keys"`
}

func validRole(role string) bool {
	switch models.Role(role) {
	case models.RoleAdmin, models.RoleMinister, models.RoleVillageLeader,
		models.RoleLeader, models.RoleMember:
		return true
	}
	return false
}

func (h *Handler) userResponse(user models.User) UserResponse {
	var leadershipCount, membershipCount int64
	h.db.Model(&models.LeadershipRecord{}).Where("leader_id = ?", user.ID).Count(&leadershipCount)
	h.db.Model(&models.MembershipRecord{}).Where("member_id = ?", user.ID).Count(&membershipCount)

	return UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		Name:            user.Name,
		Role:            string(user.Role),
		OwnedVillageID:  user.OwnedVillageID,
		CreatedAt:       user.CreatedAt.Format("2006-01-02T15:04:05Z"),
		LeadershipCount: leadershipCount,
		MembershipCount: membershipCount,
	}
}

// ListUsers returns all users (admin only)
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC")

	// Optional search by email or name
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	// Optional filter by role
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = h.userResponse(user)
	}

	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID (admin only)
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, h.userResponse(user))
}

// UpdateUser updates a user's name or role (admin only)
func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from demoting themselves
	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID && req.Role != nil && *req.Role != string(models.RoleAdmin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Role != nil {
		if !validRole(*req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}
		updates["role"] = *req.Role
		// Village ownership travels with the village_leader role
		if *req.Role != string(models.RoleVillageLeader) {
			updates["owned_village_id"] = nil
		}
	}

	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
	}

	// Reload user
	h.db.First(&user, id)
	c.JSON(http.StatusOK, h.userResponse(user))
}

// DeleteUser soft-deletes a user (admin only). Ledger and attendance rows
// stay: they are the audit trail.
func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	// Prevent admin from deleting themselves
	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.APIKey{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// GetStats returns system-wide statistics (admin only)
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse

	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.Department{}).Count(&stats.TotalDepartments)
	h.db.Model(&models.Village{}).Count(&stats.TotalVillages)
	h.db.Model(&models.GbsGroup{}).Count(&stats.TotalGroups)
	h.db.Model(&models.AttendanceRecord{}).Count(&stats.TotalAttendance)
	h.db.Model(&models.APIKey{}).Count(&stats.ActiveAPIKeys)

	h.db.Model(&models.LeadershipRecord{}).Where("end_date IS NULL").Count(&stats.OpenLeaderships)
	h.db.Model(&models.MembershipRecord{}).Where("end_date IS NULL").Count(&stats.OpenMemberships)
	h.db.Model(&models.DelegationGrant{}).
		Where("start_date <= date('now') AND end_date >= date('now')").
		Count(&stats.ActiveDelegations)
	h.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&stats.AdminUsers)

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
}
