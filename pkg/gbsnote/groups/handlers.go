package groups

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jkwon/gbsnote/pkg/gbsnote/access"
	"github.com/jkwon/gbsnote/pkg/gbsnote/auth"
	"github.com/jkwon/gbsnote/pkg/gbsnote/dates"
	"github.com/jkwon/gbsnote/pkg/gbsnote/delegation"
	"github.com/jkwon/gbsnote/pkg/gbsnote/history"
	"github.com/jkwon/gbsnote/pkg/gbsnote/models"
	"gorm.io/gorm"
)

// Handler exposes the leadership/membership ledger and delegations over HTTP
type Handler struct {
	db       *gorm.DB
	ledger   *history.Service
	grants   *delegation.Service
	resolver *access.Resolver
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB, ledger *history.Service, grants *delegation.Service, resolver *access.Resolver) *Handler {
	return &Handler{db: db, ledger: ledger, grants: grants, resolver: resolver}
}

// AssignLeaderRequest represents a leadership assignment
type AssignLeaderRequest struct {
	LeaderID  uint   `json:"leader_id" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
}

// AssignMemberRequest represents a membership assignment
type AssignMemberRequest struct {
	MemberID  uint   `json:"member_id" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
}

// GrantDelegationRequest represents a new delegation grant
type GrantDelegationRequest struct {
	DelegateeID uint   `json:"delegatee_id" binding:"required"`
	StartDate   string `json:"start_date" binding:"required"`
	EndDate     string `json:"end_date" binding:"required"`
}

// IntervalResponse is one ledger record in API responses
type IntervalResponse struct {
	ID        uint    `json:"id"`
	GroupID   uint    `json:"group_id"`
	GroupName string  `json:"group_name,omitempty"`
	UserID    uint    `json:"user_id"`
	UserName  string  `json:"user_name,omitempty"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

// DelegationResponse is one grant in API responses
type DelegationResponse struct {
	ID          uint   `json:"id"`
	GroupID     uint   `json:"group_id"`
	DelegatorID uint   `json:"delegator_id"`
	DelegateeID uint   `json:"delegatee_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

// RegisterRoutes registers the ledger and delegation routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/groups/:id/leader", h.AssignLeader)
	rg.GET("/groups/:id/leader", h.CurrentLeader)
	rg.POST("/groups/:id/members", h.AssignMember)
	rg.GET("/groups/:id/members", h.ActiveMembers)
	rg.GET("/groups/:id/leaders", h.GroupLeaderHistory)
	rg.POST("/groups/:id/delegations", h.GrantDelegation)
	rg.GET("/groups/:id/delegations", h.GroupDelegations)
	rg.GET("/leaders/:id/history", h.LeaderHistory)
	rg.GET("/members/:id/history", h.MemberHistory)
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return uint(id), true
}

// asOfDate reads the optional ?date= query, defaulting to today.
func asOfDate(c *gin.Context) (time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return dates.Normalize(time.Now()), true
	}
	d, err := dates.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date parameter"})
		return time.Time{}, false
	}
	return d, true
}

// canAdminister allows staff and the owning village leader. Group leaders
// cannot rewrite their own ledger.
func (h *Handler) canAdminister(callerID, groupID uint) error {
	var caller models.User
	if err := h.db.First(&caller, callerID).Error; err != nil {
		return err
	}
	var group models.GbsGroup
	if err := h.db.First(&group, groupID).Error; err != nil {
		return err
	}
	switch caller.Role {
	case models.RoleAdmin, models.RoleMinister:
		return nil
	case models.RoleVillageLeader:
		if caller.OwnedVillageID != nil && *caller.OwnedVillageID == group.VillageID {
			return nil
		}
	}
	return access.ErrAccessDenied
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, history.ErrInvalidStart),
		errors.Is(err, delegation.ErrInvalidRange),
		errors.Is(err, delegation.ErrNotFutureStart):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, delegation.ErrOverlappingDelegation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, delegation.ErrNotCurrentLeader):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, access.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, history.ErrNoActiveLeader):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed"})
	}
}

// AssignLeader installs a group's leader from a start date onward
// @Summary Assign a group leader
// @Description Close the group's open leadership record, if any, and open a new one. Reassigning the current leader is a no-op.
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body AssignLeaderRequest true "Leader and start date"
// @Success 201 {object} IntervalResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Access denied"
// @Security BearerAuth
// @Router /groups/{id}/leader [post]
func (h *Handler) AssignLeader(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)
	groupID, ok := paramID(c)
	if !ok {
		return
	}

	var req AssignLeaderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := dates.Parse(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date"})
		return
	}

	if err := h.canAdminister(callerID, groupID); err != nil {
		respondError(c, err)
		return
	}

	var leader models.User
	if err := h.db.First(&leader, req.LeaderID).Error; err != nil {
		respondError(c, err)
		return
	}

	rec, err := h.ledger.AssignLeader(groupID, req.LeaderID, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, leadershipResponse(*rec))
}

// CurrentLeader returns the group's leader as of a date
// @Summary Current group leader
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Param date query string false "Reference date (YYYY-MM-DD, default today)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string "No active leader"
// @Security BearerAuth
// @Router /groups/{id}/leader [get]
func (h *Handler) CurrentLeader(c *gin.Context) {
	groupID, ok := paramID(c)
	if !ok {
		return
	}
	asOf, ok := asOfDate(c)
	if !ok {
		return
	}

	leaderID, err := h.ledger.CurrentLeader(groupID, asOf)
	if err != nil {
		respondError(c, err)
		return
	}

	var leader models.User
	if err := h.db.First(&leader, leaderID).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"group_id":  groupID,
		"leader_id": leader.ID,
		"name":      leader.Name,
		"email":     leader.Email,
		"as_of":     dates.Format(asOf),
	})
}

// AssignMember moves a member into the group from a start date onward
// @Summary Assign a group member
// @Description Close the member's open membership record elsewhere, if any, and open a new one on this group.
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body AssignMemberRequest true "Member and start date"
// @Success 201 {object} IntervalResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Access denied"
// @Security BearerAuth
// @Router /groups/{id}/members [post]
func (h *Handler) AssignMember(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)
	groupID, ok := paramID(c)
	if !ok {
		return
	}

	var req AssignMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := dates.Parse(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date"})
		return
	}

	if err := h.canAdminister(callerID, groupID); err != nil {
		respondError(c, err)
		return
	}

	var member models.User
	if err := h.db.First(&member, req.MemberID).Error; err != nil {
		respondError(c, err)
		return
	}

	rec, err := h.ledger.AssignMember(groupID, req.MemberID, start)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, membershipResponse(*rec))
}

// ActiveMembers lists the group's members as of a date
// @Summary Active group members
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Param date query string false "Reference date (YYYY-MM-DD, default today)"
// @Success 200 {array} map[string]interface{}
// @Failure 403 {object} map[string]string "Access denied"
// @Security BearerAuth
// @Router /groups/{id}/members [get]
func (h *Handler) ActiveMembers(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)
	groupID, ok := paramID(c)
	if !ok {
		return
	}
	asOf, ok := asOfDate(c)
	if !ok {
		return
	}

	if err := h.resolver.CanManageGroup(callerID, groupID, dates.Normalize(time.Now())); err != nil {
		respondError(c, err)
		return
	}

	ids, err := h.ledger.ActiveMembers(groupID, asOf)
	if err != nil {
		respondError(c, err)
		return
	}

	members := []gin.H{}
	if len(ids) > 0 {
		var users []models.User
		if err := h.db.Where("id IN ?", ids).Order("id ASC").Find(&users).Error; err != nil {
			respondError(c, err)
			return
		}
		for _, u := range users {
			members = append(members, gin.H{"id": u.ID, "name": u.Name, "email": u.Email})
		}
	}
	c.JSON(http.StatusOK, members)
}

// GroupLeaderHistory lists every leadership interval of the group
// @Summary Group leadership history
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {array} IntervalResponse
// @Failure 403 {object} map[string]string "Access denied"
// @Security BearerAuth
// @Router /groups/{id}/leaders [get]
func (h *Handler) GroupLeaderHistory(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)
	groupID, ok := paramID(c)
	if !ok {
		return
	}

	if err := h.resolver.CanManageGroup(callerID, groupID, dates.Normalize(time.Now())); err != nil {
		respondError(c, err)
		return
	}

	recs, err := h.ledger.GroupLeaderHistory(groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	responses := make([]IntervalResponse, len(recs))
	for i, r := range recs {
		responses[i] = leadershipResponse(r)
	}
	c.JSON(http.StatusOK, responses)
}

// LeaderHistory lists every leadership interval of a user, across groups
// @Summary Leader history
// @Description Full leadership history of one user. Visible to the user, staff, and village leaders.
// @Tags groups
// @Produce json
// @Param id path int true "Leader's user ID"
// @Success 200 {array} IntervalResponse
// @Failure 403 {object} map[string]string "Access denied"
// @Security BearerAuth
// @Router /leaders/{id}/history [get]
func (h *Handler) LeaderHistory(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)
	leaderID, ok := paramID(c)
	if !ok {
		return
	}

	if err := h.resolver.CanViewLeaderHistory(callerID, leaderID); err != nil {
		respondError(c, err)
		return
	}

	recs, err := h.ledger.LeaderHistory(leaderID)
	if err != nil {
		respondError(c, err)
		return
	}
	responses := make([]IntervalResponse, len(recs))
	for i, r := range recs {
		responses[i] = leadershipResponse(r)
	}
	c.JSON(http.StatusOK, responses)
}

// MemberHistory lists every membership interval of a user
// @Summary Member history
// @Description Full membership history of one user. Visible to the user and staff.
// @Tags groups
// @Produce json
// @Param id path int true "Member's user ID"
// @Success 200 {array} IntervalResponse
// @Failure 403 {object} map[string]string "Access denied"
// @Security BearerAuth
// @Router /members/{id}/history [get]
func (h *Handler) MemberHistory(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)
	memberID, ok := paramID(c)
	if !ok {
		return
	}

	if memberID != callerID {
		var caller models.User
		if err := h.db.First(&caller, callerID).Error; err != nil {
			respondError(c, err)
			return
		}
		if caller.Role != models.RoleAdmin && caller.Role != models.RoleMinister {
			respondError(c, access.ErrAccessDenied)
			return
		}
	}

	recs, err := h.ledger.MemberHistory(memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	responses := make([]IntervalResponse, len(recs))
	for i, r := range recs {
		responses[i] = membershipResponse(r)
	}
	c.JSON(http.StatusOK, responses)
}

// GrantDelegation lends the caller's leadership over a future window
// @Summary Grant a delegation
// @Description The group's current leader delegates leader-equivalent access for a strictly future, bounded date range.
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body GrantDelegationRequest true "Delegatee and date range"
// @Success 201 {object} DelegationResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Caller is not the current leader"
// @Failure 409 {object} map[string]string "Overlapping delegation"
// @Security BearerAuth
// @Router /groups/{id}/delegations [post]
func (h *Handler) GrantDelegation(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)
	groupID, ok := paramID(c)
	if !ok {
		return
	}

	var req GrantDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := dates.Parse(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date"})
		return
	}
	end, err := dates.Parse(req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date"})
		return
	}

	var delegatee models.User
	if err := h.db.First(&delegatee, req.DelegateeID).Error; err != nil {
		respondError(c, err)
		return
	}

	grant, err := h.grants.Grant(groupID, callerID, req.DelegateeID, start, end, dates.Normalize(time.Now()))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, delegationResponse(*grant))
}

// GroupDelegations lists every delegation ever granted for the group
// @Summary Group delegations
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {array} DelegationResponse
// @Failure 403 {object} map[string]string "Access denied"
// @Security BearerAuth
// @Router /groups/{id}/delegations [get]
func (h *Handler) GroupDelegations(c *gin.Context) {
	callerID, _ := auth.GetUserID(c)
	groupID, ok := paramID(c)
	if !ok {
		return
	}

	if err := h.resolver.CanManageGroup(callerID, groupID, dates.Normalize(time.Now())); err != nil {
		respondError(c, err)
		return
	}

	grants, err := h.grants.GrantsForGroup(groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	responses := make([]DelegationResponse, len(grants))
	for i, g := range grants {
		responses[i] = delegationResponse(g)
	}
	c.JSON(http.StatusOK, responses)
}

func leadershipResponse(r models.LeadershipRecord) IntervalResponse {
	resp := IntervalResponse{
		ID:        r.ID,
		GroupID:   r.GroupID,
		GroupName: r.Group.Name,
		UserID:    r.LeaderID,
		UserName:  r.Leader.Name,
		StartDate: dates.Format(r.StartDate),
	}
	if r.EndDate != nil {
		end := dates.Format(*r.EndDate)
		resp.EndDate = &end
	}
	return resp
}

func membershipResponse(r models.MembershipRecord) IntervalResponse {
	resp := IntervalResponse{
		ID:        r.ID,
		GroupID:   r.GroupID,
		GroupName: r.Group.Name,
		UserID:    r.MemberID,
		UserName:  r.Member.Name,
		StartDate: dates.Format(r.StartDate),
	}
	if r.EndDate != nil {
		end := dates.Format(*r.EndDate)
		resp.EndDate = &end
	}
	return resp
}

func delegationResponse(g models.DelegationGrant) DelegationResponse {
	return DelegationResponse{
		ID:          g.ID,
		GroupID:     g.GbsGroupID,
		DelegatorID: g.DelegatorID,
		DelegateeID: g.DelegateeID,
		StartDate:   dates.Format(g.StartDate),
		EndDate:     dates.Format(g.EndDate),
	}
}
