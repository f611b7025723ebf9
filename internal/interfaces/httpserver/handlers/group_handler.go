package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/interfaces/httpserver/requests"
	"collab-server/services/groupchat-api/internal/interfaces/httpserver/responses"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// GroupHandler exposes HTTP entrypoints for groups and their members.
type GroupHandler struct {
	service group.Service
	log     zerolog.Logger
}

// NewGroupHandler constructs the handler.
func NewGroupHandler(service group.Service, log zerolog.Logger) *GroupHandler {
	return &GroupHandler{
		service: service,
		log:     log.With().Str("handler", "group").Logger(),
	}
}

// List handles GET /v1/groups
// @Summary List my groups
// @Description Lists the groups the caller belongs to, most recently active first
// @Tags Groups
// @Produce json
// @Success 200 {array} group.Summary
// @Failure 401 {object} responses.ErrorResponse
// @Failure 500 {object} responses.ErrorResponse
// @Security BearerAuth
// @Router /v1/groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}

	groups, err := h.service.ListForIdentity(c.Request.Context(), ident)
	if err != nil {
		responses.HandleError(c, err, "failed to list groups")
		return
	}
	if groups == nil {
		groups = []group.Summary{}
	}
	c.JSON(http.StatusOK, groups)
}

// Create handles POST /v1/groups
// @Summary Create a group
// @Description Creates a group with its initial members. Admin only.
// @Tags Groups
// @Accept json
// @Produce json
// @Param request body requests.CreateGroupRequest true "Group"
// @Success 201 {object} group.Group
// @Failure 400 {object} responses.ErrorResponse
// @Failure 401 {object} responses.ErrorResponse
// @Failure 403 {object} responses.ErrorResponse
// @Failure 500 {object} responses.ErrorResponse
// @Security BearerAuth
// @Router /v1/groups [post]
func (h *GroupHandler) Create(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req requests.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body", "group-create-bind-001")
		return
	}

	in := group.CreateInput{
		ProjectID: req.ProjectID,
		Name:      req.Name,
		OrgID:     orgOf(req.OrgID, ident),
		Members:   make([]group.MemberInput, 0, len(req.Members)),
	}
	for _, m := range req.Members {
		in.Members = append(in.Members, group.MemberInput{EmployeeID: m.EmployeeID, CustomerID: m.CustomerID, Role: m.Role})
	}

	g, err := h.service.Create(c.Request.Context(), ident, in)
	if err != nil {
		responses.HandleError(c, err, "failed to create group")
		return
	}
	c.JSON(http.StatusCreated, g)
}

// AddMember handles POST /v1/groups/:groupId/members
// @Summary Add a group member
// @Description Adds an employee or a customer to a group. Admin only.
// @Tags Groups
// @Accept json
// @Produce json
// @Param groupId path int true "Group ID"
// @Param request body requests.MemberRequest true "Member"
// @Success 201 {object} membership.Membership
// @Failure 400 {object} responses.ErrorResponse
// @Failure 403 {object} responses.ErrorResponse
// @Failure 404 {object} responses.ErrorResponse
// @Failure 409 {object} responses.ErrorResponse
// @Security BearerAuth
// @Router /v1/groups/{groupId}/members [post]
func (h *GroupHandler) AddMember(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}

	var req requests.MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body", "member-add-bind-001")
		return
	}

	m, err := h.service.AddMember(c.Request.Context(), ident, groupID, group.MemberInput{
		EmployeeID: req.EmployeeID,
		CustomerID: req.CustomerID,
		Role:       req.Role,
	})
	if err != nil {
		responses.HandleError(c, err, "failed to add member")
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ListMembers handles GET /v1/groups/:groupId/members
// @Summary List group members
// @Description Lists the members of a group with display names. Members only.
// @Tags Groups
// @Produce json
// @Param groupId path int true "Group ID"
// @Success 200 {array} group.Member
// @Failure 400 {object} responses.ErrorResponse
// @Failure 403 {object} responses.ErrorResponse
// @Security BearerAuth
// @Router /v1/groups/{groupId}/members [get]
func (h *GroupHandler) ListMembers(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "groupId")
	if !ok {
		return
	}

	members, err := h.service.ListMembers(c.Request.Context(), ident, groupID)
	if err != nil {
		responses.HandleError(c, err, "failed to list members")
		return
	}
	if members == nil {
		members = []group.Member{}
	}
	c.JSON(http.StatusOK, members)
}

// ProvisionProjectGroup handles POST /v1/projects/:projectId/group
// @Summary Provision a project group
// @Description Returns the project's group, creating it with the customer and every org admin when missing. Admin only.
// @Tags Groups
// @Accept json
// @Produce json
// @Param projectId path int true "Project ID"
// @Param request body requests.ProvisionGroupRequest true "Project group"
// @Success 200 {object} group.Group
// @Success 201 {object} group.Group
// @Failure 400 {object} responses.ErrorResponse
// @Failure 403 {object} responses.ErrorResponse
// @Security BearerAuth
// @Router /v1/projects/{projectId}/group [post]
func (h *GroupHandler) ProvisionProjectGroup(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "projectId")
	if !ok {
		return
	}

	var req requests.ProvisionGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid request body", "project-group-bind-001")
		return
	}
	name := req.Name
	if name == "" {
		name = "Project " + strconv.FormatInt(projectID, 10)
	}

	g, created, err := h.service.ProvisionProjectGroup(c.Request.Context(), ident, projectID, group.ProvisionInput{
		Name:       name,
		OrgID:      orgOf(req.OrgID, ident),
		CustomerID: req.CustomerID,
	})
	if err != nil {
		responses.HandleError(c, err, "failed to provision project group")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, g)
}
