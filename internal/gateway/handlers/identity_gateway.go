package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pos-system/internal/database/models"
	identity "pos-system/internal/services/identity/handler"
	"pos-system/internal/utils"
)

type IdentityHTTPHandler struct {
	identity *identity.IdentityHandler
	jwt      *utils.JWTManager
}

func NewIdentityHTTPHandler(identity *identity.IdentityHandler, jwt *utils.JWTManager) *IdentityHTTPHandler {
	return &IdentityHTTPHandler{
		identity: identity,
		jwt:      jwt,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateRoleRequest struct {
	Name string `json:"name" binding:"required"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type PermissionRequest struct {
	Permission string `json:"permission" binding:"required"`
}

// --- Authentication ---

func (h *IdentityHTTPHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	employee, err := h.identity.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}

	token, exp, err := h.jwt.GenerateToken(employee.ID, employee.Username)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse("Login successful", gin.H{
		"token":      token,
		"expires_at": exp,
		"employee":   employee,
	}))
}

// --- Employee Management ---

func (h *IdentityHTTPHandler) CreateEmployee(c *gin.Context) {
	var req identity.CreateEmployeeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	employee, err := h.identity.CreateEmployee(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Employee created", employee))
}

func (h *IdentityHTTPHandler) ListEmployees(c *gin.Context) {
	employees, err := h.identity.ListEmployees(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Employees retrieved", employees))
}

func (h *IdentityHTTPHandler) GetEmployee(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	employee, err := h.identity.GetEmployee(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Employee retrieved", employee))
}

func (h *IdentityHTTPHandler) SetEmployeeActive(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	if err := h.identity.SetEmployeeActive(c.Request.Context(), id, *req.Active); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Employee updated", nil))
}

func (h *IdentityHTTPHandler) DeleteEmployee(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.identity.DeleteEmployee(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Employee deleted", nil))
}

func (h *IdentityHTTPHandler) AssignRole(c *gin.Context) {
	employeeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	roleID, ok := parseIDParam(c, "role_id")
	if !ok {
		return
	}

	if err := h.identity.AssignRole(c.Request.Context(), employeeID, roleID, actor(c)); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Role assigned", nil))
}

func (h *IdentityHTTPHandler) RevokeRole(c *gin.Context) {
	employeeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	roleID, ok := parseIDParam(c, "role_id")
	if !ok {
		return
	}

	if err := h.identity.RevokeRole(c.Request.Context(), employeeID, roleID, actor(c)); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Role revoked", nil))
}

func (h *IdentityHTTPHandler) ListRoleAudit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.identity.ListRoleAudit(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Role audit retrieved", entries))
}

// --- Role Management ---

func (h *IdentityHTTPHandler) CreateRole(c *gin.Context) {
	var req CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	role, err := h.identity.CreateRole(c.Request.Context(), req.Name)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Role created", role))
}

func (h *IdentityHTTPHandler) ListRoles(c *gin.Context) {
	roles, err := h.identity.ListRoles(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Roles retrieved", roles))
}

func (h *IdentityHTTPHandler) GetRole(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	role, err := h.identity.GetRole(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Role retrieved", role))
}

func (h *IdentityHTTPHandler) SetRoleActive(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	if err := h.identity.SetRoleActive(c.Request.Context(), id, *req.Active); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Role updated", nil))
}

func (h *IdentityHTTPHandler) DeleteRole(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.identity.DeleteRole(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Role deleted", nil))
}

func (h *IdentityHTTPHandler) GrantPermission(c *gin.Context) {
	roleID, permission, ok := h.permissionRequest(c)
	if !ok {
		return
	}

	if err := h.identity.GrantPermission(c.Request.Context(), roleID, permission, actor(c)); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Permission granted", nil))
}

func (h *IdentityHTTPHandler) RevokePermission(c *gin.Context) {
	roleID, permission, ok := h.permissionRequest(c)
	if !ok {
		return
	}

	if err := h.identity.RevokePermission(c.Request.Context(), roleID, permission, actor(c)); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Permission revoked", nil))
}

func (h *IdentityHTTPHandler) permissionRequest(c *gin.Context) (int64, models.Permission, bool) {
	roleID, ok := parseIDParam(c, "id")
	if !ok {
		return 0, "", false
	}
	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return 0, "", false
	}
	permission, err := models.ParsePermission(req.Permission)
	if err != nil {
		badRequest(c, err.Error())
		return 0, "", false
	}
	return roleID, permission, true
}

func (h *IdentityHTTPHandler) ListPermissionAudit(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.identity.ListPermissionAudit(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Permission audit retrieved", entries))
}
