package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campusconnect/internal/identity"
	"campusconnect/internal/models"
	"campusconnect/internal/roles"
)

// ---------- Auth ----------

func (h *Handler) Register(c *gin.Context) {
	var in identity.RegisterInput
	if !bind(c, &in) {
		return
	}
	sess, err := h.Identity.Register(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	sess, err := h.Identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) Me(c *gin.Context) {
	u, err := h.Identity.Get(c.Request.Context(), claims(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u.Public())
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var patch models.Profile
	if !bind(c, &patch) {
		return
	}
	u, err := h.Identity.UpdateProfile(c.Request.Context(), claims(c).UserID, patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) Score(c *gin.Context) {
	s, err := h.Scores.Compute(c.Request.Context(), claims(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ---------- Role requests ----------

type roleRequestBody struct {
	RequestedRole models.Role `json:"requestedRole" binding:"required"`
	Reason        string      `json:"reason"`
}

func (h *Handler) CreateRoleRequest(c *gin.Context) {
	var body roleRequestBody
	if !bind(c, &body) {
		return
	}
	req, err := h.Roles.Create(c.Request.Context(), claims(c).UserID, body.RequestedRole, body.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *Handler) ListRoleRequests(c *gin.Context) {
	list, err := h.Roles.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type reviewBody struct {
	Status models.RequestStatus `json:"status" binding:"required"`
}

func (h *Handler) ReviewRoleRequest(c *gin.Context) {
	var body reviewBody
	if !bind(c, &body) {
		return
	}
	req, err := h.Roles.Review(c.Request.Context(), claims(c).UserID, c.Param("id"), body.Status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ---------- User administration ----------

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Roles.ListUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var patch roles.UserPatch
	if !bind(c, &patch) {
		return
	}
	u, err := h.Roles.UpdateUser(c.Request.Context(), claims(c).UserID, c.Param("id"), patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.Roles.DeleteUser(c.Request.Context(), claims(c).UserID, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

func (h *Handler) AuditLogs(c *gin.Context) {
	n, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.Audit.Recent(c.Request.Context(), n)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
