// Package handler exposes the campus services over HTTP with gin.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusconnect/internal/announcements"
	"campusconnect/internal/apperr"
	"campusconnect/internal/attendance"
	"campusconnect/internal/audit"
	"campusconnect/internal/auth"
	"campusconnect/internal/httpmiddleware"
	"campusconnect/internal/identity"
	"campusconnect/internal/notify"
	"campusconnect/internal/roles"
	"campusconnect/internal/scoring"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the services the handlers delegate to.
type Deps struct {
	Signer        *auth.Signer
	Identity      *identity.Service
	Attendance    *attendance.Service
	Notifications *notify.Hub
	Scores        *scoring.Scorer
	Roles         *roles.Service
	Announcements *announcements.Service
	Audit         *audit.Log
	Health        map[string]HealthCheck

	RequestTimeout time.Duration
	Limiter        *httpmiddleware.TokenBucket
}

type Handler struct {
	Deps
	guard *auth.Guard
}

func New(d Deps) *Handler {
	return &Handler{Deps: d, guard: auth.NewGuard(d.Identity)}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	limit := func(c *gin.Context) { c.Next() }
	if h.Limiter != nil {
		limit = h.Limiter.GinMiddleware()
	}
	timeout := httpmiddleware.Timeout(h.RequestTimeout)

	public := r.Group("/api/auth", limit, timeout)
	{
		public.POST("/register", h.Register)
		public.POST("/login", h.Login)
	}

	// The stream is long-lived, so it skips the request timeout.
	r.GET("/api/notifications/stream", auth.Bearer(h.Signer, true), limit, h.StreamNotifications)

	api := r.Group("/api", auth.Bearer(h.Signer, false), limit, timeout)
	require := func(p auth.Policy) gin.HandlerFunc { return auth.Require(h.guard, p) }

	api.GET("/auth/me", h.Me)
	api.PUT("/auth/profile", h.UpdateProfile)

	api.GET("/events", h.ListEvents)
	api.GET("/events/:id", h.GetEvent)
	api.POST("/events", require(auth.Claim(auth.CapManageEvents)), h.CreateEvent)
	api.PUT("/events/:id", require(auth.Claim(auth.CapManageEvents)), h.UpdateEvent)
	api.DELETE("/events/:id", require(auth.Claim(auth.CapManageEvents)), h.DeleteEvent)
	api.GET("/events/:id/code", require(auth.Claim(auth.CapManageEvents)), h.EventCode)
	api.POST("/events/:id/attend", h.AttendEvent)
	api.POST("/events/:id/approve/:userId", require(auth.Claim(auth.CapApproveAttendance)), h.ApproveAttendance)
	api.POST("/checkin", h.CheckIn)
	api.GET("/reports/attendance/:eventId", require(auth.Claim(auth.CapViewReports)), h.EventReport)

	api.GET("/practice/sessions", h.ListSessions)
	api.GET("/practice/sessions/:id", h.GetSession)
	api.POST("/practice/sessions", require(auth.Claim(auth.CapManageSessions)), h.CreateSession)
	api.POST("/practice/sessions/:id/attend", h.AttendSession)
	api.PUT("/practice/sessions/:id/status", require(auth.Claim(auth.CapManageSessions)), h.SetSessionStatus)
	api.GET("/practice/report/:sessionId", require(auth.Claim(auth.CapViewReports)), h.SessionReport)

	api.GET("/notifications", h.ListNotifications)
	api.PUT("/notifications/read-all", h.MarkAllNotificationsRead)
	api.PUT("/notifications/:id/read", h.MarkNotificationRead)

	api.GET("/dashboard/score", h.Score)

	api.POST("/role-requests", h.CreateRoleRequest)
	api.GET("/role-requests", require(auth.Claim(auth.CapReviewRoleRequests)), h.ListRoleRequests)
	api.PUT("/role-requests/:id", require(auth.Claim(auth.CapReviewRoleRequests)), h.ReviewRoleRequest)

	users := api.Group("/admin/users", require(auth.Live(auth.CapManageUsers)))
	{
		users.GET("", h.ListUsers)
		users.PUT("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)
	}

	api.GET("/announcements", h.ListAnnouncements)
	api.POST("/announcements", require(auth.Live(auth.CapPostAnnouncements)), h.CreateAnnouncement)
	api.PUT("/announcements/:id", require(auth.Live(auth.CapPostAnnouncements)), h.UpdateAnnouncement)
	api.DELETE("/announcements/:id", require(auth.Live(auth.CapPostAnnouncements)), h.DeleteAnnouncement)

	api.GET("/audit-logs", require(auth.Claim(auth.CapViewAuditLog)), h.AuditLogs)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.Health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- helpers ----------

// fail renders err as {"error": msg}. Internal causes are logged, never sent.
func fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err, "method", c.Request.Method, "path", c.FullPath())
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// bind decodes the JSON body into dst, reporting malformed input as a validation error.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return false
	}
	return true
}

func claims(c *gin.Context) auth.Claims {
	cl, _ := auth.ClaimsFrom(c)
	return cl
}
