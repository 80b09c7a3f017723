package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusconnect/internal/announcements"
)

// ---------- Notifications ----------

func (h *Handler) ListNotifications(c *gin.Context) {
	list, err := h.Notifications.List(c.Request.Context(), claims(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.Notifications.MarkRead(c.Request.Context(), claims(c).UserID, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), claims(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read", "updated": n})
}

const heartbeatInterval = 25 * time.Second

// StreamNotifications pushes the caller's notifications as server-sent events
// until the client goes away.
func (h *Handler) StreamNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	userID := claims(c).UserID
	sub, err := h.Notifications.Subscribe(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", userID)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return false
			}
			c.SSEvent("notification", string(msg))
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-ctx.Done():
			slog.Debug("notification stream closed", "user_id", userID)
			return false
		}
	})
}

// ---------- Announcements ----------

func (h *Handler) ListAnnouncements(c *gin.Context) {
	list, err := h.Announcements.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateAnnouncement(c *gin.Context) {
	var in announcements.Input
	if !bind(c, &in) {
		return
	}
	a, err := h.Announcements.Create(c.Request.Context(), claims(c).UserID, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAnnouncement(c *gin.Context) {
	var in announcements.Input
	if !bind(c, &in) {
		return
	}
	a, err := h.Announcements.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAnnouncement(c *gin.Context) {
	if err := h.Announcements.Delete(c.Request.Context(), claims(c).UserID, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Announcement deleted"})
}
