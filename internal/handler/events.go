package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusconnect/internal/apperr"
	"campusconnect/internal/attendance"
	"campusconnect/internal/models"
	"campusconnect/internal/verification"
)

// ---------- Events ----------

func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.Attendance.ListEvents(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) GetEvent(c *gin.Context) {
	evt, err := h.Attendance.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, evt)
}

func (h *Handler) CreateEvent(c *gin.Context) {
	var details models.EventDetails
	if !bind(c, &details) {
		return
	}
	evt, err := h.Attendance.CreateEvent(c.Request.Context(), claims(c).UserID, details)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, evt)
}

func (h *Handler) UpdateEvent(c *gin.Context) {
	var patch models.EventDetails
	if !bind(c, &patch) {
		return
	}
	evt, err := h.Attendance.UpdateEvent(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, evt)
}

func (h *Handler) DeleteEvent(c *gin.Context) {
	if err := h.Attendance.DeleteEvent(c.Request.Context(), claims(c).UserID, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event deleted"})
}

func (h *Handler) EventCode(c *gin.Context) {
	code, err := h.Attendance.Code(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

type codeBody struct {
	Code string `json:"code"`
}

// optionalCode reads {"code": ...} from the body; an empty body yields "".
func optionalCode(c *gin.Context) (string, error) {
	var body codeBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		return "", apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	return body.Code, nil
}

func checkInResponse(rec any, res attendance.CheckInResult) gin.H {
	msg := "Attendance marked successfully"
	if !res.Created {
		msg = "Attendance already marked"
	}
	return gin.H{"message": msg, "record": rec, "created": res.Created, "xpGained": res.XPGained}
}

// AttendEvent checks the caller in. A supplied code must name this event.
func (h *Handler) AttendEvent(c *gin.Context) {
	eventID := c.Param("id")
	text, err := optionalCode(c)
	if err != nil {
		fail(c, err)
		return
	}
	if text != "" {
		code, err := verification.Parse(text)
		if err == nil {
			err = code.Expect(verification.TypeAttendance, eventID)
		}
		if err != nil {
			fail(c, err)
			return
		}
	}
	rec, res, err := h.Attendance.CheckIn(c.Request.Context(), eventID, claims(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, checkInResponse(rec, res))
}

func (h *Handler) ApproveAttendance(c *gin.Context) {
	rec, err := h.Attendance.Approve(c.Request.Context(), claims(c).UserID, c.Param("id"), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attendance approved", "record": rec})
}

// CheckIn redeems a verification code for whichever resource it names.
func (h *Handler) CheckIn(c *gin.Context) {
	var body codeBody
	if !bind(c, &body) {
		return
	}
	r, err := h.Attendance.Redeem(c.Request.Context(), body.Code, claims(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if r.Created {
		status = http.StatusCreated
	}
	c.JSON(status, r)
}

func (h *Handler) EventReport(c *gin.Context) {
	r, err := h.Attendance.EventReport(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ---------- Practice sessions ----------

func (h *Handler) ListSessions(c *gin.Context) {
	cl := claims(c)
	list, err := h.Attendance.ListSessions(c.Request.Context(), attendance.Viewer{UserID: cl.UserID, Role: cl.Role})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetSession(c *gin.Context) {
	s, err := h.Attendance.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) CreateSession(c *gin.Context) {
	var details models.SessionDetails
	if !bind(c, &details) {
		return
	}
	s, err := h.Attendance.CreateSession(c.Request.Context(), claims(c).UserID, details)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) AttendSession(c *gin.Context) {
	sessionID := c.Param("id")
	text, err := optionalCode(c)
	if err != nil {
		fail(c, err)
		return
	}
	if text != "" {
		code, err := verification.Parse(text)
		if err == nil {
			err = code.Expect(verification.TypePractice, sessionID)
		}
		if err != nil {
			fail(c, err)
			return
		}
	}
	rec, res, err := h.Attendance.CheckInSession(c.Request.Context(), sessionID, claims(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, checkInResponse(rec, res))
}

type statusBody struct {
	Status models.SessionStatus `json:"status" binding:"required"`
}

func (h *Handler) SetSessionStatus(c *gin.Context) {
	var body statusBody
	if !bind(c, &body) {
		return
	}
	s, err := h.Attendance.SetSessionStatus(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) SessionReport(c *gin.Context) {
	r, err := h.Attendance.SessionReport(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
