package reservation

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"studieplekken/internal/auth"
	"studieplekken/internal/calendar"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Reserve godoc
// @Summary      Reserve a seat on a timeslot
// @Description  Admits the caller immediately, or queues the request for the
// @Description  pool processor during the leveling window right after the
// @Description  timeslot opens for booking.
// @Tags         reservations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      ReserveRequest  true  "Timeslot"
// @Success      201      {object}  Reservation
// @Failure      409      {object}  gin.H
// @Router       /reservations [post]
func (h *Handler) Reserve(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.Reserve(c.Request.Context(), userID, req.TimeslotID)
	if err != nil {
		writeReservationError(c, err, "Failed to reserve")
		return
	}

	c.JSON(http.StatusCreated, res)
}

// Cancel godoc
// @Summary      Cancel the caller's reservation on a timeslot
// @Tags         reservations
// @Security     BearerAuth
// @Produce      json
// @Param        timeslotID  path      int  true  "Timeslot ID"
// @Success      200         {object}  gin.H
// @Failure      404         {object}  gin.H
// @Router       /reservations/{timeslotID} [delete]
func (h *Handler) Cancel(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	timeslotID, err := strconv.Atoi(c.Param("timeslotID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timeslot ID"})
		return
	}

	if err := h.service.Cancel(c.Request.Context(), userID, timeslotID); err != nil {
		writeReservationError(c, err, "Failed to cancel reservation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Reservation cancelled"})
}

// MyReservations godoc
// @Summary      List the caller's reservations
// @Tags         reservations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  ReservationDetails
// @Router       /reservations/me [get]
func (h *Handler) MyReservations(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	reservations, err := h.service.MyReservations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reservations"})
		return
	}

	c.JSON(http.StatusOK, reservations)
}

// Attendees godoc
// @Summary      List reservations of a timeslot for the scan desk
// @Tags         attendance
// @Security     BearerAuth
// @Produce      json
// @Param        timeslotID  path     int  true  "Timeslot ID"
// @Success      200         {array}  Attendee
// @Router       /admin/timeslots/{timeslotID}/attendees [get]
func (h *Handler) Attendees(c *gin.Context) {
	timeslotID, err := strconv.Atoi(c.Param("timeslotID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timeslot ID"})
		return
	}

	attendees, err := h.service.Attendees(c.Request.Context(), timeslotID)
	if err != nil {
		writeReservationError(c, err, "Failed to fetch attendees")
		return
	}

	c.JSON(http.StatusOK, attendees)
}

// SetAttendance godoc
// @Summary      Record a scan result for one reservation
// @Tags         attendance
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        timeslotID  path      int                true  "Timeslot ID"
// @Param        request     body      AttendanceRequest  true  "Scan result"
// @Success      200         {object}  gin.H
// @Failure      409         {object}  gin.H
// @Router       /admin/timeslots/{timeslotID}/attendance [put]
func (h *Handler) SetAttendance(c *gin.Context) {
	timeslotID, err := strconv.Atoi(c.Param("timeslotID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timeslot ID"})
		return
	}

	var req AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.SetAttendance(c.Request.Context(), timeslotID, req.UserID, *req.Attended); err != nil {
		writeReservationError(c, err, "Failed to set attendance")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Attendance recorded"})
}

// Sweep godoc
// @Summary      Mark unscanned reservations of a timeslot absent
// @Tags         attendance
// @Security     BearerAuth
// @Produce      json
// @Param        timeslotID  path      int  true  "Timeslot ID"
// @Success      200         {object}  gin.H
// @Router       /admin/timeslots/{timeslotID}/sweep [post]
func (h *Handler) Sweep(c *gin.Context) {
	timeslotID, err := strconv.Atoi(c.Param("timeslotID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timeslot ID"})
		return
	}

	swept, err := h.service.SweepTimeslot(c.Request.Context(), timeslotID)
	if err != nil {
		writeReservationError(c, err, "Failed to sweep timeslot")
		return
	}

	c.JSON(http.StatusOK, gin.H{"swept": swept})
}

// NoShows godoc
// @Summary      List absent reservations of a day
// @Tags         attendance
// @Security     BearerAuth
// @Produce      json
// @Param        date  query    string  true  "Day (YYYY-MM-DD)"
// @Success      200   {array}  NoShow
// @Router       /admin/no-shows [get]
func (h *Handler) NoShows(c *gin.Context) {
	day, ok := parseDay(c)
	if !ok {
		return
	}

	noShows, err := h.service.NoShowsOfDay(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch no-shows"})
		return
	}

	c.JSON(http.StatusOK, noShows)
}

// NotifyNoShows godoc
// @Summary      Queue notice mails for every no-show of a day
// @Tags         attendance
// @Security     BearerAuth
// @Produce      json
// @Param        date  query     string  true  "Day (YYYY-MM-DD)"
// @Success      200   {object}  gin.H
// @Router       /admin/no-shows/notify [post]
func (h *Handler) NotifyNoShows(c *gin.Context) {
	day, ok := parseDay(c)
	if !ok {
		return
	}

	sent, err := h.service.NotifyNoShows(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue no-show notices"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"queued": sent})
}

func parseDay(c *gin.Context) (time.Time, bool) {
	day, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return day, true
}

func writeReservationError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrTimeslotFull):
		c.JSON(http.StatusConflict, gin.H{"error": "No seats left on this timeslot"})
	case errors.Is(err, ErrDuplicateReservation):
		c.JSON(http.StatusConflict, gin.H{"error": "You already hold a reservation for this timeslot"})
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Reservation state does not allow this change"})
	case errors.Is(err, ErrNotReservable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Timeslot is not reservable"})
	case errors.Is(err, ErrWindowNotOpen):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Booking window has not opened yet"})
	case errors.Is(err, ErrTimeslotEnded):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Timeslot already ended"})
	case errors.Is(err, ErrReservationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Reservation not found"})
	case errors.Is(err, calendar.ErrTimeslotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Timeslot not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
