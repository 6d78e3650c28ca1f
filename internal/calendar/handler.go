package calendar

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"studieplekken/internal/location"
)

type Handler struct {
	service Service
}

func NewHandler(db *sqlx.DB, locations location.Repository) *Handler {
	return &Handler{service: NewService(NewRepository(db), locations)}
}

// AddPeriods godoc
// @Summary      Add calendar periods
// @Tags         calendar
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      []PeriodRequest  true  "Periods"
// @Success      201      {array}   Period
// @Failure      400      {object}  gin.H
// @Router       /admin/periods [post]
func (h *Handler) AddPeriods(c *gin.Context) {
	var reqs []PeriodRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(reqs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No periods given"})
		return
	}

	periods, err := h.service.AddPeriods(c.Request.Context(), reqs)
	if err != nil {
		writePeriodError(c, err, "Failed to add periods")
		return
	}

	c.JSON(http.StatusCreated, periods)
}

// GetPeriodsOfLocation godoc
// @Summary      List calendar periods of a location
// @Tags         calendar
// @Produce      json
// @Param        locationID  path     int  true  "Location ID"
// @Success      200         {array}  Period
// @Router       /locations/{locationID}/periods [get]
func (h *Handler) GetPeriodsOfLocation(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("locationID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location ID"})
		return
	}

	periods, err := h.service.GetPeriodsOfLocation(c.Request.Context(), id)
	if err != nil {
		writePeriodError(c, err, "Failed to fetch periods")
		return
	}

	c.JSON(http.StatusOK, periods)
}

// UpdatePeriod godoc
// @Summary      Update a calendar period
// @Tags         calendar
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        periodID  path      int            true  "Period ID"
// @Param        request   body      PeriodRequest  true  "Period"
// @Success      200       {object}  Period
// @Failure      409       {object}  gin.H
// @Router       /admin/periods/{periodID} [put]
func (h *Handler) UpdatePeriod(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("periodID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period ID"})
		return
	}

	var req PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	period, err := h.service.UpdatePeriod(c.Request.Context(), id, req)
	if err != nil {
		writePeriodError(c, err, "Failed to update period")
		return
	}

	c.JSON(http.StatusOK, period)
}

// UpdatePeriods godoc
// @Summary      Replace the calendar periods of a location
// @Description  Sends both the period set the edit was based on and the
// @Description  replacement set. A 409 means the stored calendar changed in
// @Description  the meantime and must be refetched.
// @Tags         calendar
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        locationID  path      int                   true  "Location ID"
// @Param        request     body      UpdatePeriodsRequest  true  "From and to period sets"
// @Success      200         {array}   Period
// @Failure      409         {object}  gin.H
// @Router       /admin/locations/{locationID}/periods [put]
func (h *Handler) UpdatePeriods(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("locationID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location ID"})
		return
	}

	var req UpdatePeriodsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	periods, err := h.service.UpdatePeriods(c.Request.Context(), id, req.From, req.To)
	if err != nil {
		writePeriodError(c, err, "Failed to update periods")
		return
	}

	c.JSON(http.StatusOK, periods)
}

// DeletePeriod godoc
// @Summary      Delete a calendar period
// @Tags         calendar
// @Security     BearerAuth
// @Produce      json
// @Param        periodID  path      int  true  "Period ID"
// @Success      200       {object}  gin.H
// @Failure      409       {object}  gin.H
// @Router       /admin/periods/{periodID} [delete]
func (h *Handler) DeletePeriod(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("periodID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period ID"})
		return
	}

	if err := h.service.DeletePeriod(c.Request.Context(), id); err != nil {
		writePeriodError(c, err, "Failed to delete period")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Period deleted"})
}

// GetTimeslotsOfLocation godoc
// @Summary      List timeslots of a location
// @Tags         calendar
// @Produce      json
// @Param        locationID  path     int  true  "Location ID"
// @Success      200         {array}  Timeslot
// @Router       /locations/{locationID}/timeslots [get]
func (h *Handler) GetTimeslotsOfLocation(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("locationID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location ID"})
		return
	}

	slots, err := h.service.GetTimeslotsOfLocation(c.Request.Context(), id)
	if err != nil {
		writePeriodError(c, err, "Failed to fetch timeslots")
		return
	}

	c.JSON(http.StatusOK, slots)
}

// GetTimeslotsOfPeriod godoc
// @Summary      List timeslots of a period
// @Tags         calendar
// @Produce      json
// @Param        periodID  path     int  true  "Period ID"
// @Success      200       {array}  Timeslot
// @Router       /periods/{periodID}/timeslots [get]
func (h *Handler) GetTimeslotsOfPeriod(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("periodID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period ID"})
		return
	}

	slots, err := h.service.GetTimeslotsOfPeriod(c.Request.Context(), id)
	if err != nil {
		writePeriodError(c, err, "Failed to fetch timeslots")
		return
	}

	c.JSON(http.StatusOK, slots)
}

// GetLocationStatus godoc
// @Summary      Current open status of a location
// @Tags         calendar
// @Produce      json
// @Param        locationID  path      int  true  "Location ID"
// @Success      200         {object}  StatusReport
// @Router       /locations/{locationID}/status [get]
func (h *Handler) GetLocationStatus(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("locationID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location ID"})
		return
	}

	status, err := h.service.LocationStatus(c.Request.Context(), id)
	if err != nil {
		writePeriodError(c, err, "Failed to fetch status")
		return
	}

	c.JSON(http.StatusOK, status)
}

func writePeriodError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrStaleView):
		c.JSON(http.StatusConflict, gin.H{"error": "Calendar changed, refetch and retry"})
	case errors.Is(err, ErrPeriodLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "Period is locked for edits"})
	case errors.Is(err, ErrPeriodNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Period not found"})
	case errors.Is(err, ErrTimeslotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Timeslot not found"})
	case errors.Is(err, location.ErrLocationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Location not found"})
	case errors.Is(err, ErrEndsBeforeStarts),
		errors.Is(err, ErrInvalidOpeningHours),
		errors.Is(err, ErrInvalidTimeslotLength),
		errors.Is(err, ErrWrongLocation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
