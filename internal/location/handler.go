package location

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	service Service
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{service: NewService(NewRepository(db))}
}

// CreateLocation godoc
// @Summary      Create location
// @Tags         locations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateLocationRequest  true  "Location"
// @Success      201      {object}  Location
// @Failure      400      {object}  gin.H
// @Router       /admin/locations [post]
func (h *Handler) CreateLocation(c *gin.Context) {
	var req CreateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loc, err := h.service.CreateLocation(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create location"})
		return
	}

	c.JSON(http.StatusCreated, loc)
}

// ListLocations godoc
// @Summary      List locations
// @Tags         locations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  Location
// @Router       /locations [get]
func (h *Handler) ListLocations(c *gin.Context) {
	locations, err := h.service.GetAllLocations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch locations"})
		return
	}

	c.JSON(http.StatusOK, locations)
}

// GetLocation godoc
// @Summary      Get location
// @Tags         locations
// @Security     BearerAuth
// @Produce      json
// @Param        locationID  path      int  true  "Location ID"
// @Success      200         {object}  Location
// @Failure      404         {object}  gin.H
// @Router       /locations/{locationID} [get]
func (h *Handler) GetLocation(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("locationID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid location ID"})
		return
	}

	loc, err := h.service.GetLocationByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Location not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch location"})
		return
	}

	c.JSON(http.StatusOK, loc)
}
