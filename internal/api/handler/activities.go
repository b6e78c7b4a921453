package handler

import (
	"net/http"
	"pipi/backend/internal/activity"
	"pipi/backend/internal/lifecycle"
	"pipi/backend/internal/models"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"
)

type createActivityRequest struct {
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	MaxPeopleNumber int                `json:"max_people_number"`
	Category        models.Category    `json:"category"`
	StartDateTime   time.Time          `json:"start_date_time"`
	EstimatedTime   *int               `json:"estimated_time"`
	Coordinates     models.Coordinates `json:"coordinates"`
}

type editActivityRequest struct {
	Title           *string             `json:"title"`
	Description     *string             `json:"description"`
	MaxPeopleNumber *int                `json:"max_people_number"`
	Category        *models.Category    `json:"category"`
	StartDateTime   *time.Time          `json:"start_date_time"`
	EstimatedTime   *int                `json:"estimated_time"`
	Coordinates     *models.Coordinates `json:"coordinates"`
}

// activityResponse adds the derived fields to the stored record.
type activityResponse struct {
	models.Activity
	Status  models.Status `json:"status"`
	CanJoin bool          `json:"canJoin"`
}

func toResponse(a models.Activity, userID string) activityResponse {
	return activityResponse{
		Activity: a,
		Status:   lifecycle.Status(a),
		CanJoin:  lifecycle.CanJoin(a, userID),
	}
}

func toResponses(list []models.Activity, userID string) []activityResponse {
	out := make([]activityResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toResponse(a, userID))
	}
	return out
}

func (h *Handler) CreateActivity(c *gin.Context) {
	var req createActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "bad_request")
		return
	}

	var a models.Activity
	if err := copier.Copy(&a, &req); err != nil {
		h.failErr(c, err)
		return
	}
	if err := h.Activities.Create(c.Request.Context(), currentUser(c), &a); err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(a, currentUser(c)))
}

// ListActivities returns open activities. Query: category, lat, lng, radius (m).
func (h *Handler) ListActivities(c *gin.Context) {
	var f activity.ListFilter
	if raw := c.Query("category"); raw != "" {
		category := models.Category(raw)
		if !category.Valid() {
			h.fail(c, http.StatusBadRequest, "invalid_category")
			return
		}
		f.Category = &category
	}
	if c.Query("radius") != "" {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		radius, errRadius := strconv.ParseFloat(c.Query("radius"), 64)
		if errLat != nil || errLng != nil || errRadius != nil || radius <= 0 {
			h.fail(c, http.StatusBadRequest, "bad_request")
			return
		}
		f.Center = &models.Coordinates{Latitude: lat, Longitude: lng}
		f.RadiusMeters = radius
	}

	list, err := h.Activities.List(c.Request.Context(), f)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponses(list, currentUser(c)))
}

func (h *Handler) GetActivity(c *gin.Context) {
	a, err := h.Activities.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*a, currentUser(c)))
}

func (h *Handler) EditActivity(c *gin.Context) {
	var req editActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "bad_request")
		return
	}

	patch := models.ActivityPatch{
		Title:           req.Title,
		Description:     req.Description,
		MaxPeopleNumber: req.MaxPeopleNumber,
		Category:        req.Category,
		StartDateTime:   req.StartDateTime,
		Coordinates:     req.Coordinates,
	}
	if req.EstimatedTime != nil {
		patch.EstimatedTime = &req.EstimatedTime
	}

	a, err := h.Activities.Edit(c.Request.Context(), currentUser(c), c.Param("id"), patch)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*a, currentUser(c)))
}

func (h *Handler) DeleteActivity(c *gin.Context) {
	if err := h.Activities.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		h.failErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) JoinActivity(c *gin.Context) {
	a, err := h.Activities.Join(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*a, currentUser(c)))
}

func (h *Handler) LeaveActivity(c *gin.Context) {
	a, err := h.Activities.Leave(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(*a, currentUser(c)))
}

func (h *Handler) Tally(c *gin.Context) {
	t, err := h.Activities.Tally(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Tickets lists the caller's activities. Query role=participant (default) or
// role=organizer.
func (h *Handler) Tickets(c *gin.Context) {
	role := c.DefaultQuery("role", activity.RoleParticipant)
	if role != activity.RoleParticipant && role != activity.RoleOrganizer {
		h.fail(c, http.StatusBadRequest, "bad_request")
		return
	}
	list, err := h.Activities.Tickets(c.Request.Context(), currentUser(c), role)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponses(list, currentUser(c)))
}
