package handler

import (
	"errors"
	"net/http"
	"pipi/backend/internal/activity"
	"pipi/backend/internal/auth"
	"pipi/backend/internal/hub"
	"pipi/backend/internal/localization"
	"pipi/backend/internal/storage"
	"pipi/backend/internal/verifier"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler містить посилання на Hub та сервіси
type Handler struct {
	Hub        *hub.ManagerService
	Activities *activity.Service
	Store      storage.Storage
	Tokens     *auth.Tokens
	Localizer  *localization.Localizer
	Logger     *zap.Logger
}

func NewHandler(h *hub.ManagerService, activities *activity.Service, store storage.Storage, tokens *auth.Tokens, loc *localization.Localizer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Hub:        h,
		Activities: activities,
		Store:      store,
		Tokens:     tokens,
		Localizer:  loc,
		Logger:     logger,
	}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r *gin.Engine) {
	r.POST("/signup", h.Signup)
	r.POST("/signin", h.Signin)

	authed := r.Group("/", h.AuthMiddleware())
	authed.GET("/ws", h.ServeWebSocket)

	authed.GET("/me", h.GetMe)
	authed.PUT("/me", h.UpdateMe)
	authed.POST("/me/telegram-link", h.TelegramLink)
	authed.GET("/me/tickets", h.Tickets)
	authed.GET("/users/:id", h.GetUser)

	authed.POST("/activities", h.CreateActivity)
	authed.GET("/activities", h.ListActivities)
	authed.GET("/activities/:id", h.GetActivity)
	authed.PATCH("/activities/:id", h.EditActivity)
	authed.DELETE("/activities/:id", h.DeleteActivity)
	authed.POST("/activities/:id/join", h.JoinActivity)
	authed.POST("/activities/:id/leave", h.LeaveActivity)
	authed.GET("/activities/:id/tally", h.Tally)
}

// fail writes a localized error body. key is a localization key.
func (h *Handler) fail(c *gin.Context, status int, key string) {
	lang := h.Localizer.Match(c.GetHeader("Accept-Language"))
	c.AbortWithStatusJSON(status, gin.H{
		"error":   key,
		"message": h.Localizer.GetString(lang, key),
	})
}

// failErr maps service errors to a status and localization key.
func (h *Handler) failErr(c *gin.Context, err error) {
	status, key := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status, key = http.StatusNotFound, "activity_not_found"
	case errors.Is(err, activity.ErrActivityFull):
		status, key = http.StatusConflict, "activity_full"
	case errors.Is(err, storage.ErrConflict):
		status, key = http.StatusConflict, "activity_full"
	case errors.Is(err, activity.ErrAlreadyMember):
		status, key = http.StatusConflict, "already_member"
	case errors.Is(err, activity.ErrNotMember), errors.Is(err, verifier.ErrNotParticipant):
		status, key = http.StatusForbidden, "not_member"
	case errors.Is(err, activity.ErrNotHost), errors.Is(err, activity.ErrHostCannotJoin):
		status, key = http.StatusForbidden, "not_host"
	case errors.Is(err, activity.ErrTitleEmpty):
		status, key = http.StatusBadRequest, "title_empty"
	case errors.Is(err, activity.ErrInvalidCategory):
		status, key = http.StatusBadRequest, "invalid_category"
	case errors.Is(err, activity.ErrInvalidCapacity):
		status, key = http.StatusBadRequest, "invalid_capacity"
	case errors.Is(err, storage.ErrEmailTaken):
		status, key = http.StatusConflict, "email_taken"
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	h.fail(c, status, key)
}
