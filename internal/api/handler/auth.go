package handler

import (
	"errors"
	"net/http"
	"pipi/backend/internal/auth"
	"pipi/backend/internal/models"
	"pipi/backend/internal/storage"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type signupRequest struct {
	Email       string             `json:"email"`
	Password    string             `json:"password"`
	Nickname    string             `json:"nickname"`
	Affiliation models.Affiliation `json:"affiliation"`
	Language    string             `json:"language"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup створює акаунт та повертає JWT
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "email_empty")
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.Nickname = strings.TrimSpace(req.Nickname)

	switch {
	case req.Email == "":
		h.fail(c, http.StatusBadRequest, "email_empty")
		return
	case req.Password == "":
		h.fail(c, http.StatusBadRequest, "password_empty")
		return
	case !auth.StrongPassword(req.Password):
		h.fail(c, http.StatusBadRequest, "password_weak")
		return
	case req.Nickname == "":
		h.fail(c, http.StatusBadRequest, "nickname_empty")
		return
	case !req.Affiliation.Valid():
		h.fail(c, http.StatusBadRequest, "invalid_affiliation")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.failErr(c, err)
		return
	}
	user := &models.User{
		Nickname:     req.Nickname,
		Affiliation:  req.Affiliation,
		Email:        req.Email,
		PasswordHash: hash,
		Language:     h.Localizer.Match(req.Language),
	}
	if err := h.Store.SaveUser(c.Request.Context(), user); err != nil {
		h.failErr(c, err)
		return
	}
	h.Logger.Info("User signed up", zap.String("user_id", user.ID))
	h.issue(c, http.StatusCreated, user)
}

// Signin перевіряє пароль та повертає JWT
func (h *Handler) Signin(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "email_empty")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		h.fail(c, http.StatusBadRequest, "email_empty")
		return
	}
	if req.Password == "" {
		h.fail(c, http.StatusBadRequest, "password_empty")
		return
	}

	user, err := h.Store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.fail(c, http.StatusUnauthorized, "login_failed")
			return
		}
		h.failErr(c, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.fail(c, http.StatusUnauthorized, "login_failed")
		return
	}
	h.issue(c, http.StatusOK, user)
}

func (h *Handler) issue(c *gin.Context, status int, user *models.User) {
	token, err := h.Tokens.Issue(user.ID)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(status, gin.H{"token": token, "user": user})
}

// normalizeEmail makes addresses compare case-insensitively on every backend.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
