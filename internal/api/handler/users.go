package handler

import (
	"errors"
	"net/http"
	"pipi/backend/internal/models"
	"pipi/backend/internal/storage"
	"strings"

	"github.com/gin-gonic/gin"
)

type profileRequest struct {
	Nickname    *string             `json:"nickname"`
	Affiliation *models.Affiliation `json:"affiliation"`
	Language    *string             `json:"language"`
}

// publicUser is what other users may see.
type publicUser struct {
	ID          string             `json:"id"`
	Nickname    string             `json:"nickname"`
	Affiliation models.Affiliation `json:"affiliation"`
}

func (h *Handler) GetMe(c *gin.Context) {
	user, ok := h.loadUser(c, currentUser(c))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateMe(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "bad_request")
		return
	}
	user, ok := h.loadUser(c, currentUser(c))
	if !ok {
		return
	}

	if req.Nickname != nil {
		nickname := strings.TrimSpace(*req.Nickname)
		if nickname == "" {
			h.fail(c, http.StatusBadRequest, "nickname_empty")
			return
		}
		user.Nickname = nickname
	}
	if req.Affiliation != nil {
		if !req.Affiliation.Valid() {
			h.fail(c, http.StatusBadRequest, "invalid_affiliation")
			return
		}
		user.Affiliation = *req.Affiliation
	}
	if req.Language != nil {
		user.Language = h.Localizer.Match(*req.Language)
	}

	if err := h.Store.UpdateUser(c.Request.Context(), user); err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.loadUser(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, publicUser{ID: user.ID, Nickname: user.Nickname, Affiliation: user.Affiliation})
}

// TelegramLink issues a short-lived code the user sends to the bot as
// "/start <code>".
func (h *Handler) TelegramLink(c *gin.Context) {
	code, err := h.Tokens.IssueLinkCode(currentUser(c))
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}

func (h *Handler) loadUser(c *gin.Context, id string) (*models.User, bool) {
	user, err := h.Store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.fail(c, http.StatusNotFound, "user_not_found")
			return nil, false
		}
		h.failErr(c, err)
		return nil, false
	}
	return user, true
}
