package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// AuthMiddleware accepts "Authorization: Bearer <token>" or, for websocket
// upgrades from clients that cannot set headers, a "token" query parameter.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			bearerToken := strings.Split(authHeader, " ")
			if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
				h.fail(c, http.StatusUnauthorized, "unauthorized")
				return
			}
			token = bearerToken[1]
		}
		if token == "" {
			h.fail(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		userID, err := h.Tokens.Parse(token)
		if err != nil {
			h.fail(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
