package auth

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/JobDoesburg/landolfio-backend/config"
	"github.com/JobDoesburg/landolfio-backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultSessionTTLHours = 12

type LoginRequest struct {
	AccessKey string `json:"access_key" binding:"required"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	Jwt       string `json:"jwt"`
	ExpiresIn int64  `json:"expires_in"`
}

func sessionTTL() time.Duration {
	hours := defaultSessionTTLHours
	if v, err := strconv.Atoi(os.Getenv("SESSION_TTL_HOURS")); err == nil && v > 0 {
		hours = v
	}
	return time.Duration(hours) * time.Hour
}

// LoginHandler exchanges the admin access key for a session token stored in
// redis plus a signed JWT. There is a single operator account, so the check is
// a constant-time compare against ADMIN_ACCESS_KEY.
func LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessKey := os.Getenv("ADMIN_ACCESS_KEY")
		if accessKey == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login is not configured"})
			return
		}

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(req.AccessKey), []byte(accessKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		username := os.Getenv("ADMIN_USERNAME")
		if username == "" {
			username = "admin"
		}

		ttl := sessionTTL()
		token := uuid.NewString()
		if err := config.SetRedisValue("Token:"+token, username, ttl); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		signed, err := utils.JwtGenerate(1, "admin")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:     token,
			Jwt:       signed,
			ExpiresIn: int64(ttl.Seconds()),
		})
	}
}

// LogoutHandler drops the session token from redis. An unknown token is not
// an error, the session is gone either way.
func LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
			return
		}
		if err := config.RemoveRedisKey("Token:" + token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"loggedOut": true})
	}
}
