package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

const defaultTokenLifespanHours = 24

type JwtCustomClaim struct {
	ID   int    `json:"id"`
	Role string `json:"role"`
	jwt.StandardClaims
}

var jwtSecret = []byte(getJwtSecret())

func getJwtSecret() string {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return "Landolfio-Secret"
	}
	return secret
}

func tokenLifespan() time.Duration {
	hours := defaultTokenLifespanHours
	if v, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN")); err == nil && v > 0 {
		hours = v
	}
	return time.Duration(hours) * time.Hour
}

// JwtGenerate signs a token for the given user. The lifespan comes from
// TOKEN_HOUR_LIFESPAN, falling back to 24 hours when unset or invalid.
func JwtGenerate(userID int, role string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID:   userID,
		Role: role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(tokenLifespan()).Unix(),
			IssuedAt:  now.Unix(),
		},
	})

	return t.SignedString(jwtSecret)
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
}
