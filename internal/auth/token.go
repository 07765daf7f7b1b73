package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 30 * 24 * time.Hour

// Claims identify the device pushing readings.
type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// SignDeviceToken issues an HS256 token for deviceID valid for ttl.
func SignDeviceToken(secret, deviceID string, ttl time.Duration) (string, error) {
	if deviceID == "" {
		return "", errors.New("device id required")
	}
	now := time.Now()
	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
