package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

type deviceTokenRequest struct {
	DeviceID string `json:"device_id"`
}

type deviceTokenResponse struct {
	Token     string `json:"token"`
	DeviceID  string `json:"device_id"`
	ExpiresIn int64  `json:"expires_in"`
}

// RegisterRoutes exposes device provisioning. Callers present the shared
// provisioning key; an empty key disables the endpoint.
func RegisterRoutes(r fiber.Router, secret, provisioningKey string) {
	r.Post("/device", func(c *fiber.Ctx) error {
		if provisioningKey == "" {
			return fiber.NewError(fiber.StatusForbidden, "device provisioning disabled")
		}
		key := c.Get("X-Provisioning-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(provisioningKey)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid provisioning key")
		}

		var req deviceTokenRequest
		if err := c.BodyParser(&req); err != nil || req.DeviceID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "device_id required")
		}
		token, err := SignDeviceToken(secret, req.DeviceID, DefaultTokenTTL)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(deviceTokenResponse{
			Token:     token,
			DeviceID:  req.DeviceID,
			ExpiresIn: int64(DefaultTokenTTL.Seconds()),
		})
	})
}
