package auth

import (
	"mime"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// IsProgrammatic reports whether the caller wants JSON instead of a
// redirect. XHR requests, JSON bodies and a JSON only Accept header all
// count.
func IsProgrammatic(c *fiber.Ctx) bool {
	if c.XHR() {
		return true
	}

	if isJSONMediaType(c.Get(fiber.HeaderContentType)) {
		return true
	}

	return acceptsOnlyJSON(c.Get(fiber.HeaderAccept))
}

func isJSONMediaType(value string) bool {
	if value == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mt == fiber.MIMEApplicationJSON || strings.HasSuffix(mt, "+json")
}

func acceptsOnlyJSON(accept string) bool {
	if strings.TrimSpace(accept) == "" {
		return false
	}
	for _, part := range strings.Split(accept, ",") {
		if !isJSONMediaType(strings.TrimSpace(part)) {
			return false
		}
	}
	return true
}
