package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
)

var (
	errMalformedToken = errors.New("malformed token")
	errBadSignature   = errors.New("signature mismatch")
	errExpiredToken   = errors.New("token expired")
)

// userIDLocal is the fiber locals key carrying the authenticated caller ID.
const userIDLocal = "user_id"

// Bearer tokens have the form "<user_id>:<expiry_unix>:<signature>" where
// the signature is hex(HMAC-SHA256(secret, "<user_id>:<expiry_unix>")). The
// API never sees credentials beyond the shared signing secret.

// NewBearerAuth returns a middleware that validates the Authorization header
// and stores the caller ID in the request locals. Requests with a missing,
// malformed, expired or forged token are rejected with 401.
func NewBearerAuth(secret []byte) fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return unauthorized(c, "Missing Authorization header")
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return unauthorized(c, "Authorization header must use the Bearer scheme")
		}

		userID, err := verifyToken(secret, token, time.Now())
		if err != nil {
			return unauthorized(c, "Invalid token")
		}

		c.Locals(userIDLocal, userID)

		return c.Next()
	}
}

// SignToken mints a token for the given caller, valid until expiry. Used by
// operators and tests; the API itself only verifies.
func SignToken(secret []byte, userID string, expiry time.Time) string {
	payload := userID + ":" + strconv.FormatInt(expiry.Unix(), 10)

	return payload + ":" + sign(secret, payload)
}

func verifyToken(secret []byte, token string, now time.Time) (string, error) {
	lastSep := strings.LastIndexByte(token, ':')
	if lastSep < 0 {
		return "", errMalformedToken
	}

	payload, signature := token[:lastSep], token[lastSep+1:]

	if !hmac.Equal([]byte(signature), []byte(sign(secret, payload))) {
		return "", errBadSignature
	}

	userID, expiryStr, found := strings.Cut(payload, ":")
	if !found || userID == "" {
		return "", errMalformedToken
	}

	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", errMalformedToken
	}

	if now.After(time.Unix(expiry, 0)) {
		return "", errExpiredToken
	}

	return userID, nil
}

func sign(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))

	return hex.EncodeToString(mac.Sum(nil))
}
