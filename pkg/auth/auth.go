package auth

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/forgecli/forge-api/pkg/rand"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost   = 12
	apiKeyPrefix = "fapi_"
)

var (
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	apiKeyPattern    = regexp.MustCompile(`^fapi_[a-z0-9]+_[a-f0-9]{64}$`)
	usernamePattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	specialCharacter = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>\/?]`)
)

// GenerateAPIKey produces a key of the form fapi_<base36 millis>_<64 hex>.
func GenerateAPIKey() string {
	return apiKeyPrefix + timestamp36() + "_" + rand.Hex(32)
}

// GenerateUserID produces an opaque user identifier.
func GenerateUserID() string {
	return "user_" + timestamp36() + "_" + rand.Hex(16)
}

func timestamp36() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36)
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePassword returns the list of unmet strength requirements; empty
// means the password is acceptable.
func ValidatePassword(password string) []string {
	var errs []string

	if len(password) < 8 {
		errs = append(errs, "Password must be at least 8 characters long")
	}
	if !strings.ContainsAny(password, "abcdefghijklmnopqrstuvwxyz") {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !strings.ContainsAny(password, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !strings.ContainsAny(password, "0123456789") {
		errs = append(errs, "Password must contain at least one number")
	}
	if !specialCharacter.MatchString(password) {
		errs = append(errs, "Password must contain at least one special character")
	}

	return errs
}

// ValidateUsername returns the list of unmet username requirements.
func ValidateUsername(username string) []string {
	var errs []string

	if len(username) < 3 {
		errs = append(errs, "Username must be at least 3 characters long")
	}
	if len(username) > 20 {
		errs = append(errs, "Username must be no more than 20 characters long")
	}
	if username != "" && !usernamePattern.MatchString(username) {
		errs = append(errs, "Username can only contain letters, numbers, hyphens, and underscores")
	}
	if strings.HasPrefix(username, "-") || strings.HasPrefix(username, "_") ||
		strings.HasSuffix(username, "-") || strings.HasSuffix(username, "_") {
		errs = append(errs, "Username cannot start or end with hyphens or underscores")
	}

	return errs
}

// ExtractAPIKey pulls the key out of an Authorization header. Accepts
// "Bearer <key>", "ApiKey <key>", or a bare key.
func ExtractAPIKey(header string) string {
	if header == "" {
		return ""
	}

	for _, scheme := range []string{"Bearer ", "ApiKey "} {
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return strings.TrimSpace(header[len(scheme):])
		}
	}

	if strings.HasPrefix(header, apiKeyPrefix) {
		return header
	}
	return ""
}

func IsValidAPIKeyFormat(key string) bool {
	return apiKeyPattern.MatchString(key)
}
