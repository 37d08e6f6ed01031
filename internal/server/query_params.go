package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	costreportdomain "github.com/cloudtally/cloudtally/internal/costreport/domain"
)

const dateOnlyLayout = "2006-01-02"

// parseUUIDParam reads a required path parameter, distinguishing a missing
// value from a malformed one.
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Param(name))
	if raw == "" {
		return uuid.Nil, newValidationError(name, "required", name+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, newValidationError(name, "invalid_uuid", name+" must be a valid uuid")
	}
	return parsed, nil
}

func parseOptionalUUID(name, value string) (uuid.UUID, bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return uuid.Nil, false, nil
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, false, newValidationError(name, "invalid_uuid", name+" must be a valid uuid")
	}
	return parsed, true, nil
}

func parseOptionalInt(name, value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, newValidationError(name, "invalid_int", name+" must be an integer")
	}
	return &parsed, nil
}

func parseOptionalDate(name, value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateOnlyLayout, trimmed)
	if err != nil {
		return nil, newValidationError(name, "invalid_date", name+" must be formatted YYYY-MM-DD")
	}
	parsed = parsed.UTC()
	return &parsed, nil
}

// parseRangeParams reads the shared days/since/until report range inputs.
func parseRangeParams(c *gin.Context) (costreportdomain.RangeParams, error) {
	days, err := parseOptionalInt("days", c.Query("days"))
	if err != nil {
		return costreportdomain.RangeParams{}, err
	}
	since, err := parseOptionalDate("since", c.Query("since"))
	if err != nil {
		return costreportdomain.RangeParams{}, err
	}
	until, err := parseOptionalDate("until", c.Query("until"))
	if err != nil {
		return costreportdomain.RangeParams{}, err
	}
	return costreportdomain.RangeParams{Days: days, Since: since, Until: until}, nil
}
