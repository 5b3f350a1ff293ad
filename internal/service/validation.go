package service

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/eventhub/internal/model"
)

const (
	msgRequired    = "is required"
	msgPositiveInt = "must be a positive integer"
)

// ValidationError lists every invalid field of a request.
type ValidationError struct {
	Fields []model.FieldError
}

func newValidationError(fields []model.FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// Error summarizes missing fields first, then any other violations.
func (e *ValidationError) Error() string {
	var missing, other []string
	for _, f := range e.Fields {
		if f.Message == msgRequired {
			missing = append(missing, f.Field)
			continue
		}
		other = append(other, f.Field+" "+f.Message)
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "Missing required fields: "+strings.Join(missing, ", "))
	}
	parts = append(parts, other...)
	return strings.Join(parts, "; ")
}

// parseCapacity coerces maxAttendees leniently: a JSON number or a numeric
// string is accepted when it denotes a positive integer.
func parseCapacity(raw json.RawMessage) (int, *model.FieldError) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, &model.FieldError{Field: "maxAttendees", Message: msgRequired}
	}
	invalid := &model.FieldError{Field: "maxAttendees", Message: msgPositiveInt}

	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, invalid
		}
		text = strings.TrimSpace(s)
	}
	if text == "" {
		return 0, invalid
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid
	}
	if f != math.Trunc(f) || f <= 0 || f > math.MaxInt32 {
		return 0, invalid
	}
	return int(f), nil
}
