package validators

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
)

const dateLayout = "2006-01-02"

// ParseQueryDate reads an optional YYYY-MM-DD query parameter. An absent value returns "".
func ParseQueryDate(r *http.Request, key string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(dateLayout, raw); err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a YYYY-MM-DD date").WithDetails(map[string]any{"field": key})
	}
	return raw, nil
}

// ParseRecordID normalizes a record id taken from the URL.
func ParseRecordID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid record id").WithDetails(map[string]any{"field": "recordId"})
	}
	return id.String(), nil
}
