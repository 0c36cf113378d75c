// Package enums holds the closed string sets stored in the database and
// accepted on the wire.
package enums

import (
	"fmt"
	"strings"
)

type enum interface {
	~string
	IsValid() bool
}

// parse trims raw, optionally upper-cases it, and checks it against T's set.
func parse[T enum](kind, raw string, upper bool) (T, error) {
	v := strings.TrimSpace(raw)
	if upper {
		v = strings.ToUpper(v)
	}
	if t := T(v); t.IsValid() {
		return t, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
