package entities

import (
	"fmt"
	"strings"
	"unicode"

	pkgerrors "github.com/Benedict-CS/line-backup-bot/pkg/errors"
)

// OtherFolder is the folder used when a conversation has not selected a source
const OtherFolder = "other"

// OtherKey is the mapping key that renames the default folder
const OtherKey = "other"

const maxFolderNameLen = 32

// Mapping maps a selector string to a folder name
type Mapping map[string]string

// Clone returns a copy of the mapping
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SafeFolderName keeps letters, digits, '_' and '-', replaces everything else with '_'
// and truncates to 32 characters. An empty result becomes "other".
func SafeFolderName(name string) string {
	var b strings.Builder
	n := 0
	for _, r := range name {
		if n == maxFolderNameLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
		n++
	}
	if b.Len() == 0 {
		return OtherFolder
	}
	return b.String()
}

// IsDigits reports whether s is a non-empty ASCII digit string
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidateMapping normalizes keys and sanitizes folder names.
// Keys must be digit selectors other than "0", or "other".
func ValidateMapping(in map[string]string) (Mapping, error) {
	out := make(Mapping, len(in))
	for rawKey, rawValue := range in {
		key := strings.TrimSpace(rawKey)
		value := strings.TrimSpace(rawValue)

		switch {
		case strings.EqualFold(key, OtherKey):
			key = OtherKey
		case key == "0":
			return nil, pkgerrors.NewValidationError(`selector "0" is reserved for the default folder`)
		case !IsDigits(key):
			return nil, pkgerrors.NewValidationErrorf("selector %q must be a number", rawKey)
		}

		if value == "" {
			return nil, pkgerrors.NewValidationErrorf("folder name for selector %q is empty", key)
		}

		if _, dup := out[key]; dup {
			return nil, pkgerrors.NewValidationErrorf("selector %q is listed twice", key)
		}
		out[key] = SafeFolderName(value)
	}
	return out, nil
}

// ParseStaticMapping parses "1:Amigo,2:Ben". Malformed parts are skipped.
func ParseStaticMapping(s string) Mapping {
	out := make(Mapping)
	for _, part := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = SafeFolderName(value)
	}
	return out
}

// String renders the mapping for logs
func (m Mapping) String() string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s:%s", k, v))
	}
	return strings.Join(parts, ",")
}
