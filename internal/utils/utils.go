// Package utils holds small helpers shared across the HTTP surface and
// the daemon entrypoints: ID generation, JSON responses, and env parsing.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"strings"
)

// GenerateID returns a unique identifier. With a non-empty prefix it
// returns "<prefix>-<hex>"; with an empty prefix it returns the bare hex.
func GenerateID(prefix string) string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the system RNG is broken; there is no
		// safe fallback that preserves uniqueness, so surface it loudly.
		panic("utils: crypto/rand unavailable: " + err.Error())
	}
	id := hex.EncodeToString(buf[:])
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// WriteJSONResponse marshals data as JSON, sets the content type, and
// writes it to w. The caller may call w.WriteHeader beforehand to pick a
// status other than the implicit 200.
func WriteJSONResponse(w http.ResponseWriter, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(body)
	return err
}

// ParseBool interprets common truthy/falsy env-var spellings. Anything
// unrecognized is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// GetenvTrim returns the named environment variable with surrounding
// whitespace removed.
func GetenvTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetDataDir returns the directory used for the sqlite database and any
// file-backed state, defaulting to /etc/nocalert.
func GetDataDir() string {
	if v := GetenvTrim("ALERTD_DATA_DIR"); v != "" {
		return v
	}
	return "/etc/nocalert"
}
