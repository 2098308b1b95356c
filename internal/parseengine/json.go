package parseengine

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nocalert/core/internal/models"
)

func parseJSON(raw []byte, manifest *models.Manifest, addonID string) (*models.ParsedAlert, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil // malformed payload: drop, don't fail the ingestor
	}

	fields := map[string]string{}
	for target, path := range manifest.Parser.FieldMappings {
		if v, ok := jsonPathLookup(doc, path); ok {
			fields[target] = v
		}
	}
	return finish(addonID, fields, json.RawMessage(raw), manifest)
}

// jsonPathLookup resolves either "$.a.b.c" (dot descent, array indices as
// integer tokens) or a bare top-level key.
func jsonPathLookup(doc interface{}, path string) (string, bool) {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return stringify(doc)
	}

	cur := doc
	for _, tok := range strings.Split(path, ".") {
		if tok == "" {
			continue
		}
		if idx, err := strconv.Atoi(tok); err == nil {
			arr, ok := cur.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return "", false
			}
			cur = arr[idx]
			continue
		}
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		v, ok := m[tok]
		if !ok {
			return "", false
		}
		cur = v
	}
	return stringify(cur)
}

func stringify(v interface{}) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}
