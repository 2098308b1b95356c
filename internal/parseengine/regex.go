package parseengine

import (
	"encoding/json"
	"regexp"

	"github.com/nocalert/core/internal/models"
)

func parseRegex(raw string, manifest *models.Manifest, addonID string) (*models.ParsedAlert, error) {
	if manifest.Parser.Pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(manifest.Parser.Pattern)
	if err != nil {
		return nil, nil
	}
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return nil, nil
	}

	fields := map[string]string{}
	for i, name := range manifest.Parser.Fields {
		groupIdx := i + 1
		if groupIdx < len(m) {
			fields[name] = m[groupIdx]
		}
	}
	return finish(addonID, fields, rawString(raw), manifest)
}

func rawString(s string) json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return b
}
