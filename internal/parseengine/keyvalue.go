package parseengine

import (
	"strings"

	"github.com/nocalert/core/internal/models"
)

func parseKeyValue(raw string, manifest *models.Manifest, addonID string) (*models.ParsedAlert, error) {
	delim := manifest.Parser.Delimiter
	if delim == "" {
		delim = ":"
	}

	fields := map[string]string{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, delim, 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if renamed, ok := manifest.Parser.FieldMappings[key]; ok {
			key = renamed
		}
		fields[key] = val
	}
	return finish(addonID, fields, rawString(raw), manifest)
}
