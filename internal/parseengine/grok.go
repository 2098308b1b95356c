package parseengine

import (
	"regexp"

	"github.com/nocalert/core/internal/models"
)

// builtinGrokPatterns is the Logstash-style pattern library named in §4.2.
var builtinGrokPatterns = map[string]string{
	"INT":               `[+-]?\d+`,
	"NUMBER":            `[+-]?(?:\d+(?:\.\d+)?|\.\d+)`,
	"WORD":              `\b\w+\b`,
	"IP":                `(?:\d{1,3}\.){3}\d{1,3}`,
	"IPV6":              `(?:[0-9A-Fa-f]{1,4}:){2,7}[0-9A-Fa-f]{1,4}`,
	"MAC":               `(?:[0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}`,
	"HOSTNAME":          `\b[0-9A-Za-z][0-9A-Za-z-]*(?:\.[0-9A-Za-z][0-9A-Za-z-]*)*\b`,
	"TIMESTAMP_ISO8601": `\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`,
	"SYSLOGTIMESTAMP":   `[A-Z][a-z]{2}\s+\d{1,2}\s\d{2}:\d{2}:\d{2}`,
	"GREEDYDATA":        `.*`,
	"DATA":              `.*?`,
}

var grokPlaceholder = regexp.MustCompile(`%\{(\w+):(\w+)\}`)

// compileGrok expands a Logstash-style pattern into a named-group regex.
// Unknown pattern names are left as literal, unmatched text, producing no
// group for that field (per §4.2).
func compileGrok(pattern string, custom map[string]string) (*regexp.Regexp, error) {
	expanded := grokPlaceholder.ReplaceAllStringFunc(pattern, func(m string) string {
		sub := grokPlaceholder.FindStringSubmatch(m)
		patName, field := sub[1], sub[2]

		frag, ok := custom[patName]
		if !ok {
			frag, ok = builtinGrokPatterns[patName]
		}
		if !ok {
			return regexp.QuoteMeta(m)
		}
		return "(?P<" + field + ">" + frag + ")"
	})
	return regexp.Compile(expanded)
}

func parseGrok(raw string, manifest *models.Manifest, addonID string) (*models.ParsedAlert, error) {
	if manifest.Parser.GrokPattern == "" {
		return nil, nil
	}
	re, err := compileGrok(manifest.Parser.GrokPattern, manifest.Parser.CustomPatterns)
	if err != nil {
		return nil, nil
	}
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return nil, nil
	}

	fields := map[string]string{}
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		fields[name] = m[i]
	}
	return finish(addonID, fields, rawString(raw), manifest)
}
