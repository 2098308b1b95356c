// Package parseengine turns arbitrary raw payloads into a uniform
// ParsedAlert according to an addon manifest's parser rules. It is pure
// and stateless: Parse never touches the database or the clock. A
// timestamp that cannot be parsed leaves ParsedAlert.Timestamp nil.
package parseengine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nocalert/core/internal/models"
)

// SNMPInput is the record the trap ingestor builds from a decoded PDU,
// consumed only by the snmp parser type.
type SNMPInput struct {
	SourceIP      string
	TrapOID       string
	EnterpriseOID string
	Varbinds      map[string]string
	IsClear       bool

	// OIDNames maps a varbind OID to an operator-friendly name, resolved
	// from the MIB store for OIDs the addon's own varbind_mappings
	// doesn't cover. Carried into the alert's raw payload only, never
	// used for field extraction.
	OIDNames map[string]string `json:"oid_names,omitempty"`
}

// Parse dispatches on manifest.Parser.Type. raw's concrete type depends
// on the parser: []byte for json, SNMPInput for snmp, string for regex,
// grok, and key_value. It returns (nil, nil) when the payload yields no
// usable record (§4.2 "returns None"), and a non-nil error only for a
// caller mistake (wrong raw type for the manifest's parser).
func Parse(raw interface{}, manifest *models.Manifest, addonID string) (*models.ParsedAlert, error) {
	switch manifest.Parser.Type {
	case models.ParserJSON:
		body, ok := raw.([]byte)
		if !ok {
			return nil, fmt.Errorf("parseengine: json parser requires []byte raw, got %T", raw)
		}
		return parseJSON(body, manifest, addonID)
	case models.ParserSNMP:
		in, ok := raw.(SNMPInput)
		if !ok {
			return nil, fmt.Errorf("parseengine: snmp parser requires SNMPInput raw, got %T", raw)
		}
		return parseSNMP(in, manifest, addonID)
	case models.ParserRegex:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("parseengine: regex parser requires string raw, got %T", raw)
		}
		return parseRegex(s, manifest, addonID)
	case models.ParserGrok:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("parseengine: grok parser requires string raw, got %T", raw)
		}
		return parseGrok(s, manifest, addonID)
	case models.ParserKeyValue:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("parseengine: key_value parser requires string raw, got %T", raw)
		}
		return parseKeyValue(s, manifest, addonID)
	default:
		return nil, fmt.Errorf("parseengine: unknown parser type %q", manifest.Parser.Type)
	}
}

// finish builds the ParsedAlert common tail shared by every parser kind.
// preClear is consulted only when clear_events.method is oid_pair, where
// the flag is computed upstream by the SNMP ingestor, not derivable from
// extracted fields.
func finish(addonID string, fields map[string]string, rawData json.RawMessage, manifest *models.Manifest, preClear ...bool) (*models.ParsedAlert, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	applyTransformations(fields, manifest.Parser.Transformations)

	alertType := fields["alert_type"]
	if alertType == "" {
		return nil, nil
	}

	pa := &models.ParsedAlert{
		AddonID:    addonID,
		AlertType:  alertType,
		DeviceIP:   fields["device_ip"],
		DeviceName: fields["device_name"],
		Message:    fields["message"],
		RawData:    rawData,
		Fields:     fields,
	}
	if ts, ok := fields["timestamp"]; ok {
		if t, ok := ParseTimestamp(ts); ok {
			pa.Timestamp = &t
		}
	}
	clearFlag := false
	if len(preClear) > 0 {
		clearFlag = preClear[0]
	}
	pa.IsClear = isClear(manifest, pa, clearFlag)
	return pa, nil
}

func isClear(manifest *models.Manifest, pa *models.ParsedAlert, preClear bool) bool {
	switch manifest.ClearEvents.Method {
	case "suffix":
		return manifest.ClearEvents.ClearSuffix != "" && strings.HasSuffix(pa.AlertType, manifest.ClearEvents.ClearSuffix)
	case "field_value":
		v, ok := pa.Fields[manifest.ClearEvents.ClearField]
		if !ok {
			return false
		}
		for _, cv := range manifest.ClearEvents.ClearValues {
			if strings.EqualFold(v, cv) {
				return true
			}
		}
		return false
	case "oid_pair":
		return preClear
	default:
		return false
	}
}

// ParseTimestamp tries ISO-8601 variants and YYYY-MM-DD[ HH:MM:SS[.fff]].
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func applyTransformations(fields map[string]string, transforms []models.Transformation) {
	for _, tr := range transforms {
		v, ok := fields[tr.Field]
		if !ok {
			continue
		}
		switch tr.Type {
		case "lookup":
			if mapped, ok := tr.Map[v]; ok {
				fields[tr.Field] = mapped
			}
		case "datetime":
			if t, err := time.Parse(tr.Format, v); err == nil {
				fields[tr.Field] = t.UTC().Format(time.RFC3339)
			}
		case "extract_ip":
			if re, err := regexp.Compile(ipExtractPattern); err == nil {
				if m := re.FindString(v); m != "" {
					fields[tr.Field] = m
				}
			}
		case "lowercase":
			fields[tr.Field] = strings.ToLower(v)
		case "uppercase":
			fields[tr.Field] = strings.ToUpper(v)
		}
	}
}

const ipExtractPattern = `\b(?:\d{1,3}\.){3}\d{1,3}\b`
