// Package models defines the core data shapes shared across the addon
// registry, parse engine, alert engine and ingestors.
package models

import (
	"encoding/json"
	"fmt"
)

// Method identifies the transport an addon uses to receive signals.
type Method string

const (
	MethodSNMPTrap Method = "snmp_trap"
	MethodWebhook  Method = "webhook"
	MethodAPIPoll  Method = "api_poll"
	MethodSNMPPoll Method = "snmp_poll"
	MethodSSH      Method = "ssh"
)

// ParserType identifies which parser backend decodes a raw payload.
type ParserType string

const (
	ParserJSON     ParserType = "json"
	ParserSNMP     ParserType = "snmp"
	ParserRegex    ParserType = "regex"
	ParserGrok     ParserType = "grok"
	ParserKeyValue ParserType = "key_value"
)

// Transformation is applied to an extracted field, in declared order.
type Transformation struct {
	Field string            `json:"field"`
	Type  string            `json:"type"` // lookup | datetime | extract_ip | lowercase | uppercase
	Map   map[string]string `json:"map,omitempty"`
	Format string           `json:"format,omitempty"`
	Pattern string          `json:"pattern,omitempty"`
}

// ParserBlock describes how to turn a raw payload into fields.
type ParserBlock struct {
	Type ParserType `json:"type"`

	// json
	FieldMappings map[string]string `json:"field_mappings,omitempty"`

	// regex
	Pattern string   `json:"pattern,omitempty"`
	Fields  []string `json:"fields,omitempty"`

	// snmp
	VarbindMappings map[string]string `json:"varbind_mappings,omitempty"`

	// grok
	GrokPattern    string            `json:"grok_pattern,omitempty"`
	CustomPatterns map[string]string `json:"custom_patterns,omitempty"`

	// key_value
	Delimiter string `json:"delimiter,omitempty"`

	Transformations []Transformation `json:"transformations,omitempty"`
}

// TrapDefinition maps an incoming trap OID to an alert type.
type TrapDefinition struct {
	AlertType   string `json:"alert_type"`
	Description string `json:"description,omitempty"`
	ClearOID    string `json:"clear_oid,omitempty"`
}

// SNMPTrapBlock is the transport block for method=snmp_trap.
type SNMPTrapBlock struct {
	EnterpriseOID   string                    `json:"enterprise_oid"`
	TrapDefinitions map[string]TrapDefinition `json:"trap_definitions"`
	VarbindMappings map[string]string        `json:"varbind_mappings,omitempty"`
}

// WebhookBlock is the transport block for method=webhook.
type WebhookBlock struct {
	EndpointPath string `json:"endpoint_path"`
}

// APIEndpoint is one polled HTTP endpoint for method=api_poll.
type APIEndpoint struct {
	Path            string `json:"path"`
	Method          string `json:"method"`
	AlertOnFailure  string `json:"alert_on_failure,omitempty"`
}

// APIPollBlock is the transport block for method=api_poll.
type APIPollBlock struct {
	BaseURLTemplate     string            `json:"base_url_template"`
	Endpoints           []APIEndpoint     `json:"endpoints"`
	AuthType            string            `json:"auth_type,omitempty"`
	DefaultCredentials  map[string]string `json:"default_credentials,omitempty"`
}

// AlertCondition is one threshold check inside a poll_group.
type AlertCondition struct {
	Field     string      `json:"field"`
	Operator  string      `json:"operator"` // equals | not_equals | greater_than | less_than | contains
	Value     interface{} `json:"value"`
	AlertType string      `json:"alert_type"`
}

// PollGroup is one batch of OIDs polled together for method=snmp_poll.
type PollGroup struct {
	OIDs            []string         `json:"oids"`
	AlertConditions []AlertCondition `json:"alert_conditions"`
}

// SNMPPollBlock is the transport block for method=snmp_poll.
type SNMPPollBlock struct {
	PollGroups []PollGroup `json:"poll_groups"`
}

// SSHCommand is one command run per polling cycle for method=ssh.
type SSHCommand struct {
	Command string `json:"command"`
	ParseAs string `json:"parse_as"`
}

// SSHBlock is the transport block for method=ssh.
type SSHBlock struct {
	Commands []SSHCommand `json:"commands"`
}

// AlertDef is one alert_type's classification, in the grouped mapping form.
type AlertDef struct {
	AlertType   string `json:"alert_type"`
	Severity    string `json:"severity"`
	Category    string `json:"category,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// AlertMappingGroup groups related AlertDefs (the "grouped" manifest form).
type AlertMappingGroup struct {
	Alerts []AlertDef `json:"alerts"`
}

// ClearEvents describes how a clear condition is detected for this addon.
type ClearEvents struct {
	Method      string   `json:"method"` // suffix | field_value | oid_pair
	ClearSuffix string   `json:"clear_suffix,omitempty"`
	ClearField  string   `json:"clear_field,omitempty"`
	ClearValues []string `json:"clear_values,omitempty"`
}

// Manifest is the full declarative definition of a vendor/source addon.
// It accepts both the "grouped" and "flat" alert-mapping forms; callers
// should use the accessor methods below rather than reading the raw
// mapping fields, so ingestion code never branches on manifest shape.
type Manifest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	Category string `json:"category"`
	Method   Method `json:"method"`

	Parser ParserBlock `json:"parser"`

	SNMPTrap *SNMPTrapBlock `json:"snmp_trap,omitempty"`
	Webhook  *WebhookBlock  `json:"webhook,omitempty"`
	APIPoll  *APIPollBlock  `json:"api_poll,omitempty"`
	SNMPPoll *SNMPPollBlock `json:"snmp_poll,omitempty"`
	SSH      *SSHBlock      `json:"ssh,omitempty"`

	// Grouped alert mapping form.
	AlertMappings []AlertMappingGroup `json:"alert_mappings,omitempty"`

	// Flat alert mapping form.
	SeverityMappings    map[string]string `json:"severity_mappings,omitempty"`
	CategoryMappings    map[string]string `json:"category_mappings,omitempty"`
	TitleTemplates      map[string]string `json:"title_templates,omitempty"`
	DescriptionTemplates map[string]string `json:"description_templates,omitempty"`
	DisabledAlertTypes  []string          `json:"disabled_alert_types,omitempty"`

	ClearEvents ClearEvents `json:"clear_events"`
}

// Validate checks the invariants of §3.1: id present, transport block
// matching method, webhook path present when required.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("manifest: id is required")
	}
	switch m.Method {
	case MethodSNMPTrap:
		if m.SNMPTrap == nil || m.SNMPTrap.EnterpriseOID == "" {
			return fmt.Errorf("manifest %s: snmp_trap requires enterprise_oid", m.ID)
		}
	case MethodWebhook:
		if m.Webhook == nil || m.Webhook.EndpointPath == "" {
			return fmt.Errorf("manifest %s: webhook requires endpoint_path", m.ID)
		}
	case MethodAPIPoll:
		if m.APIPoll == nil {
			return fmt.Errorf("manifest %s: api_poll requires an api_poll block", m.ID)
		}
	case MethodSNMPPoll:
		if m.SNMPPoll == nil {
			return fmt.Errorf("manifest %s: snmp_poll requires a snmp_poll block", m.ID)
		}
	case MethodSSH:
		if m.SSH == nil {
			return fmt.Errorf("manifest %s: ssh requires an ssh block", m.ID)
		}
	default:
		return fmt.Errorf("manifest %s: unknown method %q", m.ID, m.Method)
	}
	return nil
}

// ParseManifest decodes and validates a raw manifest JSON document.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// SeverityFor normalizes both mapping forms into a single accessor.
func (m *Manifest) SeverityFor(alertType string) (string, bool) {
	if v, ok := m.SeverityMappings[alertType]; ok {
		return v, true
	}
	for _, grp := range m.AlertMappings {
		for _, a := range grp.Alerts {
			if a.AlertType == alertType && a.Severity != "" {
				return a.Severity, true
			}
		}
	}
	return "", false
}

// CategoryFor normalizes both mapping forms into a single accessor.
func (m *Manifest) CategoryFor(alertType string) (string, bool) {
	if v, ok := m.CategoryMappings[alertType]; ok {
		return v, true
	}
	for _, grp := range m.AlertMappings {
		for _, a := range grp.Alerts {
			if a.AlertType == alertType && a.Category != "" {
				return a.Category, true
			}
		}
	}
	return "", false
}

// TitleFor normalizes both mapping forms into a single accessor.
func (m *Manifest) TitleFor(alertType string) (string, bool) {
	if v, ok := m.TitleTemplates[alertType]; ok {
		return v, true
	}
	for _, grp := range m.AlertMappings {
		for _, a := range grp.Alerts {
			if a.AlertType == alertType && a.Title != "" {
				return a.Title, true
			}
		}
	}
	return "", false
}

// DescriptionFor normalizes both mapping forms into a single accessor.
func (m *Manifest) DescriptionFor(alertType string) (string, bool) {
	if v, ok := m.DescriptionTemplates[alertType]; ok {
		return v, true
	}
	for _, grp := range m.AlertMappings {
		for _, a := range grp.Alerts {
			if a.AlertType == alertType && a.Description != "" {
				return a.Description, true
			}
		}
	}
	return "", false
}

// IsAlertEnabled reports whether alertType is enabled for dispatch. Flat
// manifests disable via DisabledAlertTypes; grouped manifests disable via
// the per-alert Enabled flag (defaulting to true).
func (m *Manifest) IsAlertEnabled(alertType string) bool {
	for _, disabled := range m.DisabledAlertTypes {
		if disabled == alertType {
			return false
		}
	}
	for _, grp := range m.AlertMappings {
		for _, a := range grp.Alerts {
			if a.AlertType == alertType {
				return boolOr(a.Enabled, true)
			}
		}
	}
	return true
}
