package parseengine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nocalert/core/internal/models"
)

func TestParseJSON_DotPathAndBareKey(t *testing.T) {
	manifest := &models.Manifest{
		Parser: models.ParserBlock{
			Type: models.ParserJSON,
			FieldMappings: map[string]string{
				"alert_type": "$.status",
				"device_ip":  "$.host",
				"message":    "$.message",
			},
		},
	}
	raw := []byte(`{"host":"10.0.0.9","status":"down","message":"Sensor offline"}`)

	pa, err := Parse(raw, manifest, "prtg")
	require.NoError(t, err)
	require.NotNil(t, pa)
	require.Equal(t, "down", pa.AlertType)
	require.Equal(t, "10.0.0.9", pa.DeviceIP)
	require.Equal(t, "Sensor offline", pa.Message)
}

func TestParseJSON_MissingPathYieldsNoEntry(t *testing.T) {
	manifest := &models.Manifest{
		Parser: models.ParserBlock{
			Type: models.ParserJSON,
			FieldMappings: map[string]string{
				"alert_type": "$.status",
				"device_ip":  "$.nested.missing",
			},
		},
	}
	raw := []byte(`{"status":"down"}`)

	pa, err := Parse(raw, manifest, "prtg")
	require.NoError(t, err)
	require.NotNil(t, pa)
	require.Equal(t, "down", pa.AlertType)
	require.Equal(t, "", pa.DeviceIP)
}

func TestParseSNMP_TrapDefinitionAndVarbinds(t *testing.T) {
	manifest := &models.Manifest{
		Parser: models.ParserBlock{Type: models.ParserSNMP},
		SNMPTrap: &models.SNMPTrapBlock{
			EnterpriseOID: "1.3.6.1.4.1.31926",
			TrapDefinitions: map[string]models.TrapDefinition{
				"1.3.6.1.4.1.31926.1.1.2.1.1": {AlertType: "link_down"},
			},
			VarbindMappings: map[string]string{"1.3.6.1.2.1.2.2.1.2": "interface"},
		},
	}
	in := SNMPInput{
		SourceIP: "10.0.0.5",
		TrapOID:  "1.3.6.1.4.1.31926.1.1.2.1.1",
		Varbinds: map[string]string{"1.3.6.1.2.1.2.2.1.2": "eth0"},
	}

	pa, err := Parse(in, manifest, "siklu")
	require.NoError(t, err)
	require.NotNil(t, pa)
	require.Equal(t, "link_down", pa.AlertType)
	require.Equal(t, "10.0.0.5", pa.DeviceIP)
	require.Equal(t, "eth0", pa.Fields["interface"])
}

func TestParseSNMP_UnknownTrapOIDYieldsNil(t *testing.T) {
	manifest := &models.Manifest{
		Parser:   models.ParserBlock{Type: models.ParserSNMP},
		SNMPTrap: &models.SNMPTrapBlock{EnterpriseOID: "1.3.6.1.4.1.31926", TrapDefinitions: map[string]models.TrapDefinition{}},
	}
	pa, err := Parse(SNMPInput{TrapOID: "9.9.9"}, manifest, "siklu")
	require.NoError(t, err)
	require.Nil(t, pa)
}

func TestParseRegex_NumberedGroups(t *testing.T) {
	manifest := &models.Manifest{
		Parser: models.ParserBlock{
			Type:    models.ParserRegex,
			Pattern: `(\w+) is (\w+) on (\S+)`,
			Fields:  []string{"alert_type", "status", "device_ip"},
		},
	}
	pa, err := Parse("link is down on 10.0.0.1", manifest, "addon")
	require.NoError(t, err)
	require.NotNil(t, pa)
	require.Equal(t, "link", pa.AlertType)
	require.Equal(t, "10.0.0.1", pa.Fields["device_ip"])
}

func TestParseGrok_BuiltinPatterns(t *testing.T) {
	manifest := &models.Manifest{
		Parser: models.ParserBlock{
			Type:        models.ParserGrok,
			GrokPattern: `%{WORD:alert_type} from %{IP:device_ip}`,
		},
	}
	pa, err := Parse("linkdown from 10.0.0.1", manifest, "addon")
	require.NoError(t, err)
	require.NotNil(t, pa)
	require.Equal(t, "linkdown", pa.AlertType)
	require.Equal(t, "10.0.0.1", pa.Fields["device_ip"])
}

func TestParseGrok_UnknownPatternProducesNoGroup(t *testing.T) {
	manifest := &models.Manifest{
		Parser: models.ParserBlock{
			Type:        models.ParserGrok,
			GrokPattern: `%{NOPE:device_ip} %{WORD:alert_type}`,
		},
	}
	pa, err := Parse("xyz linkdown", manifest, "addon")
	require.NoError(t, err)
	require.Nil(t, pa) // literal %{NOPE:device_ip} never matches "xyz"
}

func TestParseKeyValue_DefaultDelimiter(t *testing.T) {
	manifest := &models.Manifest{Parser: models.ParserBlock{Type: models.ParserKeyValue}}
	raw := "alert_type: link_down\ndevice_ip: 10.0.0.1\n"
	pa, err := Parse(raw, manifest, "addon")
	require.NoError(t, err)
	require.NotNil(t, pa)
	require.Equal(t, "link_down", pa.AlertType)
	require.Equal(t, "10.0.0.1", pa.DeviceIP)
}

func TestTransformations(t *testing.T) {
	manifest := &models.Manifest{
		Parser: models.ParserBlock{
			Type: models.ParserJSON,
			FieldMappings: map[string]string{
				"alert_type": "$.type",
				"severity":   "$.sev",
			},
			Transformations: []models.Transformation{
				{Field: "severity", Type: "lookup", Map: map[string]string{"2": "critical"}},
				{Field: "alert_type", Type: "uppercase"},
			},
		},
	}
	raw := []byte(`{"type":"down","sev":"2"}`)
	pa, err := Parse(raw, manifest, "addon")
	require.NoError(t, err)
	require.NotNil(t, pa)
	require.Equal(t, "DOWN", pa.AlertType)
	require.Equal(t, "critical", pa.Fields["severity"])
}

func TestClearDetection_Suffix(t *testing.T) {
	manifest := &models.Manifest{
		Parser:      models.ParserBlock{Type: models.ParserJSON, FieldMappings: map[string]string{"alert_type": "$.type"}},
		ClearEvents: models.ClearEvents{Method: "suffix", ClearSuffix: "_clear"},
	}
	pa, err := Parse([]byte(`{"type":"link_down_clear"}`), manifest, "addon")
	require.NoError(t, err)
	require.True(t, pa.IsClear)
}

func TestClearDetection_FieldValueCaseInsensitive(t *testing.T) {
	manifest := &models.Manifest{
		Parser: models.ParserBlock{
			Type:          models.ParserJSON,
			FieldMappings: map[string]string{"alert_type": "$.type", "status": "$.status"},
		},
		ClearEvents: models.ClearEvents{Method: "field_value", ClearField: "status", ClearValues: []string{"UP", "OK"}},
	}
	pa, err := Parse([]byte(`{"type":"link","status":"up"}`), manifest, "addon")
	require.NoError(t, err)
	require.True(t, pa.IsClear)
}

func TestParseTimestamp_Variants(t *testing.T) {
	cases := []string{
		"2024-01-02T15:04:05Z",
		"2024-01-02 15:04:05",
		"2024-01-02 15:04:05.123",
		"2024-01-02",
	}
	for _, c := range cases {
		_, ok := ParseTimestamp(c)
		require.True(t, ok, "expected %q to parse", c)
	}
	_, ok := ParseTimestamp("not a timestamp")
	require.False(t, ok)
}

func TestNoFieldsExtractedYieldsNil(t *testing.T) {
	manifest := &models.Manifest{Parser: models.ParserBlock{Type: models.ParserJSON, FieldMappings: map[string]string{}}}
	pa, err := Parse([]byte(`{}`), manifest, "addon")
	require.NoError(t, err)
	require.Nil(t, pa)
}
