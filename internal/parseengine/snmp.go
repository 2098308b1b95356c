package parseengine

import (
	"encoding/json"

	"github.com/nocalert/core/internal/models"
)

func parseSNMP(in SNMPInput, manifest *models.Manifest, addonID string) (*models.ParsedAlert, error) {
	if manifest.SNMPTrap == nil {
		return nil, nil
	}
	def, ok := manifest.SNMPTrap.TrapDefinitions[in.TrapOID]
	if !ok {
		return nil, nil
	}

	fields := map[string]string{
		"alert_type": def.AlertType,
		"device_ip":  in.SourceIP,
	}
	if def.Description != "" {
		fields["message"] = def.Description
	}

	mappings := manifest.SNMPTrap.VarbindMappings
	if mappings == nil {
		mappings = manifest.Parser.VarbindMappings
	}
	for oid, field := range mappings {
		if v, ok := in.Varbinds[oid]; ok {
			fields[field] = v
		}
	}

	raw, err := json.Marshal(in)
	if err != nil {
		raw = nil
	}

	return finish(addonID, fields, raw, manifest, in.IsClear)
}
