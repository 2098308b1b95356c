package trap

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// snmpTrapOID is the well-known varbind OID carrying the trap's
// identity in an SNMPv2-Trap-PDU.
const snmpTrapOID = "1.3.6.1.6.3.1.1.4.1.0"

// snmpTrapPrefix is the generic-trap-to-OID mapping base for SNMPv1
// when no enterprise-specific trap is used (generic != 6).
const snmpTrapPrefix = "1.3.6.1.6.3.1.1.5"

// Decoded is the normalized result of decoding one trap datagram,
// independent of whether it arrived as v1 or v2c.
type Decoded struct {
	Version       int
	Community     string
	TrapOID       string
	EnterpriseOID string
	Varbinds      map[string]string
}

// Decode parses an SNMPv1/v2c Message datagram.
func Decode(datagram []byte) (*Decoded, error) {
	msg, _, err := readTLV(datagram, 0)
	if err != nil {
		return nil, fmt.Errorf("trap: decode message envelope: %w", err)
	}
	if msg.tag != tagSequence {
		return nil, fmt.Errorf("trap: expected SEQUENCE envelope, got tag 0x%x", msg.tag)
	}
	children, err := readSequenceChildren(msg.content)
	if err != nil {
		return nil, fmt.Errorf("trap: decode message fields: %w", err)
	}
	if len(children) < 3 {
		return nil, fmt.Errorf("trap: message has %d fields, want at least 3", len(children))
	}

	version, err := decodeInteger(children[0].content)
	if err != nil {
		return nil, fmt.Errorf("trap: decode version: %w", err)
	}
	community := string(children[1].content)
	pdu := children[2]

	switch pdu.tag {
	case tagTrapV1:
		return decodeTrapV1(int(version), community, pdu.content)
	case tagTrapV2c:
		return decodeTrapV2c(int(version), community, pdu.content)
	default:
		return nil, fmt.Errorf("trap: unsupported PDU tag 0x%x", pdu.tag)
	}
}

func decodeTrapV1(version int, community string, content []byte) (*Decoded, error) {
	fields, err := readSequenceChildren(content)
	if err != nil {
		return nil, fmt.Errorf("trap: decode v1 PDU: %w", err)
	}
	if len(fields) < 6 {
		return nil, fmt.Errorf("trap: v1 PDU has %d fields, want 6", len(fields))
	}

	enterpriseOID, err := decodeOID(fields[0].content)
	if err != nil {
		return nil, fmt.Errorf("trap: decode enterprise OID: %w", err)
	}
	generic, err := decodeInteger(fields[2].content)
	if err != nil {
		return nil, fmt.Errorf("trap: decode generic-trap: %w", err)
	}
	specific, err := decodeInteger(fields[3].content)
	if err != nil {
		return nil, fmt.Errorf("trap: decode specific-trap: %w", err)
	}

	var trapOID string
	if generic == 6 {
		trapOID = fmt.Sprintf("%s.0.%d", enterpriseOID, specific)
	} else {
		trapOID = fmt.Sprintf("%s.%d", snmpTrapPrefix, generic+1)
	}

	varbinds, err := decodeVarbinds(fields[5].content)
	if err != nil {
		return nil, fmt.Errorf("trap: decode v1 varbinds: %w", err)
	}

	return &Decoded{
		Version:       version,
		Community:     community,
		TrapOID:       trapOID,
		EnterpriseOID: enterpriseOID,
		Varbinds:      varbinds,
	}, nil
}

func decodeTrapV2c(version int, community string, content []byte) (*Decoded, error) {
	fields, err := readSequenceChildren(content)
	if err != nil {
		return nil, fmt.Errorf("trap: decode v2c PDU: %w", err)
	}
	if len(fields) < 4 {
		return nil, fmt.Errorf("trap: v2c PDU has %d fields, want at least 4", len(fields))
	}

	varbinds, err := decodeVarbinds(fields[3].content)
	if err != nil {
		return nil, fmt.Errorf("trap: decode v2c varbinds: %w", err)
	}

	trapOID, ok := varbinds[snmpTrapOID]
	if !ok {
		return nil, fmt.Errorf("trap: v2c PDU missing snmpTrapOID varbind %s", snmpTrapOID)
	}

	enterpriseOID := trapOID
	if idx := strings.LastIndex(trapOID, "."); idx > 0 {
		if idx2 := strings.LastIndex(trapOID[:idx], "."); idx2 > 0 {
			enterpriseOID = trapOID[:idx2]
		}
	}

	return &Decoded{
		Version:       version,
		Community:     community,
		TrapOID:       trapOID,
		EnterpriseOID: enterpriseOID,
		Varbinds:      varbinds,
	}, nil
}

func decodeVarbinds(content []byte) (map[string]string, error) {
	entries, err := readSequenceChildren(content)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.tag != tagSequence {
			continue
		}
		pair, err := readSequenceChildren(entry.content)
		if err != nil || len(pair) != 2 {
			continue
		}
		oid, err := decodeOID(pair[0].content)
		if err != nil {
			continue
		}
		out[oid] = renderValue(pair[1])
	}
	return out, nil
}

func renderValue(node tlv) string {
	switch node.tag {
	case tagInteger:
		v, err := decodeInteger(node.content)
		if err != nil {
			return ""
		}
		return strconv.FormatInt(v, 10)
	case tagOctetString, tagOpaque:
		return string(node.content)
	case tagObjectID:
		v, err := decodeOID(node.content)
		if err != nil {
			return ""
		}
		return v
	case tagIPAddress:
		if len(node.content) == 4 {
			return net.IP(node.content).String()
		}
		return ""
	case tagCounter32, tagGauge32, tagTimeTicks, tagCounter64:
		v, err := decodeUnsigned(node.content)
		if err != nil {
			return ""
		}
		return strconv.FormatUint(v, 10)
	case tagNull:
		return ""
	default:
		return ""
	}
}

func decodeUnsigned(content []byte) (uint64, error) {
	var v uint64
	for _, b := range content {
		v = v<<8 | uint64(b)
	}
	return v, nil
}
