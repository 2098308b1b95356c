// Package trap implements the UDP/162 SNMP trap ingestor from §4.5.
// SNMP uses implicit BER tagging (context-class tags reuse universal
// type semantics) that stdlib encoding/asn1 cannot decode, so the wire
// format is hand-parsed here in the teacher's low-level-parsing style
// (explicit byte-cursor readers, no reflection).
package trap

import (
	"errors"
	"fmt"
)

// berClass identifies a BER tag's class.
const (
	classUniversal   = 0x00
	classApplication = 0x40
	classContext     = 0x80
)

// Universal tag numbers used by SNMP PDUs.
const (
	tagInteger     = 0x02
	tagOctetString = 0x04
	tagNull        = 0x05
	tagObjectID    = 0x06
	tagSequence    = 0x30

	// SNMP application-class types
	tagIPAddress = classApplication | 0x00
	tagCounter32 = classApplication | 0x01
	tagGauge32   = classApplication | 0x02
	tagTimeTicks = classApplication | 0x03
	tagOpaque    = classApplication | 0x04
	tagCounter64 = classApplication | 0x06

	// PDU tags (context-class, constructed)
	tagTrapV1  = classContext | 0x20 | 0x04 // [4] Trap-PDU
	tagTrapV2c = classContext | 0x20 | 0x07 // [7] SNMPv2-Trap-PDU
)

var errTruncated = errors.New("ber: truncated data")

// tlv is one decoded tag-length-value node.
type tlv struct {
	tag     byte
	content []byte
}

// readTLV decodes one TLV at offset off, returning the node and the
// offset of the byte following it. Only definite-form lengths are
// accepted (SNMP never uses indefinite form).
func readTLV(buf []byte, off int) (tlv, int, error) {
	if off >= len(buf) {
		return tlv{}, 0, errTruncated
	}
	tag := buf[off]
	off++
	if off >= len(buf) {
		return tlv{}, 0, errTruncated
	}

	length := int(buf[off])
	off++
	if length&0x80 != 0 {
		numBytes := length & 0x7f
		if numBytes == 0 || numBytes > 4 {
			return tlv{}, 0, fmt.Errorf("ber: unsupported length form 0x%x", length)
		}
		if off+numBytes > len(buf) {
			return tlv{}, 0, errTruncated
		}
		length = 0
		for i := 0; i < numBytes; i++ {
			length = length<<8 | int(buf[off+i])
		}
		off += numBytes
	}

	if off+length > len(buf) {
		return tlv{}, 0, errTruncated
	}
	return tlv{tag: tag, content: buf[off : off+length]}, off + length, nil
}

// readSequenceChildren decodes every top-level TLV within a
// constructed value's content.
func readSequenceChildren(content []byte) ([]tlv, error) {
	var out []tlv
	off := 0
	for off < len(content) {
		node, next, err := readTLV(content, off)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
		off = next
	}
	return out, nil
}

func decodeInteger(content []byte) (int64, error) {
	if len(content) == 0 {
		return 0, errors.New("ber: empty integer")
	}
	var v int64
	neg := content[0]&0x80 != 0
	for _, b := range content {
		v = v<<8 | int64(b)
	}
	if neg && len(content) < 8 {
		v -= 1 << (uint(len(content)) * 8)
	}
	return v, nil
}

// decodeOID renders a BER-encoded OBJECT IDENTIFIER as dotted text.
func decodeOID(content []byte) (string, error) {
	if len(content) == 0 {
		return "", errors.New("ber: empty oid")
	}
	first := int(content[0])
	out := fmt.Sprintf("%d.%d", first/40, first%40)

	var val int64
	for _, b := range content[1:] {
		val = val<<7 | int64(b&0x7f)
		if b&0x80 == 0 {
			out += fmt.Sprintf(".%d", val)
			val = 0
		}
	}
	return out, nil
}
