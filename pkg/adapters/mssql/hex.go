package mssql

import (
	"encoding/binary"
)

// bytesToHexWithoutLeadingZerosSQL formats an 8-byte big-endian rowversion
// as upper-case hex without leading zeros: 0x00000000187F863C → "187F863C".
// All-zero input gives "00"; input of any other length gives "00" too.
func bytesToHexWithoutLeadingZerosSQL(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) != 8 {
		return "00"
	}

	value := binary.BigEndian.Uint64(data)
	if value == 0 {
		return "00"
	}

	const hexChars = "0123456789ABCDEF"
	var result [16]byte
	pos := len(result)
	for value > 0 {
		pos--
		result[pos] = hexChars[value&0x0F]
		value >>= 4
	}

	return string(result[pos:])
}
