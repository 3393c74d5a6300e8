package registers

import (
	"encoding/binary"
	"encoding/hex"
)

// EncodeBytes returns the hex constant for a Coll[Byte].
func EncodeBytes(b []byte) string {
	buf := []byte{byte(KindBytes)}
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return hex.EncodeToString(append(buf, b...))
}

// EncodeText returns the hex constant for a UTF-8 string.
func EncodeText(s string) string {
	return EncodeBytes([]byte(s))
}

// EncodeLong returns the hex constant for a Long.
func EncodeLong(n int64) string {
	buf := []byte{byte(KindLong)}
	buf = binary.AppendUvarint(buf, uint64(n<<1)^uint64(n>>63))
	return hex.EncodeToString(buf)
}

// EncodeInt returns the hex constant for an Int.
func EncodeInt(n int32) string {
	buf := []byte{byte(KindInt)}
	buf = binary.AppendUvarint(buf, uint64(uint32(n<<1)^uint32(n>>31)))
	return hex.EncodeToString(buf)
}
