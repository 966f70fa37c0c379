package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// CanonicalJSON renders a payload map as JSON with object keys sorted at
// every depth, so equal maps always serialize to equal bytes regardless of
// insertion order. Leaves are encoded with encoding/json; a value that
// cannot be encoded becomes null.
func CanonicalJSON(payload map[string]any) []byte {
	var b bytes.Buffer
	writeCanonical(&b, payload)
	return b.Bytes()
}

// HashPayload returns the hex SHA-256 of the canonical serialization of
// payload. Fingerprints built on it are safe to persist and compare across
// processes.
func HashPayload(payload map[string]any) string {
	sum := sha256.Sum256(CanonicalJSON(payload))
	return hex.EncodeToString(sum[:])
}

func writeCanonical(b *bytes.Buffer, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, k)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	default:
		bs, err := json.Marshal(t)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(bs)
	}
}
