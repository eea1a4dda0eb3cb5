package ingest

// hash.go implements canonical hashing for duplicate detection.
//
// The digest is a dedup key, not a security boundary: it only needs to be
// deterministic and collision-resistant enough that two submissions of the
// same logical event always collide and distinct events practically never
// do. Object key order must not affect the result, since JSON round-trips
// through various tools reorder keys freely.

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DedupeHash derives the dedupe key for one raw event: a lowercase hex
// SHA-256 of the canonical serialization of the event's identity and
// payload. connectionID may be nil for events not tied to a connection.
func DedupeHash(orgID uuid.UUID, connectionID *uuid.UUID, eventType string, payload any) string {
	var conn any
	if connectionID != nil {
		conn = connectionID.String()
	}

	canonical := Canonicalize(map[string]any{
		"org_id":        orgID.String(),
		"connection_id": conn,
		"event_type":    eventType,
		"payload":       payload,
	})

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Canonicalize serializes a structured value into a single deterministic
// string: primitives in their natural literal form, sequences recursively
// in brackets, and keyed maps in braces with keys sorted lexicographically.
func Canonicalize(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case string:
		b.WriteString(strconv.Quote(x))
	case float64:
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case float32:
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	case int:
		b.WriteString(strconv.Itoa(x))
	case int32:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case json.Number:
		b.WriteString(x.String())
	case []any:
		b.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, elem)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, elem)
		}
		b.WriteByte(']')
	case map[string]any:
		writeCanonicalMap(b, x)
	case map[string]string:
		writeCanonicalMap(b, x)
	case RowPayload:
		writeCanonical(b, map[string]any{
			"data":      x.Data,
			"row_index": x.RowIndex,
		})
	default:
		// Unknown kinds fall back to JSON, which is deterministic for a
		// fixed Go value (struct field order, sorted map keys).
		data, err := json.Marshal(x)
		if err != nil {
			fmt.Fprintf(b, "%v", x)
			return
		}
		b.Write(data)
	}
}

func writeCanonicalMap[V any](b *strings.Builder, m map[string]V) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		writeCanonical(b, m[k])
	}
	b.WriteByte('}')
}
