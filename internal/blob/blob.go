// Package blob implements the on-disk document format:
//
//	[4-byte big-endian metadata length][CBOR metadata][raw payload]
//
// The metadata region is self-describing so fields can be added without
// breaking older blobs.
package blob

import (
	"encoding/binary"
	"fmt"

	"arc-go/internal/arc"
)

// prefixLen is the width of the metadata length prefix.
const prefixLen = 4

// Encode serializes meta and appends payload after it.
func Encode(meta arc.DocumentMeta, payload []byte) ([]byte, error) {
	m, err := Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	if uint64(len(m)) > uint64(^uint32(0)) {
		return nil, arc.Malformed("metadata of %d bytes exceeds the length prefix", len(m))
	}

	out := make([]byte, prefixLen, prefixLen+len(m)+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(m)))
	out = append(out, m...)
	out = append(out, payload...)
	return out, nil
}

// Decode splits a blob into its metadata and payload. The returned payload
// aliases b. Truncated or corrupt blobs are reported as arc.ErrMalformed.
func Decode(b []byte) (arc.DocumentMeta, []byte, error) {
	var meta arc.DocumentMeta

	if len(b) < prefixLen {
		return meta, nil, arc.Malformed("blob of %d bytes has no length prefix", len(b))
	}
	n := binary.BigEndian.Uint32(b)
	rest := b[prefixLen:]
	if uint64(n) > uint64(len(rest)) {
		return meta, nil, arc.Malformed("metadata length %d exceeds remaining %d bytes", n, len(rest))
	}

	if err := Unmarshal(rest[:n], &meta); err != nil {
		return meta, nil, arc.Malformed("decoding metadata: %v", err)
	}
	return meta, rest[n:], nil
}
