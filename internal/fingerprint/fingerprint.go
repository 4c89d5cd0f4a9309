// Package fingerprint computes the deterministic, content-addressed
// identities used throughout astdb: node ids and query cache keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NodeID computes the stable identifier for a persisted Node: a hash of
// the file path, canonical kind, normalized shape, and byte offset. Two
// parses of identical file bytes produce identical ids.
//
// normalizedShape is the node kind followed by its child kinds in order,
// with whitespace and comments excluded — the caller (classifier) builds
// this string since only it knows the concrete tree's shape.
func NodeID(filePath, kind, normalizedShape string, byteOffset int) string {
	h := sha256.New()
	h.Write([]byte(filePath))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(normalizedShape))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(byteOffset)))
	return hex.EncodeToString(h.Sum(nil))
}

// QueryKey computes the deterministic cache key for a query shape:
// "query:" + queryKind + ":" + hex16(SHA256(queryKind|queryText|canonicalJSON(options)|indexVersion)).
func QueryKey(queryKind, queryText string, options map[string]any, indexVersion uint32) (string, error) {
	canonicalOptions, err := CanonicalJSON(options)
	if err != nil {
		return "", fmt.Errorf("fingerprint: canonicalizing options: %w", err)
	}

	payload := strings.Join([]string{
		queryKind,
		queryText,
		canonicalOptions,
		strconv.FormatUint(uint64(indexVersion), 10),
	}, "|")

	sum := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("query:%s:%s", queryKind, hex.EncodeToString(sum[:])[:16]), nil
}

// CanonicalJSON renders options as JSON with map keys sorted, so that
// logically identical option sets always fingerprint identically
// regardless of construction order.
func CanonicalJSON(options map[string]any) (string, error) {
	if options == nil {
		return "{}", nil
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		valJSON, err := json.Marshal(options[k])
		if err != nil {
			return "", err
		}
		sb.Write(keyJSON)
		sb.WriteByte(':')
		sb.Write(valJSON)
	}
	sb.WriteByte('}')
	return sb.String(), nil
}

// NormalizedShape joins a node's own kind with its children's kinds, the
// exact input the classifier feeds to NodeID.
func NormalizedShape(kind string, childKinds []string) string {
	if len(childKinds) == 0 {
		return kind
	}
	return kind + " " + strings.Join(childKinds, " ")
}
