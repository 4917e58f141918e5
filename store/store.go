/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package store holds the three external-store abstractions the Node
// Identifier depends on (spec §4.1-§4.3) plus a shared bbolt-backed
// implementation, the same embedded KV engine the teacher uses for
// its own on-disk cache (see ingest/boltcache_test.go).
package store

import (
	"context"
	"encoding/binary"

	"github.com/gravwell/node-identifier/graph"
)

// AssetIdStore is the Asset-ID Store contract of spec §4.1.
type AssetIdStore interface {
	// CreateMapping records that at time ts the host identified by
	// host corresponds to assetId. Idempotent on (host, assetId, ts).
	CreateMapping(ctx context.Context, host graph.HostId, assetId string, ts uint64) error

	// ResolveAssetId returns the asset-id of the mapping with the
	// greatest ts' <= ts, or ok=false if no such mapping exists. A
	// miss is not an error.
	ResolveAssetId(ctx context.Context, host graph.HostId, ts uint64) (assetId string, ok bool, err error)
}

// SessionStore is the Session Store contract of spec §4.2.
type SessionStore interface {
	// HandleUnidSession resolves a provisional session observation
	// to a canonical session id, per the five-rule algorithm in
	// spec §4.2. mayDefault controls rule 4's fallback for a
	// non-creation observation with no prior record.
	HandleUnidSession(ctx context.Context, table string, u graph.UnidSession, mayDefault bool) (sessionId string, err error)
}

// DynamicMappingStore is the Dynamic-Mapping Store contract of spec
// §4.3.
type DynamicMappingStore interface {
	// Resolve returns the canonical id for (nodeType, fields),
	// minting and storing a fresh one (via uuid) if no entry exists
	// yet (get-or-create).
	Resolve(ctx context.Context, nodeType string, fields map[string]string) (canonicalId string, err error)
}

// hostKey encodes a HostId for use as a bbolt key prefix: a one-byte
// kind tag, the raw value, and a trailing NUL separator, so
// Hostname("x") and AssetId("x") never collide and a prefix match
// against this key can never cross into a different, longer host
// value that happens to share this one's leading bytes (e.g. "h1" vs
// "h10") — the same separator discipline sessionKey uses.
func hostKey(h graph.HostId) []byte {
	b := make([]byte, 1+len(h.Value)+1)
	if h.Kind == graph.HostAssetId {
		b[0] = 1
	}
	copy(b[1:], h.Value)
	// b[len(b)-1] is already 0 from make; the separator byte.
	return b
}

// beUint64 big-endian encodes ts so lexicographic byte order matches
// numeric order, letting a bbolt cursor Seek find the greatest
// timestamp <= ts with a single Seek+Prev.
func beUint64(ts uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, ts)
	return b
}
