/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/gravwell/node-identifier/internal/storeutil"
	"github.com/gravwell/node-identifier/nerr"
)

// BoltDynamicMappingStore is the bbolt-backed Dynamic-Mapping Store of
// spec §4.3: a get-or-create table from (node_type, canonicalized
// identifying fields) to a minted canonical id.
type BoltDynamicMappingStore struct {
	db      *bbolt.DB
	bucket  []byte
	limiter *storeutil.Limiter
}

func NewBoltDynamicMappingStore(db *bbolt.DB, bucket string, limiter *storeutil.Limiter) (*BoltDynamicMappingStore, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		return nil, nerr.StoreUnavailable(err)
	}
	return &BoltDynamicMappingStore{db: db, bucket: []byte(bucket), limiter: limiter}, nil
}

// CanonicalFields sorts fields by key and joins them as "k=v" lines,
// the stable encoding spec §4.3 calls
// identifying_properties_canonicalized. Only the Dynamic-Mapping
// Store's key uses it; the Node Identifier's pseudo-keys are built by
// plain concatenation.
func CanonicalFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

func dynamicKey(nodeType string, fields map[string]string) []byte {
	sum := sha256.Sum256([]byte(CanonicalFields(fields)))
	return []byte(nodeType + "\x00" + hex.EncodeToString(sum[:]))
}

func (s *BoltDynamicMappingStore) Resolve(ctx context.Context, nodeType string, fields map[string]string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", nerr.StoreUnavailable(err)
	}
	key := dynamicKey(nodeType, fields)
	var canonicalId string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if existing := b.Get(key); existing != nil {
			canonicalId = string(existing)
			return nil
		}
		canonicalId = uuid.NewString()
		return b.Put(key, []byte(canonicalId))
	})
	if err != nil {
		return "", nerr.StoreUnavailable(err)
	}
	return canonicalId, nil
}
