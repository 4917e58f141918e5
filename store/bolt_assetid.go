/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package store

import (
	"bytes"
	"context"

	"go.etcd.io/bbolt"

	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/internal/storeutil"
	"github.com/gravwell/node-identifier/nerr"
)

// BoltAssetIdStore is the bbolt-backed Asset-ID Store: one bucket
// holding, per host_id, a time-ordered log of asset-id mappings keyed
// by host_id ‖ big-endian(ts), so ResolveAssetId is a single
// Cursor.Seek + Prev for "greatest ts' <= ts" (spec §4.1's resolution
// rule).
type BoltAssetIdStore struct {
	db      *bbolt.DB
	bucket  []byte
	limiter *storeutil.Limiter
}

// NewBoltAssetIdStore opens (creating if absent) the named bucket in
// db for use as an Asset-ID Store. limiter may be nil to disable
// call-rate shaping.
func NewBoltAssetIdStore(db *bbolt.DB, bucket string, limiter *storeutil.Limiter) (*BoltAssetIdStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, nerr.StoreUnavailable(err)
	}
	return &BoltAssetIdStore{db: db, bucket: []byte(bucket), limiter: limiter}, nil
}

func (s *BoltAssetIdStore) CreateMapping(ctx context.Context, host graph.HostId, assetId string, ts uint64) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return nerr.StoreUnavailable(err)
	}
	key := append(hostKey(host), beUint64(ts)...)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		// Idempotent on (host_id, asset_id, ts): if the exact
		// timestamp is already mapped to the same asset-id, this is
		// a no-op write rather than a duplicate entry.
		if existing := b.Get(key); existing != nil && bytes.Equal(existing, []byte(assetId)) {
			return nil
		}
		return b.Put(key, []byte(assetId))
	})
	if err != nil {
		return nerr.StoreUnavailable(err)
	}
	return nil
}

func (s *BoltAssetIdStore) ResolveAssetId(ctx context.Context, host graph.HostId, ts uint64) (string, bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", false, nerr.StoreUnavailable(err)
	}
	prefix := hostKey(host)
	target := append(append([]byte{}, prefix...), beUint64(ts)...)

	var assetId string
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		k, v := c.Seek(target)
		if k != nil && bytes.Equal(k, target) {
			assetId, found = string(v), true
			return nil
		}
		// Seek lands on the first key >= target (or nil past the
		// end); the mapping we want, if any, is the one just before
		// that, provided it still shares our host prefix.
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		if k != nil && bytes.HasPrefix(k, prefix) {
			assetId, found = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, nerr.StoreUnavailable(err)
	}
	return assetId, found, nil
}
