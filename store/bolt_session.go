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
	"encoding/binary"
	"encoding/gob"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/internal/storeutil"
	"github.com/gravwell/node-identifier/log"
	"github.com/gravwell/node-identifier/nerr"
)

// BoltSessionStore is the bbolt-backed Session Store. Records live in
// a table-per-variant bucket keyed by pseudo_key ‖ big-endian(create_time),
// so a range scan over one pseudo_key is a bucket.Cursor prefix walk.
//
// bbolt serializes every Update transaction process-wide, which is
// exactly the compare-and-set guarantee the spec's per-record
// `version` field models for a networked KV backend; the RetryBound
// passed to storeutil.Limiter.Retry is therefore a no-op safety net
// here (the read-decide-write below can't lose a race inside one
// process) rather than a live necessity, kept so the store still
// honors config.Global.Store_Retry_Bound's documented contract and so
// a future networked backend swaps in without changing call sites.
type BoltSessionStore struct {
	db      *bbolt.DB
	limiter *storeutil.Limiter
	retry   int
	lgr     *log.Logger
}

// NewBoltSessionStore builds a Session Store over db. retryBound is
// config.Global.Store_Retry_Bound; lgr may be nil to disable the
// rule-5 overlap-divergence log (§9 open question).
func NewBoltSessionStore(db *bbolt.DB, limiter *storeutil.Limiter, retryBound int, lgr *log.Logger) *BoltSessionStore {
	return &BoltSessionStore{db: db, limiter: limiter, retry: retryBound, lgr: lgr}
}

func (s *BoltSessionStore) HandleUnidSession(ctx context.Context, table string, u graph.UnidSession, mayDefault bool) (string, error) {
	bucketName := []byte(table)
	var sessionId string
	err := s.limiter.Retry(ctx, s.retry, func(attempt int) (bool, error) {
		txErr := s.db.Update(func(tx *bbolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists(bucketName)
			if err != nil {
				return err
			}
			records, keys, err := scanPseudoKey(b, u.PseudoKey)
			if err != nil {
				return err
			}
			decision, err := decideSession(records, u, mayDefault, uuid.NewString)
			if err != nil {
				return err
			}
			if decision.DivergedOverlap && s.lgr != nil {
				s.lgr.Warn("session overlap rule 5 diverged; trusting earlier canonical record",
					log.KV("pseudo_key", u.PseudoKey), log.KV("timestamp", u.Timestamp))
			}
			if decision.Insert != nil {
				if err := putSession(b, *decision.Insert); err != nil {
					return err
				}
			}
			if decision.Update != nil {
				// The key is derived from PseudoKey+CreateTime; if
				// CreateTime changed (rule 2's backfill-create
				// case) the old key must be removed so the log
				// doesn't carry two entries for one session.
				oldKey := keys[decision.UpdateIndex]
				newKey := sessionKey(decision.Update.PseudoKey, decision.Update.CreateTime)
				if !bytes.Equal(oldKey, newKey) {
					if err := b.Delete(oldKey); err != nil {
						return err
					}
				}
				if err := putSession(b, *decision.Update); err != nil {
					return err
				}
			}
			sessionId = decision.SessionId
			return nil
		})
		if txErr != nil {
			if _, ok := txErr.(*nerr.Error); ok {
				return false, txErr // permanent classification, stop retrying
			}
			return false, nerr.StoreUnavailable(txErr)
		}
		return true, nil
	})
	return sessionId, err
}

func sessionKey(pseudoKey string, createTime uint64) []byte {
	k := make([]byte, len(pseudoKey)+1+8)
	copy(k, pseudoKey)
	k[len(pseudoKey)] = 0 // separator: pseudo keys never embed a NUL byte
	binary.BigEndian.PutUint64(k[len(pseudoKey)+1:], createTime)
	return k
}

func putSession(b *bbolt.Bucket, rec graph.Session) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return err
	}
	return b.Put(sessionKey(rec.PseudoKey, rec.CreateTime), buf.Bytes())
}

// scanPseudoKey returns every record sharing pseudoKey, ascending by
// CreateTime, alongside their raw bbolt keys (same index order) so a
// caller that decides to rewrite one record can find and delete its
// old key.
func scanPseudoKey(b *bbolt.Bucket, pseudoKey string) ([]graph.Session, [][]byte, error) {
	prefix := append([]byte(pseudoKey), 0)
	var records []graph.Session
	var keys [][]byte
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var rec graph.Session
		if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&rec); err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
		keyCopy := append([]byte{}, k...)
		keys = append(keys, keyCopy)
	}
	sortByCreateTimeWithKeys(records, keys)
	return records, keys, nil
}

// sortByCreateTimeWithKeys keeps keys in lockstep with records while
// sorting by CreateTime (bbolt cursor order already matches this
// since keys embed create_time big-endian, but is re-asserted here so
// decideSession's ordering precondition never depends on key layout).
func sortByCreateTimeWithKeys(records []graph.Session, keys [][]byte) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j-1].CreateTime > records[j].CreateTime; j-- {
			records[j-1], records[j] = records[j], records[j-1]
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}
