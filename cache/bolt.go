/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package cache

import (
	"context"

	"go.etcd.io/bbolt"

	"github.com/gravwell/node-identifier/nerr"
)

// Bolt is a persistent Identity Cache backed by bbolt, surviving a
// process restart mid-batch. Shares the same on-disk file as the
// identity stores when given the same *bbolt.DB, since they are all
// small, low-write-volume tables.
type Bolt struct {
	db     *bbolt.DB
	bucket []byte
}

func NewBolt(db *bbolt.DB, bucket string) (*Bolt, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		return nil, nerr.StoreUnavailable(err)
	}
	return &Bolt{db: db, bucket: []byte(bucket)}, nil
}

func (c *Bolt) Get(_ context.Context, key string) (bool, error) {
	var hit bool
	err := c.db.View(func(tx *bbolt.Tx) error {
		hit = tx.Bucket(c.bucket).Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, nerr.StoreUnavailable(err)
	}
	return hit, nil
}

func (c *Bolt) Store(_ context.Context, key string) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(c.bucket).Put([]byte(key), []byte{1})
	})
	if err != nil {
		return nerr.StoreUnavailable(err)
	}
	return nil
}
