/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package cache implements the Identity Cache (spec §4.8): a
// content-addressed set of already-identified provisional node keys,
// used to skip re-identifying a node across retries of the same
// batch. Four backends are provided: Nop (always miss, a valid
// backend per spec), InProcess (an unbounded sync.Map set, for
// single-process drivers and tests), BoundedInProcess (the same set
// capped by an LRU), and Bolt (a
// persistent variant backed by bbolt so the cache survives a crash
// mid-batch — the scenario the spec's "drives at-least-once producers
// toward effectively-once downstream" motivation depends on).
package cache

import "context"

// Cache is the content-addressed set contract every backend
// implements.
type Cache interface {
	// Get reports whether key was previously stored. A Hit means
	// "this provisional node key was successfully identified in a
	// prior attempt of a retryable unit of work" (spec §4.8).
	Get(ctx context.Context, key string) (hit bool, err error)

	// Store records key as identified. Callers store only on overall
	// successful completion of a batch, never speculatively.
	Store(ctx context.Context, key string) error
}

// Nop never reports a hit and never persists anything; a valid
// backend per spec §4.8 for deployments that accept re-identification
// on every retry.
type Nop struct{}

func (Nop) Get(context.Context, string) (bool, error) { return false, nil }
func (Nop) Store(context.Context, string) error       { return nil }
