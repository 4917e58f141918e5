/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package canon

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/gravwell/node-identifier/graph"
)

// Pool runs up to width batches concurrently against one shared
// Canonicalizer (spec §5: "the driver tier runs a pool ... of
// independent canonicalizer instances, each with its own mutable
// working state but sharing the external stores and cache" — since
// Canonicalizer itself holds no per-call mutable state, one shared
// value already satisfies this; Pool only needs to bound concurrency
// width).
type Pool struct {
	c     *Canonicalizer
	width int
}

// NewPool builds a Pool of the given width (config.Global.Pool_Width
// in a real deployment). A width <= 0 means unbounded.
func NewPool(c *Canonicalizer, width int) *Pool {
	return &Pool{c: c, width: width}
}

// Submit runs one Canonicalize call per batch in batches,
// concurrency-limited to the pool's width, and returns their results
// in the same order. Individual batch outcomes (including Err
// results) are reported in the returned slice rather than aborting
// the others; the returned error is only non-nil if ctx itself was
// canceled.
func (p *Pool) Submit(ctx context.Context, batches [][]*graph.Graph) ([]Result, error) {
	results := make([]Result, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	if p.width > 0 {
		g.SetLimit(p.width)
	}
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			results[i] = p.c.Canonicalize(gctx, batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
