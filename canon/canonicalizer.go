/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package canon implements the Graph Canonicalizer (spec §4.6): the
// top-level orchestration pipeline and its Ok/Partial/Err result
// semantics, the only component with pipeline-level failure
// semantics.
package canon

import (
	"context"

	"github.com/gravwell/node-identifier/cache"
	"github.com/gravwell/node-identifier/config"
	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/identity"
	"github.com/gravwell/node-identifier/log"
)

// ResultKind is the canonicalizer's three-way outcome (spec §4.6
// step 8).
type ResultKind int

const (
	Ok ResultKind = iota
	Partial
	Err
)

// Result is what Canonicalize returns: an output graph (possibly
// partial), the first error encountered (if any), and which of the
// three outcomes applies.
type Result struct {
	Kind  ResultKind
	Graph *graph.Graph
	Err   error
}

// Canonicalizer holds no per-call mutable state of its own — every
// collection it builds lives inside one Canonicalize call (spec §5:
// "all internal collections inside a canonicalizer are owned
// exclusively by that task") — so a single value is safe to share
// across the concurrent Pool below; only the injected stores/cache
// are shared external state.
type Canonicalizer struct {
	assets  *identity.AssetIdentifier
	nodes   *identity.NodeIdentifier
	cache   cache.Cache
	cfg     config.Config
	lgr     *log.Logger
}

func New(assets *identity.AssetIdentifier, nodes *identity.NodeIdentifier, c cache.Cache, cfg config.Config, lgr *log.Logger) *Canonicalizer {
	return &Canonicalizer{assets: assets, nodes: nodes, cache: c, cfg: cfg, lgr: lgr}
}

// Canonicalize runs the eight-step pipeline of spec §4.6 over batch.
func (c *Canonicalizer) Canonicalize(ctx context.Context, batch []*graph.Graph) Result {
	// Step 1: merge.
	working := graph.New(0)
	for _, g := range batch {
		if g == nil {
			continue
		}
		working.MergeInto(g)
		if g.Timestamp > working.Timestamp {
			working.Timestamp = g.Timestamp
		}
	}
	if len(working.Nodes) == 0 {
		return Result{Kind: Ok, Graph: working}
	}

	// Step 2: create implicit asset mappings. Fatal on failure.
	if err := c.assets.CreateAssetIdMappings(ctx, working); err != nil {
		return Result{Kind: Err, Err: err}
	}

	// Step 3: attribute asset-ids. Partial failure: capture dead
	// nodes and the first error.
	assetDead, attributionErr := c.assets.AttributeAssetIds(ctx, working)

	output := graph.New(working.Timestamp)
	unidIdMap := make(map[string]string, len(working.Nodes))
	deadNodes := make(map[string]struct{}, len(assetDead))
	var firstErr error
	if attributionErr != nil {
		firstErr = attributionErr
	}
	for key := range assetDead {
		deadNodes[key] = struct{}{}
	}

	for key, n := range working.Nodes {
		if _, dead := deadNodes[key]; dead {
			continue
		}

		// Step 4: cache lookup.
		hit, err := c.cache.Get(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			deadNodes[key] = struct{}{}
			continue
		}
		if hit {
			// Already emitted by a prior retry of this batch: skip
			// entirely, do not add to output.
			continue
		}

		// Step 5: attribute node keys.
		newKey, err := c.nodes.Identify(ctx, n)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			deadNodes[key] = struct{}{}
			if c.lgr != nil {
				c.lgr.Warn("node identification failed", log.KV("node_key", key), log.KVErr(err))
			}
			continue
		}
		unidIdMap[key] = newKey
		n.NodeKey = newKey
		output.AddNode(n) // collisions merge per §4.7 via Graph.AddNode
	}

	// Step 6: rewrite edges.
	for _, el := range working.Edges {
		for _, e := range el.Edges {
			newFrom, okFrom := unidIdMap[e.From]
			newTo, okTo := unidIdMap[e.To]
			if !okFrom || !okTo {
				continue // drop silently per §4.6 step 6
			}
			output.AddEdge(newFrom, newTo, e.Name)
		}
	}

	// Step 7: sweep dead edges (endpoints absent from output.Nodes).
	// dead_nodes were already excluded from output by construction;
	// this additionally catches any edge whose endpoint collided out
	// of existence during a §4.7 merge failure (defensive, should be
	// unreachable given step 6 already checked unidIdMap).
	for key, el := range output.Edges {
		kept := el.Edges[:0]
		for _, e := range el.Edges {
			if _, ok := output.Nodes[e.From]; !ok {
				continue
			}
			if _, ok := output.Nodes[e.To]; !ok {
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(output.Edges, key)
		} else {
			el.Edges = kept
		}
	}

	// Step 8: result.
	if firstErr == nil {
		c.markCached(ctx, unidIdMap)
		return Result{Kind: Ok, Graph: output}
	}
	if len(output.Nodes) > 0 {
		return Result{Kind: Partial, Graph: output, Err: firstErr}
	}
	return Result{Kind: Err, Err: firstErr}
}

// markCached stores every successfully-identified node's *provisional*
// key in the Identity Cache, keyed the same way step 4's lookup reads
// it, but only on overall successful completion (spec §4.8: "Cache
// writes happen only on overall successful completion of the batch").
func (c *Canonicalizer) markCached(ctx context.Context, unidIdMap map[string]string) {
	for provisionalKey := range unidIdMap {
		if err := c.cache.Store(ctx, provisionalKey); err != nil && c.lgr != nil {
			c.lgr.Warn("identity cache store failed", log.KV("node_key", provisionalKey), log.KVErr(err))
		}
	}
}
