/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package identity implements the Asset Identifier (spec §4.4) and
// the Node Identifier (spec §4.5): the two passes the Graph
// Canonicalizer runs over a merged provisional graph before edge
// remap.
package identity

import (
	"context"

	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/log"
	"github.com/gravwell/node-identifier/nerr"
	"github.com/gravwell/node-identifier/store"
)

// AssetIdentifier attaches a canonical asset-id to every node that
// requires one, using the Asset-ID Store.
type AssetIdentifier struct {
	store store.AssetIdStore
	lgr   *log.Logger
}

func NewAssetIdentifier(s store.AssetIdStore, lgr *log.Logger) *AssetIdentifier {
	return &AssetIdentifier{store: s, lgr: lgr}
}

// CreateAssetIdMappings is the canonicalizer's step 2 (spec §4.4 side
// effect): for every node carrying both asset_id and hostname, write
// a mapping (Hostname(hostname) -> asset_id, ts=created_ts). This is
// how new hosts enter the namespace. Failure here is fatal for the
// whole batch (retryable) per spec §4.4.
func (a *AssetIdentifier) CreateAssetIdMappings(ctx context.Context, g *graph.Graph) error {
	for _, n := range g.Nodes {
		assetId, hostname := n.AssetIdHostname()
		if assetId == "" || hostname == "" {
			continue
		}
		if err := a.store.CreateMapping(ctx, graph.Hostname(hostname), assetId, n.CreatedTs()); err != nil {
			return err
		}
	}
	return nil
}

// AttributeAssetIds is the canonicalizer's step 3 (spec §4.4): for
// each node requiring asset attribution, resolves and attaches a
// canonical asset-id. Nodes that already carry one short-circuit.
// Nodes that don't require attribution pass through unchanged.
// Returns the set of nodes that failed (added to dead_nodes) and the
// first error encountered, per the partial-success contract.
func (a *AssetIdentifier) AttributeAssetIds(ctx context.Context, g *graph.Graph) (deadNodes map[string]error, firstErr error) {
	deadNodes = make(map[string]error)
	for key, n := range g.Nodes {
		if !n.RequiresAssetIdentification() {
			continue
		}
		assetId, hostname := n.AssetIdHostname()
		if assetId != "" {
			continue // already carries a canonical asset-id
		}

		if hostname == "" {
			// Neither asset_id nor hostname: violates the
			// construction-path invariant (spec §3).
			err := nerr.MissingAssetOrHostname(key)
			deadNodes[key] = err
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		host := graph.Hostname(hostname)

		_, ts, _ := n.CreationTimestamp()
		resolved, ok, err := a.store.ResolveAssetId(ctx, host, ts)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			deadNodes[key] = err
			continue
		}
		if !ok {
			err := nerr.AssetUnresolved(key)
			deadNodes[key] = err
			if firstErr == nil {
				firstErr = err
			}
			if a.lgr != nil {
				a.lgr.Warn("asset-id resolution miss", log.KV("node_key", key), log.KV("hostname", hostname))
			}
			continue
		}
		n.SetAssetId(resolved)
	}
	return deadNodes, firstErr
}
