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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/gravwell/node-identifier/cache"
	"github.com/gravwell/node-identifier/config"
	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/identity"
	"github.com/gravwell/node-identifier/store"
)

type harness struct {
	c *Canonicalizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	p := filepath.Join(t.TempDir(), "canon_test.db")
	db, err := bbolt.Open(p, 0600, &bbolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults()
	require.NoError(t, cfg.Verify())

	assetStore, err := store.NewBoltAssetIdStore(db, cfg.Global.AssetId_Table, nil)
	require.NoError(t, err)
	sessionStore := store.NewBoltSessionStore(db, nil, cfg.Global.Store_Retry_Bound, nil)
	dynamicStore, err := store.NewBoltDynamicMappingStore(db, cfg.Global.Dynamic_Table, nil)
	require.NoError(t, err)

	assetIdent := identity.NewAssetIdentifier(assetStore, nil)
	nodeIdent := identity.NewNodeIdentifier(sessionStore, dynamicStore, cfg)
	ic := cache.NewInProcess()

	return &harness{c: New(assetIdent, nodeIdent, ic, cfg, nil)}
}

// Scenario 1: hostname -> asset mapping.
func TestScenario1HostnameToAssetMapping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Seed: a prior batch establishes the hostname->asset mapping by
	// carrying both fields on one node (the create_asset_id_mappings
	// side effect), then a second batch resolves a hostname-only node
	// against it.
	seed := graph.New(0)
	seed.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "seed",
		Process: &graph.Process{AssetId: "a1", Hostname: "h1", ProcessId: 1, CreatedTs: 1500, LastSeenTs: 1500},
	})
	res := h.c.Canonicalize(ctx, []*graph.Graph{seed})
	require.Equal(t, Ok, res.Kind)

	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "p1",
		Process: &graph.Process{Hostname: "h1", ProcessId: 42, CreatedTs: 1600},
	})
	res = h.c.Canonicalize(ctx, []*graph.Graph{g})
	require.Equal(t, Ok, res.Kind)
	require.Len(t, res.Graph.Nodes, 1)
	for _, n := range res.Graph.Nodes {
		require.Equal(t, "a1", n.Process.AssetId)
	}
}

// Scenario 2: IpPort deterministic key, independent of ip.
func TestScenario2IpPortDeterministicKey(t *testing.T) {
	h := newHarness(t)
	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindIpPort,
		NodeKey: "provisional",
		IpPortV: &graph.IpPort{IpAddress: "10.0.0.1", Port: 80, Protocol: "tcp"},
	})
	res := h.c.Canonicalize(context.Background(), []*graph.Graph{g})
	require.Equal(t, Ok, res.Kind)
	require.Len(t, res.Graph.Nodes, 1)
	for key := range res.Graph.Nodes {
		// independent of ip: same port+protocol always yields the
		// same key regardless of which ip_address carried it.
		g2 := graph.New(0)
		g2.AddNode(&graph.Node{
			Kind:    graph.KindIpPort,
			NodeKey: "other-provisional",
			IpPortV: &graph.IpPort{IpAddress: "192.168.1.1", Port: 80, Protocol: "tcp"},
		})
		res2 := h.c.Canonicalize(context.Background(), []*graph.Graph{g2})
		require.Equal(t, Ok, res2.Kind)
		for key2 := range res2.Graph.Nodes {
			require.Equal(t, key, key2)
		}
	}
}

// Scenario 4: missing timestamps drop.
func TestScenario4MissingTimestampsDrop(t *testing.T) {
	h := newHarness(t)
	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "p1",
		Process: &graph.Process{AssetId: "a1", ProcessId: 1},
	})
	res := h.c.Canonicalize(context.Background(), []*graph.Graph{g})
	require.Equal(t, Err, res.Kind)
	require.Error(t, res.Err)
}

// Scenario 5: edge rewrite, drop edge on failed endpoint.
func TestScenario5EdgeRewriteDropsOnFailedEndpoint(t *testing.T) {
	h := newHarness(t)
	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindIpAddress,
		NodeKey: "p1",
		IpAddr:  &graph.IpAddress{IpAddress: "10.0.0.1"},
	})
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "p2",
		Process: &graph.Process{AssetId: "a1", ProcessId: 1}, // no timestamps: will fail
	})
	g.AddEdge("p1", "p2", "created")
	res := h.c.Canonicalize(context.Background(), []*graph.Graph{g})
	require.Equal(t, Partial, res.Kind)
	require.Len(t, res.Graph.Nodes, 1)
	require.Empty(t, res.Graph.Edges)
}

// Scenario 6: cache skip — a pre-populated cache causes the second
// run to return an empty graph.
func TestScenario6CacheSkip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindIpAddress,
		NodeKey: "p1",
		IpAddr:  &graph.IpAddress{IpAddress: "10.0.0.1"},
	})

	first := h.c.Canonicalize(ctx, []*graph.Graph{g})
	require.Equal(t, Ok, first.Kind)
	require.Len(t, first.Graph.Nodes, 1)

	g2 := graph.New(0)
	g2.AddNode(&graph.Node{
		Kind:    graph.KindIpAddress,
		NodeKey: "p1",
		IpAddr:  &graph.IpAddress{IpAddress: "10.0.0.1"},
	})
	second := h.c.Canonicalize(ctx, []*graph.Graph{g2})
	require.Equal(t, Ok, second.Kind)
	require.Empty(t, second.Graph.Nodes)
}

func TestEmptyBatchIsOk(t *testing.T) {
	h := newHarness(t)
	res := h.c.Canonicalize(context.Background(), nil)
	require.Equal(t, Ok, res.Kind)
	require.Empty(t, res.Graph.Nodes)
}
