/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/nerr"
)

type mapping struct {
	host    graph.HostId
	assetId string
	ts      uint64
}

// fakeAssetStore is a minimal in-memory stand-in for
// store.AssetIdStore: ResolveAssetId returns the mapping with the
// greatest ts <= the query ts, same contract as the bbolt-backed
// implementation, without needing a real bbolt.DB for these tests.
type fakeAssetStore struct {
	mappings []mapping
}

func (f *fakeAssetStore) CreateMapping(_ context.Context, host graph.HostId, assetId string, ts uint64) error {
	f.mappings = append(f.mappings, mapping{host, assetId, ts})
	return nil
}

func (f *fakeAssetStore) ResolveAssetId(_ context.Context, host graph.HostId, ts uint64) (string, bool, error) {
	var best *mapping
	for i := range f.mappings {
		m := &f.mappings[i]
		if m.host != host {
			continue
		}
		if m.ts > ts {
			continue
		}
		if best == nil || m.ts > best.ts {
			best = m
		}
	}
	if best == nil {
		return "", false, nil
	}
	return best.assetId, true, nil
}

func TestCreateAssetIdMappingsWritesOnlyNodesWithBothFields(t *testing.T) {
	fs := &fakeAssetStore{}
	ai := NewAssetIdentifier(fs, nil)

	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "p1",
		Process: &graph.Process{AssetId: "a1", Hostname: "host-1", ProcessId: 1, CreatedTs: 100},
	})
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "p2",
		Process: &graph.Process{Hostname: "host-2", ProcessId: 2, CreatedTs: 200}, // no asset_id yet
	})

	require.NoError(t, ai.CreateAssetIdMappings(context.Background(), g))
	require.Len(t, fs.mappings, 1)
	require.Equal(t, graph.Hostname("host-1"), fs.mappings[0].host)
	require.Equal(t, "a1", fs.mappings[0].assetId)
	require.Equal(t, uint64(100), fs.mappings[0].ts)
}

func TestAttributeAssetIdsResolvesByGreatestTsLessEqual(t *testing.T) {
	fs := &fakeAssetStore{mappings: []mapping{
		{graph.Hostname("host-1"), "a-old", 100},
		{graph.Hostname("host-1"), "a-new", 500},
	}}
	ai := NewAssetIdentifier(fs, nil)

	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "p1",
		Process: &graph.Process{Hostname: "host-1", ProcessId: 9, CreatedTs: 600},
	})

	dead, err := ai.AttributeAssetIds(context.Background(), g)
	require.NoError(t, err)
	require.Empty(t, dead)
	require.Equal(t, "a-new", g.Nodes["p1"].Process.AssetId)
}

func TestAttributeAssetIdsAlreadyResolvedShortCircuits(t *testing.T) {
	fs := &fakeAssetStore{}
	ai := NewAssetIdentifier(fs, nil)

	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "p1",
		Process: &graph.Process{AssetId: "already-set", Hostname: "host-1", ProcessId: 1, CreatedTs: 1},
	})
	dead, err := ai.AttributeAssetIds(context.Background(), g)
	require.NoError(t, err)
	require.Empty(t, dead)
	require.Empty(t, fs.mappings) // ResolveAssetId never called as a write path; mappings untouched
}

func TestAttributeAssetIdsMissingHostnameIsDeadNode(t *testing.T) {
	fs := &fakeAssetStore{}
	ai := NewAssetIdentifier(fs, nil)

	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "p1",
		Process: &graph.Process{ProcessId: 1, CreatedTs: 1}, // no asset_id, no hostname
	})
	dead, err := ai.AttributeAssetIds(context.Background(), g)
	require.Error(t, err)
	require.Contains(t, dead, "p1")
	require.Equal(t, nerr.ReasonMissingAssetOrHostname, dead["p1"].(*nerr.Error).Reason)
}

func TestAttributeAssetIdsUnresolvedHostnameIsDeadNode(t *testing.T) {
	fs := &fakeAssetStore{}
	ai := NewAssetIdentifier(fs, nil)

	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "p1",
		Process: &graph.Process{Hostname: "unknown-host", ProcessId: 1, CreatedTs: 1},
	})
	dead, err := ai.AttributeAssetIds(context.Background(), g)
	require.Error(t, err)
	require.Contains(t, dead, "p1")
	// Distinct from the missing-hostname case above: this node carries
	// a hostname, it just doesn't resolve to any stored mapping.
	require.Equal(t, nerr.ReasonAssetUnresolved, dead["p1"].(*nerr.Error).Reason)
}

func TestAttributeAssetIdsSkipsVariantsThatDoNotRequireIt(t *testing.T) {
	fs := &fakeAssetStore{}
	ai := NewAssetIdentifier(fs, nil)

	g := graph.New(0)
	g.AddNode(&graph.Node{Kind: graph.KindIpAddress, NodeKey: "ip1", IpAddr: &graph.IpAddress{IpAddress: "10.0.0.1"}})

	dead, err := ai.AttributeAssetIds(context.Background(), g)
	require.NoError(t, err)
	require.Empty(t, dead)
}

func TestAttributeAssetIdsPartialFailureContinuesOtherNodes(t *testing.T) {
	fs := &fakeAssetStore{mappings: []mapping{{graph.Hostname("good-host"), "a1", 10}}}
	ai := NewAssetIdentifier(fs, nil)

	g := graph.New(0)
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "good",
		Process: &graph.Process{Hostname: "good-host", ProcessId: 1, CreatedTs: 50},
	})
	g.AddNode(&graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "bad",
		Process: &graph.Process{Hostname: "missing-host", ProcessId: 2, CreatedTs: 50},
	})

	dead, err := ai.AttributeAssetIds(context.Background(), g)
	require.Error(t, err)
	require.Contains(t, dead, "bad")
	require.NotContains(t, dead, "good")
	require.Equal(t, "a1", g.Nodes["good"].Process.AssetId)
}
