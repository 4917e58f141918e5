/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildProcessPair returns two Process nodes sharing a node_key but
// carrying complementary fields, as two partial observations of the
// same process would arrive from upstream parsers.
func buildProcessPair() (*Node, *Node) {
	a := &Node{
		Kind:    KindProcess,
		NodeKey: "shared",
		Process: &Process{AssetId: "a1", ProcessId: 7, CreatedTs: 100, LastSeenTs: 0},
	}
	b := &Node{
		Kind:    KindProcess,
		NodeKey: "shared",
		Process: &Process{Hostname: "host-1", ProcessId: 7, CreatedTs: 0, LastSeenTs: 300},
	}
	return a, b
}

func TestMergeFillsNullableFields(t *testing.T) {
	a, b := buildProcessPair()
	changed := a.Merge(b)
	require.True(t, changed)
	require.Equal(t, "a1", a.Process.AssetId)
	require.Equal(t, "host-1", a.Process.Hostname)
	require.Equal(t, uint64(100), a.Process.CreatedTs)
	require.Equal(t, uint64(300), a.Process.LastSeenTs)
}

func TestMergeIsCommutative(t *testing.T) {
	a1, b1 := buildProcessPair()
	a1.sequence, b1.sequence = 0, 1
	a1.Merge(b1)

	a2, b2 := buildProcessPair()
	a2.sequence, b2.sequence = 0, 1
	// merge from the other side: b2.Merge(a2) instead of a2.Merge(b2)
	b2.Merge(a2)

	require.Equal(t, *a1.Process, *b2.Process)
}

func TestMergeIsIdempotent(t *testing.T) {
	a, b := buildProcessPair()
	a.Merge(b)
	before := *a.Process
	a.Merge(b)
	require.Equal(t, before, *a.Process)
}

func TestMergeTimestampsTakeMinCreatedMaxLastSeen(t *testing.T) {
	a := &Node{Kind: KindProcess, NodeKey: "k", Process: &Process{AssetId: "a1", ProcessId: 1, CreatedTs: 500, LastSeenTs: 600}}
	b := &Node{Kind: KindProcess, NodeKey: "k", Process: &Process{AssetId: "a1", ProcessId: 1, CreatedTs: 200, LastSeenTs: 900}}
	a.Merge(b)
	require.Equal(t, uint64(200), a.Process.CreatedTs)
	require.Equal(t, uint64(900), a.Process.LastSeenTs)
}

func TestMergeFilePrefersMoreDefinitiveState(t *testing.T) {
	a := &Node{Kind: KindFile, NodeKey: "k", File: &File{AssetId: "a1", FilePath: "/x", State: FileExisting, CreatedTs: 1}}
	b := &Node{Kind: KindFile, NodeKey: "k", File: &File{AssetId: "a1", FilePath: "/x", State: FileDeleted, CreatedTs: 1}}
	a.Merge(b)
	require.Equal(t, FileDeleted, a.File.State)
}

func TestMergeConnStatePrefersMoreDefinitive(t *testing.T) {
	a := &Node{Kind: KindProcessInboundConnection, NodeKey: "k", ProcConn: &ProcessConn{AssetId: "a1", Port: 80, State: ConnBound, CreatedTs: 1}}
	b := &Node{Kind: KindProcessInboundConnection, NodeKey: "k", ProcConn: &ProcessConn{AssetId: "a1", Port: 80, State: ConnClosed, CreatedTs: 1}}
	a.Merge(b)
	require.Equal(t, ConnClosed, a.ProcConn.State)
}

func TestMergeDynamicFillsAssetIdAndHostname(t *testing.T) {
	a := &Node{Kind: KindDynamic, NodeKey: "k", DynamicV: &Dynamic{NodeType: "T", IdentifyingProperties: map[string]string{"x": "1"}}}
	b := &Node{Kind: KindDynamic, NodeKey: "k", DynamicV: &Dynamic{NodeType: "T", AssetId: "a1", Hostname: "h1"}}
	a.Merge(b)
	require.Equal(t, "a1", a.DynamicV.AssetId)
	require.Equal(t, "h1", a.DynamicV.Hostname)
}
