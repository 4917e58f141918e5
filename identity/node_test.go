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

	"github.com/gravwell/node-identifier/config"
	"github.com/gravwell/node-identifier/graph"
)

// fakeSessionStore records every UnidSession it's asked to resolve and
// mints a deterministic, distinguishable id per distinct pseudo-key so
// tests can assert on dispatch without a real bbolt-backed store.
type fakeSessionStore struct {
	calls []graph.UnidSession
	byKey map[string]string
	next  int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{byKey: make(map[string]string)}
}

func (f *fakeSessionStore) HandleUnidSession(_ context.Context, table string, u graph.UnidSession, _ bool) (string, error) {
	f.calls = append(f.calls, u)
	k := table + "|" + u.PseudoKey
	if id, ok := f.byKey[k]; ok {
		return id, nil
	}
	f.next++
	id := "sess-" + string(rune('a'+f.next-1))
	f.byKey[k] = id
	return id, nil
}

type fakeDynamicStore struct {
	lastNodeType string
	lastFields   map[string]string
}

func (f *fakeDynamicStore) Resolve(_ context.Context, nodeType string, fields map[string]string) (string, error) {
	f.lastNodeType = nodeType
	f.lastFields = fields
	return "dyn-" + nodeType, nil
}

func newIdentifierForTest(sessions *fakeSessionStore, dynamic *fakeDynamicStore) *NodeIdentifier {
	cfg := config.Defaults()
	return NewNodeIdentifier(sessions, dynamic, cfg)
}

func TestIdentifyProcessUsesPseudoKeyAndSession(t *testing.T) {
	sessions := newFakeSessionStore()
	ni := newIdentifierForTest(sessions, nil)

	n := &graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "provisional-1",
		Process: &graph.Process{AssetId: "asset1", ProcessId: 7, CreatedTs: 1000},
	}
	key, err := ni.Identify(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, "sess-a", key)
	require.Equal(t, "sess-a", n.NodeKey)
	require.Len(t, sessions.calls, 1)
	require.Equal(t, "asset17", sessions.calls[0].PseudoKey)
	require.True(t, sessions.calls[0].IsCreation)
	require.Equal(t, uint64(1000), sessions.calls[0].Timestamp)
}

func TestIdentifyProcessMissingTimestampErrors(t *testing.T) {
	sessions := newFakeSessionStore()
	ni := newIdentifierForTest(sessions, nil)

	n := &graph.Node{
		Kind:    graph.KindProcess,
		NodeKey: "provisional-1",
		Process: &graph.Process{AssetId: "asset1", ProcessId: 7},
	}
	_, err := ni.Identify(context.Background(), n)
	require.Error(t, err)
	require.Empty(t, sessions.calls)
}

func TestIdentifyFilePseudoKey(t *testing.T) {
	sessions := newFakeSessionStore()
	ni := newIdentifierForTest(sessions, nil)

	n := &graph.Node{
		Kind:    graph.KindFile,
		NodeKey: "prov",
		File:    &graph.File{AssetId: "a1", FilePath: "/bin/sh", State: graph.FileCreated, CreatedTs: 5},
	}
	_, err := ni.Identify(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, "a1/bin/sh", sessions.calls[0].PseudoKey)
}

func TestIdentifyProcessInboundVsOutboundDiverge(t *testing.T) {
	sessions := newFakeSessionStore()
	ni := newIdentifierForTest(sessions, nil)

	in := &graph.Node{
		Kind:     graph.KindProcessInboundConnection,
		NodeKey:  "prov-in",
		ProcConn: &graph.ProcessConn{AssetId: "a1", Port: 443, State: graph.ConnBound, CreatedTs: 10},
	}
	out := &graph.Node{
		Kind:     graph.KindProcessOutboundConnection,
		NodeKey:  "prov-out",
		ProcConn: &graph.ProcessConn{AssetId: "a1", Port: 443, State: graph.ConnBound, CreatedTs: 10},
	}
	_, err := ni.Identify(context.Background(), in)
	require.NoError(t, err)
	_, err = ni.Identify(context.Background(), out)
	require.NoError(t, err)

	require.Equal(t, "a1443inbound", sessions.calls[0].PseudoKey)
	require.Equal(t, "a1443outbound", sessions.calls[1].PseudoKey)
	// Same asset/port but different direction must not collide even
	// though both hit the same fake store instance.
	require.NotEqual(t, sessions.calls[0].PseudoKey, sessions.calls[1].PseudoKey)
}

func TestIdentifyIpAddressIsContentDerivedNoSessionCall(t *testing.T) {
	sessions := newFakeSessionStore()
	ni := newIdentifierForTest(sessions, nil)

	n := &graph.Node{Kind: graph.KindIpAddress, NodeKey: "prov", IpAddr: &graph.IpAddress{IpAddress: "10.1.1.1"}}
	key, err := ni.Identify(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, "10.1.1.1", key)
	require.Empty(t, sessions.calls)
}

func TestIdentifyIpAddressNormalizesEquivalentEncodings(t *testing.T) {
	sessions := newFakeSessionStore()
	ni := newIdentifierForTest(sessions, nil)

	compressed := &graph.Node{Kind: graph.KindIpAddress, NodeKey: "prov-a", IpAddr: &graph.IpAddress{IpAddress: "::1"}}
	expanded := &graph.Node{Kind: graph.KindIpAddress, NodeKey: "prov-b", IpAddr: &graph.IpAddress{IpAddress: "0:0:0:0:0:0:0:1"}}

	keyA, err := ni.Identify(context.Background(), compressed)
	require.NoError(t, err)
	keyB, err := ni.Identify(context.Background(), expanded)
	require.NoError(t, err)

	require.Equal(t, keyA, keyB, "compressed and expanded textual forms of the same address must collide on one canonical key")
}

func TestIdentifyIpAddressFallsBackOnUndecodableValue(t *testing.T) {
	ni := newIdentifierForTest(newFakeSessionStore(), nil)

	n := &graph.Node{Kind: graph.KindIpAddress, NodeKey: "prov", IpAddr: &graph.IpAddress{IpAddress: "not-an-address"}}
	key, err := ni.Identify(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, "not-an-address", key)
}

func TestIdentifyIpPortIsDeterministicHash(t *testing.T) {
	ni := newIdentifierForTest(newFakeSessionStore(), nil)

	a := &graph.Node{Kind: graph.KindIpPort, NodeKey: "prov-a", IpPortV: &graph.IpPort{IpAddress: "10.1.1.1", Port: 22, Protocol: "tcp"}}
	b := &graph.Node{Kind: graph.KindIpPort, NodeKey: "prov-b", IpPortV: &graph.IpPort{IpAddress: "192.168.0.5", Port: 22, Protocol: "tcp"}}

	keyA, err := ni.Identify(context.Background(), a)
	require.NoError(t, err)
	keyB, err := ni.Identify(context.Background(), b)
	require.NoError(t, err)
	require.Equal(t, keyA, keyB)
}

func TestIdentifyAssetIsContentDerived(t *testing.T) {
	ni := newIdentifierForTest(newFakeSessionStore(), nil)
	n := &graph.Node{Kind: graph.KindAsset, NodeKey: "prov", AssetV: &graph.Asset{AssetId: "asset-9"}}
	key, err := ni.Identify(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, "asset-9", key)
}

func TestIdentifyDynamicFoldsAssetIdWhenRequired(t *testing.T) {
	dyn := &fakeDynamicStore{}
	ni := newIdentifierForTest(newFakeSessionStore(), dyn)

	n := &graph.Node{
		Kind:    graph.KindDynamic,
		NodeKey: "prov",
		DynamicV: &graph.Dynamic{
			NodeType:                    "RegistryValue",
			IdentifyingProperties:       map[string]string{"key": "HKLM\\Run"},
			RequiresAssetIdentification: true,
			AssetId:                     "asset-7",
		},
	}
	key, err := ni.Identify(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, "dyn-RegistryValue", key)
	require.Equal(t, "asset-7", dyn.lastFields["asset_id"])
	require.Equal(t, "HKLM\\Run", dyn.lastFields["key"])
	// original map must not be mutated.
	_, hasAssetId := n.DynamicV.IdentifyingProperties["asset_id"]
	require.False(t, hasAssetId)
}

func TestIdentifyDynamicWithoutAssetRequirementPassesFieldsThrough(t *testing.T) {
	dyn := &fakeDynamicStore{}
	ni := newIdentifierForTest(newFakeSessionStore(), dyn)

	n := &graph.Node{
		Kind:    graph.KindDynamic,
		NodeKey: "prov",
		DynamicV: &graph.Dynamic{
			NodeType:              "ScheduledTask",
			IdentifyingProperties: map[string]string{"task_name": "Updater"},
		},
	}
	_, err := ni.Identify(context.Background(), n)
	require.NoError(t, err)
	require.NotContains(t, dyn.lastFields, "asset_id")
}
