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
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gravwell/node-identifier/config"
	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/nerr"
	"github.com/gravwell/node-identifier/store"
)

// NodeIdentifier dispatches on node variant (spec §4.5): Process,
// File, ProcIn, ProcOut and the two connection variants resolve
// through the Session Store against a per-variant pseudo-key; Asset
// and IpAddress derive their key from intrinsic content only
// (breaking the asset/asset-mapping cycle per §9); IpPort hashes its
// content; Dynamic goes through the Dynamic-Mapping Store.
type NodeIdentifier struct {
	sessions store.SessionStore
	dynamic  store.DynamicMappingStore
	cfg      config.Config
}

func NewNodeIdentifier(sessions store.SessionStore, dynamic store.DynamicMappingStore, cfg config.Config) *NodeIdentifier {
	return &NodeIdentifier{sessions: sessions, dynamic: dynamic, cfg: cfg}
}

// Identify resolves n's canonical node_key in place, per spec §4.5. It
// returns the node's canonical key (which may equal the input
// node_key for content-derived variants) or an error classified per
// nerr.
func (ni *NodeIdentifier) Identify(ctx context.Context, n *graph.Node) (canonicalKey string, err error) {
	switch n.Kind {
	case KindAliasProcess:
		return ni.identifySession(ctx, n, ni.cfg.Global.Process_Table, processPseudoKey(n))
	case KindAliasFile:
		return ni.identifySession(ctx, n, ni.cfg.Global.File_Table, filePseudoKey(n))
	case KindAliasProcIn:
		return ni.identifySession(ctx, n, ni.cfg.Global.Inbound_Table, procConnPseudoKey(n, "inbound"))
	case KindAliasProcOut:
		return ni.identifySession(ctx, n, ni.cfg.Global.Outbound_Table, procConnPseudoKey(n, "outbound"))
	case KindAliasNetConn:
		return ni.identifySession(ctx, n, ni.cfg.Global.Network_Table, networkConnectionPseudoKey(n))
	case KindAliasIpConn:
		return ni.identifySession(ctx, n, ni.cfg.Global.IpConn_Table, ipConnectionPseudoKey(n))
	case KindAliasIpAddress:
		n.NodeKey = normalizeIp(n.IpAddr.IpAddress)
		return n.NodeKey, nil
	case KindAliasIpPort:
		sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s", n.IpPortV.Port, n.IpPortV.Protocol)))
		n.NodeKey = hex.EncodeToString(sum[:])
		return n.NodeKey, nil
	case KindAliasAsset:
		n.NodeKey = n.AssetV.AssetId
		return n.NodeKey, nil
	case KindAliasDynamic:
		return ni.identifyDynamic(ctx, n)
	default:
		return "", nerr.UnknownVariant(n.NodeKey)
	}
}

// Aliases for graph.Kind values, named the way spec §4.5's dispatch
// table names them; they are exported package constants, and the
// switch above uses them so it reads the same as the table.
const (
	KindAliasProcess    = graph.KindProcess
	KindAliasFile       = graph.KindFile
	KindAliasProcIn     = graph.KindProcessInboundConnection
	KindAliasProcOut    = graph.KindProcessOutboundConnection
	KindAliasNetConn    = graph.KindNetworkConnection
	KindAliasIpConn     = graph.KindIpConnection
	KindAliasIpAddress  = graph.KindIpAddress
	KindAliasIpPort     = graph.KindIpPort
	KindAliasAsset      = graph.KindAsset
	KindAliasDynamic    = graph.KindDynamic
)

func (ni *NodeIdentifier) identifySession(ctx context.Context, n *graph.Node, table, pseudoKey string) (string, error) {
	isCreation, ts, ok := n.CreationTimestamp()
	if !ok {
		return "", nerr.MissingTimestamp(n.NodeKey)
	}
	u := graph.UnidSession{PseudoKey: pseudoKey, Timestamp: ts, IsCreation: isCreation}
	sessionId, err := ni.sessions.HandleUnidSession(ctx, table, u, ni.cfg.Global.Should_Default)
	if err != nil {
		if _, ok := err.(*nerr.Error); ok {
			return "", err
		}
		return "", nerr.StoreUnavailable(err)
	}
	n.NodeKey = sessionId
	return sessionId, nil
}

func (ni *NodeIdentifier) identifyDynamic(ctx context.Context, n *graph.Node) (string, error) {
	d := n.DynamicV
	fields := d.IdentifyingProperties
	if d.RequiresAssetIdentification {
		// Asset attribution already ran (canonicalizer step 3); fold
		// the resolved asset-id into the identifying tuple per
		// spec §4.3.
		fields = make(map[string]string, len(d.IdentifyingProperties)+1)
		for k, v := range d.IdentifyingProperties {
			fields[k] = v
		}
		fields["asset_id"] = d.AssetId
	}
	id, err := ni.dynamic.Resolve(ctx, d.NodeType, fields)
	if err != nil {
		return "", nerr.StoreUnavailable(err)
	}
	n.NodeKey = id
	return id, nil
}

func processPseudoKey(n *graph.Node) string {
	p := n.Process
	return fmt.Sprintf("%s%d", p.AssetId, p.ProcessId)
}

func filePseudoKey(n *graph.Node) string {
	f := n.File
	return f.AssetId + f.FilePath
}

func procConnPseudoKey(n *graph.Node, direction string) string {
	c := n.ProcConn
	return fmt.Sprintf("%s%d%s", c.AssetId, c.Port, direction)
}

func networkConnectionPseudoKey(n *graph.Node) string {
	c := n.NetConn
	return fmt.Sprintf("%d%s%d%s%s%s", c.SrcPort, normalizeIp(c.SrcIp), c.DstPort, normalizeIp(c.DstIp), c.Protocol, "network_connection")
}

func ipConnectionPseudoKey(n *graph.Node) string {
	c := n.IpConn
	return normalizeIp(c.SrcIp) + normalizeIp(c.DstIp) + c.Protocol + "ip_network_connection"
}

// normalizeIp canonicalizes an address payload via config.ParseSource
// (dotted/colon IP, plain integer, or hex hash all fold to the same
// net.IP rendering) before it feeds a pseudo-key or a content-derived
// node_key, so two observations of the same host encoded two
// different ways still collide on the same key. Falls back to the
// raw string on a value ParseSource can't decode, rather than failing
// identification outright.
func normalizeIp(raw string) string {
	ip, err := config.ParseSource(raw)
	if err != nil {
		return raw
	}
	return ip.String()
}
