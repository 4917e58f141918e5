/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package graph is the data model the Node Identifier operates on: a
// batch-local Graph of provisional Nodes and Edges, merged and
// rewritten in place as identification proceeds. Nodes are
// value-typed and never shared outside the Graph that owns them; the
// variant set (Kind) is closed, dispatched with a plain switch rather
// than an interface hierarchy, since new variants never arrive at
// runtime.
package graph

// Kind tags which variant of Node a value holds.
type Kind int

const (
	KindProcess Kind = iota
	KindFile
	KindProcessInboundConnection
	KindProcessOutboundConnection
	KindNetworkConnection
	KindIpConnection
	KindIpAddress
	KindIpPort
	KindAsset
	KindDynamic
)

func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "Process"
	case KindFile:
		return "File"
	case KindProcessInboundConnection:
		return "ProcessInboundConnection"
	case KindProcessOutboundConnection:
		return "ProcessOutboundConnection"
	case KindNetworkConnection:
		return "NetworkConnection"
	case KindIpConnection:
		return "IpConnection"
	case KindIpAddress:
		return "IpAddress"
	case KindIpPort:
		return "IpPort"
	case KindAsset:
		return "Asset"
	case KindDynamic:
		return "Dynamic"
	default:
		return "Unknown"
	}
}

// FileState is the lifecycle state of a FileNode.
type FileState int

const (
	FileCreated FileState = iota + 1
	FileExisting
	FileDeleted
)

// ConnState is the lifecycle state shared by the four connection
// variants. The zero value is not one of the named states; it is not
// rejected anywhere, and CreationTimestamp and Merge treat it as a
// non-creation state of lowest precedence.
type ConnState int

const (
	ConnBound ConnState = iota + 1 // Bound / Connected: the creation state
	ConnExisting
	ConnClosed
)

// Process holds a ProcessNode's variant-specific payload.
type Process struct {
	AssetId         string
	Hostname        string
	ProcessId       uint64
	ImagePath       string
	CreatedTs       uint64
	LastSeenTs      uint64
	TerminatedTs    uint64
}

// File holds a FileNode's variant-specific payload.
type File struct {
	AssetId    string
	Hostname   string
	FilePath   string
	State      FileState
	CreatedTs  uint64
	LastSeenTs uint64
}

// ProcessConn holds the payload shared by ProcessInboundConnection and
// ProcessOutboundConnection; which one a Node holds is determined by
// its Kind, not by a field here (mirrors the Rust source's two
// separate near-identical structs, collapsed into one Go type since
// the only difference is the pseudo-key suffix applied in package
// identity).
type ProcessConn struct {
	AssetId      string
	Hostname     string
	Port         uint16
	IpAddress    string
	State        ConnState
	CreatedTs    uint64
	LastSeenTs   uint64
	TerminatedTs uint64
}

// NetworkConnection holds a NetworkConnection node's payload.
type NetworkConnection struct {
	SrcIp      string
	SrcPort    uint16
	DstIp      string
	DstPort    uint16
	Protocol   string
	State      ConnState
	CreatedTs  uint64
	LastSeenTs uint64
}

// IpConnection holds an IpConnection node's payload.
type IpConnection struct {
	SrcIp      string
	DstIp      string
	Protocol   string
	State      ConnState
	CreatedTs  uint64
	LastSeenTs uint64
}

// IpAddress holds an IpAddressNode's payload.
type IpAddress struct {
	IpAddress string
}

// IpPort holds an IpPortNode's payload.
type IpPort struct {
	IpAddress string
	Port      uint16
	Protocol  string
}

// Asset holds an AssetNode's payload.
type Asset struct {
	AssetId     string
	Hostname    string
	FirstSeenTs uint64
}

// Dynamic holds a DynamicNode's payload. AssetId/Hostname are only
// meaningful when RequiresAssetIdentification is set: the Asset
// Identifier resolves and writes AssetId the same way it does for
// Process/File/connection nodes, and the Node Identifier folds the
// result into IdentifyingProperties before hashing (spec §4.3).
type Dynamic struct {
	NodeType                    string
	IdentifyingProperties       map[string]string
	RequiresAssetIdentification bool
	AssetId                     string
	Hostname                    string
}

// Node is a tagged union over the ten node variants. Every variant
// carries a NodeKey: the provisional (random) id on input, replaced
// with the canonical id once the Node Identifier resolves it.
type Node struct {
	Kind    Kind
	NodeKey string

	Process    *Process
	File       *File
	ProcConn   *ProcessConn
	NetConn    *NetworkConnection
	IpConn     *IpConnection
	IpAddr     *IpAddress
	IpPortV    *IpPort
	AssetV     *Asset
	DynamicV   *Dynamic

	// sequence breaks ties when Merge's timestamp/state fields are
	// all equal, so Merge stays deterministic under both call orders.
	// Not part of the public data model; set by Graph.AddNode.
	sequence int
}

// AssetIdHostname returns the node's asset-id and hostname fields
// (empty string if the variant doesn't carry one), used by the Asset
// Identifier to decide which host-id to resolve.
func (n *Node) AssetIdHostname() (assetId, hostname string) {
	switch n.Kind {
	case KindProcess:
		return n.Process.AssetId, n.Process.Hostname
	case KindFile:
		return n.File.AssetId, n.File.Hostname
	case KindProcessInboundConnection, KindProcessOutboundConnection:
		return n.ProcConn.AssetId, n.ProcConn.Hostname
	case KindAsset:
		return n.AssetV.AssetId, n.AssetV.Hostname
	case KindDynamic:
		return n.DynamicV.AssetId, n.DynamicV.Hostname
	default:
		return "", ""
	}
}

// CreatedTs returns the variant's created_ts field (0 if the variant
// has none), used by create_asset_id_mappings' ts=created_ts rule.
func (n *Node) CreatedTs() uint64 {
	switch n.Kind {
	case KindProcess:
		return n.Process.CreatedTs
	case KindFile:
		return n.File.CreatedTs
	case KindProcessInboundConnection, KindProcessOutboundConnection:
		return n.ProcConn.CreatedTs
	default:
		return 0
	}
}

// SetAssetId attaches a resolved canonical asset-id to a node that
// requires one. Panics on a variant that doesn't carry an asset_id
// field, mirroring the source's own "can not set asset_id" guard.
func (n *Node) SetAssetId(assetId string) {
	switch n.Kind {
	case KindProcess:
		n.Process.AssetId = assetId
	case KindFile:
		n.File.AssetId = assetId
	case KindProcessInboundConnection, KindProcessOutboundConnection:
		n.ProcConn.AssetId = assetId
	case KindDynamic:
		n.DynamicV.AssetId = assetId
	default:
		panic("graph: SetAssetId on a variant without an asset_id field: " + n.Kind.String())
	}
}

// RequiresAssetIdentification reports whether this node must pass
// through the Asset Identifier before node-key attribution.
func (n *Node) RequiresAssetIdentification() bool {
	switch n.Kind {
	case KindProcess, KindFile, KindProcessInboundConnection, KindProcessOutboundConnection:
		return true
	case KindDynamic:
		return n.DynamicV.RequiresAssetIdentification
	default:
		return false
	}
}

// CreationTimestamp returns the (isCreation, timestamp) pair the
// Node Identifier feeds to the Session Store, per spec §4.5: the
// creation state yields (true, created_ts); every other state yields
// (false, last_seen_ts), falling back to terminated_ts then
// created_ts when last_seen_ts is unset. ok is false when every
// candidate timestamp is zero (InsufficientTimestamp).
func (n *Node) CreationTimestamp() (isCreation bool, ts uint64, ok bool) {
	switch n.Kind {
	case KindProcess:
		p := n.Process
		if p.CreatedTs != 0 {
			return true, p.CreatedTs, true
		}
		return false, firstNonzero(p.LastSeenTs, p.TerminatedTs), firstNonzero(p.LastSeenTs, p.TerminatedTs) != 0
	case KindFile:
		f := n.File
		if f.State == FileCreated && f.CreatedTs != 0 {
			return true, f.CreatedTs, true
		}
		ts := firstNonzero(f.LastSeenTs, f.CreatedTs)
		return false, ts, ts != 0
	case KindProcessInboundConnection, KindProcessOutboundConnection:
		c := n.ProcConn
		if c.State == ConnBound && c.CreatedTs != 0 {
			return true, c.CreatedTs, true
		}
		ts := firstNonzero(c.LastSeenTs, c.TerminatedTs, c.CreatedTs)
		return false, ts, ts != 0
	case KindNetworkConnection:
		c := n.NetConn
		if c.State == ConnBound && c.CreatedTs != 0 {
			return true, c.CreatedTs, true
		}
		ts := firstNonzero(c.LastSeenTs, c.CreatedTs)
		return false, ts, ts != 0
	case KindIpConnection:
		c := n.IpConn
		if c.State == ConnBound && c.CreatedTs != 0 {
			return true, c.CreatedTs, true
		}
		ts := firstNonzero(c.LastSeenTs, c.CreatedTs)
		return false, ts, ts != 0
	default:
		return false, 0, false
	}
}

func firstNonzero(vs ...uint64) uint64 {
	for _, v := range vs {
		if v != 0 {
			return v
		}
	}
	return 0
}
