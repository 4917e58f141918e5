/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package graph

// Merge combines other into n in place, per spec §4.7: nullable
// attribution fields take other's value when self's is unset;
// timestamps take min(nonzero)/max(nonzero); state enums prefer the
// more definitive state; DynamicNode identifying fields set-union,
// non-identifying fields last-write-wins. Both sides must already
// share node_key and the variant's immutable key fields (ip_address,
// port/protocol, asset_id intrinsic fields) — ok is false on a
// mismatch, and per the spec this should be unreachable within one
// batch post-identification.
//
// Merge is commutative and idempotent on the (timestamp, state)
// semilattice: ties are broken by the lower provisional sequence
// number so merge(a, b) and merge(b, a) produce bit-identical output
// even when every timestamp/state field is equal.
func (n *Node) Merge(other *Node) bool {
	if n.Kind != other.Kind || n.NodeKey != other.NodeKey {
		return false
	}
	a, b := n, other
	if b.sequence < a.sequence {
		a, b = b, a
	}

	switch n.Kind {
	case KindProcess:
		return mergeProcess(a.Process, b.Process, n, a == n)
	case KindFile:
		return mergeFile(a.File, b.File, n, a == n)
	case KindProcessInboundConnection, KindProcessOutboundConnection:
		if a.ProcConn.IpAddress != b.ProcConn.IpAddress || a.ProcConn.Port != b.ProcConn.Port {
			return false
		}
		return mergeProcConn(a.ProcConn, b.ProcConn, n, a == n)
	case KindNetworkConnection:
		if a.NetConn.SrcIp != b.NetConn.SrcIp || a.NetConn.DstIp != b.NetConn.DstIp ||
			a.NetConn.SrcPort != b.NetConn.SrcPort || a.NetConn.DstPort != b.NetConn.DstPort ||
			a.NetConn.Protocol != b.NetConn.Protocol {
			return false
		}
		return mergeNetConn(a.NetConn, b.NetConn, n, a == n)
	case KindIpConnection:
		if a.IpConn.SrcIp != b.IpConn.SrcIp || a.IpConn.DstIp != b.IpConn.DstIp || a.IpConn.Protocol != b.IpConn.Protocol {
			return false
		}
		return mergeIpConn(a.IpConn, b.IpConn, n, a == n)
	case KindIpAddress:
		return a.IpAddr.IpAddress == b.IpAddr.IpAddress
	case KindIpPort:
		return a.IpPortV.IpAddress == b.IpPortV.IpAddress && a.IpPortV.Port == b.IpPortV.Port && a.IpPortV.Protocol == b.IpPortV.Protocol
	case KindAsset:
		if a.AssetV.AssetId != b.AssetV.AssetId {
			return false
		}
		return mergeAsset(a.AssetV, b.AssetV, n, a == n)
	case KindDynamic:
		if a.DynamicV.NodeType != b.DynamicV.NodeType {
			return false
		}
		return mergeDynamic(a.DynamicV, b.DynamicV, n, a == n)
	default:
		return false
	}
}

func minNonzero(x, y uint64) uint64 {
	if x == 0 {
		return y
	}
	if y == 0 {
		return x
	}
	if x < y {
		return x
	}
	return y
}

func maxNonzero(x, y uint64) uint64 {
	if x > y {
		return x
	}
	return y
}

func mergeProcess(a, b *Process, dst *Node, primaryIsDst bool) bool {
	out := *a
	if out.AssetId == "" {
		out.AssetId = b.AssetId
	}
	if out.Hostname == "" {
		out.Hostname = b.Hostname
	}
	if out.ImagePath == "" {
		out.ImagePath = b.ImagePath
	}
	out.CreatedTs = minNonzero(a.CreatedTs, b.CreatedTs)
	out.LastSeenTs = maxNonzero(a.LastSeenTs, b.LastSeenTs)
	out.TerminatedTs = maxNonzero(a.TerminatedTs, b.TerminatedTs)
	dst.Process = &out
	return true
}

func mergeFile(a, b *File, dst *Node, primaryIsDst bool) bool {
	out := *a
	if out.AssetId == "" {
		out.AssetId = b.AssetId
	}
	if out.Hostname == "" {
		out.Hostname = b.Hostname
	}
	out.CreatedTs = minNonzero(a.CreatedTs, b.CreatedTs)
	out.LastSeenTs = maxNonzero(a.LastSeenTs, b.LastSeenTs)
	out.State = preferFileState(a.State, b.State)
	dst.File = &out
	return true
}

func preferFileState(a, b FileState) FileState {
	rank := func(s FileState) int {
		switch s {
		case FileCreated:
			return 3
		case FileDeleted:
			return 2
		case FileExisting:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func preferConnState(a, b ConnState) ConnState {
	rank := func(s ConnState) int {
		switch s {
		case ConnClosed:
			return 3
		case ConnBound:
			return 2
		case ConnExisting:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func mergeProcConn(a, b *ProcessConn, dst *Node, primaryIsDst bool) bool {
	out := *a
	if out.AssetId == "" {
		out.AssetId = b.AssetId
	}
	if out.Hostname == "" {
		out.Hostname = b.Hostname
	}
	out.CreatedTs = minNonzero(a.CreatedTs, b.CreatedTs)
	out.LastSeenTs = maxNonzero(a.LastSeenTs, b.LastSeenTs)
	out.TerminatedTs = maxNonzero(a.TerminatedTs, b.TerminatedTs)
	out.State = preferConnState(a.State, b.State)
	dst.ProcConn = &out
	return true
}

func mergeNetConn(a, b *NetworkConnection, dst *Node, primaryIsDst bool) bool {
	out := *a
	out.CreatedTs = minNonzero(a.CreatedTs, b.CreatedTs)
	out.LastSeenTs = maxNonzero(a.LastSeenTs, b.LastSeenTs)
	out.State = preferConnState(a.State, b.State)
	dst.NetConn = &out
	return true
}

func mergeIpConn(a, b *IpConnection, dst *Node, primaryIsDst bool) bool {
	out := *a
	out.CreatedTs = minNonzero(a.CreatedTs, b.CreatedTs)
	out.LastSeenTs = maxNonzero(a.LastSeenTs, b.LastSeenTs)
	out.State = preferConnState(a.State, b.State)
	dst.IpConn = &out
	return true
}

func mergeAsset(a, b *Asset, dst *Node, primaryIsDst bool) bool {
	out := *a
	if out.Hostname == "" {
		out.Hostname = b.Hostname
	}
	out.FirstSeenTs = minNonzero(a.FirstSeenTs, b.FirstSeenTs)
	dst.AssetV = &out
	return true
}

func mergeDynamic(a, b *Dynamic, dst *Node, primaryIsDst bool) bool {
	out := *a
	out.RequiresAssetIdentification = a.RequiresAssetIdentification || b.RequiresAssetIdentification
	if out.AssetId == "" {
		out.AssetId = b.AssetId
	}
	if out.Hostname == "" {
		out.Hostname = b.Hostname
	}
	merged := make(map[string]string, len(a.IdentifyingProperties)+len(b.IdentifyingProperties))
	for k, v := range a.IdentifyingProperties {
		merged[k] = v
	}
	// identifying properties set-union; on a key present on both sides
	// b's value wins, since b is, by construction, the side with the
	// higher sequence number.
	for k, v := range b.IdentifyingProperties {
		merged[k] = v
	}
	out.IdentifyingProperties = merged
	dst.DynamicV = &out
	return true
}
