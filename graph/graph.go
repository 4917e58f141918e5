/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package graph

// Edge is one directed, named relationship between two node keys.
type Edge struct {
	From string
	To   string
	Name string
}

// EdgeList is every outbound edge for one node key.
type EdgeList struct {
	Edges []Edge
}

// Graph is the batch-local working set: provisional on input,
// canonical on output. NodeKey invariants (every edge endpoint present
// in Nodes) are enforced by the canonicalizer, not by Graph itself —
// an input Graph is allowed to violate them.
type Graph struct {
	Timestamp uint64
	Nodes     map[string]*Node
	Edges     map[string]*EdgeList

	seq int
}

// New returns an empty Graph ready to receive provisional nodes.
func New(timestamp uint64) *Graph {
	return &Graph{
		Timestamp: timestamp,
		Nodes:     make(map[string]*Node),
		Edges:     make(map[string]*EdgeList),
	}
}

// AddNode inserts a provisional node, stamping it with the next
// sequence ordinal so later Node.Merge calls stay deterministic.
// Colliding node_keys are merged per §4.7 rather than overwritten;
// when Merge reports a mismatch the incoming node is dropped and the
// existing one is kept unchanged.
func (g *Graph) AddNode(n *Node) {
	n.sequence = g.seq
	g.seq++
	if existing, ok := g.Nodes[n.NodeKey]; ok {
		existing.Merge(n)
		return
	}
	g.Nodes[n.NodeKey] = n
}

// AddEdge records one directed edge.
func (g *Graph) AddEdge(from, to, name string) {
	el, ok := g.Edges[from]
	if !ok {
		el = &EdgeList{}
		g.Edges[from] = el
	}
	el.Edges = append(el.Edges, Edge{From: from, To: to, Name: name})
}

// MergeInto folds other's nodes and edges into g, per canonicalizer
// step 1: nodes and edges are unioned; colliding node_keys merge per
// §4.7.
func (g *Graph) MergeInto(other *Graph) {
	for _, n := range other.Nodes {
		g.AddNode(n)
	}
	for _, el := range other.Edges {
		for _, e := range el.Edges {
			g.AddEdge(e.From, e.To, e.Name)
		}
	}
}

// HostKind distinguishes the two HostId variants.
type HostKind int

const (
	HostHostname HostKind = iota
	HostAssetId
)

// HostId is a machine identifier: either a hostname or a raw asset-id,
// per spec §3/glossary.
type HostId struct {
	Kind  HostKind
	Value string
}

func Hostname(v string) HostId { return HostId{Kind: HostHostname, Value: v} }
func AssetId(v string) HostId  { return HostId{Kind: HostAssetId, Value: v} }

// UnidSession is the query the Session Store understands: a
// provisional session observation awaiting canonical resolution.
type UnidSession struct {
	PseudoKey  string
	Timestamp  uint64
	IsCreation bool
}

// Session is the record format the Session Store persists, keyed for
// range scans by (PseudoKey, CreateTime).
type Session struct {
	SessionId    string
	PseudoKey    string
	CreateTime   uint64
	EndTime      uint64
	IsCreateCanon bool
	IsEndCanon   bool
	Version      uint64
}
