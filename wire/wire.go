/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package wire implements the external wire contract of spec §6: a
// stable binary encoding of a Graph (protocol-buffer-compatible
// encoding is named for interop but not mandated internally — this
// repo follows the teacher's own precedent of encoding/gob for its
// durable/on-disk representations, see ingest/entry.go and
// ingest/boltcache_test.go) compressed with zstd at level 4.
package wire

import (
	"bytes"
	"encoding/gob"

	"github.com/klauspost/compress/zstd"

	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/nerr"
)

// wireGraph is the gob-friendly shape of graph.Graph: gob can't encode
// a map of pointers to unexported-field-bearing structs cleanly
// across package boundaries by itself, so this mirrors the public
// fields explicitly, keeping graph.Node's unexported sequence field
// (an internal merge tie-breaker, not wire state) out of the contract
// entirely.
type wireGraph struct {
	Timestamp uint64
	Nodes     []graph.Node
	Edges     []graph.Edge
}

// Encode serializes g to its gob-then-zstd(level 4) wire form.
func Encode(g *graph.Graph) ([]byte, error) {
	wg := wireGraph{Timestamp: g.Timestamp}
	for _, n := range g.Nodes {
		wg.Nodes = append(wg.Nodes, *n)
	}
	for _, el := range g.Edges {
		wg.Edges = append(wg.Edges, el.Edges...)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wg); err != nil {
		return nil, nerr.EncodeDecode(err)
	}

	// klauspost/compress/zstd exposes compression as an abstracted
	// EncoderLevel enum (1=fastest .. 4=best); its 4th level is
	// zstd.SpeedBestCompression, which is what "zstd codec at level
	// 4" (spec §6) means against this library's API.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, nerr.Compression(err)
	}
	defer enc.Close()
	return enc.EncodeAll(buf.Bytes(), nil), nil
}

// Decode reverses Encode, reconstructing a *graph.Graph with Nodes
// and Edges rebuilt from the flattened wire form.
func Decode(b []byte) (*graph.Graph, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, nerr.Compression(err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, nerr.Compression(err)
	}

	var wg wireGraph
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&wg); err != nil {
		return nil, nerr.EncodeDecode(err)
	}

	g := graph.New(wg.Timestamp)
	for i := range wg.Nodes {
		n := wg.Nodes[i]
		g.AddNode(&n)
	}
	for _, e := range wg.Edges {
		g.AddEdge(e.From, e.To, e.Name)
	}
	return g, nil
}
