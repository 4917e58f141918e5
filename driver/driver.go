/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package driver supplies the narrow seam the external poll-fetch-
// canonicalize-upload-ack loop needs (spec §6): decode a batch off the
// wire, run it through a canon.Canonicalizer, and re-encode whatever
// comes out the other side. Queue polling and blob fetch/store are
// declared as interfaces only — implementing a concrete SQS/S3-style
// adapter is a Non-goal — so a real deployment supplies its own and
// drives Handler from it.
package driver

import (
	"context"

	"github.com/gravwell/node-identifier/canon"
	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/log"
	"github.com/gravwell/node-identifier/wire"
)

// Queue is the poll/ack seam of the external driver loop: Receive
// returns opaque message handles carrying a blob reference, Ack and
// Nack resolve or release one. A real deployment backs this with
// SQS, Kafka, or an equivalent; this package does not implement one.
type Queue interface {
	Receive(ctx context.Context) (Message, error)
	Ack(ctx context.Context, m Message) error
	Nack(ctx context.Context, m Message) error
}

// Message is one queue entry: enough to fetch its payload from Blob
// and to Ack/Nack it afterward.
type Message struct {
	Ref   string
	Token string
}

// Blob is the payload-store seam: Fetch retrieves an encoded,
// compressed batch by reference; Put uploads the canonicalized
// result and returns its reference. A real deployment backs this
// with S3 or an equivalent; this package does not implement one.
type Blob interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
	Put(ctx context.Context, data []byte) (ref string, err error)
}

// Handler wraps one canon.Canonicalizer call with the
// wire codec, the seam the driver loop's "canonicalize" step needs.
// It never touches Queue or Blob directly — callers fetch the payload,
// hand it to HandleBatch, and upload/ack based on the result.
type Handler struct {
	canon *canon.Canonicalizer
	lgr   *log.Logger
}

func NewHandler(c *canon.Canonicalizer, lgr *log.Logger) *Handler {
	return &Handler{canon: c, lgr: lgr}
}

// HandleBatch decodes payload as a single wire-encoded Graph,
// canonicalizes it, and re-encodes the result. A canon.Partial result
// is still encoded and returned (the caller decides, from Result.Kind
// carried alongside, whether to ack, nack, or escalate); a canon.Err
// result returns the classification error with no payload so the
// caller can Nack and let the queue's redelivery retry the batch.
func (h *Handler) HandleBatch(ctx context.Context, payload []byte) ([]byte, canon.ResultKind, error) {
	g, err := wire.Decode(payload)
	if err != nil {
		return nil, canon.Err, err
	}

	res := h.canon.Canonicalize(ctx, []*graph.Graph{g})
	if res.Kind == canon.Err {
		if h.lgr != nil {
			h.lgr.Warn("batch canonicalization failed", log.KVErr(res.Err))
		}
		return nil, canon.Err, res.Err
	}

	out, err := wire.Encode(res.Graph)
	if err != nil {
		return nil, canon.Err, err
	}
	if res.Kind == canon.Partial && h.lgr != nil {
		h.lgr.Warn("batch canonicalization partially failed", log.KVErr(res.Err))
	}
	return out, res.Kind, nil
}

// Pool is the multi-batch analogue of Handler, delegating concurrency
// to canon.Pool (spec §5's pool tier).
type Pool struct {
	pool *canon.Pool
	lgr  *log.Logger
}

func NewPool(p *canon.Pool, lgr *log.Logger) *Pool {
	return &Pool{pool: p, lgr: lgr}
}

// HandleBatches decodes each payload independently and submits them
// to the underlying canon.Pool, returning one encoded result and one
// canon.ResultKind per input payload in the same order. A payload that
// fails to decode, canonicalize or re-encode gets a nil result and
// canon.Err; per-payload errors are not returned. The error return is
// set only when the pool submission itself fails.
func (p *Pool) HandleBatches(ctx context.Context, payloads [][]byte) ([][]byte, []canon.ResultKind, error) {
	batches := make([][]*graph.Graph, len(payloads))
	decodeErrs := make([]error, len(payloads))
	for i, payload := range payloads {
		g, err := wire.Decode(payload)
		if err != nil {
			decodeErrs[i] = err
			continue
		}
		batches[i] = []*graph.Graph{g}
	}

	results, err := p.pool.Submit(ctx, batches)
	if err != nil {
		return nil, nil, err
	}

	out := make([][]byte, len(payloads))
	kinds := make([]canon.ResultKind, len(payloads))
	for i, res := range results {
		if decodeErrs[i] != nil {
			kinds[i] = canon.Err
			continue
		}
		if res.Kind == canon.Err {
			kinds[i] = canon.Err
			if p.lgr != nil {
				p.lgr.Warn("batch canonicalization failed", log.KVErr(res.Err))
			}
			continue
		}
		enc, encErr := wire.Encode(res.Graph)
		if encErr != nil {
			kinds[i] = canon.Err
			continue
		}
		out[i] = enc
		kinds[i] = res.Kind
	}
	return out, kinds, nil
}
