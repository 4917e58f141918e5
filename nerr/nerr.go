/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package nerr supplies the Node Identifier's error taxonomy (spec
// §7): two axes, recoverability (transient vs persistent) and scope
// (per-node vs batch). It replaces the source's opaque
// NodeIdentifierError::Unexpected stub outright — every failure site
// in this repo returns one of the classifications below, never a bare
// unwrapped error.
package nerr

import "fmt"

// Recoverability classifies whether a retry of the same input could
// plausibly succeed.
type Recoverability int

const (
	Transient Recoverability = iota
	Persistent
)

func (r Recoverability) String() string {
	if r == Transient {
		return "transient"
	}
	return "persistent"
}

// Scope classifies how much of a batch an error invalidates.
type Scope int

const (
	PerNode Scope = iota
	Batch
)

func (s Scope) String() string {
	if s == PerNode {
		return "per-node"
	}
	return "batch"
}

// Reason names the specific condition, so callers can branch on it
// (via errors.As and the Error's Reason field) without
// string-matching Error().
type Reason int

const (
	ReasonStoreUnavailable Reason = iota
	ReasonMissingAssetOrHostname
	ReasonAssetUnresolved
	ReasonMissingTimestamp
	ReasonUnresolvableSession
	ReasonUnknownVariant
	ReasonEncodeDecode
	ReasonCompression
)

func (r Reason) String() string {
	switch r {
	case ReasonStoreUnavailable:
		return "store unavailable or deadline exceeded"
	case ReasonMissingAssetOrHostname:
		return "node lacks asset_id and hostname"
	case ReasonAssetUnresolved:
		return "no asset-id mapping resolves this node's hostname"
	case ReasonMissingTimestamp:
		return "node lacks any usable timestamp"
	case ReasonUnresolvableSession:
		return "session unresolvable"
	case ReasonUnknownVariant:
		return "unknown node variant"
	case ReasonEncodeDecode:
		return "encode/decode error"
	case ReasonCompression:
		return "compression error"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every Node Identifier failure site
// returns.
type Error struct {
	Reason  Reason
	Recover Recoverability
	Scope   Scope
	NodeKey string // set when Scope == PerNode; empty for batch errors
	Err     error  // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.NodeKey != "" {
		return fmt.Sprintf("%s/%s: %s (node %s): %v", e.Scope, e.Recover, e.Reason, e.NodeKey, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s: %v", e.Scope, e.Recover, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) an *Error classified
// transient.
func IsTransient(err error) bool {
	var e *Error
	if as(err, &e) {
		return e.Recover == Transient
	}
	return false
}

// IsPersistent reports whether err is (or wraps) an *Error classified
// persistent.
func IsPersistent(err error) bool {
	var e *Error
	if as(err, &e) {
		return e.Recover == Persistent
	}
	return false
}

// StoreUnavailable builds a transient, batch-scoped error for backend
// unavailability or deadline exceeded.
func StoreUnavailable(cause error) *Error {
	return &Error{Reason: ReasonStoreUnavailable, Recover: Transient, Scope: Batch, Err: cause}
}

// MissingAssetOrHostname builds a persistent, per-node error: the
// construction-path rule that a node must carry asset_id or hostname.
func MissingAssetOrHostname(nodeKey string) *Error {
	return &Error{Reason: ReasonMissingAssetOrHostname, Recover: Persistent, Scope: PerNode, NodeKey: nodeKey}
}

// AssetUnresolved builds a persistent, per-node error for a node that
// carries a resolvable hostname but has no Asset-ID Store mapping for
// it — distinct from MissingAssetOrHostname, which is the
// construction-path violation of carrying neither field at all.
func AssetUnresolved(nodeKey string) *Error {
	return &Error{Reason: ReasonAssetUnresolved, Recover: Persistent, Scope: PerNode, NodeKey: nodeKey}
}

// MissingTimestamp builds a persistent, per-node error for a node
// with no usable timestamp (InsufficientTimestamp).
func MissingTimestamp(nodeKey string) *Error {
	return &Error{Reason: ReasonMissingTimestamp, Recover: Persistent, Scope: PerNode, NodeKey: nodeKey}
}

// UnresolvableSession builds a persistent, per-node error for a
// session that cannot be resolved when may_default is false.
func UnresolvableSession(nodeKey string, cause error) *Error {
	return &Error{Reason: ReasonUnresolvableSession, Recover: Persistent, Scope: PerNode, NodeKey: nodeKey, Err: cause}
}

// UnknownVariant builds a persistent, per-node error for a node whose
// Kind the Node Identifier doesn't recognize.
func UnknownVariant(nodeKey string) *Error {
	return &Error{Reason: ReasonUnknownVariant, Recover: Persistent, Scope: PerNode, NodeKey: nodeKey}
}

// EncodeDecode builds a persistent, batch-scoped error for a wire
// encode/decode failure.
func EncodeDecode(cause error) *Error {
	return &Error{Reason: ReasonEncodeDecode, Recover: Persistent, Scope: Batch, Err: cause}
}

// Compression builds a persistent, batch-scoped error for a zstd
// (de)compression failure.
func Compression(cause error) *Error {
	return &Error{Reason: ReasonCompression, Recover: Persistent, Scope: Batch, Err: cause}
}

// as is a local errors.As to avoid importing errors twice with the
// same name as the package; kept here to make the dependency explicit
// in one place.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
