/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package store

import (
	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/nerr"
)

// sessionEpsilon is the tolerance rule 2 applies when deciding whether
// a continuation timestamp actually falls past a session's recorded
// end_time; spec §4.2 leaves ε unspecified beyond "timestamp >
// R.end_time - ε", so this repo takes ε = 0 (extend only on a strict
// timestamp that is genuinely later), the simplest reading consistent
// with the prose.
const sessionEpsilon = 0

// sessionDecision is the pure outcome of running the five-rule
// algorithm (spec §4.2) against a sorted window of existing records:
// which session id to return, and how the backing log should change.
type sessionDecision struct {
	SessionId string

	// Insert, if non-nil, is a brand-new record to persist.
	Insert *graph.Session

	// Update, if non-nil, replaces the record at UpdateIndex in the
	// input slice (same SessionId, mutated CreateTime/EndTime/
	// IsCreateCanon/IsEndCanon fields).
	Update      *graph.Session
	UpdateIndex int

	// DivergedOverlap is true when rule 5's conflicting-overlap
	// branch fired, so the caller can log it (§9 open question:
	// expose overlap handling and log divergences).
	DivergedOverlap bool
}

// decideSession implements spec §4.2's five rules against records,
// which must already be sorted ascending by CreateTime and all share
// the same PseudoKey as u. newId is called to mint a session id for a
// freshly inserted record (normally uuid.NewString).
func decideSession(records []graph.Session, u graph.UnidSession, mayDefault bool, newId func() string) (sessionDecision, error) {
	// Rule 1: exact creation match.
	for i, r := range records {
		if r.CreateTime == u.Timestamp && r.IsCreateCanon {
			return sessionDecision{SessionId: r.SessionId, UpdateIndex: i}, nil
		}
	}

	// Rule 2: straddles an existing window.
	if idx, r, ok := findStraddle(records, u.Timestamp); ok {
		updated := r
		changed := false
		if u.IsCreation && !r.IsCreateCanon {
			updated.CreateTime = u.Timestamp
			updated.IsCreateCanon = true
			changed = true
		}
		if !u.IsCreation && u.Timestamp > r.EndTime-sessionEpsilon {
			updated.EndTime = u.Timestamp
			changed = true
		}
		decision := sessionDecision{SessionId: r.SessionId, UpdateIndex: idx}
		if changed {
			updated.Version++
			decision.Update = &updated
		}
		if u.IsCreation && r.IsCreateCanon && r.CreateTime != u.Timestamp {
			// A second, differently-timed creation observation
			// landed inside an already-canonical session: rule 5's
			// conflicting overlap. Trust the earlier canonical
			// record (do nothing further) and flag it for logging.
			decision = sessionDecision{SessionId: r.SessionId, UpdateIndex: idx, DivergedOverlap: true}
		}
		return decision, nil
	}

	// Rule 3: after this record's end, before the next one starts.
	if idx, r, rNext, ok := findAfterEndBeforeNext(records, u.Timestamp); ok {
		if u.IsCreation {
			ns := graph.Session{
				SessionId:     newId(),
				PseudoKey:     u.PseudoKey,
				CreateTime:    u.Timestamp,
				EndTime:       u.Timestamp,
				IsCreateCanon: true,
			}
			return sessionDecision{SessionId: ns.SessionId, Insert: &ns}, nil
		}
		updated := r
		updated.EndTime = u.Timestamp
		updated.Version++
		_ = rNext
		return sessionDecision{SessionId: r.SessionId, Update: &updated, UpdateIndex: idx}, nil
	}

	// Rule 4: no prior record at all.
	if len(records) == 0 {
		if u.IsCreation {
			ns := graph.Session{
				SessionId:     newId(),
				PseudoKey:     u.PseudoKey,
				CreateTime:    u.Timestamp,
				EndTime:       u.Timestamp,
				IsCreateCanon: true,
			}
			return sessionDecision{SessionId: ns.SessionId, Insert: &ns}, nil
		}
		if mayDefault {
			ns := graph.Session{
				SessionId:     newId(),
				PseudoKey:     u.PseudoKey,
				CreateTime:    u.Timestamp,
				EndTime:       u.Timestamp,
				IsCreateCanon: false,
			}
			return sessionDecision{SessionId: ns.SessionId, Insert: &ns}, nil
		}
		return sessionDecision{}, nerr.UnresolvableSession(u.PseudoKey, nil)
	}

	// Every record present but none of rules 1-3 matched: the
	// timestamp falls before the earliest record's window. Treat it
	// the same as rule 4's "no prior record" case relative to that
	// earliest record.
	if u.IsCreation {
		ns := graph.Session{
			SessionId:     newId(),
			PseudoKey:     u.PseudoKey,
			CreateTime:    u.Timestamp,
			EndTime:       u.Timestamp,
			IsCreateCanon: true,
		}
		return sessionDecision{SessionId: ns.SessionId, Insert: &ns}, nil
	}
	if mayDefault {
		ns := graph.Session{
			SessionId:     newId(),
			PseudoKey:     u.PseudoKey,
			CreateTime:    u.Timestamp,
			EndTime:       u.Timestamp,
			IsCreateCanon: false,
		}
		return sessionDecision{SessionId: ns.SessionId, Insert: &ns}, nil
	}
	return sessionDecision{}, nerr.UnresolvableSession(u.PseudoKey, nil)
}

func findStraddle(records []graph.Session, ts uint64) (int, graph.Session, bool) {
	for i, r := range records {
		if r.CreateTime <= ts && ts <= r.EndTime {
			return i, r, true
		}
	}
	return 0, graph.Session{}, false
}

func findAfterEndBeforeNext(records []graph.Session, ts uint64) (int, graph.Session, *graph.Session, bool) {
	for i, r := range records {
		if ts <= r.EndTime {
			continue
		}
		if i+1 < len(records) {
			next := records[i+1]
			if next.CreateTime > ts {
				return i, r, &next, true
			}
			continue
		}
		// r is the last record and ts is past its end: "before next"
		// is vacuously true since there is no next.
		return i, r, nil, true
	}
	return 0, graph.Session{}, nil, false
}
