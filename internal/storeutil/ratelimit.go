/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package storeutil holds the small call-shaping helpers shared by the
// Asset-ID, Session and Dynamic-Mapping stores: a token-bucket limiter
// bounding how fast a canonicalizer pool hammers its backing stores,
// and a bounded CAS retry loop for the read-decide-write sequences the
// Session Store needs.
package storeutil

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBurstMultiplier = 1
)

// ErrRetriesExhausted is returned by Retry when fn never reported a
// successful compare-and-set within the configured bound.
var ErrRetriesExhausted = errors.New("store: compare-and-set retries exhausted")

// Limiter bounds the rate at which a canonicalizer pool may issue
// operations against a backing store. It is a thin wrapper over
// rate.Limiter: one token per call rather than per byte, since store
// operations (not network writes) are what the pool tier needs to
// shape here.
type Limiter struct {
	burst int
	lm    *rate.Limiter
}

// NewLimiter builds a Limiter admitting opsPerSec operations per
// second, with a burst of opsPerSec*burstMult outstanding tokens.
// A non-positive opsPerSec disables limiting entirely.
func NewLimiter(opsPerSec float64, burstMult int) *Limiter {
	if burstMult <= 0 {
		burstMult = defaultBurstMultiplier
	}
	if opsPerSec <= 0 {
		return &Limiter{}
	}
	burst := int(opsPerSec) * burstMult
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		burst: burst,
		lm:    rate.NewLimiter(rate.Limit(opsPerSec), burst),
	}
}

// Wait blocks until a single operation token is available or ctx is
// done, whichever comes first. A nil-valued Limiter (or one built with
// a non-positive rate) never blocks.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.lm == nil {
		return nil
	}
	return l.lm.Wait(ctx)
}

// Retry runs fn up to bound times, waiting on the Limiter (if any)
// before each attempt and giving up as soon as fn reports done==true.
// fn returns (done, err): done means the compare-and-set landed (with
// err nil) or failed permanently (with err non-nil); !done means the
// read-decide-write lost its race and should be retried against a
// freshly-read value. Mirrors the Session Store's obligation to
// retry a lost CAS at least config.Global.Store_Retry_Bound times
// before surfacing a transient error.
func (l *Limiter) Retry(ctx context.Context, bound int, fn func(attempt int) (done bool, err error)) error {
	if bound <= 0 {
		bound = 1
	}
	var lastErr error
	for attempt := 0; attempt < bound; attempt++ {
		if err := l.Wait(ctx); err != nil {
			return err
		}
		done, err := fn(attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		lastErr = ErrRetriesExhausted
	}
	if lastErr == nil {
		lastErr = ErrRetriesExhausted
	}
	return lastErr
}

// WithTimeout derives a child context bounded by to, returning a
// no-op cancel if to is non-positive (the caller's ctx governs
// instead). Store call sites use this to apply
// config.Global.Store_Timeout uniformly.
func WithTimeout(ctx context.Context, to time.Duration) (context.Context, context.CancelFunc) {
	if to <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, to)
}
