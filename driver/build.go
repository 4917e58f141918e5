/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package driver

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/gravwell/node-identifier/cache"
	"github.com/gravwell/node-identifier/canon"
	"github.com/gravwell/node-identifier/config"
	"github.com/gravwell/node-identifier/identity"
	"github.com/gravwell/node-identifier/internal/storeutil"
	"github.com/gravwell/node-identifier/log"
	"github.com/gravwell/node-identifier/store"
)

// identityCacheBucket names the Identity Cache's bucket when it
// shares db with the identity stores; unlike the store table names,
// it isn't deployment-configurable, since nothing outside this
// package ever needs to address it directly.
const identityCacheBucket = "identity_cache"

// Build wires a Handler out of cfg: it opens the bbolt-backed
// Asset-ID, Session and Dynamic-Mapping stores (spec §4.1-§4.3) and
// the Identity Cache (spec §4.8) against db, threads a single
// storeutil.Limiter built from cfg.Global.Store_Rate_Limit through
// every store so they share one call-rate budget, and assembles the
// canon.Canonicalizer they back. An empty Cache_Path selects the
// in-process, non-persistent cache instead of a bbolt bucket.
func Build(cfg config.Config, db *bbolt.DB, lgr *log.Logger) (*Handler, error) {
	limiter := storeutil.NewLimiter(float64(cfg.Global.Store_Rate_Limit), 1)

	assetStore, err := store.NewBoltAssetIdStore(db, cfg.Global.AssetId_Table, limiter)
	if err != nil {
		return nil, fmt.Errorf("asset-id store: %w", err)
	}
	dynamicStore, err := store.NewBoltDynamicMappingStore(db, cfg.Global.Dynamic_Table, limiter)
	if err != nil {
		return nil, fmt.Errorf("dynamic-mapping store: %w", err)
	}
	sessionStore := store.NewBoltSessionStore(db, limiter, cfg.Global.Store_Retry_Bound, lgr)

	var ic cache.Cache
	if cfg.Global.Cache_Path != `` {
		boltCache, err := cache.NewBolt(db, identityCacheBucket)
		if err != nil {
			return nil, fmt.Errorf("identity cache: %w", err)
		}
		ic = boltCache
	} else {
		ic = cache.NewInProcess()
	}

	assetIdent := identity.NewAssetIdentifier(assetStore, lgr)
	nodeIdent := identity.NewNodeIdentifier(sessionStore, dynamicStore, cfg)
	c := canon.New(assetIdent, nodeIdent, ic, cfg, lgr)
	return NewHandler(c, lgr), nil
}

// BuildPool is Build followed by wrapping the resulting
// canon.Canonicalizer in a canon.Pool of cfg.Global.Pool_Width
// workers, the concurrency tier spec §5 describes for the driver
// loop's steady-state throughput.
func BuildPool(cfg config.Config, db *bbolt.DB, lgr *log.Logger) (*Pool, error) {
	h, err := Build(cfg, db, lgr)
	if err != nil {
		return nil, err
	}
	return NewPool(canon.NewPool(h.canon, cfg.Global.Pool_Width), lgr), nil
}
