/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package driver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/gravwell/node-identifier/canon"
	"github.com/gravwell/node-identifier/config"
	"github.com/gravwell/node-identifier/graph"
	"github.com/gravwell/node-identifier/wire"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	p := filepath.Join(t.TempDir(), "build_test.db")
	db, err := bbolt.Open(p, 0600, &bbolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBuildInProcessCache(t *testing.T) {
	cfg := config.Defaults()
	require.NoError(t, cfg.Verify())
	require.Empty(t, cfg.Global.Cache_Path) // selects cache.NewInProcess below

	h, err := Build(cfg, openTestDB(t), nil)
	require.NoError(t, err)
	require.NotNil(t, h)

	g := graph.New(7)
	g.AddNode(&graph.Node{Kind: graph.KindIpAddress, NodeKey: "ip1", IpAddr: &graph.IpAddress{IpAddress: "10.0.0.1"}})
	payload, err := wire.Encode(g)
	require.NoError(t, err)

	out, kind, err := h.HandleBatch(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, canon.Ok, kind)
	require.NotEmpty(t, out)
}

func TestBuildBoltBackedCache(t *testing.T) {
	cfg := config.Defaults()
	cfg.Global.Cache_Path = filepath.Join(t.TempDir(), "cache-marker")
	require.NoError(t, cfg.Verify())

	h, err := Build(cfg, openTestDB(t), nil)
	require.NoError(t, err)
	require.NotNil(t, h)
}

func TestBuildHonorsStoreRateLimit(t *testing.T) {
	cfg := config.Defaults()
	cfg.Global.Store_Rate_Limit = 1 << 20 // 8mbit, well above minThrottle
	require.NoError(t, cfg.Verify())

	h, err := Build(cfg, openTestDB(t), nil)
	require.NoError(t, err)
	require.NotNil(t, h)
}

func TestBuildPoolWidthMatchesConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Global.Pool_Width = 3
	require.NoError(t, cfg.Verify())

	p, err := BuildPool(cfg, openTestDB(t), nil)
	require.NoError(t, err)
	require.NotNil(t, p)
}
