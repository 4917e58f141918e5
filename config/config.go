/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config loads the Node Identifier's immutable runtime
// configuration. Per the design notes, region, table names, bucket
// names and the should-default flag are not read from process-wide
// global state at call time: they are parsed once, validated, and
// threaded through the canonicalizer constructor as a plain value.
package config

import (
	"errors"
	"strings"
	"time"
)

const (
	defaultLogLevel      = `ERROR`
	defaultStoreTimeout  = 2 * time.Second
	defaultRetryBound    = 3
	defaultPoolWidth     = 10
	defaultProcessTable  = `process_history`
	defaultFileTable     = `file_history`
	defaultInboundTable  = `inbound_connection_history`
	defaultOutboundTable = `outbound_connection_history`
	defaultNetworkTable  = `network_connection_history`
	defaultIpConnTable   = `ip_connection_history`
	defaultDynamicTable  = `dynamic_mapping_history`
	defaultAssetIdTable  = `asset_id_history`
)

const (
	envShouldDefault = `NODEIDENT_SHOULD_DEFAULT`
	envLogLevel      = `NODEIDENT_LOG_LEVEL`
	envLogFile       = `NODEIDENT_LOG_FILE`
	envPoolWidth     = `NODEIDENT_POOL_WIDTH`
	envStoreTimeout  = `NODEIDENT_STORE_TIMEOUT`
	envStoreRateLimit = `NODEIDENT_STORE_RATE_LIMIT`
)

var (
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidPoolWidth    = errors.New("invalid canonicalizer pool width")
	ErrInvalidStoreTimeout = errors.New("invalid store operation timeout")
	ErrInvalidRetryBound   = errors.New("invalid store retry bound")
	ErrMissingTableName    = errors.New("missing required table name")
)

// DynamicSchema declares one dynamic node type: which of its
// identifying_properties feed the Dynamic-Mapping Store's lookup key,
// and whether asset attribution must run first and be folded in.
type DynamicSchema struct {
	Requires_Asset_Identification bool
	Identity_Fields                []string
}

// Config is the Node Identifier's top-level, immutable configuration.
// It is ordinarily parsed from an ini-style file via Load/LoadBytes,
// with Should_Default, Log_Level, Log_File, Pool_Width, Store_Timeout
// and Store_Rate_Limit overridable by the NODEIDENT_* environment
// variables (or NAME_FILE, per LoadEnvVar) so it can run unmodified
// in a container. The other Global fields have no environment
// override.
type Config struct {
	Global struct {
		// Should_Default controls whether session resolution may
		// synthesize a non-canonical creation record when no prior
		// session exists for a continuation/termination observation.
		Should_Default bool

		Log_Level string
		Log_File  string

		// Pool_Width is the number of independent canonicalizer
		// instances the driver tier runs concurrently; each owns
		// its own mutable working state but shares the backing
		// stores.
		Pool_Width int

		// Store_Timeout bounds every call into the Asset-ID,
		// Session, Dynamic-Mapping and Identity Cache stores.
		Store_Timeout time.Duration

		// Store_Retry_Bound is the number of compare-and-set
		// read-decide-write retries the Session Store attempts
		// before surfacing a transient error.
		Store_Retry_Bound int

		// Store_Rate_Limit bounds how many operations per second the
		// canonicalizer pool may issue against the Asset-ID, Session
		// and Dynamic-Mapping stores, in bytes/sec notation (parsed
		// by ParseRate, e.g. "10mbit"). Zero disables limiting.
		Store_Rate_Limit int64

		// Table names, one per session-backed node variant.
		Process_Table  string
		File_Table     string
		Inbound_Table  string
		Outbound_Table string
		Network_Table  string
		IpConn_Table   string
		Dynamic_Table  string
		AssetId_Table  string

		// Cache_Path selects the Identity Cache backend: a non-empty
		// value makes driver.Build use a bbolt-backed cache on the
		// database handle it is given, an empty value an in-process
		// cache. The path itself is not opened here, and the
		// Asset-ID, Session and Dynamic-Mapping stores always use the
		// database handle passed to driver.Build.
		Cache_Path string
	}

	// Dynamic declares the identity schema for each dynamic node
	// type the deployment expects to see, keyed by node_type.
	Dynamic map[string]*DynamicSchema
}

// Defaults returns a Config with every Global field set to its
// default value; callers typically Load a file or env overlay on
// top of it.
func Defaults() Config {
	var c Config
	c.Global.Log_Level = defaultLogLevel
	c.Global.Pool_Width = defaultPoolWidth
	c.Global.Store_Timeout = defaultStoreTimeout
	c.Global.Store_Retry_Bound = defaultRetryBound
	c.Global.Process_Table = defaultProcessTable
	c.Global.File_Table = defaultFileTable
	c.Global.Inbound_Table = defaultInboundTable
	c.Global.Outbound_Table = defaultOutboundTable
	c.Global.Network_Table = defaultNetworkTable
	c.Global.IpConn_Table = defaultIpConnTable
	c.Global.Dynamic_Table = defaultDynamicTable
	c.Global.AssetId_Table = defaultAssetIdTable
	return c
}

// Load reads an ini-style config file and overlays the NODEIDENT_*
// environment variables on top of whatever it specifies.
func Load(path string) (c Config, err error) {
	c = Defaults()
	if err = LoadConfigFile(&c, path); err != nil {
		return
	}
	err = c.loadEnvOverlay()
	return
}

// LoadBytes is Load without the filesystem round trip; tests use it
// directly against an inline config body.
func LoadBytes(b []byte) (c Config, err error) {
	c = Defaults()
	if err = LoadConfigBytes(&c, b); err != nil {
		return
	}
	err = c.loadEnvOverlay()
	return
}

func (c *Config) loadEnvOverlay() error {
	var logLevel string
	if err := LoadEnvVar(&logLevel, envLogLevel, c.Global.Log_Level); err != nil {
		return err
	}
	c.Global.Log_Level = logLevel
	var logFile string
	if err := LoadEnvVar(&logFile, envLogFile, c.Global.Log_File); err != nil {
		return err
	}
	c.Global.Log_File = logFile
	var shouldDefault bool
	if err := LoadEnvVar(&shouldDefault, envShouldDefault, c.Global.Should_Default); err != nil {
		return err
	}
	c.Global.Should_Default = shouldDefault
	var poolWidth int64
	if err := LoadEnvVar(&poolWidth, envPoolWidth, int64(c.Global.Pool_Width)); err != nil {
		return err
	}
	c.Global.Pool_Width = int(poolWidth)

	var timeoutStr string
	if err := LoadEnvVar(&timeoutStr, envStoreTimeout, ``); err != nil {
		return err
	}
	if timeoutStr != `` {
		to, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return ErrInvalidStoreTimeout
		}
		c.Global.Store_Timeout = to
	}

	var rateStr string
	if err := LoadEnvVar(&rateStr, envStoreRateLimit, ``); err != nil {
		return err
	}
	if rateStr != `` {
		bps, err := ParseRate(rateStr)
		if err != nil {
			return err
		}
		c.Global.Store_Rate_Limit = bps
	}
	return nil
}

// Verify normalizes and sanity-checks a Config; callers should treat
// a non-nil error as a fatal startup condition.
func (c *Config) Verify() error {
	c.Global.Log_Level = strings.ToUpper(strings.TrimSpace(c.Global.Log_Level))
	if c.Global.Log_Level == `` {
		c.Global.Log_Level = defaultLogLevel
	}
	switch c.Global.Log_Level {
	case `OFF`, `DEBUG`, `INFO`, `WARN`, `ERROR`, `CRITICAL`, `FATAL`:
	default:
		return ErrInvalidLogLevel
	}

	if c.Global.Pool_Width <= 0 {
		return ErrInvalidPoolWidth
	}
	if c.Global.Store_Timeout <= 0 {
		return ErrInvalidStoreTimeout
	}
	if c.Global.Store_Retry_Bound < 3 {
		return ErrInvalidRetryBound
	}
	for _, name := range []string{
		c.Global.Process_Table, c.Global.File_Table, c.Global.Inbound_Table, c.Global.Outbound_Table,
		c.Global.Network_Table, c.Global.IpConn_Table, c.Global.Dynamic_Table, c.Global.AssetId_Table,
	} {
		if strings.TrimSpace(name) == `` {
			return ErrMissingTableName
		}
	}
	return nil
}
