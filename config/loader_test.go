/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"testing"
)

func TestLoadBytes(t *testing.T) {
	b := []byte(`
	[Global]
	Should-Default = true
	Log-Level = "WARN"
	Pool-Width = 4
	Process-Table = "proc_hist_dev"

	[Dynamic "RegistryValue"]
	Requires-Asset-Identification = true
	Identity-Fields = registry_key
	Identity-Fields = value_name
	`)
	c, err := LoadBytes(b)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Global.Should_Default {
		t.Fatal("Should_Default did not load from bytes")
	}
	if c.Global.Log_Level != `WARN` {
		t.Fatalf("bad log level: %v", c.Global.Log_Level)
	}
	if c.Global.Pool_Width != 4 {
		t.Fatalf("bad pool width: %v", c.Global.Pool_Width)
	}
	if c.Global.Process_Table != `proc_hist_dev` {
		t.Fatalf("bad process table override: %v", c.Global.Process_Table)
	}
	// Defaults should still be populated for values the file didn't set.
	if c.Global.File_Table != defaultFileTable {
		t.Fatalf("bad default file table: %v", c.Global.File_Table)
	}
	if err := c.Verify(); err != nil {
		t.Fatal(err)
	}

	d, ok := c.Dynamic[`RegistryValue`]
	if !ok {
		t.Fatal("missing RegistryValue dynamic schema")
	}
	if !d.Requires_Asset_Identification {
		t.Fatal("Requires_Asset_Identification did not load")
	}
	if len(d.Identity_Fields) != 2 || d.Identity_Fields[0] != `registry_key` {
		t.Fatalf("bad identity fields: %+v", d.Identity_Fields)
	}
}

func TestVerifyRejectsBadConfig(t *testing.T) {
	c := Defaults()
	c.Global.Pool_Width = 0
	if err := c.Verify(); err != ErrInvalidPoolWidth {
		t.Fatalf("expected ErrInvalidPoolWidth, got %v", err)
	}

	c = Defaults()
	c.Global.Store_Timeout = 0
	if err := c.Verify(); err != ErrInvalidStoreTimeout {
		t.Fatalf("expected ErrInvalidStoreTimeout, got %v", err)
	}

	c = Defaults()
	c.Global.Process_Table = ``
	if err := c.Verify(); err != ErrMissingTableName {
		t.Fatalf("expected ErrMissingTableName, got %v", err)
	}
}
