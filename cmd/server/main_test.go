package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "stocker dev\n", out.String())
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "schema", "version"})
}

func TestSchemaCmd_SQLite(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "REDIS_URL", "SCAN_INTERVAL", "QUOTE_TIMEOUT", "ACK_DEADLINE", "TICKER_SUFFIX", "NAME_CACHE_TTL", "PORT"} {
		t.Setenv(k, "")
	}
	t.Setenv("DATABASE_PATH", t.TempDir()+"/ledger.db")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCmd()
	root.SetArgs([]string{"schema"})
	require.NoError(t, root.Execute())
}
