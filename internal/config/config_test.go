package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ax25term.yaml")

	body := `
mycall: KC3SMW-0
host: 127.0.0.1
port: 8001
n2: 5
t1_ms: 3000
t3_ms: 60000
window_k: 7
ack_coalesce_ms: 250
crlf: true
frmr_fatal: false

directory:
  enabled: true
  db_path: data/test.db
  alias_file: aliases.csv
  sync_url: https://example.com/nodes.csv
  sync_hours: 12
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c := NewConfig(path)
	require.NoError(t, c.Load())

	require.Equal(t, "KC3SMW-0", c.GetMyCall())
	require.Equal(t, "127.0.0.1", c.GetHost())
	require.Equal(t, uint32(8001), c.GetPort())
	require.Equal(t, uint32(5), c.GetN2())
	require.Equal(t, 3*time.Second, c.GetT1())
	require.Equal(t, 60*time.Second, c.GetT3())
	require.Equal(t, uint8(7), c.GetWindowK())
	require.Equal(t, 250*time.Millisecond, c.GetAckCoalesce())
	require.True(t, c.GetCRLF())
	require.Equal(t, "\r\n", c.LineTerminator())
	require.False(t, c.GetFrmrFatal())

	require.True(t, c.GetDirectoryEnabled())
	require.Equal(t, "data/test.db", c.GetDirectoryDBPath())
	require.Equal(t, "aliases.csv", c.GetAliasFile())
	require.Equal(t, "https://example.com/nodes.csv", c.GetSyncURL())
	require.Equal(t, uint32(12), c.GetSyncHours())
}

func TestConfig_Defaults(t *testing.T) {
	c := NewConfig("unused.yaml")
	require.NoError(t, c.LoadFromBytes([]byte("mycall: KC3SMW-0\n")))

	require.Equal(t, uint32(8001), c.GetPort())
	require.Equal(t, uint32(3), c.GetN2())
	require.Equal(t, 4*time.Second, c.GetT1())
	require.Equal(t, 180*time.Second, c.GetT3())
	require.Equal(t, uint8(4), c.GetWindowK())
	require.Equal(t, 100*time.Millisecond, c.GetAckCoalesce())
	require.False(t, c.GetCRLF())
	require.Equal(t, "\r", c.LineTerminator())
	require.True(t, c.GetFrmrFatal())
	require.False(t, c.GetDirectoryEnabled())
}

func TestConfig_RejectsInvalidWindow(t *testing.T) {
	c := NewConfig("unused.yaml")
	err := c.LoadFromBytes([]byte("mycall: KC3SMW-0\nwindow_k: 9\n"))
	require.Error(t, err)
}

func TestConfig_PositionalOverrides(t *testing.T) {
	c := NewConfig("unused.yaml")
	require.NoError(t, c.LoadFromBytes([]byte("mycall: KC3SMW-0\nhost: 127.0.0.1\n")))

	c.SetMyCall("N0CALL-5")
	c.SetHost("tnc.example.net")
	c.SetPort(8002)

	require.Equal(t, "N0CALL-5", c.GetMyCall())
	require.Equal(t, "tnc.example.net", c.GetHost())
	require.Equal(t, uint32(8002), c.GetPort())
}

func TestConfig_LoadMissingFile(t *testing.T) {
	c := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, c.Load())
}
