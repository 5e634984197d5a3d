package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempIni(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "adapter.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultMatchesIsoTpDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, uint32(0x784), cfg.IsoTpTxID)
	assert.Equal(t, uint32(0x7F0), cfg.IsoTpRxID)
	assert.Equal(t, "192.168.7.1:50130", cfg.TcpAddress)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempIni(t, `
[can]
interface = socketcan0
bitrate = 250000

[isotp]
tx_id = 0x7A0
rx_id = 0x7A8
block_size = 4
st_min = 10
pad_frame = false

[tcp]
address = 10.0.0.5:9000

[uds]
reply_timeout_ms = 2000
tester_present_interval_ms = 15000

[log]
level = debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "socketcan0", cfg.CanInterface)
	assert.Equal(t, 250000, cfg.CanBitrate)
	assert.Equal(t, uint32(0x7A0), cfg.IsoTpTxID)
	assert.Equal(t, uint32(0x7A8), cfg.IsoTpRxID)
	assert.Equal(t, uint8(4), cfg.IsoTpBlockSize)
	assert.Equal(t, uint8(10), cfg.IsoTpSTmin)
	assert.False(t, cfg.IsoTpPadFrame)
	assert.Equal(t, "10.0.0.5:9000", cfg.TcpAddress)
	assert.Equal(t, 2*time.Second, cfg.UdsReplyTimeout)
	assert.Equal(t, 15*time.Second, cfg.UdsTesterPresentInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}

func TestIsoTpSettingsReflectsConfig(t *testing.T) {
	cfg := Default()
	cfg.IsoTpBlockSize = 2
	s := cfg.IsoTpSettings()
	assert.Equal(t, uint8(2), s.BlockSize)
	assert.Equal(t, cfg.IsoTpTxID, s.TxID)
}
