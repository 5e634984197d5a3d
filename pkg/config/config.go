// Package config loads the adapter's static configuration (CAN
// interface, ISO-TP timing, TCP correlator endpoint, UDS timing, log
// level) from an INI file, using the same gopkg.in/ini.v1 library the
// teacher's EDS parser uses for its own structured configuration text.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"

	"github.com/fleetdiag/canuds/pkg/isotp"
)

// AdapterConfig is the full set of knobs needed to bring up a CAN
// adapter, ISO-TP engine, UDS client and correlator from one file.
type AdapterConfig struct {
	CanInterface string
	CanBitrate   int

	IsoTpTxID     uint32
	IsoTpRxID     uint32
	IsoTpBlockSize uint8
	IsoTpSTmin     uint8
	IsoTpPadFrame  bool

	TcpAddress string

	UdsReplyTimeout          time.Duration
	UdsTesterPresentInterval time.Duration

	LogLevel string
}

// Default returns the configuration the system falls back to when no
// file is supplied: the virtual bus, the adapter's documented default
// CAN IDs, and the gateway agent's well-known TCP endpoint.
func Default() AdapterConfig {
	s := isotp.DefaultSettings()
	return AdapterConfig{
		CanInterface:             "virtual",
		CanBitrate:               500000,
		IsoTpTxID:                s.TxID,
		IsoTpRxID:                s.RxID,
		IsoTpBlockSize:           s.BlockSize,
		IsoTpSTmin:               s.STmin,
		IsoTpPadFrame:            s.PadFrame,
		TcpAddress:               "192.168.7.1:50130",
		UdsReplyTimeout:          5 * time.Second,
		UdsTesterPresentInterval: 40 * time.Second,
		LogLevel:                 "info",
	}
}

// Load parses path as an INI file and overlays its values on top of
// Default(), so a file only needs to name the keys it wants to
// override.
func Load(path string) (AdapterConfig, error) {
	cfg := Default()

	f, err := ini.Load(path)
	if err != nil {
		return AdapterConfig{}, fmt.Errorf("config: %w", err)
	}

	can := f.Section("can")
	if can.HasKey("interface") {
		cfg.CanInterface = can.Key("interface").String()
	}
	if can.HasKey("bitrate") {
		v, err := can.Key("bitrate").Int()
		if err != nil {
			return AdapterConfig{}, fmt.Errorf("config: can.bitrate: %w", err)
		}
		cfg.CanBitrate = v
	}

	it := f.Section("isotp")
	if it.HasKey("tx_id") {
		v, err := it.Key("tx_id").Uint()
		if err != nil {
			return AdapterConfig{}, fmt.Errorf("config: isotp.tx_id: %w", err)
		}
		cfg.IsoTpTxID = uint32(v)
	}
	if it.HasKey("rx_id") {
		v, err := it.Key("rx_id").Uint()
		if err != nil {
			return AdapterConfig{}, fmt.Errorf("config: isotp.rx_id: %w", err)
		}
		cfg.IsoTpRxID = uint32(v)
	}
	if it.HasKey("block_size") {
		v, err := it.Key("block_size").Uint()
		if err != nil {
			return AdapterConfig{}, fmt.Errorf("config: isotp.block_size: %w", err)
		}
		cfg.IsoTpBlockSize = uint8(v)
	}
	if it.HasKey("st_min") {
		v, err := it.Key("st_min").Uint()
		if err != nil {
			return AdapterConfig{}, fmt.Errorf("config: isotp.st_min: %w", err)
		}
		cfg.IsoTpSTmin = uint8(v)
	}
	if it.HasKey("pad_frame") {
		v, err := it.Key("pad_frame").Bool()
		if err != nil {
			return AdapterConfig{}, fmt.Errorf("config: isotp.pad_frame: %w", err)
		}
		cfg.IsoTpPadFrame = v
	}

	tcp := f.Section("tcp")
	if tcp.HasKey("address") {
		cfg.TcpAddress = tcp.Key("address").String()
	}

	u := f.Section("uds")
	if u.HasKey("reply_timeout_ms") {
		v, err := u.Key("reply_timeout_ms").Int()
		if err != nil {
			return AdapterConfig{}, fmt.Errorf("config: uds.reply_timeout_ms: %w", err)
		}
		cfg.UdsReplyTimeout = time.Duration(v) * time.Millisecond
	}
	if u.HasKey("tester_present_interval_ms") {
		v, err := u.Key("tester_present_interval_ms").Int()
		if err != nil {
			return AdapterConfig{}, fmt.Errorf("config: uds.tester_present_interval_ms: %w", err)
		}
		cfg.UdsTesterPresentInterval = time.Duration(v) * time.Millisecond
	}

	lg := f.Section("log")
	if lg.HasKey("level") {
		cfg.LogLevel = lg.Key("level").String()
	}

	return cfg, nil
}

// IsoTpSettings builds the isotp.Settings this configuration implies.
func (c AdapterConfig) IsoTpSettings() isotp.Settings {
	return isotp.Settings{
		TxID:      c.IsoTpTxID,
		RxID:      c.IsoTpRxID,
		BlockSize: c.IsoTpBlockSize,
		STmin:     c.IsoTpSTmin,
		PadFrame:  c.IsoTpPadFrame,
	}
}
