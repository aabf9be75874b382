// Package config loads the terminal's configuration: the local callsign,
// the KISS TNC endpoint, the LAPB tunables, and the optional directory
// subsystem settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds one terminal's settings. Fields are private; callers use
// the Get* accessors, matching the style of the rest of this package's
// history.
type Config struct {
	filename string

	myCall string
	host   string
	port   uint32

	n2          uint32
	t1Ms        uint32
	t3Ms        uint32
	windowK     uint8
	ackMs       uint32
	crlf        bool
	frmrFatal   bool

	directoryEnabled bool
	directoryDBPath  string
	aliasFile        string
	syncURL          string
	syncHours        uint32
}

// yamlConfig is the exported shape YAML unmarshals into; Config's fields
// stay private and are populated from this after parsing.
type yamlConfig struct {
	MyCall string `yaml:"mycall"`
	Host   string `yaml:"host"`
	Port   uint32 `yaml:"port"`

	N2          uint32 `yaml:"n2"`
	T1Ms        uint32 `yaml:"t1_ms"`
	T3Ms        uint32 `yaml:"t3_ms"`
	WindowK     uint8  `yaml:"window_k"`
	AckMs       uint32 `yaml:"ack_coalesce_ms"`
	CRLF        bool   `yaml:"crlf"`
	FrmrFatal   *bool  `yaml:"frmr_fatal"`

	Directory struct {
		Enabled  bool   `yaml:"enabled"`
		DBPath   string `yaml:"db_path"`
		Aliases  string `yaml:"alias_file"`
		SyncURL  string `yaml:"sync_url"`
		SyncHours uint32 `yaml:"sync_hours"`
	} `yaml:"directory"`
}

// NewConfig creates a configuration instance with the documented defaults.
func NewConfig(filename string) *Config {
	return &Config{
		filename: filename,

		port: 8001,

		n2:        3,
		t1Ms:      4000,
		t3Ms:      180000,
		windowK:   4,
		ackMs:     100,
		crlf:      false,
		frmrFatal: true,

		directoryEnabled: false,
		directoryDBPath:  "data/directory.db",
		syncHours:        24,
	}
}

// Load reads and parses the YAML configuration file.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.filename)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", c.filename, err)
	}
	return c.LoadFromBytes(data)
}

// LoadFromBytes parses YAML configuration from an in-memory buffer, useful
// for tests.
func (c *Config) LoadFromBytes(data []byte) error {
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", c.filename, err)
	}

	if y.MyCall != "" {
		c.myCall = y.MyCall
	}
	if y.Host != "" {
		c.host = y.Host
	}
	if y.Port != 0 {
		c.port = y.Port
	}
	if y.N2 != 0 {
		c.n2 = y.N2
	}
	if y.T1Ms != 0 {
		c.t1Ms = y.T1Ms
	}
	if y.T3Ms != 0 {
		c.t3Ms = y.T3Ms
	}
	if y.WindowK != 0 {
		c.windowK = y.WindowK
	}
	if y.AckMs != 0 {
		c.ackMs = y.AckMs
	}
	c.crlf = y.CRLF
	if y.FrmrFatal != nil {
		c.frmrFatal = *y.FrmrFatal
	}

	c.directoryEnabled = y.Directory.Enabled
	if y.Directory.DBPath != "" {
		c.directoryDBPath = y.Directory.DBPath
	}
	c.aliasFile = y.Directory.Aliases
	c.syncURL = y.Directory.SyncURL
	if y.Directory.SyncHours != 0 {
		c.syncHours = y.Directory.SyncHours
	}

	return c.validate()
}

func (c *Config) validate() error {
	if c.windowK == 0 || c.windowK > 7 {
		return fmt.Errorf("config: window_k must be 1-7, got %d", c.windowK)
	}
	if c.n2 == 0 || c.n2 > 10 {
		return fmt.Errorf("config: n2 must be 1-10, got %d", c.n2)
	}
	return nil
}

// Getters.

func (c *Config) GetMyCall() string            { return c.myCall }
func (c *Config) GetHost() string              { return c.host }
func (c *Config) GetPort() uint32              { return c.port }
func (c *Config) GetN2() uint32                { return c.n2 }
func (c *Config) GetT1() time.Duration         { return time.Duration(c.t1Ms) * time.Millisecond }
func (c *Config) GetT3() time.Duration         { return time.Duration(c.t3Ms) * time.Millisecond }
func (c *Config) GetWindowK() uint8            { return c.windowK }
func (c *Config) GetAckCoalesce() time.Duration { return time.Duration(c.ackMs) * time.Millisecond }
func (c *Config) GetCRLF() bool                { return c.crlf }
func (c *Config) GetFrmrFatal() bool           { return c.frmrFatal }

func (c *Config) LineTerminator() string {
	if c.crlf {
		return "\r\n"
	}
	return "\r"
}

func (c *Config) GetDirectoryEnabled() bool   { return c.directoryEnabled }
func (c *Config) GetDirectoryDBPath() string  { return c.directoryDBPath }
func (c *Config) GetAliasFile() string        { return c.aliasFile }
func (c *Config) GetSyncURL() string          { return c.syncURL }
func (c *Config) GetSyncHours() uint32        { return c.syncHours }

// SetMyCall overrides the configured callsign, used when the invocation's
// positional MYCALL argument takes precedence over the config file.
func (c *Config) SetMyCall(call string) { c.myCall = call }

// SetHost/SetPort override the configured TNC endpoint from positional
// HOST/PORT arguments.
func (c *Config) SetHost(host string) { c.host = host }
func (c *Config) SetPort(port uint32) { c.port = port }
