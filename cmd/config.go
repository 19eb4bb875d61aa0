// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/open-niim/niimctl/pkg/niimbot"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Print tuning flags. Registered on the commands that drive a print session
// (print, serve) and settable from the config file.
var (
	printDensity      int
	labelWidth        int
	labelHeight       int
	sendInterval      time.Duration
	settleDelay       time.Duration
	heartbeatInterval time.Duration
)

// registerSessionFlags adds the shared print tuning flags to a command.
func registerSessionFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&printDensity, "density", niimbot.DefaultDensity, "Print density (1-5)")
	cmd.Flags().IntVar(&labelWidth, "width", niimbot.DefaultLabelWidth, "Label width in dots")
	cmd.Flags().IntVar(&labelHeight, "height", niimbot.DefaultLabelHeight, "Label height in dots")
	cmd.Flags().DurationVar(&sendInterval, "send-interval", niimbot.DefaultSendInterval, "Delay between transmitted frames")
	cmd.Flags().DurationVar(&settleDelay, "settle-delay", niimbot.DefaultSettleDelay, "Wait after the last print line before finishing")
	cmd.Flags().DurationVar(&heartbeatInterval, "heartbeat-interval", niimbot.DefaultHeartbeatInterval, "Idle heartbeat period")
}

// sessionConfig assembles the protocol session parameters from flags and
// config file values.
func sessionConfig() (niimbot.Config, error) {
	cfg := niimbot.DefaultConfig()

	if printDensity < niimbot.MinDensity || printDensity > niimbot.MaxDensity {
		return cfg, fmt.Errorf("density %d out of range (%d-%d)", printDensity, niimbot.MinDensity, niimbot.MaxDensity)
	}
	if labelWidth < 1 || labelWidth > 255 {
		return cfg, fmt.Errorf("label width %d out of range (1-255)", labelWidth)
	}
	if labelHeight < 1 || labelHeight > 255 {
		return cfg, fmt.Errorf("label height %d out of range (1-255)", labelHeight)
	}

	cfg.Density = uint8(printDensity)
	cfg.LabelWidth = uint8(labelWidth)
	cfg.LabelHeight = uint8(labelHeight)
	cfg.SendInterval = sendInterval
	cfg.SettleDelay = settleDelay
	cfg.HeartbeatInterval = heartbeatInterval
	cfg.Logger = newLogger()
	return cfg, nil
}

// fileConfig mirrors the flag set but uses strings for durations to make
// TOML friendly.
type fileConfig struct {
	BLEAddress  string `toml:"ble_address"`
	BLEName     string `toml:"ble_name"`
	BLEService  string `toml:"ble_service"`
	BLEChar     string `toml:"ble_characteristic"`
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	NoSSLVerify *bool  `toml:"no_ssl_verify"`

	Density           int    `toml:"density"`
	LabelWidth        int    `toml:"label_width"`
	LabelHeight       int    `toml:"label_height"`
	SendInterval      string `toml:"send_interval"`
	SettleDelay       string `toml:"settle_delay"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
}

// loadFileConfig reads and parses a TOML config file from the given path.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// defaultConfigPath returns ~/.niimctl/config.toml, or "" if the home
// directory cannot be resolved.
func defaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".niimctl", "config.toml")
	}
	return ""
}

// loadConfig resolves the config file and applies it to the flag variables.
// A missing default file is fine; a missing file named with --config is an
// error.
func loadConfig(cmd *cobra.Command) error {
	path := configPath
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("config file: %v", err)
		}
		return nil
	}

	fc, err := loadFileConfig(path)
	if err != nil {
		return fmt.Errorf("config file %s: %v", path, err)
	}

	changed := make(map[string]bool)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})

	return applyFileConfig(fc, changed)
}

// applyFileConfig copies file values into the flag variables. Flags the user
// set explicitly win over file values.
func applyFileConfig(fc fileConfig, changed map[string]bool) error {
	s := configSetter{changed: changed}

	s.setString("ble-address", fc.BLEAddress, &bleAddress)
	s.setString("ble-name", fc.BLEName, &bleName)
	s.setString("ble-service", fc.BLEService, &bleService)
	s.setString("ble-characteristic", fc.BLEChar, &bleChar)
	s.setString("port", fc.Port, &portName)
	s.setInt("baud", fc.Baud, &baudRate)
	s.setString("url", fc.URL, &wsURL)
	s.setString("username", fc.Username, &wsUsername)
	s.setBool("no-ssl-verify", fc.NoSSLVerify, &wsNoSSLVerify)

	s.setInt("density", fc.Density, &printDensity)
	s.setInt("width", fc.LabelWidth, &labelWidth)
	s.setInt("height", fc.LabelHeight, &labelHeight)

	if err := s.setDuration("send-interval", fc.SendInterval, &sendInterval); err != nil {
		return err
	}
	if err := s.setDuration("settle-delay", fc.SettleDelay, &settleDelay); err != nil {
		return err
	}
	if err := s.setDuration("heartbeat-interval", fc.HeartbeatInterval, &heartbeatInterval); err != nil {
		return err
	}

	return nil
}

// configSetter applies file values while respecting flag precedence. A value
// is skipped when it is empty or its flag was set on the command line.
type configSetter struct {
	changed map[string]bool
}

func (s configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}
