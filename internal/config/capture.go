// Package config loads capture settings from an optional JSON file. Every
// field is optional; the Get* accessors supply defaults for anything the
// file leaves out, and command-line flags override both.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/gaitlog/internal/serialmux"
	"github.com/banshee-data/gaitlog/internal/telemetry"
	"github.com/banshee-data/gaitlog/internal/units"
)

// CaptureConfig holds the settings shared by the live logger and the batch
// decoder.
type CaptureConfig struct {
	// Decoding
	PolePairs *int     `json:"pole_pairs,omitempty"`
	Layout    *string  `json:"layout,omitempty"` // auto, strict or legacy
	Banners   []string `json:"banners,omitempty"`

	// Locations
	Input     *string `json:"input,omitempty"`
	Output    *string `json:"output,omitempty"`
	OutputDir *string `json:"output_dir,omitempty"`
	RawOutput *string `json:"raw_output,omitempty"`
	DBPath    *string `json:"db_path,omitempty"`
	Listen    *string `json:"listen,omitempty"`

	// Serial link
	BaudRate    *int    `json:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty"`
	Parity      *string `json:"parity,omitempty"`
	ReadTimeout *string `json:"read_timeout,omitempty"` // duration string like "1s"
}

// Default serial device used when neither the file nor a flag names one.
const DefaultSerialPort = "/dev/ttyACM0"

// LoadCaptureConfig loads a CaptureConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadCaptureConfig(path string) (*CaptureConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &CaptureConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *CaptureConfig) Validate() error {
	if c.PolePairs != nil {
		if err := units.ValidatePolePairs(*c.PolePairs); err != nil {
			return err
		}
	}

	if l := c.GetLayout(); !strings.EqualFold(l, telemetry.LayoutAuto) {
		if _, err := telemetry.ParseVariant(l); err != nil {
			return err
		}
	}

	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		d, err := time.ParseDuration(*c.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("read_timeout must be positive, got %s", d)
		}
	}

	if c.BaudRate != nil && *c.BaudRate < 0 {
		return fmt.Errorf("baud_rate must be non-negative, got %d", *c.BaudRate)
	}

	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}
	return nil
}

// GetPolePairs returns the pole_pairs value or the default of 0, which
// disables mechanical RPM.
func (c *CaptureConfig) GetPolePairs() int {
	if c.PolePairs == nil {
		return 0
	}
	return *c.PolePairs
}

// GetLayout returns the layout value or "auto".
func (c *CaptureConfig) GetLayout() string {
	if c.Layout == nil || strings.TrimSpace(*c.Layout) == "" {
		return telemetry.LayoutAuto
	}
	return strings.TrimSpace(*c.Layout)
}

// GetInput returns the configured input, or fallback when unset.
func (c *CaptureConfig) GetInput(fallback string) string {
	return stringOr(c.Input, fallback)
}

// GetOutput returns the configured output path, or "" to derive one.
func (c *CaptureConfig) GetOutput() string {
	return stringOr(c.Output, "")
}

// GetOutputDir returns the directory for derived live capture names.
func (c *CaptureConfig) GetOutputDir() string {
	return stringOr(c.OutputDir, ".")
}

// GetRawOutput returns the raw tee path, or "" when disabled.
func (c *CaptureConfig) GetRawOutput() string {
	return stringOr(c.RawOutput, "")
}

// GetDBPath returns the record store path, or "" when disabled.
func (c *CaptureConfig) GetDBPath() string {
	return stringOr(c.DBPath, "")
}

// GetListen returns the debug listen address, or "" when disabled.
func (c *CaptureConfig) GetListen() string {
	return stringOr(c.Listen, "")
}

// GetReadTimeout parses and returns the ReadTimeout as a time.Duration.
func (c *CaptureConfig) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil || *c.ReadTimeout == "" {
		return serialmux.DefaultReadTimeout
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil || d <= 0 {
		return serialmux.DefaultReadTimeout
	}
	return d
}

// PortOptions returns the serial link settings. Unset values stay zero so
// PortOptions.Normalize applies its defaults.
func (c *CaptureConfig) PortOptions() serialmux.PortOptions {
	opts := serialmux.PortOptions{ReadTimeout: c.GetReadTimeout()}
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

// DecoderOptions returns the telemetry decoder settings.
func (c *CaptureConfig) DecoderOptions() telemetry.Options {
	return telemetry.Options{
		PolePairs: c.GetPolePairs(),
		Layout:    c.GetLayout(),
		Banners:   c.Banners,
	}
}

func stringOr(p *string, fallback string) string {
	if p == nil || *p == "" {
		return fallback
	}
	return *p
}
