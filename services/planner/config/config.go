// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the planner's file configuration: one yaml file,
// defaults for everything, env overrides for the few values that are
// deploy-specific or secret-adjacent. Secrets themselves never live in
// the file; the config names the env var that carries them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the planner's full configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"model_backend"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Gates     GatesConfig     `yaml:"gates"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Export    ExportConfig    `yaml:"export"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Usage     UsageConfig     `yaml:"usage"`
}

// ServiceConfig names the service and its data directory.
type ServiceConfig struct {
	Name string `yaml:"name" validate:"required"`

	// DataDir holds the badger database and the run lock. Created on
	// first use.
	DataDir string `yaml:"data_dir" validate:"required"`
}

// ServerConfig configures the HTTP daemon.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig selects the generation backend.
type BackendConfig struct {
	// Type is "ollama" or "openai". OpenAI-compatible servers use
	// "openai" with a BaseURL.
	Type    string `yaml:"type" validate:"required,oneof=ollama openai"`
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`
	Model   string `yaml:"model" validate:"required"`

	// APIKeyEnv names the env var holding the key for cloud backends.
	// The key itself never appears in this file.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// APIKeyFile optionally points at a key file, tried after the env var.
	APIKeyFile string `yaml:"api_key_file,omitempty"`

	MaxAttempts       int           `yaml:"max_attempts" validate:"gte=0,lte=10"`
	PerCallTimeout    time.Duration `yaml:"per_call_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
}

// PipelineConfig tunes the run engine.
type PipelineConfig struct {
	// ConfidenceThreshold is the invariant confidence below which the
	// anchor gate asks for clarification.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"gt=0,lte=1"`

	MaxContextTokens  int `yaml:"max_context_tokens" validate:"gte=0"`
	MaxStageAttempts  int `yaml:"max_stage_attempts" validate:"gte=1,lte=10"`
	MaxVerifierReruns int `yaml:"max_verifier_reruns" validate:"gte=0,lte=10"`

	// GraphPath optionally overrides the compiled-in phase plan with a
	// yaml graph file.
	GraphPath string `yaml:"graph_path,omitempty"`
}

// GatesConfig configures the file decision channel.
type GatesConfig struct {
	// Dir is where gate presentations are written and decisions picked
	// up. Empty disables the file channel; HTTP and CLI still decide.
	Dir string `yaml:"dir,omitempty"`
}

// TelemetryConfig configures traces and metrics.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty"`
	PrometheusPort int    `yaml:"prometheus_port" validate:"gte=0,lte=65535"`
}

// ExportConfig configures specification export targets.
type ExportConfig struct {
	// Dir receives file exports. Default under the data dir.
	Dir string `yaml:"dir,omitempty"`

	// GCSBucket enables cloud export when set.
	GCSBucket string `yaml:"gcs_bucket,omitempty"`
	GCSPrefix string `yaml:"gcs_prefix,omitempty"`
}

// TrackerConfig configures work-item draft output.
type TrackerConfig struct {
	// DraftDir receives tracker-ready work item drafts. Default under
	// the data dir.
	DraftDir string `yaml:"draft_dir,omitempty"`
}

// UsageConfig configures the optional InfluxDB usage sink. Prometheus
// counters are always on; Influx is for long-horizon token accounting.
type UsageConfig struct {
	InfluxURL    string `yaml:"influx_url,omitempty" validate:"omitempty,url"`
	InfluxOrg    string `yaml:"influx_org,omitempty"`
	InfluxBucket string `yaml:"influx_bucket,omitempty"`

	// InfluxTokenEnv names the env var holding the write token.
	InfluxTokenEnv string `yaml:"influx_token_env,omitempty"`
}

// DefaultConfig returns the configuration a fresh install runs with: a
// local Ollama backend and everything under ~/.wayfinder.
func DefaultConfig() Config {
	dataDir := ".wayfinder"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = home + "/.wayfinder"
	}
	return Config{
		Service: ServiceConfig{
			Name:    "wayfinder",
			DataDir: dataDir,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8740",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: BackendConfig{
			Type:              "ollama",
			BaseURL:           "http://localhost:11434",
			Model:             "qwen2.5:14b",
			APIKeyEnv:         "OPENAI_API_KEY",
			MaxAttempts:       3,
			PerCallTimeout:    2 * time.Minute,
			RequestsPerSecond: 0,
		},
		Pipeline: PipelineConfig{
			ConfidenceThreshold: 0.7,
			MaxStageAttempts:    3,
			MaxVerifierReruns:   2,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			PrometheusPort: 9464,
		},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// Validate checks the configuration beyond what yaml parsing catches.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Backend.Type == "openai" && c.Backend.APIKeyEnv == "" && c.Backend.APIKeyFile == "" {
		return fmt.Errorf("invalid config: model_backend.type openai needs api_key_env or api_key_file")
	}
	if c.Telemetry.TraceExporter == "otlp" && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("invalid config: telemetry.trace_exporter otlp needs otlp_endpoint")
	}
	return nil
}

// Load reads the config file, layers env overrides, and validates. A
// missing file is not an error: the defaults apply and env overrides
// still run, so a containerized daemon can run fileless.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Fall through to defaults.
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to the path, creating
// parent directories. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if dir := dirOf(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}

// applyEnv layers WAYFINDER_* overrides on top of file values. Only
// deploy-varying settings are overridable; tuning stays in the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WAYFINDER_DATA_DIR"); v != "" {
		cfg.Service.DataDir = v
	}
	if v := os.Getenv("WAYFINDER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WAYFINDER_BACKEND"); v != "" {
		cfg.Backend.Type = v
	}
	if v := os.Getenv("WAYFINDER_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("WAYFINDER_MODEL"); v != "" {
		cfg.Backend.Model = v
	}
	if v := os.Getenv("WAYFINDER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.TraceExporter = "otlp"
	}
	if v := os.Getenv("WAYFINDER_PROMETHEUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Telemetry.PrometheusPort = port
		}
	}
}
