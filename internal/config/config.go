// Package config provides configuration management for cvforge using Viper
// for flexible loading from files, environment variables and command-line
// flags.
//
// Configuration is read from .cvforge.yml with CVFORGE_ environment variable
// overrides following the CVFORGE_<SECTION>_<OPTION> pattern, e.g.
// CVFORGE_SERVER_PORT=9090 or CVFORGE_ARTIFACTS_KEEP=10.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Render    RenderConfig    `yaml:"render"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Session   SessionConfig   `yaml:"session"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Files     FilesConfig     `yaml:"files"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type RenderConfig struct {
	// Command is the external render engine invocation; the source file path
	// is appended as the final argument.
	Command []string `yaml:"command"`
	// Timeout bounds one render attempt.
	Timeout time.Duration `yaml:"timeout"`
}

type ArtifactsConfig struct {
	// Root is the directory holding per-render artifact directories.
	Root string `yaml:"root"`
	// Keep is the number of most recent artifact directories retained.
	Keep int `yaml:"keep"`
}

type SessionConfig struct {
	// Debounce is the quiet period observed before an edit triggers a render.
	Debounce time.Duration `yaml:"debounce"`
}

type PipelineConfig struct {
	// Model is the LLM model name used by the tailoring steps.
	Model string `yaml:"model"`
}

type FilesConfig struct {
	MasterCV  string `yaml:"master_cv"`
	WorkingCV string `yaml:"working_cv"`
	JobAd     string `yaml:"job_ad"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults mirrors the zero-configuration behavior of the editor.
func Defaults() *Config {
	return &Config{
		Server:    ServerConfig{Host: "localhost", Port: 8080},
		Render:    RenderConfig{Command: []string{"rendercv", "render"}, Timeout: 10 * time.Second},
		Artifacts: ArtifactsConfig{Root: "temp_renders", Keep: 5},
		Session:   SessionConfig{Debounce: 1500 * time.Millisecond},
		Pipeline:  PipelineConfig{Model: "gemini-2.0-flash"},
		Files: FilesConfig{
			MasterCV:  "master_CV.yaml",
			WorkingCV: "working_CV.yaml",
			JobAd:     "job_advertisement.txt",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from viper's merged sources on top of the
// defaults, then validates it.
func Load() (*Config, error) {
	cfg := Defaults()

	if viper.IsSet("server.host") {
		cfg.Server.Host = viper.GetString("server.host")
	}
	if viper.IsSet("server.port") {
		cfg.Server.Port = viper.GetInt("server.port")
	}
	if viper.IsSet("render.command") {
		if cmd := viper.GetStringSlice("render.command"); len(cmd) > 0 {
			cfg.Render.Command = cmd
		}
	}
	if viper.IsSet("render.timeout") {
		cfg.Render.Timeout = viper.GetDuration("render.timeout")
	}
	if viper.IsSet("artifacts.root") {
		cfg.Artifacts.Root = viper.GetString("artifacts.root")
	}
	if viper.IsSet("artifacts.keep") {
		cfg.Artifacts.Keep = viper.GetInt("artifacts.keep")
	}
	if viper.IsSet("session.debounce") {
		cfg.Session.Debounce = viper.GetDuration("session.debounce")
	}
	if viper.IsSet("pipeline.model") {
		cfg.Pipeline.Model = viper.GetString("pipeline.model")
	}
	if viper.IsSet("files.master_cv") {
		cfg.Files.MasterCV = viper.GetString("files.master_cv")
	}
	if viper.IsSet("files.working_cv") {
		cfg.Files.WorkingCV = viper.GetString("files.working_cv")
	}
	if viper.IsSet("files.job_ad") {
		cfg.Files.JobAd = viper.GetString("files.job_ad")
	}
	if viper.IsSet("log.level") {
		cfg.Log.Level = viper.GetString("log.level")
	}
	if viper.IsSet("log.format") {
		cfg.Log.Format = viper.GetString("log.format")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if len(c.Render.Command) == 0 {
		return fmt.Errorf("render.command must not be empty")
	}
	if c.Render.Timeout <= 0 {
		return fmt.Errorf("render.timeout must be positive, got %s", c.Render.Timeout)
	}
	if c.Render.Timeout > time.Minute {
		return fmt.Errorf("render.timeout %s exceeds the one minute bound", c.Render.Timeout)
	}
	if c.Artifacts.Keep < 1 {
		return fmt.Errorf("artifacts.keep must be at least 1, got %d", c.Artifacts.Keep)
	}
	if c.Artifacts.Root == "" {
		return fmt.Errorf("artifacts.root must not be empty")
	}
	if c.Session.Debounce <= 0 {
		return fmt.Errorf("session.debounce must be positive, got %s", c.Session.Debounce)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
