package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Transcription TranscriptionConfig `toml:"transcription"`
	LLM           LLMConfig           `toml:"llm"`
	Paths         PathsConfig         `toml:"paths"`
	Media         MediaConfig         `toml:"media"`
	Downloader    DownloaderConfig    `toml:"downloader"`
	Pipeline      PipelineConfig      `toml:"pipeline"`
	Database      DatabaseConfig      `toml:"database"`
	Log           LogConfig           `toml:"log"`
}

// ServerConfig contains HTTP and WebSocket server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// TranscriptionConfig selects the whisper.cpp binary and model.
type TranscriptionConfig struct {
	WhisperModel string `toml:"whisper_model"`
	WhisperPath  string `toml:"whisper_path"`
	ModelDir     string `toml:"model_dir"`
	Language     string `toml:"language"`
}

// LLMConfig selects the text generation provider.
//
// The API key is never stored in the file; APIKeyEnv names the environment variable holding it.
type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	BaseURL   string `toml:"base_url"`
	APIKeyEnv string `toml:"api_key_env"`
}

// PathsConfig contains working and output directories.
type PathsConfig struct {
	TempFolder   string `toml:"temp_folder"`
	OutputFolder string `toml:"output_folder"`
}

// MediaConfig contains audio tooling settings.
type MediaConfig struct {
	FFmpegPath string `toml:"ffmpeg_path"`
}

// DownloaderConfig contains yt-dlp settings.
type DownloaderConfig struct {
	Format       string  `toml:"format"`
	MergeFormat  string  `toml:"merge_format"`
	ProgressRate float64 `toml:"progress_rate"` // max download progress messages per second
}

// PipelineConfig contains pacing for client-visible transitions.
type PipelineConfig struct {
	InitDelay     time.Duration `toml:"init_delay"`
	PhaseDelay    time.Duration `toml:"phase_delay"`
	FinalDelay    time.Duration `toml:"final_delay"`
	TeardownDelay time.Duration `toml:"teardown_delay"`
	PollInterval  time.Duration `toml:"poll_interval"`
	PollStep      int           `toml:"poll_step"`
	TokenBatch    int           `toml:"token_batch"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// APIKey reads the provider key from the configured environment variable,
// falling back to <PROVIDER>_API_KEY.
func (l LLMConfig) APIKey() string {
	env := l.APIKeyEnv
	if env == "" {
		env = strings.ToUpper(l.Provider) + "_API_KEY"
	}
	return os.Getenv(env)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadConfigOrDefault loads path when it exists and otherwise returns [DefaultConfig].
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks values the server cannot run without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Paths.TempFolder == "" {
		return fmt.Errorf("%w: paths.temp_folder is required", ErrInvalidConfig)
	}
	if c.LLM.Provider == "" || c.LLM.Model == "" {
		return fmt.Errorf("%w: llm.provider and llm.model are required", ErrInvalidConfig)
	}
	if c.Pipeline.TokenBatch <= 0 {
		return fmt.Errorf("%w: pipeline.token_batch must be positive", ErrInvalidConfig)
	}
	if c.Pipeline.PollStep <= 0 {
		return fmt.Errorf("%w: pipeline.poll_step must be positive", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
