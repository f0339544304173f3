package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. RAG_SERVER_ADDR.
const EnvPrefix = "RAG"

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr               string   `yaml:"addr" toml:"addr" split_words:"true" validate:"required"`
	CORSOrigins        []string `yaml:"cors_origins" toml:"cors_origins" split_words:"true"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" toml:"request_timeout_secs" split_words:"true" validate:"gte=0"`
	MaxUploadBytes     int64    `yaml:"max_upload_bytes" toml:"max_upload_bytes" split_words:"true" validate:"gte=0"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" split_words:"true" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" split_words:"true" validate:"oneof=text json"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type" toml:"type" split_words:"true" validate:"oneof=window sentence"`
	Size              int    `yaml:"size" toml:"size" split_words:"true" validate:"gte=0"`
	Overlap           int    `yaml:"overlap" toml:"overlap" split_words:"true" validate:"gte=0"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk" toml:"sentences_per_chunk" split_words:"true" validate:"gte=0"`
	OverlapSentences  int    `yaml:"overlap_sentences" toml:"overlap_sentences" split_words:"true" validate:"gte=0"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url" split_words:"true" validate:"omitempty,url"`
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env" split_words:"true"`
	Model             string  `yaml:"model" toml:"model" split_words:"true"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs" split_words:"true" validate:"gte=0"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" split_words:"true" validate:"gte=0"`
	MaxRetries        int     `yaml:"max_retries" toml:"max_retries" split_words:"true" validate:"gte=0"`
}

// OllamaEmbedderConfig points at a local Ollama server.
type OllamaEmbedderConfig struct {
	Host        string `yaml:"host" toml:"host" split_words:"true" validate:"omitempty,url"`
	Model       string `yaml:"model" toml:"model" split_words:"true"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs" split_words:"true" validate:"gte=0"`
}

// HashingEmbedderConfig sizes the offline embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" toml:"dimension" split_words:"true" validate:"gte=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type" toml:"type" split_words:"true" validate:"oneof=openai ollama hashing"`
	BatchSize int                   `yaml:"batch_size" toml:"batch_size" split_words:"true" validate:"gte=0"`
	OpenAI    OpenAIEmbedderConfig  `yaml:"openai" toml:"openai" envconfig:"OPENAI"`
	Ollama    OllamaEmbedderConfig  `yaml:"ollama" toml:"ollama" envconfig:"OLLAMA"`
	Hashing   HashingEmbedderConfig `yaml:"hashing" toml:"hashing" envconfig:"HASHING"`
}

// StoreConfig selects the durable store. A blank path lives under data_dir.
type StoreConfig struct {
	Type string `yaml:"type" toml:"type" split_words:"true" validate:"oneof=memory jsonfile sqlite"`
	Path string `yaml:"path" toml:"path" split_words:"true"`
}

// QdrantConfig contains connection details for a Qdrant index mirror.
type QdrantConfig struct {
	Host       string `yaml:"host" toml:"host" split_words:"true"`
	Port       int    `yaml:"port" toml:"port" split_words:"true" validate:"gte=0,lte=65535"`
	APIKey     string `yaml:"api_key" toml:"api_key" split_words:"true"`
	Collection string `yaml:"collection" toml:"collection" split_words:"true"`
	UseTLS     bool   `yaml:"use_tls" toml:"use_tls" split_words:"true"`
}

// IndexConfig selects the optional vector index mirror.
type IndexConfig struct {
	Type   string       `yaml:"type" toml:"type" split_words:"true" validate:"oneof=none qdrant"`
	Qdrant QdrantConfig `yaml:"qdrant" toml:"qdrant" envconfig:"QDRANT"`
}

// OpenAIGeneratorConfig configures the chat-completions generator.
type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url" toml:"base_url" split_words:"true" validate:"omitempty,url"`
	APIKeyEnv   string  `yaml:"api_key_env" toml:"api_key_env" split_words:"true"`
	Model       string  `yaml:"model" toml:"model" split_words:"true"`
	Temperature float64 `yaml:"temperature" toml:"temperature" split_words:"true" validate:"gte=0,lte=2"`
	TimeoutSecs int     `yaml:"timeout_secs" toml:"timeout_secs" split_words:"true" validate:"gte=0"`
}

// GeneratorConfig selects the answer generator.
type GeneratorConfig struct {
	Type         string                `yaml:"type" toml:"type" split_words:"true" validate:"oneof=openai extractive"`
	MaxSentences int                   `yaml:"max_sentences" toml:"max_sentences" split_words:"true" validate:"gte=0"`
	OpenAI       OpenAIGeneratorConfig `yaml:"openai" toml:"openai" envconfig:"OPENAI"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	WebsitePolicy    string `yaml:"website_policy" toml:"website_policy" split_words:"true" validate:"oneof=index metadata-only"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs" toml:"fetch_timeout_secs" split_words:"true" validate:"gte=0"`
	MaxFetchBytes    int64  `yaml:"max_fetch_bytes" toml:"max_fetch_bytes" split_words:"true" validate:"gte=0"`
}

// QueryConfig tunes the query pipeline.
type QueryConfig struct {
	TopK int `yaml:"top_k" toml:"top_k" split_words:"true" validate:"gte=0"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir   string          `yaml:"data_dir" toml:"data_dir" validate:"required"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Chunker   ChunkerConfig   `yaml:"chunker" toml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder" toml:"embedder"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Index     IndexConfig     `yaml:"index" toml:"index"`
	Generator GeneratorConfig `yaml:"generator" toml:"generator"`
	Ingest    IngestConfig    `yaml:"ingest" toml:"ingest"`
	Query     QueryConfig     `yaml:"query" toml:"query"`
}

// Load reads a config from path, picking TOML for .toml files and YAML
// otherwise. A missing file yields defaults. Values from the environment
// (and a .env file in the working directory) override the file.
func Load(path string) (*AppConfig, error) {
	loadDotEnv()

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err != nil {
		if err := Save(userPath, defaultConfig()); err != nil {
			return nil, "", err
		}
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var validate = validator.New()

// Validate checks the struct tags of every group.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// UploadsDir is where uploaded binaries are kept.
func (c *AppConfig) UploadsDir() string { return filepath.Join(c.DataDir, "uploads") }

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func decode(path string, data []byte, cfg *AppConfig) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func loadDotEnv() {
	// Existing variables win over .env entries.
	_ = godotenv.Load()
}

func applyEnv(cfg *AppConfig) error {
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + "_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	groups := []struct {
		name   string
		target any
	}{
		{"SERVER", &cfg.Server},
		{"LOG", &cfg.Log},
		{"CHUNKER", &cfg.Chunker},
		{"EMBEDDER", &cfg.Embedder},
		{"STORE", &cfg.Store},
		{"INDEX", &cfg.Index},
		{"GENERATOR", &cfg.Generator},
		{"INGEST", &cfg.Ingest},
		{"QUERY", &cfg.Query},
	}
	for _, g := range groups {
		if err := envconfig.Process(EnvPrefix+"_"+g.name, g.target); err != nil {
			return fmt.Errorf("env %s_%s: %w", EnvPrefix, g.name, err)
		}
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		DataDir: "~/.local/share/rag",
		Server: ServerConfig{
			Addr:               "127.0.0.1:8080",
			CORSOrigins:        []string{"http://localhost:5173"},
			RequestTimeoutSecs: 120,
			MaxUploadBytes:     50 << 20,
		},
		Log:       LogConfig{Level: "info", Format: "text"},
		Chunker:   ChunkerConfig{Type: "window", Size: 1200, Overlap: 150, SentencesPerChunk: 5, OverlapSentences: 1},
		Embedder:  EmbedderConfig{Type: "hashing", BatchSize: 50},
		Store:     StoreConfig{Type: "sqlite"},
		Index:     IndexConfig{Type: "none"},
		Generator: GeneratorConfig{Type: "extractive", MaxSentences: 3},
		Ingest:    IngestConfig{WebsitePolicy: "index", FetchTimeoutSecs: 20, MaxFetchBytes: 5 << 20},
		Query:     QueryConfig{TopK: 8},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	cfg.DataDir = expandHome(cfg.DataDir)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "window"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "openai" {
		o := &cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 3
		}
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "sqlite"
	}
	switch {
	case cfg.Store.Path != "":
		cfg.Store.Path = expandHome(cfg.Store.Path)
	case cfg.Store.Type == "sqlite":
		cfg.Store.Path = filepath.Join(cfg.DataDir, "corpus.db")
	case cfg.Store.Type == "jsonfile":
		cfg.Store.Path = filepath.Join(cfg.DataDir, "corpus.json")
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "none"
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	if cfg.Generator.Type == "openai" {
		o := &cfg.Generator.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "gpt-4o-mini"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 60
		}
	}
	if cfg.Ingest.WebsitePolicy == "" {
		cfg.Ingest.WebsitePolicy = "index"
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
