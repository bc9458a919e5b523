package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	Size              int    `yaml:"size"`
	Overlap           int    `yaml:"overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorizerConfig configures the hashing vectorizer.
type VectorizerConfig struct {
	Dimension int `yaml:"dimension"`
}

// LLMConfig selects and configures the completion collaborator.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	DBPath       string `yaml:"db_path"`
	UploadDir    string `yaml:"upload_dir"`
	SnapshotPath string `yaml:"snapshot_path"`
}

// RetrievalConfig configures the question answering step.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// SummarizerConfig configures the upload summary.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// LogConfig configures diagnostics.
type LogConfig struct {
	Verbose bool `yaml:"verbose"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Vectorizer VectorizerConfig `yaml:"vectorizer"`
	LLM        LLMConfig        `yaml:"llm"`
	Storage    StorageConfig    `yaml:"storage"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Log        LogConfig        `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	// Overlap 0 is a valid setting, so its default is seeded before decoding.
	cfg := AppConfig{Chunker: ChunkerConfig{Overlap: defaultOverlap}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rentbot/config.yaml.
// If neither exists, it writes defaults to ~/.config/rentbot/config.yaml and returns them.
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
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rentbot", "config.yaml"), nil
}

const defaultOverlap = 100

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Chunker:    ChunkerConfig{Type: "window", Overlap: defaultOverlap},
		LLM:        LLMConfig{Provider: "openai"},
		Storage:    StorageConfig{DataDir: "data"},
		Summarizer: SummarizerConfig{MaxSentences: 3},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "window"
	}
	switch cfg.Chunker.Type {
	case "window":
		if cfg.Chunker.Size == 0 {
			cfg.Chunker.Size = 800
		}
	case "sentence":
		if cfg.Chunker.SentencesPerChunk == 0 {
			cfg.Chunker.SentencesPerChunk = 5
		}
	}
	if cfg.Vectorizer.Dimension == 0 {
		cfg.Vectorizer.Dimension = 1024
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Provider == "openai" {
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gpt-4o-mini"
		}
		if cfg.LLM.TimeoutSecs == 0 {
			cfg.LLM.TimeoutSecs = 60
		}
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = filepath.Join(cfg.Storage.DataDir, "rentbot.db")
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = filepath.Join(cfg.Storage.DataDir, "house_kb")
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = filepath.Join(cfg.Storage.DataDir, "personal.gob")
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
}
