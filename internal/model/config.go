package model

import "time"

// Config is the full runtime configuration. Values come from (highest
// priority first) CLI flags, LEXCHECK_* environment variables, the
// config file, then these defaults.
type Config struct {
	Workspace  string           `yaml:"workspace"` // holds the sqlite db and the disk index cache
	Matching   MatchingConfig   `yaml:"matching"`
	Batch      BatchConfig      `yaml:"batch"`
	Similarity SimilarityConfig `yaml:"similarity"`
	HTTP       HTTPConfig       `yaml:"http"`
	Server     ServerConfig     `yaml:"server"`
	Cache      CacheConfig      `yaml:"cache"`
	Log        LogConfig        `yaml:"log"`
}

// MatchingConfig holds section matching and quote comparison tunables
type MatchingConfig struct {
	// ParaphraseThreshold separates paraphrase from semantic match.
	ParaphraseThreshold float64 `yaml:"paraphrase_threshold"`
	// SemanticThreshold separates semantic match from mismatch.
	SemanticThreshold float64 `yaml:"semantic_threshold"`
	// FallbackFloor is the minimum similarity for a synthesized
	// semantic-fallback boundary; below it the section is not found.
	FallbackFloor float64 `yaml:"fallback_floor"`
	// TopK candidate segments retrieved during semantic fallback.
	TopK int `yaml:"top_k"`
	// Prefer picks among repeated boundaries for one section key:
	// "latest" (amendments win) or "first".
	Prefer string `yaml:"prefer"`
	// SectionOnlyScore is the fixed score recorded when a citation has
	// no quote and section existence alone verifies it.
	SectionOnlyScore int `yaml:"section_only_score"`
}

// BatchConfig holds batch verification tunables
type BatchConfig struct {
	GroupSize     int           `yaml:"group_size"`     // citations per checkpointed group
	GroupWorkers  int           `yaml:"group_workers"`  // concurrent comparisons within a group
	CallDelay     time.Duration `yaml:"call_delay"`     // fixed delay between comparison calls
	MaxCallRetry  int           `yaml:"max_call_retry"` // bounded retries per comparison call
	StaleAfter    time.Duration `yaml:"stale_after"`    // heartbeat age before a run counts as stalled
	SweepInterval time.Duration `yaml:"sweep_interval"` // recovery supervisor period
	MaxResumes    int           `yaml:"max_resumes"`    // re-enqueue budget before permanent failure
}

// SimilarityConfig selects and tunes the embedding provider
type SimilarityConfig struct {
	Provider          string        `yaml:"provider"` // openai, gemini, or "" (lexical only)
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key,omitempty"`
	BaseURL           string        `yaml:"base_url,omitempty"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// HTTPConfig tunes act-page fetching
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// ServerConfig tunes the REST API
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

// CacheConfig tunes the act index cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// LogConfig tunes structured logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Workspace: ".",
		Matching: MatchingConfig{
			ParaphraseThreshold: 0.85,
			SemanticThreshold:   0.50,
			FallbackFloor:       0.40,
			TopK:                5,
			Prefer:              "latest",
			SectionOnlyScore:    90,
		},
		Batch: BatchConfig{
			GroupSize:     10,
			GroupWorkers:  3,
			CallDelay:     500 * time.Millisecond,
			MaxCallRetry:  3,
			StaleAfter:    90 * time.Second,
			SweepInterval: 30 * time.Second,
			MaxResumes:    3,
		},
		Similarity: SimilarityConfig{
			Provider:          "",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 2,
			Burst:             2,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "Lexcheck/0.1 (+https://github.com/lexcheck/lexcheck)",
			MaxBodyBytes: 5 << 20,
		},
		Server: ServerConfig{
			Addr:     ":8080",
			BasePath: "/v0",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
