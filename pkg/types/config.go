// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout. Timeouts are per external
	// call, never per run.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "review-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SearchConfig holds settings for the identification stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxRecords is the per-source record cap (default 50).
	MaxRecords int `json:"max_records" yaml:"max_records"`

	// Workers bounds the number of sources queried in parallel (default 3).
	Workers int `json:"workers" yaml:"workers"`

	// EnableArxiv, EnableCrossref and EnableOpenAlex control which source
	// clients are constructed.
	EnableArxiv    bool `json:"enable_arxiv" yaml:"enable_arxiv"`
	EnableCrossref bool `json:"enable_crossref" yaml:"enable_crossref"`
	EnableOpenAlex bool `json:"enable_openalex" yaml:"enable_openalex"`

	// Email is sent to Crossref and OpenAlex for polite pool access.
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
// An empty APIKey is a valid configuration value: it selects the
// deterministic fallback path rather than being an error.
type AIConfig struct {
	// Model is the AI model identifier.
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API; empty means the
	// provider is not configured.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// Configured reports whether the provider can be called at all.
func (c AIConfig) Configured() bool { return c.APIKey != "" }

// EmbeddingConfig holds settings for the optional embedding collaborator
// used by the pre-filter. Absence (empty APIKey) selects lexical-only
// verdicts.
type EmbeddingConfig struct {
	AIConfig `yaml:",inline"`
}

// TriageConfig holds settings for the LLM-assisted triage stage.
type TriageConfig struct {
	AIConfig `yaml:",inline"`

	// Workers bounds concurrent per-record triage calls (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// MaxTokens caps the provider response size (default 512).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Temperature is the sampling temperature for triage decisions.
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// FullTextConfig holds settings for full-text resolution.
type FullTextConfig struct {
	HTTPConfig `yaml:",inline"`

	// OutputDir is where downloaded PDFs and XML files are stored.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// MaxRetries bounds download attempts per record (default 2); after
	// that the record is reported NotFound, never retried indefinitely.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// UseUnpaywall enables DOI-based open-access lookup when a record has
	// no download URL.
	UseUnpaywall bool `json:"use_unpaywall" yaml:"use_unpaywall"`

	// Email is sent to the Unpaywall API.
	Email string `json:"email,omitempty" yaml:"email,omitempty"`

	// Workers bounds concurrent per-record downloads (default 4).
	Workers int `json:"workers" yaml:"workers"`
}

// CacheConfig controls the process-wide HTTP request cache shared across
// workers.
type CacheConfig struct {
	// Enabled turns transparent GET caching on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Expiry is how long a cached response may be served (default 1h).
	Expiry time.Duration `json:"expiry" yaml:"expiry"`
}

// PipelineConfig groups all stage configurations for one run. It is built
// once by the CLI from config file, environment, and secrets, then passed
// immutably into the orchestrator.
type PipelineConfig struct {
	Search    SearchConfig    `json:"search" yaml:"search"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Triage    TriageConfig    `json:"triage" yaml:"triage"`
	FullText  FullTextConfig  `json:"fulltext" yaml:"fulltext"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`

	// StatePath is the SQLite run-state database used for resuming;
	// empty disables persistence.
	StatePath string `json:"state_path,omitempty" yaml:"state_path,omitempty"`
}
