// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/review-engine/internal/fulltext"
	"github.com/pdiddy/review-engine/internal/pipeline"
	"github.com/pdiddy/review-engine/internal/prefilter"
	"github.com/pdiddy/review-engine/internal/source"
	"github.com/pdiddy/review-engine/internal/store"
	"github.com/pdiddy/review-engine/internal/triage"
	"github.com/pdiddy/review-engine/pkg/types"
)

func init() {
	viper.SetDefault("http.user_agent", "review-engine/"+version)
	viper.SetDefault("search.timeout", 30*time.Second)
	viper.SetDefault("search.max_records", 50)
	viper.SetDefault("search.workers", 3)
	viper.SetDefault("search.enable_arxiv", true)
	viper.SetDefault("search.enable_crossref", true)
	viper.SetDefault("search.enable_openalex", true)
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("triage.model", "claude-sonnet-4-20250514")
	viper.SetDefault("triage.workers", 4)
	viper.SetDefault("triage.max_tokens", 512)
	viper.SetDefault("triage.max_retries", 1)
	viper.SetDefault("fulltext.timeout", 60*time.Second)
	viper.SetDefault("fulltext.output_dir", "review/fulltext")
	viper.SetDefault("fulltext.max_retries", 2)
	viper.SetDefault("fulltext.use_unpaywall", true)
	viper.SetDefault("fulltext.workers", 4)
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.expiry", time.Hour)
}

// buildConfig assembles the pipeline configuration from the config file,
// REVIEW_ENGINE_* environment variables, and loaded secrets. Secrets fill
// only values the config left empty.
func buildConfig() types.PipelineConfig {
	userAgent := viper.GetString("http.user_agent")
	openAlexEmail := secretDefault("openalex-email", viper.GetString("search.email"))

	cfg := types.PipelineConfig{
		Search: types.SearchConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("search.timeout"),
				UserAgent: userAgent,
			},
			MaxRecords:     viper.GetInt("search.max_records"),
			Workers:        viper.GetInt("search.workers"),
			EnableArxiv:    viper.GetBool("search.enable_arxiv"),
			EnableCrossref: viper.GetBool("search.enable_crossref"),
			EnableOpenAlex: viper.GetBool("search.enable_openalex"),
			Email:          openAlexEmail,
		},
		Embedding: types.EmbeddingConfig{
			AIConfig: types.AIConfig{
				Model:  viper.GetString("embedding.model"),
				APIKey: secretDefault("openai-api-key", viper.GetString("embedding.api_key")),
			},
		},
		Triage: types.TriageConfig{
			AIConfig: types.AIConfig{
				Model:      viper.GetString("triage.model"),
				APIKey:     secretDefault("anthropic-api-key", viper.GetString("triage.api_key")),
				MaxRetries: viper.GetInt("triage.max_retries"),
			},
			Workers:     viper.GetInt("triage.workers"),
			MaxTokens:   viper.GetInt("triage.max_tokens"),
			Temperature: viper.GetFloat64("triage.temperature"),
		},
		FullText: types.FullTextConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("fulltext.timeout"),
				UserAgent: userAgent,
			},
			OutputDir:    viper.GetString("fulltext.output_dir"),
			MaxRetries:   viper.GetInt("fulltext.max_retries"),
			UseUnpaywall: viper.GetBool("fulltext.use_unpaywall"),
			Email:        secretDefault("unpaywall-email", openAlexEmail),
			Workers:      viper.GetInt("fulltext.workers"),
		},
		Cache: types.CacheConfig{
			Enabled: viper.GetBool("cache.enabled"),
			Expiry:  viper.GetDuration("cache.expiry"),
		},
	}
	cfg.StatePath, _ = rootCmd.PersistentFlags().GetString("state")
	return cfg
}

// newHTTPClient builds the shared HTTP client. When caching is enabled,
// repeated GETs within the expiry window are served from memory.
func newHTTPClient(cfg types.PipelineConfig, timeout time.Duration) *http.Client {
	client := &http.Client{Timeout: timeout}
	if cfg.Cache.Enabled {
		client.Transport = pipeline.NewCachingTransport(nil, cfg.Cache.Expiry)
	}
	return client
}

// buildSources constructs the enabled source clients in a fixed order so
// merge results are deterministic across runs.
func buildSources(cfg types.PipelineConfig, client *http.Client) []source.Source {
	var sources []source.Source
	if cfg.Search.EnableArxiv {
		sources = append(sources, &source.Arxiv{Client: client})
	}
	if cfg.Search.EnableCrossref {
		sources = append(sources, &source.Crossref{Client: client, Email: cfg.Search.Email})
	}
	if cfg.Search.EnableOpenAlex {
		sources = append(sources, &source.OpenAlex{Client: client, Email: cfg.Search.Email})
	}
	return sources
}

// buildFilter wires the pre-filter, attaching an embedder only when an
// OpenAI key is configured.
func buildFilter(cfg types.PipelineConfig, criteria types.TriageCriteria, client *http.Client) *prefilter.Filter {
	var embedder prefilter.Embedder
	if cfg.Embedding.Configured() {
		embedder = &prefilter.OpenAIEmbedder{
			Client: client,
			APIKey: cfg.Embedding.APIKey,
			Model:  cfg.Embedding.Model,
		}
	}
	f := prefilter.New(criteria, embedder)
	f.Log = logger
	return f
}

// buildDecider wires the triage decider. Without an Anthropic key the
// backend stays nil and every uncertain record takes the fallback path.
func buildDecider(cfg types.PipelineConfig, criteria types.TriageCriteria) *triage.Decider {
	var backend triage.Backend
	if cfg.Triage.Configured() {
		backend = &triage.AnthropicBackend{
			APIKey:      cfg.Triage.APIKey,
			Model:       cfg.Triage.Model,
			MaxTokens:   cfg.Triage.MaxTokens,
			Temperature: cfg.Triage.Temperature,
		}
	}
	return &triage.Decider{
		Backend:    backend,
		Criteria:   criteria,
		Log:        logger,
		MaxRetries: cfg.Triage.MaxRetries,
	}
}

// buildResolver wires the full-text resolver with the pdftotext extractor.
func buildResolver(cfg types.PipelineConfig, client *http.Client) *fulltext.Resolver {
	return &fulltext.Resolver{
		Client:    client,
		Extractor: fulltext.PDFExtractor{},
		Cfg:       cfg.FullText,
		Log:       logger,
	}
}

// loadCriteria reads and validates a triage criteria YAML file.
func loadCriteria(path string) (types.TriageCriteria, error) {
	var criteria types.TriageCriteria

	data, err := os.ReadFile(path)
	if err != nil {
		return criteria, fmt.Errorf("reading criteria file: %w", err)
	}
	if err := yaml.Unmarshal(data, &criteria); err != nil {
		return criteria, fmt.Errorf("parsing criteria file: %w", err)
	}
	if err := criteria.Validate(); err != nil {
		return criteria, err
	}
	return criteria, nil
}

// loadState opens the run-state database and loads its records. The caller
// owns closing the returned DB.
func loadState(ctx context.Context, path string) (*store.Store, *store.DB, error) {
	db, err := store.OpenDB(path)
	if err != nil {
		return nil, nil, err
	}
	s, err := db.Load(ctx)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

// saveState persists the store and closes the database.
func saveState(ctx context.Context, db *store.DB, s *store.Store) error {
	defer db.Close()
	if err := db.Save(ctx, s); err != nil {
		return fmt.Errorf("saving run state: %w", err)
	}
	return nil
}
