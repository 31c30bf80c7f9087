// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fulltext downloads and extracts the complete text of included
// records. Implements: prd014-fulltext (R1-R4);
//
//	docs/ARCHITECTURE § Full-Text Resolver.
package fulltext

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/review-engine/internal/httputil"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Status classifies one full-text fetch outcome.
type Status string

const (
	StatusFetched          Status = "fetched"
	StatusNotFound         Status = "notfound"
	StatusExtractionFailed Status = "extraction_failed"
)

// Result is the outcome of resolving one record.
type Result struct {
	Status Status
	Text   string
	Path   string // downloaded artifact, empty unless a download succeeded
	Reason string // populated for non-Fetched outcomes
}

// Extractor turns a downloaded artifact into plain text. The hint is the
// lowercased file extension without the dot ("pdf", "xml", ...).
type Extractor interface {
	Extract(ctx context.Context, path, hint string) (string, error)
}

// unpaywallAPIBase is the Unpaywall DOI lookup endpoint. Declared as a
// var so tests can substitute an httptest server.
var unpaywallAPIBase = "https://api.unpaywall.org/v2"

// Resolver fetches full texts. Download failures and extraction failures
// are per-record outcomes, never errors that abort a batch.
type Resolver struct {
	Client    *http.Client
	Extractor Extractor
	Cfg       types.FullTextConfig
	Log       zerolog.Logger
}

// Fetch resolves one record: pick a URL (download_url, else Unpaywall by
// DOI), download with bounded retries, and extract text. Only a Fetched
// result should advance the record's stage; the caller keeps the record
// where it is otherwise.
func (r *Resolver) Fetch(ctx context.Context, rec types.Record) Result {
	target := rec.DownloadURL
	if target == "" && rec.DOI != "" && r.Cfg.UseUnpaywall {
		oa, err := r.resolveUnpaywall(ctx, rec.DOI)
		if err != nil {
			r.Log.Debug().Str("doi", rec.DOI).Err(err).Msg("Unpaywall lookup failed")
		}
		target = oa
	}
	if target == "" {
		return Result{Status: StatusNotFound, Reason: "no download URL and DOI lookup yielded nothing"}
	}

	destPath := filepath.Join(r.Cfg.OutputDir, slug(rec.Fingerprint)+urlExt(target))
	if err := os.MkdirAll(r.Cfg.OutputDir, 0o755); err != nil {
		return Result{Status: StatusNotFound, Reason: fmt.Sprintf("creating output directory: %v", err)}
	}

	if _, err := os.Stat(destPath); err != nil {
		if err := r.download(ctx, target, destPath); err != nil {
			return Result{Status: StatusNotFound, Reason: fmt.Sprintf("download failed: %v", err)}
		}
	}

	hint := strings.TrimPrefix(filepath.Ext(destPath), ".")
	text, err := r.extract(ctx, destPath, hint)
	if err != nil {
		return Result{
			Status: StatusExtractionFailed,
			Path:   destPath,
			Reason: fmt.Sprintf("extraction failed: %v", err),
		}
	}
	return Result{Status: StatusFetched, Text: text, Path: destPath}
}

// extract routes by format: XML and HTML are flattened in process, other
// formats go through the configured Extractor.
func (r *Resolver) extract(ctx context.Context, path, hint string) (string, error) {
	switch hint {
	case "xml", "html", "htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return StripMarkup(string(data)), nil
	default:
		if r.Extractor == nil {
			return "", fmt.Errorf("no extractor configured for %q files", hint)
		}
		return r.Extractor.Extract(ctx, path, hint)
	}
}

// download fetches url to destPath via a temporary file, retrying a
// bounded number of times.
func (r *Resolver) download(ctx context.Context, target, destPath string) error {
	maxRetries := r.Cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = r.downloadOnce(ctx, target, destPath); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxRetries+1, lastErr)
}

func (r *Resolver) downloadOnce(ctx context.Context, target, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", r.Cfg.UserAgent)

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, target)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".fulltext-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// resolveUnpaywall asks Unpaywall for an open-access location of a DOI.
func (r *Resolver) resolveUnpaywall(ctx context.Context, doi string) (string, error) {
	u := fmt.Sprintf("%s/%s?email=%s", unpaywallAPIBase, url.PathEscape(doi), url.QueryEscape(r.Cfg.Email))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", r.Cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, r.Client, req, 0)
	if err != nil {
		return "", fmt.Errorf("Unpaywall request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Unpaywall returned HTTP %d", resp.StatusCode)
	}

	var ur unpaywallResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return "", fmt.Errorf("parsing Unpaywall response: %w", err)
	}
	if ur.BestOALocation.URLForPDF != "" {
		return ur.BestOALocation.URLForPDF, nil
	}
	return ur.BestOALocation.URL, nil
}

// Unpaywall API JSON structures.
type unpaywallResponse struct {
	BestOALocation unpaywallLocation `json:"best_oa_location"`
}

type unpaywallLocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
}

// urlExt guesses the artifact extension from the URL path. Anything
// unrecognized is treated as PDF, the dominant format.
func urlExt(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ".pdf"
	}
	switch strings.ToLower(filepath.Ext(u.Path)) {
	case ".xml":
		return ".xml"
	case ".html", ".htm":
		return ".html"
	default:
		return ".pdf"
	}
}

// slug converts a fingerprint into a safe file name.
func slug(fingerprint string) string {
	var b strings.Builder
	for _, c := range fingerprint {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-':
			b.WriteRune(c)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
