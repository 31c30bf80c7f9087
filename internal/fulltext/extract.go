// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// pdftotextBin is the poppler pdftotext binary. Var so tests can point it
// at a stub script.
var pdftotextBin = "pdftotext"

// PDFExtractor shells out to pdftotext for PDF artifacts.
type PDFExtractor struct{}

// Extract runs pdftotext and returns the plain text.
func (PDFExtractor) Extract(ctx context.Context, path, hint string) (string, error) {
	if hint != "pdf" {
		return "", fmt.Errorf("unsupported format %q", hint)
	}

	cmd := exec.CommandContext(ctx, pdftotextBin, "-layout", path, "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", fmt.Errorf("pdftotext produced no text")
	}
	return text, nil
}

var (
	markupTags   = regexp.MustCompile(`<[^>]*>`)
	markupBlocks = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
)

// StripMarkup flattens XML or HTML to whitespace-normalized plain text.
func StripMarkup(s string) string {
	s = markupBlocks.ReplaceAllString(s, " ")
	s = markupTags.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
