// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Normalize lowercases s, strips everything but letters, digits, and
// spaces, and collapses whitespace runs. Title and author normalization
// before fingerprinting is the single most important correctness property
// of the pipeline: a missed duplicate double-processes a record, an
// over-merge silently drops a distinct work.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Fingerprint derives the canonical dedup key for a raw record: the bare
// DOI when present, otherwise the first 16 hex characters of
// SHA-256(normalized title | normalized first author | year).
func Fingerprint(raw types.RawRecord) string {
	if doi := normalizeDOI(raw.DOI); doi != "" {
		return "doi:" + doi
	}
	return "rec:" + contentKey(raw)
}

// contentKey is the content-derived half of the dual dedup index. It is
// computed for every record, DOI or not, so that the same work reported
// with and without a DOI still merges.
func contentKey(raw types.RawRecord) string {
	firstAuthor := ""
	if len(raw.Authors) > 0 {
		firstAuthor = raw.Authors[0]
	}
	year := ""
	if !raw.Date.IsZero() {
		year = fmt.Sprintf("%d", raw.Date.Year())
	}

	h := sha256.New()
	h.Write([]byte(Normalize(raw.Title)))
	h.Write([]byte{'|'})
	h.Write([]byte(Normalize(firstAuthor)))
	h.Write([]byte{'|'})
	h.Write([]byte(year))
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// normalizeDOI trims a DOI and strips resolver prefixes so that
// "https://doi.org/10.1/x" and "10.1/x" key identically.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(doi)
}
