// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pdiddy/review-engine/pkg/types"
)

func persistedStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.AddOrMerge(types.RawRecord{
		Title:   "Deep Learning for Retinal Imaging",
		Authors: []string{"Ada Lovelace", "Grace Hopper"},
		Date:    time.Date(2023, 4, 2, 0, 0, 0, 0, time.UTC),
		DOI:     "10.1000/retina.2023",
		Source:  "crossref",
	})
	s.AddOrMerge(types.RawRecord{
		Title:    "Survey of Vision Transformers",
		Abstract: "A survey.",
		Source:   "arxiv",
	})
	fp := s.All()[0].Fingerprint
	if err := s.Advance(fp, types.StagePreFiltered, "keywords matched"); err != nil {
		t.Fatal(err)
	}
	if err := s.Advance(fp, types.StageTriaged, "model: relevant"); err != nil {
		t.Fatal(err)
	}
	return s
}

// --- SQLite round trip ---

func TestSQLiteSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "run.db")

	s := persistedStore(t)

	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	if err := db.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = OpenDB(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer db.Close()
	loaded, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if diff := cmp.Diff(s.All(), loaded.All()); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestSQLiteSaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "run.db")

	s := persistedStore(t)
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()

	if err := db.Save(ctx, s); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	// Advance a record and save again; the row must be updated, not duplicated.
	fp := s.All()[0].Fingerprint
	if err := s.Advance(fp, types.StageFullTextFetched, ""); err != nil {
		t.Fatal(err)
	}
	if err := db.Save(ctx, s); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	loaded, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != s.Len() {
		t.Fatalf("Len = %d after resave, want %d", loaded.Len(), s.Len())
	}
	got, ok := loaded.Get(fp)
	if !ok {
		t.Fatal("advanced record missing after reload")
	}
	if got.Stage != types.StageFullTextFetched {
		t.Errorf("Stage = %s, want fulltext", got.Stage)
	}
}

// --- CSV round trip ---

func TestCSVRoundTrip(t *testing.T) {
	s := persistedStore(t)

	var buf bytes.Buffer
	if err := s.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	loaded, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if diff := cmp.Diff(s.All(), loaded.All()); diff != "" {
		t.Errorf("round trip mismatch (-written +read):\n%s", diff)
	}
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("fingerprint,title\nabc,Paper\n"))
	if err == nil || !strings.Contains(err.Error(), "missing column") {
		t.Errorf("err = %v, want missing column error", err)
	}
}
