//go:build sqlite_fts5

package index

import (
	"strings"
	"testing"
	"time"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM blocks_fts`).Scan(&count); err != nil {
		t.Fatalf("blocks_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	row := DocumentRow{Key: docKey, Checksum: "f1", UpdatedAt: time.Now()}
	blocks := []BlockRow{{NodeID: "n1", BlockType: "NOTES", Label: "Notes", Body: "The canvas provides powerful full-text search capabilities."}}
	if err := db.UpsertDocument(row, blocks); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].NodeID != "n1" {
		t.Errorf("node = %q", results[0].NodeID)
	}
	// FTS5 snippet should contain bold markers.
	if !strings.Contains(results[0].Snippet, "<b>powerful</b>") {
		t.Errorf("snippet = %q", results[0].Snippet)
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocumentRow{Key: docKey, Checksum: "g", UpdatedAt: time.Now()},
		[]BlockRow{{NodeID: "gone", BlockType: "NOTES", Body: "vanishing content"}})
	_ = db.DeleteDocument(docKey)

	var count int
	_ = db.conn.QueryRow(`SELECT count(*) FROM blocks_fts`).Scan(&count)
	if count != 0 {
		t.Errorf("deleted document still has %d FTS rows", count)
	}
}
