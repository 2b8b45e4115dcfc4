package pipeline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vd17tools/harvester/internal/config"
)

func listPage(identifiers ...string) string {
	page := `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <ListIdentifiers>`
	for _, id := range identifiers {
		page += fmt.Sprintf("<header><identifier>%s</identifier></header>", id)
	}
	page += `</ListIdentifiers>
</OAI-PMH>`
	return page
}

func metsDoc(title, date string, genres ...string) string {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<mets xmlns="http://www.loc.gov/METS/" xmlns:mods="http://www.loc.gov/mods/v3">
  <mods:mods>
    <mods:titleInfo><mods:title>` + title + `</mods:title></mods:titleInfo>
    <mods:name><mods:namePart>Anonymus</mods:namePart></mods:name>
    <mods:originInfo><mods:dateIssued>` + date + `</mods:dateIssued></mods:originInfo>`
	for _, genre := range genres {
		doc += "<mods:genre>" + genre + "</mods:genre>"
	}
	doc += `
  </mods:mods>
</mets>`
	return doc
}

func ocrArchive(t *testing.T, pages map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, words := range pages {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to create zip entry: %v", err)
		}
		page := `<alto xmlns="http://www.loc.gov/standards/alto/ns-v2#"><Layout>`
		for _, word := range strings.Fields(words) {
			page += `<String CONTENT="` + word + `"/>`
		}
		page += `</Layout></alto>`
		if _, err := f.Write([]byte(page)); err != nil {
			t.Fatalf("Failed to write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func testConfig(t *testing.T, oaiURL, contentURL string) config.Config {
	t.Helper()

	vocabPath := filepath.Join(t.TempDir(), "vocab.txt")
	vocabContent := `9 Flugschrift
53 Einblattdruck
`
	if err := os.WriteFile(vocabPath, []byte(vocabContent), 0644); err != nil {
		t.Fatalf("Failed to write vocabulary: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	cfg.OAI.BaseURL = oaiURL
	cfg.Content.BaseURL = contentURL
	cfg.Vocabulary = vocabPath
	cfg.Output.Dir = filepath.Join(t.TempDir(), "out")
	cfg.Fetch.Metadata.Attempts = 1
	cfg.Fetch.Archive.Attempts = 1

	return cfg
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	content := strings.TrimRight(string(raw), "\n")
	if content == "" {
		return 0
	}
	return len(strings.Split(content, "\n"))
}

func TestRunEndToEnd(t *testing.T) {
	oaiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listPage("oai:test:PPN100", "oai:test:PPN200", "oai:test:PPN300"))
	}))
	defer oaiServer.Close()

	archive := ocrArchive(t, map[string]string{"00000001.xml": "Zeitung auss Teutschland"})

	contentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dc/PPN100.mets.xml":
			fmt.Fprint(w, metsDoc("Relation Aller Fuernemmen", "1680", "Flugschrift"))
		case "/dc/PPN200.mets.xml":
			fmt.Fprint(w, metsDoc("Ohne Gattung", "1680"))
		case "/dc/PPN300.mets.xml":
			fmt.Fprint(w, metsDoc("Zu spaet", "1710", "Flugschrift"))
		case "/dc/100.ocr.zip":
			w.Header().Set("Content-Type", "application/zip")
			w.Write(archive)
		default:
			t.Errorf("Unexpected content request %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer contentServer.Close()

	cfg := testConfig(t, oaiServer.URL, contentServer.URL)

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := p.Run(t.Context())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Identifiers != 3 {
		t.Errorf("Expected 3 identifiers, got %d", report.Identifiers)
	}
	if report.Accepted != 1 {
		t.Errorf("Expected 1 accepted record, got %d", report.Accepted)
	}
	if report.Rejected != 2 {
		t.Errorf("Expected 2 rejected records, got %d", report.Rejected)
	}

	if lines := countLines(t, cfg.Output.DatasetPath()); lines != 1 {
		t.Errorf("Expected 1 dataset row, got %d", lines)
	}
	if lines := countLines(t, cfg.Output.TitleLogPath()); lines != 1 {
		t.Errorf("Expected 1 title log line, got %d", lines)
	}
	if lines := countLines(t, cfg.Output.RejectLogPath()); lines != 2 {
		t.Errorf("Expected 2 rejection log lines, got %d", lines)
	}

	dataset, _ := os.ReadFile(cfg.Output.DatasetPath())
	expectedRow := `"Zeitung auss Teutschland","9"` + "\n"
	if string(dataset) != expectedRow {
		t.Errorf("Expected dataset row %q, got %q", expectedRow, string(dataset))
	}

	rejects, _ := os.ReadFile(cfg.Output.RejectLogPath())
	if !strings.Contains(string(rejects), "200 | no valid genre term found") {
		t.Errorf("Expected genre rejection for PPN200, got %q", string(rejects))
	}
	if !strings.Contains(string(rejects), "300 | publication year out of range") {
		t.Errorf("Expected year rejection for PPN300, got %q", string(rejects))
	}

	titles, _ := os.ReadFile(cfg.Output.TitleLogPath())
	if !strings.HasPrefix(string(titles), "PPN100 | [9] | Relation Aller Fuernemmen | Anonymus | 1680") {
		t.Errorf("Unexpected title line %q", string(titles))
	}

	// The per-record text artifact was persisted.
	if _, err := os.Stat(filepath.Join(cfg.Output.TextDir(), "PPN100.txt")); err != nil {
		t.Errorf("Expected persisted OCR text: %v", err)
	}
}

func TestRunStopsAtGlobalCap(t *testing.T) {
	oaiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listPage("oai:test:PPN1", "oai:test:PPN2"))
	}))
	defer oaiServer.Close()

	archive := ocrArchive(t, map[string]string{"00000001.xml": "Text"})

	metadataRequests := 0
	contentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".mets.xml") {
			metadataRequests++
			fmt.Fprint(w, metsDoc("Titel", "1680", "Flugschrift"))
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	}))
	defer contentServer.Close()

	cfg := testConfig(t, oaiServer.URL, contentServer.URL)
	cfg.Selection.MaxDownloads = 1

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := p.Run(t.Context())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Accepted != 1 {
		t.Errorf("Expected 1 accepted record at the cap, got %d", report.Accepted)
	}
	if metadataRequests != 1 {
		t.Errorf("Expected processing to stop before the second candidate, got %d metadata requests", metadataRequests)
	}
}

func TestRunEnforcesGenreQuota(t *testing.T) {
	oaiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listPage("oai:test:PPN1", "oai:test:PPN2", "oai:test:PPN3"))
	}))
	defer oaiServer.Close()

	archive := ocrArchive(t, map[string]string{"00000001.xml": "Text"})

	contentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".mets.xml") {
			fmt.Fprint(w, metsDoc("Titel", "1680", "Flugschrift"))
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	}))
	defer contentServer.Close()

	cfg := testConfig(t, oaiServer.URL, contentServer.URL)
	cfg.Selection.MaxPerGenre = 2

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := p.Run(t.Context())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Accepted != 2 {
		t.Errorf("Expected 2 accepted records under the genre cap, got %d", report.Accepted)
	}
	if report.Rejected != 1 {
		t.Errorf("Expected 1 quota rejection, got %d", report.Rejected)
	}

	rejects, _ := os.ReadFile(cfg.Output.RejectLogPath())
	if !strings.Contains(string(rejects), "genre quota reached for code 9") {
		t.Errorf("Expected quota rejection reason, got %q", string(rejects))
	}
}

func TestRunRejectsEmptyText(t *testing.T) {
	oaiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listPage("oai:test:PPN1"))
	}))
	defer oaiServer.Close()

	emptyArchive := ocrArchive(t, map[string]string{"00000001.xml": ""})

	contentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".mets.xml") {
			fmt.Fprint(w, metsDoc("Titel", "1680", "Flugschrift"))
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(emptyArchive)
	}))
	defer contentServer.Close()

	cfg := testConfig(t, oaiServer.URL, contentServer.URL)

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := p.Run(t.Context())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Accepted != 0 {
		t.Errorf("Expected no accepted records, got %d", report.Accepted)
	}

	rejects, _ := os.ReadFile(cfg.Output.RejectLogPath())
	if !strings.Contains(string(rejects), "1 | empty text") {
		t.Errorf("Expected empty-text rejection, got %q", string(rejects))
	}

	// No quota slot was spent on the failed record.
	dataset, _ := os.ReadFile(cfg.Output.DatasetPath())
	if len(dataset) != 0 {
		t.Errorf("Expected empty dataset, got %q", string(dataset))
	}
}
