package ocr

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vd17tools/harvester/internal/fetch"
	"github.com/vd17tools/harvester/internal/oai"
)

// Assembler downloads a record's OCR archive, extracts it, and concatenates
// the text layer of every page into one document. Page files are ALTO XML;
// the recognized words live in CONTENT attributes.
type Assembler struct {
	Fetcher  *fetch.Client
	BaseURL  string
	ZipDir   string
	UnzipDir string
	TextDir  string
}

// Materialize produces the full text for one record. The assembled text is
// also persisted under TextDir keyed by the accession key. An empty result
// with a nil error means the archive held no text; the caller treats that as
// a rejection.
func (a *Assembler) Materialize(ctx context.Context, ppn string) (string, error) {
	zipPath, err := a.download(ctx, ppn)
	if err != nil {
		return "", err
	}

	unzipDir, err := a.extract(ppn, zipPath)
	if err != nil {
		return "", err
	}

	text, err := a.assemble(unzipDir)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	textPath := filepath.Join(a.TextDir, "PPN"+ppn+".txt")
	if err := os.WriteFile(textPath, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}
	slog.Debug("Saved OCR text", "ppn", ppn, "path", textPath, "chars", len(text))

	return text, nil
}

// download streams the OCR zip to disk. Transport failures are retried by the
// fetcher; a wrong status or content type is a hard failure for the record
// and is not retried.
func (a *Assembler) download(ctx context.Context, ppn string) (string, error) {
	url := oai.ArchiveURL(a.BaseURL, ppn)

	resp, err := a.Fetcher.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to download OCR archive: %w", err)
	}
	defer resp.Body.Close()

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if resp.StatusCode != 200 || !strings.Contains(contentType, "zip") {
		return "", fmt.Errorf("no valid OCR archive for PPN%s (status %d, content type %q)",
			ppn, resp.StatusCode, contentType)
	}

	zipPath := filepath.Join(a.ZipDir, ppn+".ocr.zip")
	out, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(zipPath)
		return "", fmt.Errorf("failed to save archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive file: %w", err)
	}

	slog.Debug("Saved OCR archive", "ppn", ppn, "path", zipPath)
	return zipPath, nil
}

// extract unpacks the archive fully into a per-record directory.
func (a *Assembler) extract(ppn, zipPath string) (string, error) {
	target := filepath.Join(a.UnzipDir, "PPN"+ppn)
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}

	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if err := extractEntry(entry, target); err != nil {
			return "", fmt.Errorf("failed to extract %s: %w", entry.Name, err)
		}
	}

	return target, nil
}

func extractEntry(entry *zip.File, target string) error {
	dest := filepath.Join(target, entry.Name)

	// Reject entries that would escape the target directory.
	if rel, err := filepath.Rel(target, dest); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("illegal entry path %q", entry.Name)
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	in, err := entry.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// assemble joins the page texts with newlines, in filename-sorted page order.
// Sorting is the only mechanism establishing page order. A page that fails to
// parse contributes an empty string instead of aborting the record.
func (a *Assembler) assemble(unzipDir string) (string, error) {
	entries, err := os.ReadDir(unzipDir)
	if err != nil {
		return "", fmt.Errorf("failed to list extracted pages: %w", err)
	}

	var pages []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xml") {
			continue
		}
		path := filepath.Join(unzipDir, entry.Name())
		text, err := pageText(path)
		if err != nil {
			slog.Warn("Could not parse page file", "path", path, "error", err)
			text = ""
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, "\n"), nil
}

// pageText collects every CONTENT attribute in one ALTO page file, joined
// with single spaces.
func pageText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	var words []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "CONTENT" {
				words = append(words, attr.Value)
			}
		}
	}

	return strings.Join(words, " "), nil
}
