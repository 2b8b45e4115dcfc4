package dataset

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Writer owns the three output streams of a run: the labeled dataset, the
// accepted-titles log and the rejected-identifiers log. All three are opened
// once, appended to for the run's duration, and closed together.
type Writer struct {
	dataset *os.File
	titles  *os.File
	rejects *os.File
}

// Open creates the three output files, truncating any previous run.
func Open(datasetPath, titlesPath, rejectsPath string) (*Writer, error) {
	dataset, err := os.Create(datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset file: %w", err)
	}

	titles, err := os.Create(titlesPath)
	if err != nil {
		dataset.Close()
		return nil, fmt.Errorf("failed to create title log: %w", err)
	}

	rejects, err := os.Create(rejectsPath)
	if err != nil {
		dataset.Close()
		titles.Close()
		return nil, fmt.Errorf("failed to create rejection log: %w", err)
	}

	return &Writer{dataset: dataset, titles: titles, rejects: rejects}, nil
}

// WriteRow appends one dataset row: sanitized full text and the
// semicolon-joined genre codes. Every field is quoted, since the free text
// contains the field delimiter; sanitization has already removed the quote
// character itself, so each row occupies exactly one line.
func (w *Writer) WriteRow(text string, codes []int) error {
	_, err := fmt.Fprintf(w.dataset, "\"%s\",\"%s\"\n", Sanitize(text), JoinCodes(codes))
	if err != nil {
		return fmt.Errorf("failed to write dataset row: %w", err)
	}
	return nil
}

// WriteTitle appends one accepted record to the title log.
func (w *Writer) WriteTitle(ppn string, codes []int, title, creator, date string) error {
	_, err := fmt.Fprintf(w.titles, "PPN%s | [%s] | %s | %s | %s\n",
		ppn, JoinCodes(codes), title, creator, date)
	if err != nil {
		return fmt.Errorf("failed to write title log: %w", err)
	}
	return nil
}

// WriteRejection appends one rejected candidate with its reason.
func (w *Writer) WriteRejection(ppn, reason string) error {
	_, err := fmt.Fprintf(w.rejects, "%s | %s\n", ppn, reason)
	if err != nil {
		return fmt.Errorf("failed to write rejection log: %w", err)
	}
	return nil
}

// Close closes all three streams, reporting the first failure.
func (w *Writer) Close() error {
	var firstErr error
	for _, f := range []*os.File{w.dataset, w.titles, w.rejects} {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Sanitize makes free OCR text safe for a one-line quoted CSV field: double
// quotes become a visually distinct guillemet, newlines collapse to spaces,
// carriage returns are removed.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, `"`, "»")
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", "")
	return strings.TrimSpace(text)
}

// JoinCodes renders a code list as a semicolon-joined string.
func JoinCodes(codes []int) string {
	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = strconv.Itoa(code)
	}
	return strings.Join(parts, ";")
}
