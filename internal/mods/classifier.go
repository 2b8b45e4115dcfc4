package mods

import (
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"strings"

	"github.com/vd17tools/harvester/internal/fetch"
	"github.com/vd17tools/harvester/internal/oai"
	"github.com/vd17tools/harvester/internal/vocab"
)

const modsNamespace = "http://www.loc.gov/mods/v3"

// SingleSheetPrintCode is the vocabulary code for "Einblattdruck". A record
// is never solely categorized as a single-sheet print unless no other
// category applies.
const SingleSheetPrintCode = 53

// Decision is the classifier's verdict for one record: zero or one genre
// code, plus the descriptive fields extracted along the way. Title, creator
// and date are returned even without a code match so the rejection log can
// name the record.
type Decision struct {
	Codes   []int
	Title   string
	Creator string
	Date    string
}

// Matched reports whether the classifier resolved a genre code.
func (d Decision) Matched() bool {
	return len(d.Codes) > 0
}

// recordMetadata is the raw material extracted from one METS/MODS document.
type recordMetadata struct {
	title   string
	creator string
	date    string
	genres  []string
}

// Classifier resolves records to genre codes from their METS/MODS documents.
type Classifier struct {
	Fetcher *fetch.Client
	BaseURL string
	Vocab   *vocab.Index
}

// Classify fetches the record's descriptive metadata and resolves its genre
// terms against the vocabulary. Fetch and parse failures degrade to an empty
// Decision; they never abort the run.
func (c *Classifier) Classify(ctx context.Context, ppn string) Decision {
	url := oai.MetadataURL(c.BaseURL, ppn)

	resp, err := c.Fetcher.Get(ctx, url)
	if err != nil {
		slog.Warn("Could not load METS/MODS", "ppn", ppn, "error", err)
		return Decision{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		slog.Warn("Could not load METS/MODS", "ppn", ppn, "status", resp.StatusCode)
		return Decision{}
	}

	meta, err := parseMODS(resp.Body)
	if err != nil {
		slog.Warn("Could not parse METS/MODS", "ppn", ppn, "error", err)
		return Decision{}
	}

	return c.resolve(meta)
}

// resolve applies the matching rules to already-extracted metadata: exact
// vocabulary hits first, substring containment as fallback, the single-sheet
// print exclusion, then the highest remaining code as the sole decision.
func (c *Classifier) resolve(meta recordMetadata) Decision {
	dec := Decision{
		Title:   meta.title,
		Creator: meta.creator,
		Date:    meta.date,
	}

	var matched []int
	for _, raw := range meta.genres {
		matched = append(matched, c.Vocab.Match(raw)...)
	}

	matched = dropSingleSheetPrint(matched)
	if len(matched) == 0 {
		return dec
	}

	highest := matched[0]
	for _, code := range matched[1:] {
		if code > highest {
			highest = code
		}
	}
	dec.Codes = []int{highest}

	return dec
}

// dropSingleSheetPrint removes one occurrence of the single-sheet print code
// when at least one other code is present.
func dropSingleSheetPrint(codes []int) []int {
	if len(codes) < 2 {
		return codes
	}
	for i, code := range codes {
		if code == SingleSheetPrintCode {
			return append(codes[:i], codes[i+1:]...)
		}
	}
	return codes
}

// parseMODS walks the METS/MODS token stream, taking the first title,
// namePart and dateIssued and every genre term in document order.
func parseMODS(r io.Reader) (recordMetadata, error) {
	var meta recordMetadata

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return meta, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Space != modsNamespace {
			continue
		}

		switch start.Name.Local {
		case "title":
			text, err := elementText(dec, &start)
			if err != nil {
				return meta, err
			}
			if meta.title == "" {
				meta.title = text
			}
		case "namePart":
			text, err := elementText(dec, &start)
			if err != nil {
				return meta, err
			}
			if meta.creator == "" {
				meta.creator = text
			}
		case "dateIssued":
			text, err := elementText(dec, &start)
			if err != nil {
				return meta, err
			}
			if meta.date == "" {
				meta.date = text
			}
		case "genre":
			text, err := elementText(dec, &start)
			if err != nil {
				return meta, err
			}
			meta.genres = append(meta.genres, text)
		}
	}

	return meta, nil
}

func elementText(dec *xml.Decoder, start *xml.StartElement) (string, error) {
	var node struct {
		Text string `xml:",chardata"`
	}
	if err := dec.DecodeElement(&node, start); err != nil {
		return "", err
	}
	return strings.TrimSpace(node.Text), nil
}
