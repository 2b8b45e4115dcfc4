package oai

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/vd17tools/harvester/internal/fetch"
)

// listIdentifiersResponse maps the parts of an OAI-PMH ListIdentifiers
// response this harvester cares about: identifiers and the resumption token.
type listIdentifiersResponse struct {
	XMLName xml.Name `xml:"OAI-PMH"`
	List    struct {
		Headers []struct {
			Identifier string `xml:"identifier"`
		} `xml:"header"`
		ResumptionToken string `xml:"resumptionToken"`
	} `xml:"ListIdentifiers"`
}

// Harvester pages through an OAI-PMH repository's identifier listing.
type Harvester struct {
	Fetcher        *fetch.Client
	BaseURL        string
	Set            string
	MetadataPrefix string
}

// ListIdentifiers accumulates every identifier in the target set, in
// repository order. The first request carries verb, metadataPrefix and set;
// follow-ups carry only the verb and the resumption token. Paging stops when
// a fetch fails, a response is non-200, or the token is absent or empty. An
// empty page that still carries a token keeps the loop going, but a server
// re-issuing the identical token stops it.
func (h *Harvester) ListIdentifiers(ctx context.Context) ([]string, error) {
	var identifiers []string

	params := url.Values{
		"verb":           {"ListIdentifiers"},
		"metadataPrefix": {h.MetadataPrefix},
		"set":            {h.Set},
	}
	lastToken := ""

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return identifiers, err
		}

		reqURL := strings.TrimRight(h.BaseURL, "?") + "?" + params.Encode()
		resp, err := h.Fetcher.Get(ctx, reqURL)
		if err != nil {
			slog.Warn("Identifier listing stopped on fetch failure", "page", page, "error", err)
			break
		}

		var listing listIdentifiersResponse
		decodeErr := xml.NewDecoder(resp.Body).Decode(&listing)
		status := resp.StatusCode
		resp.Body.Close()

		if status != 200 {
			slog.Warn("Identifier listing stopped on unexpected status", "page", page, "status", status)
			break
		}
		if decodeErr != nil {
			slog.Warn("Identifier listing stopped on malformed response", "page", page, "error", decodeErr)
			break
		}

		for _, header := range listing.List.Headers {
			identifiers = append(identifiers, header.Identifier)
		}

		token := strings.TrimSpace(listing.List.ResumptionToken)
		if token == "" {
			break
		}
		if token == lastToken {
			slog.Warn("Identifier listing stopped on repeated resumption token", "page", page, "token", token)
			break
		}
		lastToken = token

		slog.Debug("Continuing identifier listing", "page", page, "identifiers", len(identifiers))
		params = url.Values{
			"verb":            {"ListIdentifiers"},
			"resumptionToken": {token},
		}
	}

	slog.Info("Identifier listing complete", "identifiers", len(identifiers))
	return identifiers, nil
}

// PPN derives the numeric accession key from an OAI identifier such as
// "oai:digital.staatsbibliothek-berlin.de:PPN123456789".
func PPN(identifier string) string {
	key := identifier
	if i := strings.LastIndex(identifier, ":"); i >= 0 {
		key = identifier[i+1:]
	}
	return strings.TrimPrefix(key, "PPN")
}

// MetadataURL returns the METS/MODS document URL for one accession key.
func MetadataURL(contentBaseURL, ppn string) string {
	return fmt.Sprintf("%s/dc/PPN%s.mets.xml", strings.TrimRight(contentBaseURL, "/"), ppn)
}

// ArchiveURL returns the OCR archive URL for one accession key.
func ArchiveURL(contentBaseURL, ppn string) string {
	return fmt.Sprintf("%s/dc/%s.ocr.zip", strings.TrimRight(contentBaseURL, "/"), ppn)
}
