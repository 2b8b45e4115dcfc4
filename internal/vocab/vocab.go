package vocab

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Index maps normalized genre terms to their integer codes. It is built once
// at startup and read-only afterwards.
type Index struct {
	codes map[string]int
	keys  []string // sorted, for deterministic substring matching
}

// Load reads a vocabulary file: one entry per line, a numeric code followed by
// the term (the term may contain spaces). Lines that do not split into a
// numeric code and a term are skipped silently.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary file: %w", err)
	}
	defer f.Close()

	ix := &Index{codes: make(map[string]int)}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		i := strings.IndexFunc(line, unicode.IsSpace)
		if i < 0 {
			continue
		}
		code, err := strconv.Atoi(line[:i])
		if err != nil {
			continue
		}
		term := Normalize(line[i:])
		if term == "" {
			continue
		}
		if _, seen := ix.codes[term]; !seen {
			ix.keys = append(ix.keys, term)
		}
		ix.codes[term] = code
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}

	sort.Strings(ix.keys)
	slog.Info("Loaded genre vocabulary", "path", path, "terms", len(ix.keys))

	return ix, nil
}

// Normalize trims whitespace, strips a leading "= " marker and lower-cases a
// vocabulary or metadata genre term.
func Normalize(term string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(term), "= "))
}

// Len reports the number of distinct terms in the index.
func (ix *Index) Len() int {
	return len(ix.keys)
}

// Lookup returns the code for an exactly matching normalized term.
func (ix *Index) Lookup(term string) (int, bool) {
	code, ok := ix.codes[Normalize(term)]
	return code, ok
}

// Match resolves one raw genre term to vocabulary codes. An exact match wins;
// otherwise every vocabulary term contained in the normalized input
// contributes its code. Short vocabulary terms can over-match inside longer
// unrelated terms; the caller's highest-code tie-break compensates.
func (ix *Index) Match(raw string) []int {
	term := strings.ToLower(strings.TrimSpace(raw))
	if term == "" {
		return nil
	}
	if code, ok := ix.codes[term]; ok {
		return []int{code}
	}
	var codes []int
	for _, key := range ix.keys {
		if strings.Contains(term, key) {
			codes = append(codes, ix.codes[key])
		}
	}
	return codes
}
