package selection

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/vd17tools/harvester/internal/mods"
)

// yearPattern matches the first plausible 17th/18th-century year embedded in
// a raw dateIssued string such as "Leipzig, 1687".
var yearPattern = regexp.MustCompile(`(16\d{2}|17\d{2})`)

// Quotas tracks how many records each genre code has contributed, plus the
// global accepted count. Counters only ever grow, and only via Record.
type Quotas struct {
	perGenre map[int]int
	accepted int
}

func NewQuotas() *Quotas {
	return &Quotas{perGenre: make(map[int]int)}
}

// Count reports how many records have been accepted for one genre code.
func (q *Quotas) Count(code int) int {
	return q.perGenre[code]
}

// Accepted reports the global accepted count.
func (q *Quotas) Accepted() int {
	return q.accepted
}

// Record credits one accepted record to a genre code. The pipeline calls this
// only after the record's text was retrieved and found non-empty, so a quota
// slot is never spent on a record that fails extraction.
func (q *Quotas) Record(code int) {
	q.perGenre[code]++
	q.accepted++
}

// Filter decides whether a classified record enters the dataset.
type Filter struct {
	MinYear     int
	MaxYear     int
	MaxPerGenre int
}

// Check applies the rejection rules in order: missing genre decision,
// publication year outside the window (or unparseable), then the per-genre
// quota. Acceptance is provisional; the caller increments the quotas once the
// record's text is secured.
func (f Filter) Check(dec mods.Decision, q *Quotas) (bool, string) {
	if !dec.Matched() {
		return false, "no valid genre term found"
	}

	year, ok := Year(dec.Date)
	if !ok || year < f.MinYear || year > f.MaxYear {
		return false, fmt.Sprintf("publication year out of range: %q", dec.Date)
	}

	code := dec.Codes[0]
	if q.Count(code) >= f.MaxPerGenre {
		return false, fmt.Sprintf("genre quota reached for code %d", code)
	}

	return true, ""
}

// Year extracts the first 16xx/17xx year from a raw date string.
func Year(date string) (int, bool) {
	match := yearPattern.FindString(date)
	if match == "" {
		return 0, false
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return year, true
}
