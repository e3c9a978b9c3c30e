package domain

import (
	"strings"
	"time"
)

// DefaultNoReplyMarkers are the substrings that identify synthetic
// addresses assigned to privacy-electing accounts.
var DefaultNoReplyMarkers = []string{"noreply"}

// ContactRecord holds the deduplicated identifiers attributed to one
// Entity. It is built once by the entity expander and not modified after.
type ContactRecord struct {
	// RunID identifies the crawl run that produced the record.
	RunID string `json:"run_id"`
	// EntityID is the entity's login.
	EntityID string `json:"entity_id"`
	// Region is the location filter of the partition.
	Region string `json:"region"`
	// Partition is the partition ID the entity was found under.
	Partition string `json:"partition"`
	// ProfileURL is the sub-resource listing URL or profile URL.
	ProfileURL string `json:"profile_url,omitempty"`
	// Identifiers are the extracted addresses in order of first discovery.
	Identifiers []string `json:"identifiers"`
	// Origins are the sub-resources that contributed at least one identifier.
	Origins []SubResource `json:"origins"`
	// Failures counts sub-resource requests that failed during expansion.
	Failures int `json:"failures,omitempty"`
	// DiscoveredAt is when the record was built.
	DiscoveredAt time.Time `json:"discovered_at"`
}

// IdentifierSet accumulates identifiers with exact-match deduplication,
// preserving the order of first discovery.
type IdentifierSet struct {
	markers []string
	seen    map[string]struct{}
	values  []string
}

// NewIdentifierSet creates a set that rejects values containing any of the
// given no-reply markers. Markers match case-insensitively.
func NewIdentifierSet(markers []string) *IdentifierSet {
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			lowered = append(lowered, m)
		}
	}
	return &IdentifierSet{
		markers: lowered,
		seen:    make(map[string]struct{}),
	}
}

// Accepts reports whether v is a usable identifier: non-empty and not
// matching a no-reply marker.
func (s *IdentifierSet) Accepts(v string) bool {
	if strings.TrimSpace(v) == "" {
		return false
	}
	return !IsNoReply(v, s.markers)
}

// Add inserts v if it is accepted and not already present. It returns
// true if v was accepted, whether or not it was new.
func (s *IdentifierSet) Add(v string) bool {
	if !s.Accepts(v) {
		return false
	}
	if _, ok := s.seen[v]; !ok {
		s.seen[v] = struct{}{}
		s.values = append(s.values, v)
	}
	return true
}

// Values returns the identifiers in order of first discovery.
func (s *IdentifierSet) Values() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Len returns the number of distinct identifiers.
func (s *IdentifierSet) Len() int {
	return len(s.values)
}

// IsNoReply reports whether v contains one of the markers. Markers are
// expected in lower case.
func IsNoReply(v string, markers []string) bool {
	lv := strings.ToLower(v)
	for _, m := range markers {
		if strings.Contains(lv, m) {
			return true
		}
	}
	return false
}

// RecordFailure describes one record a sink could not store.
type RecordFailure struct {
	EntityID  string
	Partition string
	Reason    string
}

// SaveResult is the outcome of a best-effort batch insert.
type SaveResult struct {
	Saved  int
	Failed []RecordFailure
}
