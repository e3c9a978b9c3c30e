package domain

import "encoding/json"

// Entity is an account discovered by a search partition.
// It is read-only once created.
type Entity struct {
	// Login is the unique handle.
	Login string
	// ID is the numeric account ID assigned by the remote source.
	ID int64
	// HTMLURL is the public profile URL.
	HTMLURL string
	// Profile is the raw search-result payload for the account.
	Profile json.RawMessage
}

// SearchPage is one page of search results.
type SearchPage struct {
	Entities []Entity
	// TotalCount is the number of matches the remote source reports for
	// the whole query, which may exceed what pagination can reach.
	TotalCount int
	// Incomplete is set when the remote source timed out computing results.
	Incomplete bool
}

// SubResource is a repository-like container owned by an Entity.
type SubResource struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns "owner/name".
func (s SubResource) FullName() string {
	return s.Owner + "/" + s.Name
}

// Activity is one entry of a sub-resource's recent activity list.
type Activity struct {
	SHA         string
	AuthorName  string
	AuthorEmail string
}
