package github

import (
	"strings"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
)

// SearchQuery builds the user search query for a partition, e.g.
//
//	location:Morocco created:2019-01-01..2019-12-31 followers:10..50
//
// Regions containing whitespace are quoted. An open follower bucket adds
// no followers qualifier.
func SearchQuery(p domain.PartitionKey) string {
	parts := make([]string, 0, 3)

	region := strings.TrimSpace(p.Region)
	if region != "" {
		if strings.ContainsAny(region, " \t") {
			region = `"` + strings.ReplaceAll(region, `"`, "") + `"`
		}
		parts = append(parts, "location:"+region)
	}

	if !p.Window.Start.IsZero() {
		parts = append(parts, "created:"+p.Window.String())
	}

	if !p.Followers.IsOpen() {
		parts = append(parts, "followers:"+p.Followers.String())
	}

	return strings.Join(parts, " ")
}
