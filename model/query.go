package model

import (
	"fmt"
	"strings"

	"github.com/codacy-acme/gl-repo-reporter/config"
)

// ReportQuery selects what a report run covers
type ReportQuery struct {
	Organization string `form:"organization"`
	Provider     string `form:"provider"`
	Format       string `form:"format"` // json | csv, only used by the HTTP surface
}

// IssueFilters restricts the issues counted by the issue breakdown
type IssueFilters struct {
	Levels       []string `json:"levels,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	AuthorEmails []string `json:"authorEmails,omitempty"`
	BranchName   string   `json:"branchName,omitempty"`
}

// Normalize applies defaults and checks the query
func (q ReportQuery) Normalize(defaultProvider string) (ReportQuery, error) {
	q.Organization = strings.TrimSpace(q.Organization)
	q.Provider = strings.ToLower(strings.TrimSpace(q.Provider))
	q.Format = strings.ToLower(strings.TrimSpace(q.Format))

	if q.Provider == "" {
		q.Provider = defaultProvider
	}

	if q.Format == "" {
		q.Format = "json"
	}

	if q.Organization == "" {
		return q, fmt.Errorf("%w: organization is required", ErrInvalidQuery)
	}

	if !config.IsSupportedProvider(q.Provider) {
		return q, fmt.Errorf("%w: unsupported provider %q", ErrInvalidQuery, q.Provider)
	}

	if q.Format != "json" && q.Format != "csv" {
		return q, fmt.Errorf("%w: unsupported format %q", ErrInvalidQuery, q.Format)
	}

	return q, nil
}

// SplitList turns a comma separated flag value into trimmed, non empty items
func SplitList(value string) []string {
	var items []string

	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
