package service

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/codacy-acme/gl-repo-reporter/model"
)

// Endpoint is one of the known API paths, relative to the configured base URL
type Endpoint struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

func (e Endpoint) method() string {
	if e.Method == "" {
		return http.MethodGet
	}
	return e.Method
}

func organizationPath(provider, organization string) string {
	return fmt.Sprintf("/organizations/%s/%s", url.PathEscape(provider), url.PathEscape(organization))
}

// CodingStandardsEndpoint lists the coding standards of an organization
func CodingStandardsEndpoint(provider, organization string) Endpoint {
	return Endpoint{Path: organizationPath(provider, organization) + "/coding-standards"}
}

// ToolsEndpoint lists the tools of a coding standard
func ToolsEndpoint(provider, organization string, standardID int64) Endpoint {
	return Endpoint{Path: fmt.Sprintf("%s/coding-standards/%d/tools", organizationPath(provider, organization), standardID)}
}

// PatternsEndpoint lists the patterns of one tool inside a coding standard
func PatternsEndpoint(provider, organization string, standardID int64, toolUUID string) Endpoint {
	return Endpoint{Path: fmt.Sprintf("%s/coding-standards/%d/tools/%s/patterns", organizationPath(provider, organization), standardID, url.PathEscape(toolUUID))}
}

// StandardRepositoriesEndpoint lists the repositories a coding standard is applied to
func StandardRepositoriesEndpoint(provider, organization string, standardID int64) Endpoint {
	return Endpoint{Path: fmt.Sprintf("%s/coding-standards/%d/repositories", organizationPath(provider, organization), standardID)}
}

// RepositoryAnalysisEndpoint returns the last analysis metrics of a repository
func RepositoryAnalysisEndpoint(provider, organization, repository string) Endpoint {
	return Endpoint{Path: fmt.Sprintf("/analysis%s/repositories/%s", organizationPath(provider, organization), url.PathEscape(repository))}
}

// IssuesSearchEndpoint searches the issues of a repository, the body holds the filters.
// It is paginated like the listings.
func IssuesSearchEndpoint(provider, organization, repository string, filters model.IssueFilters) Endpoint {
	return Endpoint{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/analysis%s/repositories/%s/issues/search", organizationPath(provider, organization), url.PathEscape(repository)),
		Body:   filters,
	}
}
