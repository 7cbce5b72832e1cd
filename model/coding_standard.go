package model

// CodingStandard is an organization level configuration of enabled tools and patterns
type CodingStandard struct {
	ID                   int64        `json:"id"`
	Name                 string       `json:"name"`
	IsDefault            bool         `json:"isDefault"`
	IsDraft              bool         `json:"isDraft"`
	EnabledToolsCount    int          `json:"enabledToolsCount"`
	EnabledPatternsCount int          `json:"enabledPatternsCount"`
	Repositories         []Repository `json:"repositories"`
}

// Repository is referenced by zero or more coding standards, none of them owns it
type Repository struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Provider     string `json:"provider"`
}

// RepositoryMetrics holds the last analysis results of a repository.
// When Analyzed is false the repository has no analysis yet and every other field is nil.
type RepositoryMetrics struct {
	Analyzed              bool     `json:"analyzed"`
	GradeLetter           *string  `json:"gradeLetter,omitempty"`
	GradePercentage       *float64 `json:"gradePercentage,omitempty"`
	IssuesCount           *int     `json:"issuesCount,omitempty"`
	LinesOfCode           *int     `json:"linesOfCode,omitempty"`
	CoveragePercentage    *float64 `json:"coveragePercentage,omitempty"` // can be nil even for analysed repositories
	ComplexFilesCount     *int     `json:"complexFilesCount,omitempty"`
	DuplicationPercentage *float64 `json:"duplicationPercentage,omitempty"`
}

// NoAnalysis is the valid "no data" state of a repository
func NoAnalysis() RepositoryMetrics {
	return RepositoryMetrics{Analyzed: false}
}

// IssueCounts is the issue breakdown by severity level
type IssueCounts struct {
	Total   int `json:"total"`
	Error   int `json:"error"`
	Warning int `json:"warning"`
	Info    int `json:"info"`
}
