package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/codacy-acme/gl-repo-reporter/config"
	"github.com/codacy-acme/gl-repo-reporter/model"
	"github.com/codacy-acme/gl-repo-reporter/report"
	"github.com/codacy-acme/gl-repo-reporter/service"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type reportOptions struct {
	organization          string
	token                 string
	provider              string
	baseURL               string
	outputDir             string
	issueBreakdown        bool
	includeEmptyStandards bool
	detailed              bool
	levels                string
	categories            string
	languages             string
	authors               string
	branch                string
}

func newReportCmd(cfg *config.Config) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the coding standards CSV report, or the detailed issues report",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.apply(cmd.Flags(), cfg)
			cfg.ResolveToken()

			if err := cfg.Validate(); err != nil {
				return err
			}

			return runReport(cmd, *cfg)
		},
	}

	opts.bindFlags(cmd.Flags())

	return cmd
}

func (o *reportOptions) bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.organization, "organization", "", "organization name (required)")
	flags.StringVar(&o.token, "token", "", "API token (optional if "+config.TokenEnvVar+" env var is set)")
	flags.StringVar(&o.provider, "provider", "gh", "git provider (gh, gl, bb)")
	flags.StringVar(&o.baseURL, "base-url", "", "API base URL, for self hosted installations")
	flags.StringVar(&o.outputDir, "output-dir", "", "directory where the report is written")
	flags.BoolVar(&o.issueBreakdown, "issue-breakdown", false, "add error, warning and info issue counts per repository")
	flags.BoolVar(&o.detailed, "detailed", false, "write one row per issue to a detailed issues report instead")
	flags.BoolVar(&o.includeEmptyStandards, "include-empty-standards", false, "emit a row for standards without repositories")
	flags.StringVar(&o.levels, "levels", "", "comma separated severity levels counted by the issue breakdown (Error,Warning,Info)")
	flags.StringVar(&o.categories, "categories", "", "comma separated categories counted by the issue breakdown")
	flags.StringVar(&o.languages, "languages", "", "comma separated languages counted by the issue breakdown")
	flags.StringVar(&o.authors, "authors", "", "comma separated author emails counted by the issue breakdown")
	flags.StringVar(&o.branch, "branch", "", "branch counted by the issue breakdown")
}

// apply overrides the configuration with the flags set on the command line
func (o reportOptions) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("organization") {
		cfg.Codacy.Organization = o.organization
	}
	if flags.Changed("token") {
		cfg.Codacy.Token = o.token
	}
	if flags.Changed("provider") {
		cfg.Codacy.Provider = o.provider
	}
	if flags.Changed("base-url") {
		cfg.Codacy.BaseURL = o.baseURL
	}
	if flags.Changed("output-dir") {
		cfg.Report.OutputDir = o.outputDir
	}
	if flags.Changed("issue-breakdown") {
		cfg.Report.IssueBreakdown = o.issueBreakdown
	}
	if flags.Changed("detailed") {
		cfg.Report.Detailed = o.detailed
	}
	if flags.Changed("include-empty-standards") {
		cfg.Report.IncludeEmptyStandards = o.includeEmptyStandards
	}
	if flags.Changed("levels") {
		cfg.Report.Filters.Levels = model.SplitList(o.levels)
	}
	if flags.Changed("categories") {
		cfg.Report.Filters.Categories = model.SplitList(o.categories)
	}
	if flags.Changed("languages") {
		cfg.Report.Filters.Languages = model.SplitList(o.languages)
	}
	if flags.Changed("authors") {
		cfg.Report.Filters.AuthorEmails = model.SplitList(o.authors)
	}
	if flags.Changed("branch") {
		cfg.Report.Filters.BranchName = o.branch
	}
}

func runReport(cmd *cobra.Command, cfg config.Config) error {
	// an interrupted run writes nothing
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := service.NewCodacyClient(cfg, &http.Client{}, service.NewRateLimiter(cfg.Codacy.RequestsPerSecond))
	reportService := service.NewReportService(cfg, client)

	query := model.ReportQuery{
		Organization: cfg.Codacy.Organization,
		Provider:     cfg.Codacy.Provider,
	}

	var (
		path string
		err  error
	)

	if cfg.Report.Detailed {
		path, err = writeIssuesReport(ctx, reportService, query, cfg)
	} else {
		path, err = writeStandardsReport(ctx, reportService, query, cfg)
	}

	if err != nil || path == "" {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Report generated: %s\n", path)
	return nil
}

// writeStandardsReport returns an empty path when there was nothing to write
func writeStandardsReport(ctx context.Context, reportService service.ReportService, query model.ReportQuery, cfg config.Config) (string, error) {
	result, err := reportService.BuildReport(ctx, query)
	if err != nil {
		return "", err
	}

	report.LogSummary(result.RunID, len(result.Rows), result.Skipped)

	if len(result.Rows) == 0 {
		logNoRows(query)
		return "", nil
	}

	return report.WriteFile(cfg.Report.OutputDir, cfg.Report.FilePrefix, result, cfg.Report.IssueBreakdown)
}

func writeIssuesReport(ctx context.Context, reportService service.ReportService, query model.ReportQuery, cfg config.Config) (string, error) {
	result, err := reportService.BuildIssuesReport(ctx, query)
	if err != nil {
		return "", err
	}

	report.LogSummary(result.RunID, len(result.Rows), result.Skipped)

	if len(result.Rows) == 0 {
		logNoRows(query)
		return "", nil
	}

	return report.WriteIssuesFile(cfg.Report.OutputDir, cfg.Report.IssuesFilePrefix, result)
}

func logNoRows(query model.ReportQuery) {
	log.WithField("organization", query.Organization).Info("no rows to report. no report written")
}
