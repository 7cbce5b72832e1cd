package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/codacy-acme/gl-repo-reporter/model"
	log "github.com/sirupsen/logrus"
)

// TimestampLayout is the generation timestamp put in the file name
const TimestampLayout = "20060102_150405"

// Filename returns <prefix>_<timestamp>.csv
func Filename(prefix string, generatedAt time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, generatedAt.Format(TimestampLayout))
}

// WriteCSV writes the header then one record per row, in row order
func WriteCSV(w io.Writer, rows []model.ReportRow, withIssueBreakdown bool) error {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.CSVRecord(withIssueBreakdown))
	}

	return writeRecords(w, model.CSVHeader(withIssueBreakdown), records)
}

// WriteIssuesCSV writes the detailed report, one record per issue
func WriteIssuesCSV(w io.Writer, rows []model.IssueRow) error {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.CSVRecord())
	}

	return writeRecords(w, model.IssuesCSVHeader(), records)
}

func writeRecords(w io.Writer, header []string, records [][]string) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(header); err != nil {
		return err
	}

	// WriteAll flushes and returns the first write error
	return writer.WriteAll(records)
}

// WriteFile writes the report in dir and returns the created file path
func WriteFile(dir, prefix string, r model.Report, withIssueBreakdown bool) (string, error) {
	return writeFile(dir, Filename(prefix, r.GeneratedAt), func(w io.Writer) error {
		return WriteCSV(w, r.Rows, withIssueBreakdown)
	})
}

// WriteIssuesFile writes the detailed report in dir and returns the created file path
func WriteIssuesFile(dir, prefix string, r model.IssuesReport) (string, error) {
	return writeFile(dir, Filename(prefix, r.GeneratedAt), func(w io.Writer) error {
		return WriteIssuesCSV(w, r.Rows)
	})
}

// writeFile writes under a temporary name then renames, so an interrupted
// write never leaves a truncated report behind
func writeFile(dir, name string, write func(w io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("unable to create output directory: %w", err)
	}

	path := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, ".report-*.csv")
	if err != nil {
		return "", fmt.Errorf("unable to create report file: %w", err)
	}

	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("unable to write report: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("unable to write report: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("unable to write report: %w", err)
	}

	return path, nil
}

// LogSummary reports what was left out of a run, as warnings
func LogSummary(runID string, rows int, skipped []model.SkippedEntry) {
	entry := log.WithFields(log.Fields{
		"runID": runID,
		"rows":  rows,
	})

	if len(skipped) == 0 {
		entry.Info("every coding standard and repository was processed")
		return
	}

	entry.WithField("skipped", len(skipped)).Warning("some entries were skipped")

	for _, s := range skipped {
		log.WithFields(log.Fields{
			"skipLevel":  s.Level,
			"standard":   s.Standard,
			"repository": s.Repository,
			"reason":     s.Reason,
		}).Warning("skipped")
	}
}
