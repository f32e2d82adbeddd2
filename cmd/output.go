package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/ports"
)

var outputFormat string

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func yamlOutput() bool {
	return strings.EqualFold(strings.TrimSpace(outputFormat), "yaml")
}

func renderTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return errs.Wrap(err, "write table")
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errs.Wrap(err, "encode yaml")
	}
	if err := enc.Close(); err != nil {
		return errs.Wrap(err, "flush yaml")
	}
	return nil
}

type scanOutput struct {
	ScanID          string   `yaml:"scan_id"`
	TargetType      string   `yaml:"target_type"`
	TargetID        string   `yaml:"target_id"`
	ModelID         string   `yaml:"model_id,omitempty"`
	CreatorID       string   `yaml:"creator_id"`
	StorageKey      string   `yaml:"storage_key"`
	Status          string   `yaml:"status"`
	Priority        int      `yaml:"priority"`
	Flags           []string `yaml:"flags,omitempty"`
	Confidence      *float64 `yaml:"confidence,omitempty"`
	DetectedFaces   *int     `yaml:"detected_faces,omitempty"`
	ScanCount       int      `yaml:"scan_count"`
	ScannedBy       string   `yaml:"scanned_by,omitempty"`
	ReviewerID      string   `yaml:"reviewer_id,omitempty"`
	ReviewAction    string   `yaml:"review_action,omitempty"`
	ReviewNotes     string   `yaml:"review_notes,omitempty"`
	ErrorMessage    string   `yaml:"error_message,omitempty"`
	CreatedAt       string   `yaml:"created_at"`
	UpdatedAt       string   `yaml:"updated_at"`
	ScanCompletedAt string   `yaml:"scan_completed_at,omitempty"`
	ReviewedAt      string   `yaml:"reviewed_at,omitempty"`
}

func toScanOutput(scan ports.ScanRecord) scanOutput {
	return scanOutput{
		ScanID:          scan.ScanID,
		TargetType:      string(scan.TargetType),
		TargetID:        scan.TargetID,
		ModelID:         scan.ModelID,
		CreatorID:       scan.CreatorID,
		StorageKey:      scan.StorageKey,
		Status:          string(scan.Status),
		Priority:        scan.Priority,
		Flags:           domain.FlagStrings(scan.Flags),
		Confidence:      scan.Confidence,
		DetectedFaces:   scan.DetectedFaces,
		ScanCount:       scan.ScanCount,
		ScannedBy:       scan.ScannedBy,
		ReviewerID:      scan.ReviewerID,
		ReviewAction:    scan.ReviewAction,
		ReviewNotes:     scan.ReviewNotes,
		ErrorMessage:    scan.ErrorMessage,
		CreatedAt:       scan.CreatedAt,
		UpdatedAt:       scan.UpdatedAt,
		ScanCompletedAt: scan.ScanCompletedAt,
		ReviewedAt:      scan.ReviewedAt,
	}
}

type jobOutput struct {
	JobID        string   `yaml:"job_id"`
	JobType      string   `yaml:"job_type"`
	Status       string   `yaml:"status"`
	Priority     int      `yaml:"priority"`
	Attempts     int      `yaml:"attempts"`
	MaxAttempts  int      `yaml:"max_attempts"`
	ScanIDs      []string `yaml:"scan_ids"`
	WorkerID     string   `yaml:"worker_id,omitempty"`
	HeartbeatAt  string   `yaml:"heartbeat_at,omitempty"`
	ErrorMessage string   `yaml:"error_message,omitempty"`
	CreatedAt    string   `yaml:"created_at"`
	CompletedAt  string   `yaml:"completed_at,omitempty"`
}

func toJobOutput(job ports.JobRecord) jobOutput {
	return jobOutput{
		JobID:        job.JobID,
		JobType:      string(job.JobType),
		Status:       string(job.Status),
		Priority:     job.Priority,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		ScanIDs:      jobScans(job),
		WorkerID:     job.WorkerID,
		HeartbeatAt:  job.HeartbeatAt,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

func jobScans(job ports.JobRecord) []string {
	if len(job.ScanIDs) > 0 {
		return job.ScanIDs
	}
	if job.ScanID != "" {
		return []string{job.ScanID}
	}
	return nil
}

type anchorOutput struct {
	AnchorID     string `yaml:"anchor_id"`
	ModelID      string `yaml:"model_id"`
	StorageKey   string `yaml:"storage_key"`
	StorageURL   string `yaml:"storage_url"`
	AddedBy      string `yaml:"added_by"`
	Note         string `yaml:"note,omitempty"`
	SourceScanID string `yaml:"source_scan_id,omitempty"`
	CreatedAt    string `yaml:"created_at"`
}

func toAnchorOutput(anchor ports.AnchorRecord) anchorOutput {
	return anchorOutput{
		AnchorID:     anchor.AnchorID,
		ModelID:      anchor.ModelID,
		StorageKey:   anchor.StorageKey,
		StorageURL:   anchor.StorageURL,
		AddedBy:      anchor.AddedBy,
		Note:         anchor.Note,
		SourceScanID: anchor.SourceScanID,
		CreatedAt:    anchor.CreatedAt,
	}
}

func formatConfidence(value *float64) string {
	if value == nil {
		return "-"
	}
	return strconv.FormatFloat(*value, 'f', 2, 64)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table or yaml")
}
