package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cpmappstudio/cpca-teachers/internal/dto"
	appErrors "github.com/cpmappstudio/cpca-teachers/pkg/errors"
	"github.com/cpmappstudio/cpca-teachers/pkg/export"
)

// ExportFormat enumerates report encodings.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ParseExportFormat normalises a query value, defaulting to CSV.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatPDF:
		return ExportFormatPDF, nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
}

type assignmentProgressSource interface {
	AssignmentLessonProgress(ctx context.Context, assignmentID string) (*dto.AssignmentLessonProgressResponse, bool, error)
}

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Enabled bool
	MaxRows int
}

// ExportFile is a rendered report ready to be served.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders assignment progress reports.
type ExportService struct {
	progress assignmentProgressSource
	csv      tableRenderer
	pdf      tableRenderer
	cfg      ExportConfig
	logger   *zap.Logger
	now      func() time.Time
}

var exportColumns = []string{"Quarter", "Order", "Lesson", "Grade", "Group", "Status", "Evidence", "Completed At", "Verified"}

// exportColumnWeights sizes PDF columns relative to exportColumns.
var exportColumnWeights = []float64{1, 1, 4, 1, 1, 1.5, 1, 2, 1}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// default exporters.
func NewExportService(progress assignmentProgressSource, cfg ExportConfig, logger *zap.Logger, csv, pdf tableRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter(exportColumnWeights...)
	}
	return &ExportService{progress: progress, csv: csv, pdf: pdf, cfg: cfg, logger: logger, now: time.Now}
}

// ExportAssignmentProgress renders the lesson progress of one assignment.
func (s *ExportService) ExportAssignmentProgress(ctx context.Context, assignmentID string, format ExportFormat) (*ExportFile, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled")
	}
	view, _, err := s.progress.AssignmentLessonProgress(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	table := progressTable(view)
	if len(table.Rows) > s.cfg.MaxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("export exceeds %d rows", s.cfg.MaxRows))
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case ExportFormatPDF:
		data, err = s.pdf.Render(table)
		contentType = "application/pdf"
	default:
		format = ExportFormatCSV
		data, err = s.csv.Render(table)
		contentType = "text/csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("assignment-%s-progress-%s.%s", assignmentID, s.now().UTC().Format("20060102"), format)
	s.logger.Info("assignment progress exported",
		zap.String("assignment_id", assignmentID),
		zap.String("format", string(format)),
		zap.Int("rows", len(table.Rows)),
	)
	return &ExportFile{Filename: filename, ContentType: contentType, Data: data}, nil
}

func progressTable(view *dto.AssignmentLessonProgressResponse) export.Table {
	table := export.Table{
		Title:   fmt.Sprintf("Assignment %s - %s%%", view.AssignmentID, formatPercent(view.ProgressPercentage)),
		Columns: exportColumns,
	}
	for _, lesson := range view.Lessons {
		for _, unit := range lesson.ProgressByGrade {
			completed := ""
			if unit.CompletedAt != nil {
				completed = unit.CompletedAt.UTC().Format(time.RFC3339)
			}
			table.Rows = append(table.Rows, []string{
				strconv.Itoa(lesson.Quarter),
				strconv.Itoa(lesson.Order),
				lesson.Title,
				unit.GradeCode,
				unit.GroupCode,
				unit.Status,
				strconv.FormatBool(unit.HasEvidence),
				completed,
				strconv.FormatBool(unit.IsVerified),
			})
		}
	}
	return table
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
