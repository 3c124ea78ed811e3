package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/aigrader/aigrader/internal/repository"
)

// Service is a tiny façade over the submission repository that produces XLSX
// gradebook bytes for download.
type Service struct {
	subs   repository.SubmissionRepository
	logger *slog.Logger
}

func NewService(subs repository.SubmissionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{subs: subs, logger: logger}
}

// GradebookXLSX returns an XLSX workbook (as bytes) with one row per
// submission of the assignment: student, grade, feedback, graded timestamp.
func (s *Service) GradebookXLSX(ctx context.Context, assignmentID uuid.UUID) ([]byte, error) {
	start := time.Now()

	subs, err := s.subs.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Gradebook"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{"Student", "Grade", "Feedback", "Graded At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, sub := range subs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, sub.StudentName)
		if sub.Grade != nil {
			write(2, *sub.Grade)
		} else {
			write(2, "Not graded")
		}
		if sub.Feedback != nil {
			write(3, *sub.Feedback)
		} else {
			write(3, "")
		}
		if sub.GradedAt != nil {
			write(4, sub.GradedAt.UTC().Format("2006-01-02 15:04"))
		} else {
			write(4, "")
		}
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("gradebook exported",
		"assignment_id", assignmentID,
		"rows", len(subs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
