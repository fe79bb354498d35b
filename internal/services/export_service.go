package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduforge/assessment-engine/internal/repositories"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type exportService struct {
	db     *gorm.DB
	repo   repositories.Repository
	logger *slog.Logger

	attempts *attemptService
}

func NewExportService(db *gorm.DB, repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{
		db:     db,
		repo:   repo,
		logger: logger,
		attempts: &attemptService{
			repo:   repo,
			db:     db,
			logger: logger,
		},
	}
}

// ExportTemplateResults produces an xlsx workbook with one sheet of
// per-attempt results and one sheet of per-question accuracy.
func (s *exportService) ExportTemplateResults(ctx context.Context, templateID uint, userID string) (*ExportResult, error) {
	template, err := s.repo.Template().GetByID(ctx, nil, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if err := s.attempts.requireTemplateAccess(ctx, templateID, userID, "export"); err != nil {
		return nil, err
	}

	roster, err := s.repo.Statistics().GetAttemptRoster(ctx, nil, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt roster: %w", err)
	}

	wrongRates, err := s.repo.Statistics().GetQuestionWrongRates(ctx, nil, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get question rates: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	if err := s.writeResultsSheet(f, roster); err != nil {
		return nil, err
	}
	if err := s.writeQuestionSheet(f, wrongRates); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	s.logger.Info("Exported template results",
		"template_id", templateID,
		"rows", len(roster))

	return &ExportResult{
		FileName:    fmt.Sprintf("%s_results_%s.xlsx", sanitizeFileName(template.Title), time.Now().Format("20060102")),
		ContentType: xlsxContentType,
		Data:        buf.Bytes(),
	}, nil
}

func (s *exportService) writeResultsSheet(f *excelize.File, roster []*repositories.AttemptRosterRow) error {
	const sheet = "Results"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Attempt ID", "User ID", "Name", "Attempt #", "Status",
		"Auto Score", "Manual Score", "Total Score", "Percentage", "Passed",
		"Started At", "Finished At", "Time Spent (s)"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, r := range roster {
		finished := ""
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format(time.RFC3339)
		}
		values := []interface{}{
			r.AttemptID, r.UserID, r.UserName, r.AttemptNumber, string(r.Status),
			r.AutoScore, r.ManualScore, r.TotalScore, r.Percentage, r.Passed,
			r.StartedAt.Format(time.RFC3339), finished, r.TimeSpent,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", row+1, err)
			}
		}
	}
	return nil
}

func (s *exportService) writeQuestionSheet(f *excelize.File, rates []*repositories.QuestionWrongRate) error {
	const sheet = "Questions"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add question sheet: %w", err)
	}

	headers := []string{"Question ID", "Title", "Type", "Answers", "Wrong", "Wrong Rate (%)"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, r := range rates {
		values := []interface{}{
			r.QuestionID, r.Title, string(r.Type), r.TotalAnswers, r.WrongAnswers, r.WrongRate,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", row+1, err)
			}
		}
	}
	return nil
}

// sanitizeFileName keeps exported file names filesystem-safe.
func sanitizeFileName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_':
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "template"
	}
	return string(out)
}
