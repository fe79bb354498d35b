package validator

import (
	"testing"
	"time"

	"github.com/eduforge/assessment-engine/internal/models"
)

func TestValidateStatusTransition(t *testing.T) {
	bv := NewBusinessValidator()

	tests := []struct {
		name          string
		kind          models.TemplateKind
		current       models.TemplateStatus
		next          models.TemplateStatus
		questionCount int
		wantValid     bool
	}{
		{"draft to published", models.KindPractice, models.TemplateDraft, models.TemplatePublished, 3, true},
		{"draft to archived", models.KindPractice, models.TemplateDraft, models.TemplateArchived, 0, true},
		{"published to archived", models.KindPractice, models.TemplatePublished, models.TemplateArchived, 3, true},
		{"published back to draft", models.KindPractice, models.TemplatePublished, models.TemplateDraft, 3, false},
		{"archived is terminal", models.KindPractice, models.TemplateArchived, models.TemplatePublished, 3, false},
		{"publishing needs questions", models.KindPractice, models.TemplateDraft, models.TemplatePublished, 0, false},
		{"practice cannot enter in_progress", models.KindPractice, models.TemplatePublished, models.TemplateInProgress, 3, false},
		{"exam published to in_progress", models.KindExam, models.TemplatePublished, models.TemplateInProgress, 3, true},
		{"exam in_progress to ended", models.KindExam, models.TemplateInProgress, models.TemplateEnded, 3, true},
		{"exam ended to graded", models.KindExam, models.TemplateEnded, models.TemplateGraded, 3, true},
		{"exam graded is terminal", models.KindExam, models.TemplateGraded, models.TemplateArchived, 3, false},
		{"exam cannot skip to ended", models.KindExam, models.TemplatePublished, models.TemplateEnded, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := bv.ValidateStatusTransition(tt.kind, tt.current, tt.next, tt.questionCount)
			if tt.wantValid && len(errs) > 0 {
				t.Errorf("expected valid transition, got %v", errs)
			}
			if !tt.wantValid && len(errs) == 0 {
				t.Error("expected transition to be rejected")
			}
		})
	}
}

func TestValidateAttemptStart(t *testing.T) {
	bv := NewBusinessValidator()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	t.Run("published practice is open", func(t *testing.T) {
		template := &models.AssessmentTemplate{
			Kind:   models.KindPractice,
			Status: models.TemplatePublished,
		}
		if errs := bv.ValidateAttemptStart(template, 0, now); len(errs) > 0 {
			t.Errorf("expected no errors, got %v", errs)
		}
	})

	t.Run("draft template is closed", func(t *testing.T) {
		template := &models.AssessmentTemplate{
			Kind:   models.KindPractice,
			Status: models.TemplateDraft,
		}
		if errs := bv.ValidateAttemptStart(template, 0, now); len(errs) == 0 {
			t.Error("expected a template_status error")
		}
	})

	t.Run("exam outside window is rejected", func(t *testing.T) {
		start := now.Add(time.Hour)
		end := now.Add(2 * time.Hour)
		template := &models.AssessmentTemplate{
			Kind:      models.KindExam,
			Status:    models.TemplatePublished,
			StartTime: &start,
			EndTime:   &end,
		}
		if errs := bv.ValidateAttemptStart(template, 0, now); len(errs) == 0 {
			t.Error("expected a window error before start_time")
		}
	})

	t.Run("exam inside window passes", func(t *testing.T) {
		start := now.Add(-time.Hour)
		end := now.Add(time.Hour)
		template := &models.AssessmentTemplate{
			Kind:      models.KindExam,
			Status:    models.TemplatePublished,
			StartTime: &start,
			EndTime:   &end,
		}
		if errs := bv.ValidateAttemptStart(template, 0, now); len(errs) > 0 {
			t.Errorf("expected no errors, got %v", errs)
		}
	})

	t.Run("attempt cap enforced", func(t *testing.T) {
		template := &models.AssessmentTemplate{
			Kind:        models.KindPractice,
			Status:      models.TemplatePublished,
			MaxAttempts: 3,
		}
		if errs := bv.ValidateAttemptStart(template, 3, now); len(errs) == 0 {
			t.Error("expected max attempts error")
		}
		if errs := bv.ValidateAttemptStart(template, 2, now); len(errs) > 0 {
			t.Errorf("expected attempt below cap to pass, got %v", errs)
		}
	})

	t.Run("zero max attempts means unlimited", func(t *testing.T) {
		template := &models.AssessmentTemplate{
			Kind:   models.KindPractice,
			Status: models.TemplatePublished,
		}
		if errs := bv.ValidateAttemptStart(template, 500, now); len(errs) > 0 {
			t.Errorf("expected unlimited attempts, got %v", errs)
		}
	})
}

func TestValidateManualScore(t *testing.T) {
	bv := NewBusinessValidator()

	if errs := bv.ValidateManualScore(7.5, 10); len(errs) > 0 {
		t.Errorf("score within bounds rejected: %v", errs)
	}
	if errs := bv.ValidateManualScore(0, 10); len(errs) > 0 {
		t.Errorf("zero score rejected: %v", errs)
	}
	if errs := bv.ValidateManualScore(10, 10); len(errs) > 0 {
		t.Errorf("max score rejected: %v", errs)
	}
	if errs := bv.ValidateManualScore(-1, 10); len(errs) == 0 {
		t.Error("negative score accepted")
	}
	if errs := bv.ValidateManualScore(10.5, 10); len(errs) == 0 {
		t.Error("score over max accepted")
	}
}

func TestValidateTemplateCreateWindow(t *testing.T) {
	bv := NewBusinessValidator()
	start := time.Now().Add(24 * time.Hour)
	end := start.Add(2 * time.Hour)

	t.Run("exam requires a window", func(t *testing.T) {
		req := &TemplateCreateRequest{
			Title:       "Midterm",
			Kind:        models.KindExam,
			MaxAttempts: 1,
			Questions: []TemplateQuestionRequest{
				{QuestionID: 1, Order: 1, Points: 10},
			},
		}
		errs := bv.ValidateTemplateCreate(req)
		found := false
		for _, e := range errs {
			if e.Field == "window" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected window error, got %v", errs)
		}
	})

	t.Run("end must follow start", func(t *testing.T) {
		req := &TemplateCreateRequest{
			Title:       "Midterm",
			Kind:        models.KindExam,
			MaxAttempts: 1,
			StartTime:   &end,
			EndTime:     &start,
			Questions: []TemplateQuestionRequest{
				{QuestionID: 1, Order: 1, Points: 10},
			},
		}
		errs := bv.ValidateTemplateCreate(req)
		found := false
		for _, e := range errs {
			if e.Field == "end_time" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected end_time error, got %v", errs)
		}
	})

	t.Run("duplicate orders rejected", func(t *testing.T) {
		req := &TemplateCreateRequest{
			Title:       "Quiz",
			Kind:        models.KindPractice,
			MaxAttempts: 3,
			Questions: []TemplateQuestionRequest{
				{QuestionID: 1, Order: 1, Points: 10},
				{QuestionID: 2, Order: 1, Points: 10},
			},
		}
		if errs := bv.ValidateTemplateCreate(req); len(errs) == 0 {
			t.Error("expected duplicate order error")
		}
	})

	t.Run("duplicate questions rejected", func(t *testing.T) {
		req := &TemplateCreateRequest{
			Title:       "Quiz",
			Kind:        models.KindPractice,
			MaxAttempts: 3,
			Questions: []TemplateQuestionRequest{
				{QuestionID: 1, Order: 1, Points: 10},
				{QuestionID: 1, Order: 2, Points: 10},
			},
		}
		if errs := bv.ValidateTemplateCreate(req); len(errs) == 0 {
			t.Error("expected duplicate question error")
		}
	})
}

func TestValidateTemplateUpdateFrozenFields(t *testing.T) {
	bv := NewBusinessValidator()

	published := &models.AssessmentTemplate{
		Kind:         models.KindPractice,
		Status:       models.TemplatePublished,
		PassingScore: 60,
		TimeLimit:    30,
	}

	t.Run("passing score frozen after publish", func(t *testing.T) {
		score := 70.0
		req := &TemplateUpdateRequest{PassingScore: &score}
		if errs := bv.ValidateTemplateUpdate(req, published); len(errs) == 0 {
			t.Error("expected passing_score change to be rejected")
		}
	})

	t.Run("unchanged value passes", func(t *testing.T) {
		score := 60.0
		req := &TemplateUpdateRequest{PassingScore: &score}
		if errs := bv.ValidateTemplateUpdate(req, published); len(errs) > 0 {
			t.Errorf("expected no errors, got %v", errs)
		}
	})

	t.Run("draft stays editable", func(t *testing.T) {
		draft := &models.AssessmentTemplate{
			Kind:         models.KindPractice,
			Status:       models.TemplateDraft,
			PassingScore: 60,
			TimeLimit:    30,
		}
		score := 80.0
		limit := 45
		req := &TemplateUpdateRequest{PassingScore: &score, TimeLimit: &limit}
		if errs := bv.ValidateTemplateUpdate(req, draft); len(errs) > 0 {
			t.Errorf("expected no errors, got %v", errs)
		}
	})
}
