package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/eduforge/assessment-engine/internal/models"
	"gorm.io/datatypes"
)

func sessionDataFor(t *testing.T, settings models.TemplateSettings) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(settings)
	if err != nil {
		t.Fatalf("failed to marshal settings: %v", err)
	}
	return datatypes.JSON(raw)
}

func TestComputeDeadline(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("practice has no wall-clock deadline", func(t *testing.T) {
		template := &models.AssessmentTemplate{Kind: models.KindPractice, TimeLimit: 30}
		if d := computeDeadline(template, start); d != nil {
			t.Errorf("expected nil deadline, got %v", d)
		}
	})

	t.Run("exam deadline is start plus limit", func(t *testing.T) {
		template := &models.AssessmentTemplate{Kind: models.KindExam, TimeLimit: 90}
		d := computeDeadline(template, start)
		if d == nil {
			t.Fatal("expected a deadline")
		}
		want := start.Add(90 * time.Minute)
		if !d.Equal(want) {
			t.Errorf("got %v, want %v", d, want)
		}
	})

	t.Run("window end clamps the deadline", func(t *testing.T) {
		windowEnd := start.Add(45 * time.Minute)
		template := &models.AssessmentTemplate{
			Kind:      models.KindExam,
			TimeLimit: 90,
			EndTime:   &windowEnd,
		}
		d := computeDeadline(template, start)
		if d == nil {
			t.Fatal("expected a deadline")
		}
		if !d.Equal(windowEnd) {
			t.Errorf("got %v, want window end %v", d, windowEnd)
		}
	})

	t.Run("no limit falls back to window end", func(t *testing.T) {
		windowEnd := start.Add(2 * time.Hour)
		template := &models.AssessmentTemplate{Kind: models.KindExam, EndTime: &windowEnd}
		d := computeDeadline(template, start)
		if d == nil || !d.Equal(windowEnd) {
			t.Errorf("got %v, want %v", d, windowEnd)
		}
	})
}

func TestIsExpired(t *testing.T) {
	svc := &attemptService{}
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("exam expires after deadline", func(t *testing.T) {
		deadline := start.Add(60 * time.Minute)
		attempt := &models.Attempt{
			Kind:      models.KindExam,
			Status:    models.AttemptInProgress,
			StartedAt: start,
			Deadline:  &deadline,
		}
		if svc.isExpired(attempt, deadline) {
			t.Error("the deadline moment itself is still valid")
		}
		if !svc.isExpired(attempt, deadline.Add(time.Second)) {
			t.Error("past the deadline the attempt must be expired")
		}
	})

	t.Run("practice limit runs on active time only", func(t *testing.T) {
		attempt := &models.Attempt{
			Kind:               models.KindPractice,
			Status:             models.AttemptInProgress,
			StartedAt:          start,
			TotalPausedSeconds: 600,
			SessionData:        sessionDataFor(t, models.TemplateSettings{TimeLimit: 30}),
		}

		// 30 wall-clock minutes but 10 of those were paused.
		if svc.isExpired(attempt, start.Add(30*time.Minute)) {
			t.Error("paused time must not count against the limit")
		}
		// 40 wall-clock minutes minus 10 paused = 30 active minutes.
		if !svc.isExpired(attempt, start.Add(40*time.Minute)) {
			t.Error("attempt past its active-time limit must be expired")
		}
	})

	t.Run("practice without limit never expires", func(t *testing.T) {
		attempt := &models.Attempt{
			Kind:        models.KindPractice,
			Status:      models.AttemptInProgress,
			StartedAt:   start,
			SessionData: sessionDataFor(t, models.TemplateSettings{TimeLimit: 0}),
		}
		if svc.isExpired(attempt, start.Add(100*time.Hour)) {
			t.Error("no time limit means no expiry")
		}
	})

	t.Run("terminal attempts never expire", func(t *testing.T) {
		deadline := start.Add(time.Minute)
		attempt := &models.Attempt{
			Kind:      models.KindExam,
			Status:    models.AttemptSubmitted,
			StartedAt: start,
			Deadline:  &deadline,
		}
		if svc.isExpired(attempt, deadline.Add(time.Hour)) {
			t.Error("submitted attempts are outside expiry checks")
		}
	})
}

func TestTimeRemaining(t *testing.T) {
	svc := &attemptService{}
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("exam counts down to the deadline", func(t *testing.T) {
		deadline := start.Add(time.Hour)
		attempt := &models.Attempt{
			Kind:      models.KindExam,
			Status:    models.AttemptInProgress,
			StartedAt: start,
			Deadline:  &deadline,
		}
		remaining := svc.timeRemaining(attempt, start.Add(45*time.Minute))
		if remaining == nil || *remaining != 900 {
			t.Errorf("got %v, want 900", remaining)
		}
	})

	t.Run("remaining never goes negative", func(t *testing.T) {
		deadline := start.Add(time.Minute)
		attempt := &models.Attempt{
			Kind:      models.KindExam,
			Status:    models.AttemptInProgress,
			StartedAt: start,
			Deadline:  &deadline,
		}
		remaining := svc.timeRemaining(attempt, start.Add(time.Hour))
		if remaining == nil || *remaining != 0 {
			t.Errorf("got %v, want 0", remaining)
		}
	})

	t.Run("paused practice clock stands still", func(t *testing.T) {
		pausedAt := start.Add(10 * time.Minute)
		attempt := &models.Attempt{
			Kind:        models.KindPractice,
			Status:      models.AttemptPaused,
			StartedAt:   start,
			PausedAt:    &pausedAt,
			SessionData: sessionDataFor(t, models.TemplateSettings{TimeLimit: 30}),
		}
		remaining := svc.timeRemaining(attempt, start.Add(5*time.Hour))
		if remaining == nil || *remaining != 20*60 {
			t.Errorf("got %v, want %d", remaining, 20*60)
		}
	})

	t.Run("unlimited practice has no countdown", func(t *testing.T) {
		attempt := &models.Attempt{
			Kind:        models.KindPractice,
			Status:      models.AttemptInProgress,
			StartedAt:   start,
			SessionData: sessionDataFor(t, models.TemplateSettings{}),
		}
		if remaining := svc.timeRemaining(attempt, start.Add(time.Hour)); remaining != nil {
			t.Errorf("got %v, want nil", remaining)
		}
	})
}

func TestBuildQuestionOrder(t *testing.T) {
	template := &models.AssessmentTemplate{
		Questions: []models.TemplateQuestion{
			{QuestionID: 11, Order: 1},
			{QuestionID: 12, Order: 2},
			{QuestionID: 13, Order: 3},
			{QuestionID: 14, Order: 4},
		},
	}

	t.Run("unshuffled keeps template order", func(t *testing.T) {
		raw, err := buildQuestionOrder(template)
		if err != nil {
			t.Fatalf("buildQuestionOrder: %v", err)
		}
		var ids []uint
		if err := json.Unmarshal(raw, &ids); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		want := []uint{11, 12, 13, 14}
		for i, id := range want {
			if ids[i] != id {
				t.Fatalf("got %v, want %v", ids, want)
			}
		}
	})

	t.Run("shuffled is a permutation", func(t *testing.T) {
		shuffled := *template
		shuffled.ShuffleQuestions = true
		raw, err := buildQuestionOrder(&shuffled)
		if err != nil {
			t.Fatalf("buildQuestionOrder: %v", err)
		}
		var ids []uint
		if err := json.Unmarshal(raw, &ids); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(ids) != 4 {
			t.Fatalf("got %d ids, want 4", len(ids))
		}
		seen := make(map[uint]bool)
		for _, id := range ids {
			seen[id] = true
		}
		for _, id := range []uint{11, 12, 13, 14} {
			if !seen[id] {
				t.Errorf("question %d missing from shuffled order %v", id, ids)
			}
		}
	})
}

func TestSessionSettingsRoundTrip(t *testing.T) {
	settings := models.TemplateSettings{
		TimeLimit:        45,
		TotalPoints:      100,
		PassingScore:     60,
		ShuffleQuestions: true,
		ShowResults:      true,
	}
	raw, err := encodeSessionData(settings)
	if err != nil {
		t.Fatalf("encodeSessionData: %v", err)
	}

	attempt := &models.Attempt{SessionData: raw}
	got := sessionSettings(attempt)
	if got != settings {
		t.Errorf("got %+v, want %+v", got, settings)
	}
}
