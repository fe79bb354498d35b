package services

import (
	"testing"

	"github.com/eduforge/assessment-engine/internal/models"
)

func TestGradeSubmission_MultipleChoice(t *testing.T) {
	question := &models.Question{
		Type:          models.MultipleChoice,
		CorrectAnswer: "A,C",
	}

	tests := []struct {
		name    string
		content string
		correct bool
	}{
		{name: "exact match", content: "A,C", correct: true},
		{name: "order does not matter", content: "C,A", correct: true},
		{name: "case and whitespace ignored", content: " c , a ", correct: true},
		{name: "missing option", content: "A", correct: false},
		{name: "extra option", content: "A,B,C", correct: false},
		{name: "wrong options", content: "B,D", correct: false},
		{name: "empty submission", content: "", correct: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isCorrect, score, isAutoGraded := gradeSubmission(question, 10, tt.content)
			if !isAutoGraded {
				t.Fatal("multiple choice must be auto-graded")
			}
			if isCorrect == nil {
				t.Fatal("expected a verdict, got nil")
			}
			if *isCorrect != tt.correct {
				t.Errorf("content %q: got correct=%v, want %v", tt.content, *isCorrect, tt.correct)
			}
			wantScore := 0.0
			if tt.correct {
				wantScore = 10
			}
			if score != wantScore {
				t.Errorf("content %q: got score=%v, want %v", tt.content, score, wantScore)
			}
		})
	}
}

func TestGradeSubmission_TrueFalse(t *testing.T) {
	question := &models.Question{
		Type:          models.TrueFalse,
		CorrectAnswer: "True",
	}

	tests := []struct {
		name    string
		content string
		correct bool
	}{
		{name: "exact", content: "True", correct: true},
		{name: "lowercase", content: "true", correct: true},
		{name: "padded", content: "  TRUE  ", correct: true},
		{name: "wrong value", content: "false", correct: false},
		{name: "garbage", content: "yes", correct: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isCorrect, _, _ := gradeSubmission(question, 5, tt.content)
			if isCorrect == nil || *isCorrect != tt.correct {
				t.Errorf("content %q: got %v, want %v", tt.content, isCorrect, tt.correct)
			}
		})
	}
}

func TestGradeSubmission_FillBlank(t *testing.T) {
	question := &models.Question{
		Type:          models.FillBlank,
		CorrectAnswer: "cat|feline|kitty",
	}

	tests := []struct {
		name    string
		content string
		correct bool
	}{
		{name: "first accepted answer", content: "cat", correct: true},
		{name: "alternate accepted answer", content: "Feline", correct: true},
		{name: "padded alternate", content: " kitty ", correct: true},
		{name: "not in accepted set", content: "dog", correct: false},
		{name: "partial match rejected", content: "cats", correct: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isCorrect, score, _ := gradeSubmission(question, 3, tt.content)
			if isCorrect == nil || *isCorrect != tt.correct {
				t.Errorf("content %q: got %v, want %v", tt.content, isCorrect, tt.correct)
			}
			if tt.correct && score != 3 {
				t.Errorf("content %q: got score=%v, want 3", tt.content, score)
			}
		})
	}
}

func TestGradeSubmission_ManualTypes(t *testing.T) {
	for _, qType := range []models.QuestionType{models.Essay, models.Listening, models.Speaking} {
		t.Run(string(qType), func(t *testing.T) {
			question := &models.Question{Type: qType}
			isCorrect, score, isAutoGraded := gradeSubmission(question, 20, "some long answer")
			if isAutoGraded {
				t.Errorf("%s must not be auto-graded", qType)
			}
			if isCorrect != nil {
				t.Errorf("%s must stay ungraded, got verdict %v", qType, *isCorrect)
			}
			if score != 0 {
				t.Errorf("%s must carry no score before grading, got %v", qType, score)
			}
		})
	}
}

func TestRound2f(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 66.666666, want: 66.67},
		{in: 33.333333, want: 33.33},
		{in: 100, want: 100},
		{in: 0, want: 0},
	}
	for _, tt := range tests {
		if got := round2f(tt.in); got != tt.want {
			t.Errorf("round2f(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
