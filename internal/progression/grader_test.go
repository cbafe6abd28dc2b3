package progression_test

import (
	"testing"

	"elsa-progression-service/internal/progression"
)

func TestGradeHalfCorrect(t *testing.T) {
	g := progression.NewGrader(nil)

	res := g.Grade(map[string]string{"q1": "A", "q2": "B"}, map[string]string{"q1": "A", "q2": "C"})
	if res.ScorePercentage != 50 || res.CorrectCount != 1 || res.TotalCount != 2 {
		t.Fatalf("expected 50%% with 1/2, got %+v", res)
	}
	if len(res.PerQuestion) != 2 || !res.PerQuestion[0].IsCorrect || res.PerQuestion[1].IsCorrect {
		t.Fatalf("unexpected per-question detail %+v", res.PerQuestion)
	}
}

func TestGradeDropsUnknownQuestions(t *testing.T) {
	g := progression.NewGrader(nil)

	res := g.Grade(map[string]string{"q1": "A", "bogus": "Z"}, map[string]string{"q1": "A", "q2": "B", "q3": "C"})
	if res.TotalCount != 1 || res.CorrectCount != 1 || res.ScorePercentage != 100 {
		t.Fatalf("expected only q1 graded, got %+v", res)
	}
	if len(res.DroppedQuestionIDs) != 1 || res.DroppedQuestionIDs[0] != "bogus" {
		t.Fatalf("expected bogus dropped, got %v", res.DroppedQuestionIDs)
	}
}

func TestGradeNoGradableQuestions(t *testing.T) {
	g := progression.NewGrader(nil)

	res := g.Grade(map[string]string{"x": "A"}, map[string]string{"q1": "A"})
	if !res.NoGradableQuestions || res.ScorePercentage != 0 || res.TotalCount != 0 {
		t.Fatalf("expected no gradable questions, got %+v", res)
	}

	res = g.Grade(map[string]string{}, map[string]string{"q1": "A"})
	if !res.NoGradableQuestions {
		t.Fatalf("expected empty submission to be ungradable")
	}
}
