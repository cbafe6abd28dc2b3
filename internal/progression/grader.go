package progression

import (
	"sort"

	"elsa-progression-service/internal/domain"
	"elsa-progression-service/internal/logger"
)

// Grader scores exam submissions against an answer key.
type Grader struct {
	log *logger.Logger
}

func NewGrader(log *logger.Logger) *Grader {
	if log == nil {
		log = logger.NewNop()
	}
	return &Grader{log: log}
}

// Grade compares submitted answers with the answer key. Only questions present in both maps count
// toward the total; unknown question ids are dropped and logged. With no matched questions the
// score is 0 and NoGradableQuestions is set. Pass/fail is left to the caller.
func (g *Grader) Grade(submitted, answerKey map[string]string) domain.ExamResult {
	ids := make([]string, 0, len(submitted))
	for id := range submitted {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := domain.ExamResult{PerQuestion: make([]domain.QuestionOutcome, 0, len(ids))}
	for _, id := range ids {
		correct, ok := answerKey[id]
		if !ok {
			result.DroppedQuestionIDs = append(result.DroppedQuestionIDs, id)
			continue
		}
		isCorrect := submitted[id] == correct
		if isCorrect {
			result.CorrectCount++
		}
		result.TotalCount++
		result.PerQuestion = append(result.PerQuestion, domain.QuestionOutcome{QuestionID: id, IsCorrect: isCorrect})
	}

	if len(result.DroppedQuestionIDs) > 0 {
		g.log.Warn("dropping unknown question ids from exam submission", "question_ids", result.DroppedQuestionIDs)
	}

	if result.TotalCount == 0 {
		result.NoGradableQuestions = true
		return result
	}
	result.ScorePercentage = float64(result.CorrectCount) / float64(result.TotalCount) * 100
	return result
}
