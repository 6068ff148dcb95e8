package quality

import "math"

// Grade is a letter grade derived from a 0–10 score.
type Grade string

const (
	GradeAPlus  Grade = "A+"
	GradeA      Grade = "A"
	GradeAMinus Grade = "A-"
	GradeBPlus  Grade = "B+"
	GradeB      Grade = "B"
	GradeBMinus Grade = "B-"
	GradeCPlus  Grade = "C+"
	GradeC      Grade = "C"
	GradeCMinus Grade = "C-"
	GradeD      Grade = "D"
	GradeF      Grade = "F"
)

var ladder = []struct {
	min   float64
	grade Grade
}{
	{9.5, GradeAPlus},
	{9.0, GradeA},
	{8.5, GradeAMinus},
	{8.0, GradeBPlus},
	{7.5, GradeB},
	{7.0, GradeBMinus},
	{6.5, GradeCPlus},
	{6.0, GradeC},
	{5.5, GradeCMinus},
	{4.0, GradeD},
}

// GradeFor maps a score to its grade. Scores outside [0, 10] are clamped
// and NaN grades F.
func GradeFor(score float64) Grade {
	if math.IsNaN(score) {
		return GradeF
	}
	score = clamp(score, 0, MaxScore)
	for _, step := range ladder {
		if score >= step.min {
			return step.grade
		}
	}
	return GradeF
}

// Rank orders grades: higher is better, unknown grades rank below F.
func Rank(g Grade) int {
	for i, step := range ladder {
		if step.grade == g {
			return len(ladder) - i
		}
	}
	if g == GradeF {
		return 0
	}
	return -1
}

// Grades lists all grades from best to worst.
func Grades() []Grade {
	out := make([]Grade, 0, len(ladder)+1)
	for _, step := range ladder {
		out = append(out, step.grade)
	}
	return append(out, GradeF)
}
