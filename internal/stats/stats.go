// Package stats contains attempt history calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/keyguard/internal/model"
)

const sparkChars = " .:-=+*#%@"

// Summary aggregates a list of attempts.
type Summary struct {
	Attempts      int
	Enrollments   int
	Verifications int
	Matched       int
	Failed        int
	AvgScore      float64
	BestScore     float64
	WorstScore    float64
}

// MatchRate returns the share of verify attempts that matched.
func (s Summary) MatchRate() float64 {
	if s.Verifications == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Verifications)
}

// Summarize computes aggregate numbers. Scores only count scored verify attempts.
func Summarize(attempts []model.Attempt) Summary {
	sum := Summary{Attempts: len(attempts)}
	scored := 0
	var total float64
	for _, a := range attempts {
		if a.Outcome == model.AttemptFailed {
			sum.Failed++
		}
		if a.Mode == model.ModeEnroll {
			sum.Enrollments++
			continue
		}
		sum.Verifications++
		if a.Outcome == model.AttemptMatched {
			sum.Matched++
		}
		if !isScored(a) {
			continue
		}
		if scored == 0 || a.Similarity > sum.BestScore {
			sum.BestScore = a.Similarity
		}
		if scored == 0 || a.Similarity < sum.WorstScore {
			sum.WorstScore = a.Similarity
		}
		scored++
		total += a.Similarity
	}
	if scored > 0 {
		sum.AvgScore = total / float64(scored)
	}
	return sum
}

// Scores returns the similarity of each scored verify attempt in order.
func Scores(attempts []model.Attempt) []float64 {
	out := make([]float64, 0, len(attempts))
	for _, a := range attempts {
		if isScored(a) {
			out = append(out, a.Similarity)
		}
	}
	return out
}

func isScored(a model.Attempt) bool {
	return a.Mode == model.ModeVerify && (a.Outcome == model.AttemptMatched || a.Outcome == model.AttemptRejected)
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints a summary block for attempts.
func RenderSummary(w io.Writer, attempts []model.Attempt) error {
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(w, "No attempts found.")
		return err
	}
	sum := Summarize(attempts)
	lines := []string{
		"Summary",
		fmt.Sprintf("Attempts: %d (%d enroll, %d verify)", sum.Attempts, sum.Enrollments, sum.Verifications),
		fmt.Sprintf("Match rate: %.2f%%", sum.MatchRate()*100),
		fmt.Sprintf("Avg similarity: %.3f", sum.AvgScore),
		fmt.Sprintf("Best similarity: %.3f", sum.BestScore),
		fmt.Sprintf("Worst similarity: %.3f", sum.WorstScore),
		fmt.Sprintf("Failed captures: %d", sum.Failed),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderScoreTrend prints a sparkline of the smoothed similarity scores,
// keeping the most recent values that fit into width (0 means unlimited).
func RenderScoreTrend(w io.Writer, attempts []model.Attempt, window, width int) error {
	scores := MovingAverage(Scores(attempts), window)
	if len(scores) == 0 {
		return nil
	}
	if width > 0 && len(scores) > width {
		scores = scores[len(scores)-width:]
	}
	if _, err := fmt.Fprintln(w, "Similarity Trend"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, Sparkline(scores)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderAttemptTable prints one row per attempt.
func RenderAttemptTable(w io.Writer, attempts []model.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	headers := []string{"When", "User", "Mode", "Outcome", "Similarity", "Total (ms)", "Avg press (ms)", "Keys"}
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		score := "-"
		if isScored(a) {
			score = fmt.Sprintf("%.3f", a.Similarity)
		}
		rows = append(rows, []string{
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			a.UserID,
			string(a.Mode),
			a.Outcome,
			score,
			formatMs(a.TotalTime),
			formatMs(a.AveragePressTime),
			formatCount(a.KeyCount),
		})
	}
	rightAlign := map[int]bool{4: true, 5: true, 6: true, 7: true}
	if _, err := fmt.Fprintln(w, "Attempts"); err != nil {
		return err
	}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
