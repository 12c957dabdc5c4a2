package stats

import (
	"context"
	"io"

	"golang.org/x/xerrors"

	"github.com/verte-zerg/keyguard/internal/model"
	"github.com/verte-zerg/keyguard/internal/store"
)

// Report contains precomputed data for history rendering.
type Report struct {
	Attempts   []model.Attempt
	Enrollment *model.Enrollment
}

// BuildReport loads attempts and, for a single user, the current enrollment.
func BuildReport(ctx context.Context, st *store.Store, cfg model.HistoryConfig) (Report, error) {
	attempts, err := st.ListAttempts(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	report := Report{Attempts: attempts}
	if cfg.User == "" {
		return report, nil
	}
	enrollment, err := st.GetEnrollment(ctx, cfg.User)
	switch {
	case err == nil:
		report.Enrollment = &enrollment
	case !xerrors.Is(err, store.ErrNotFound):
		return Report{}, err
	}
	return report, nil
}

// Render writes the whole report: enrollment, summary, trend and table.
func (r Report) Render(w io.Writer, window, width int) error {
	if r.Enrollment != nil {
		e := r.Enrollment
		lines := []string{
			"Enrollment",
			"User: " + e.UserID,
			"Phrase: " + e.Phrase,
			"Enrolled: " + e.EnrolledAt.Local().Format("2006-01-02 15:04:05"),
		}
		rows := [][]string{{
			formatMs(e.Pattern.TotalTime),
			formatMs(e.Pattern.AveragePressTime),
			formatCount(len(e.Pattern.Timings)),
		}}
		lines = append(lines, formatTable([]string{"Total (ms)", "Avg press (ms)", "Keys"}, rows, map[int]bool{0: true, 1: true, 2: true})...)
		lines = append(lines, "")
		for _, line := range lines {
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return err
			}
		}
	}
	if err := RenderSummary(w, r.Attempts); err != nil {
		return err
	}
	if err := RenderScoreTrend(w, r.Attempts, window, width); err != nil {
		return err
	}
	return RenderAttemptTable(w, r.Attempts)
}
