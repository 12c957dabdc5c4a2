// Package main provides the CLI entrypoint for keyguard.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/coder/quartz"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/xerrors"

	"github.com/verte-zerg/keyguard/internal/capture"
	"github.com/verte-zerg/keyguard/internal/config"
	"github.com/verte-zerg/keyguard/internal/model"
	"github.com/verte-zerg/keyguard/internal/pattern"
	"github.com/verte-zerg/keyguard/internal/script"
	"github.com/verte-zerg/keyguard/internal/stats"
	"github.com/verte-zerg/keyguard/internal/store"
	"github.com/verte-zerg/keyguard/internal/tui"
)

const (
	defaultPhrase       = "the quick brown fox jumps over the lazy dog"
	defaultThreshold    = pattern.DefaultThreshold
	defaultHistoryLast  = 0
	defaultTrendWindow  = 1
	defaultTrendMaxCols = 60
)

// errAuthFailed is returned by replay when a verify attempt is rejected.
var errAuthFailed = xerrors.New("authentication failed")

var (
	rootUser      string
	rootPhrase    string
	rootMode      string
	rootThreshold float64
	rootDB        string
	rootVerbose   bool

	replayDryRun bool

	historyAll    bool
	historyLast   int
	historySince  string
	historyWindow int
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "keyguard",
		Short:         "Keystroke-rhythm enrollment and verification",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runTUICmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootUser, "user", "", "user identity (default: OS login name)")
	flags.StringVar(&rootPhrase, "phrase", defaultPhrase, "phrase to type when enrolling")
	flags.StringVar(&rootMode, "mode", "", "enroll or verify (default: verify when enrolled)")
	flags.Float64Var(&rootThreshold, "threshold", defaultThreshold, "minimum similarity accepted (0-1]")
	flags.StringVar(&rootDB, "db", "", "database path (default: XDG data dir)")
	flags.BoolVarP(&rootVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newForgetCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func newLogger(w io.Writer) slog.Logger {
	logger := slog.Make(sloghuman.Sink(w))
	if rootVerbose {
		return logger.Leveled(slog.LevelDebug)
	}
	return logger.Leveled(slog.LevelInfo)
}

// resolveSettings merges config file values into flags that were not set.
func resolveSettings(cmd *cobra.Command) (model.Settings, config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return model.Settings{}, config.FileConfig{}, xerrors.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "user", &rootUser, fileCfg.Auth.User)
	applyStringConfig(cmd, "phrase", &rootPhrase, fileCfg.Auth.Phrase)
	applyFloatConfig(cmd, "threshold", &rootThreshold, fileCfg.Auth.Threshold)

	settings := model.Settings{
		User:      rootUser,
		Phrase:    rootPhrase,
		Threshold: rootThreshold,
	}
	if settings.User == "" {
		settings.User = currentUser()
	}
	if rootMode != "" {
		mode, ok := model.ParseMode(rootMode)
		if !ok {
			return model.Settings{}, config.FileConfig{}, xerrors.Errorf("--mode must be %q or %q", model.ModeEnroll, model.ModeVerify)
		}
		settings.Mode = mode
	}
	if err := validateSettings(settings); err != nil {
		return model.Settings{}, config.FileConfig{}, err
	}
	return settings, fileCfg, nil
}

func validateSettings(s model.Settings) error {
	if s.User == "" {
		return xerrors.New("--user must not be empty")
	}
	if strings.TrimSpace(s.Phrase) == "" {
		return xerrors.New("--phrase must not be empty")
	}
	if s.Threshold <= 0 || s.Threshold > 1 {
		return xerrors.New("--threshold must be in (0, 1]")
	}
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func openStore() (*store.Store, error) {
	path := rootDB
	if path == "" {
		path = config.DefaultDBPath()
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(ctx context.Context, logger slog.Logger, st *store.Store) {
	if err := st.Close(); err != nil {
		logger.Error(ctx, "failed to close db", slog.Error(err))
	}
}

func runTUICmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr())
	settings, _, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return xerrors.New("keyguard needs an interactive terminal; use 'keyguard replay' for scripted input")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(ctx, logger, st)

	m, err := tui.NewModel(ctx, tui.Options{
		Settings: settings,
		Store:    st,
		Logger:   logger,
		Clock:    quartz.NewReal(),
	})
	if err != nil {
		return err
	}
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return xerrors.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Enroll or verify from a recorded key-event script",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplayCmd,
	}
	cmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "do not store the enrollment or the attempt")
	return cmd
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr())
	settings, _, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	sc, err := script.Load(args[0])
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(ctx, logger, st)

	var enrollment *model.Enrollment
	existing, err := st.GetEnrollment(ctx, settings.User)
	switch {
	case err == nil:
		enrollment = &existing
	case !xerrors.Is(err, store.ErrNotFound):
		return err
	}

	mode := settings.Mode
	if mode == "" {
		mode = model.ModeEnroll
		if enrollment != nil {
			mode = model.ModeVerify
		}
	}
	phrase := sc.Phrase
	var reference *model.KeystrokePattern
	if mode == model.ModeVerify && enrollment != nil {
		reference = &enrollment.Pattern
		if phrase == "" {
			phrase = enrollment.Phrase
		}
		if phrase != enrollment.Phrase {
			return xerrors.Errorf("script phrase %q differs from enrolled phrase %q", phrase, enrollment.Phrase)
		}
	}
	if phrase == "" {
		phrase = settings.Phrase
	}

	session := capture.NewSession(pattern.Matcher{Threshold: settings.Threshold})
	if err := session.Start(phrase, mode, reference); err != nil {
		return xerrors.Errorf("start %s for %q: %w", mode, settings.User, err)
	}
	out, done := sc.Replay(session)
	if !done {
		return xerrors.Errorf("script ended before the phrase %q was typed", phrase)
	}
	logger.Debug(ctx, "replay finished",
		slog.F("user", settings.User),
		slog.F("mode", mode),
		slog.F("outcome", out.Kind.String()),
		slog.F("keys", len(session.Timings())),
	)

	if !replayDryRun {
		if err := persistOutcome(ctx, st, settings.User, phrase, out); err != nil {
			return err
		}
	}
	if err := printOutcome(cmd.OutOrStdout(), settings, out); err != nil {
		return err
	}
	switch out.Kind {
	case capture.OutcomeError:
		return out.Err
	case capture.OutcomeRejected:
		return errAuthFailed
	}
	return nil
}

func persistOutcome(ctx context.Context, st *store.Store, userID, phrase string, out capture.Outcome) error {
	if attempt, ok := out.Attempt(userID); ok {
		if _, err := st.InsertAttempt(ctx, attempt); err != nil {
			return err
		}
	}
	if out.Kind == capture.OutcomeCaptured {
		if _, err := st.UpsertEnrollment(ctx, userID, phrase, out.Pattern); err != nil {
			return err
		}
	}
	return nil
}

func printOutcome(w io.Writer, settings model.Settings, out capture.Outcome) error {
	lines := []string{
		fmt.Sprintf("user: %s", settings.User),
		fmt.Sprintf("mode: %s", out.Mode),
		fmt.Sprintf("outcome: %s", out.Kind),
	}
	if out.Kind != capture.OutcomeError {
		lines = append(lines,
			fmt.Sprintf("total time: %.1f ms", out.Pattern.TotalTime),
			fmt.Sprintf("average press: %.1f ms", out.Pattern.AveragePressTime),
			fmt.Sprintf("keys: %d", len(out.Pattern.Timings)),
		)
	}
	if out.Kind == capture.OutcomeMatched || out.Kind == capture.OutcomeRejected {
		lines = append(lines, fmt.Sprintf("similarity: %.4f (threshold %.2f)", out.Score, settings.Threshold))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return xerrors.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show enrollment and attempt history",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().BoolVar(&historyAll, "all", false, "show attempts of every user")
	cmd.Flags().IntVar(&historyLast, "last", defaultHistoryLast, "limit to last N attempts")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyWindow, "window", defaultTrendWindow, "moving average window for the similarity trend")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr())
	settings, fileCfg, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	applyIntConfig(cmd, "last", &historyLast, fileCfg.History.Last)
	if historyLast < 0 {
		return xerrors.New("--last must be >= 0")
	}

	cfg := model.HistoryConfig{User: settings.User, Last: historyLast}
	if historyAll {
		cfg.User = ""
	}
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return xerrors.Errorf("invalid --since value: %w", err)
		}
		cfg.Since = &parsed
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(ctx, logger, st)

	report, err := stats.BuildReport(ctx, st, cfg)
	if err != nil {
		return err
	}
	return report.Render(cmd.OutOrStdout(), historyWindow, trendWidth(cmd.OutOrStdout()))
}

// trendWidth fits the sparkline into the terminal when stdout is one.
func trendWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultTrendMaxCols
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultTrendMaxCols
	}
	return width
}

func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Delete the enrolled pattern of a user",
		Args:  cobra.NoArgs,
		RunE:  runForgetCmd,
	}
}

func runForgetCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr())
	settings, _, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(ctx, logger, st)

	if err := st.DeleteEnrollment(ctx, settings.User); err != nil {
		if xerrors.Is(err, store.ErrNotFound) {
			return xerrors.Errorf("user %q is not enrolled", settings.User)
		}
		return err
	}
	logger.Info(ctx, "enrollment deleted", slog.F("user", settings.User))
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return xerrors.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return xerrors.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return xerrors.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return xerrors.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil || cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# keyguard configuration
# Uncomment a value to enable it. CLI flags override config values.

[auth]
# user = ""               # User identity (default: OS login name)
# phrase = %q
# threshold = %.2f        # Minimum similarity accepted (0-1]

[history]
# last = %d               # Limit history to the last N attempts (0 = all)
`,
		defaultPhrase,
		defaultThreshold,
		defaultHistoryLast,
	)
}
