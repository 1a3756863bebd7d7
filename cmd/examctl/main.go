package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/console"
	"github.com/stemsi/exstem-client/internal/database"
	"github.com/stemsi/exstem-client/internal/gateway"
	"github.com/stemsi/exstem-client/internal/handler"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/proctor"
	"github.com/stemsi/exstem-client/internal/repository"
	"github.com/stemsi/exstem-client/internal/router"
	"github.com/stemsi/exstem-client/internal/screen"
	"github.com/stemsi/exstem-client/internal/service"
	"github.com/stemsi/exstem-client/internal/store"
	"github.com/stemsi/exstem-client/internal/validator"
	"github.com/stemsi/exstem-client/internal/worker"
)

const (
	violationBuffer  = 64
	shutdownTimeout  = 5 * time.Second
	readHeaderLimit  = 10 * time.Second
	defaultListLimit = 50
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	d := config.Defaults()
	root := &cobra.Command{
		Use:          "examctl",
		Short:        "Take proctored AI-generated exams from the terminal",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("api-base-url", d.APIBaseURL, "Exam backend API base URL")
	pf.Duration("http-timeout", d.HTTPTimeout, "Timeout for each backend request")
	pf.String("log-level", d.LogLevel, "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", d.LogFormat, "Log format (json, pretty); empty picks pretty on a terminal")
	pf.String("journal-path", "", "SQLite proctoring journal path (empty disables the journal)")

	take := takeCmd()
	root.AddCommand(take, summaryCmd(), reportCmd(), journalCmd(), archiveCmd())

	// "take" is the default when no subcommand is given.
	root.RunE = take.RunE
	root.Flags().AddFlagSet(take.Flags())

	return root
}

func takeCmd() *cobra.Command {
	d := config.Defaults()
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Create, take and submit an exam",
		Args:  cobra.NoArgs,
		RunE:  runTake,
	}
	f := cmd.Flags()
	f.Duration("poll-interval", d.PollInterval, "Timer poll interval during the exam")
	f.Duration("pause-default", d.PauseDefault, "Proctoring pause while the client steals focus")
	f.Duration("pause-print", d.PausePrint, "Proctoring pause while the question paper is printed")
	f.Int("violation-threshold", d.ViolationThreshold, "Violations that trigger an automatic submission")
	f.Int("violation-log-size", d.ViolationLogSize, "Violations kept for display")
	f.String("bridge-addr", d.BridgeAddr, "Kiosk signal bridge listen address (empty disables it)")
	f.String("allowed-origins", "", "Comma-separated origins allowed on the bridge (empty allows all)")
	f.String("redis-url", "", "Redis URL for live violation fan-out (empty disables it)")
	return cmd
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary <exam-id>",
		Short: "Show the summary of a submitted exam",
		Args:  cobra.ExactArgs(1),
		RunE:  runSummary,
	}
	cmd.Flags().Bool("json", false, "Print raw JSON")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <exam-id>",
		Short: "Show the evaluation report of an exam",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}
	f := cmd.Flags()
	f.Bool("evaluate", false, "Request evaluation first instead of fetching the stored report")
	f.Bool("json", false, "Print raw JSON")
	return cmd
}

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal [exam-id]",
		Short: "List recorded violations and screen transitions",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runJournal,
	}
	f := cmd.Flags()
	f.IntP("limit", "n", defaultListLimit, "Maximum number of entries")
	f.Bool("json", false, "Print raw JSON")
	return cmd
}

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Drain queued violations from Redis into the journal",
		Args:  cobra.NoArgs,
		RunE:  runArchive,
	}
	cmd.Flags().String("redis-url", "", "Redis URL the kiosks publish violations to")
	return cmd
}

// setup loads configuration for cmd and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.Setup(cfg.LogLevel, cfg.LogFormat), nil
}

func runTake(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	log.Info().
		Str("api", cfg.APIBaseURL).
		Str("bridge", cfg.BridgeAddr).
		Bool("redis", cfg.RedisURL != "").
		Bool("journal", cfg.JournalPath != "").
		Msg("Starting examctl")

	validator.Setup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─── Optional Stores ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	journal, closeJournal, err := openJournal(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeJournal()

	// ─── Violation Fan-out ────────────────────────────────────────────
	violations := make(chan model.Violation, violationBuffer)
	var violationJournal worker.ViolationJournal
	if journal != nil {
		violationJournal = journal
	}
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		worker.NewViolationWorker(violations, rdb, violationJournal, log).Start(workerCtx)
		close(workerDone)
	}()

	// ─── Session ──────────────────────────────────────────────────────
	signals := handler.NewSignalHandler(log, cfg.AllowedOrigins)
	deps := service.Deps{
		Backend:       gateway.New(cfg.APIBaseURL, cfg.HTTPTimeout, log),
		Store:         store.New(),
		Screens:       screen.NewController(),
		Signals:       signals,
		Requester:     signals,
		ViolationSink: violations,
	}
	if journal != nil {
		deps.Journal = journal
	}
	svc := service.New(service.Config{
		PollInterval: cfg.PollInterval,
		PausePrint:   cfg.PausePrint,
		Proctor: proctor.Config{
			Threshold:    cfg.ViolationThreshold,
			LogSize:      cfg.ViolationLogSize,
			PauseDefault: cfg.PauseDefault,
		},
	}, deps, log)
	svc.Monitor().Observe(signals.Publish)

	// ─── Kiosk Bridge ─────────────────────────────────────────────────
	var srv *http.Server
	if cfg.BridgeAddr != "" {
		state := handler.NewStateHandler(svc, signals)
		handlers := &router.Handlers{
			Signals: signals,
			State:   state,
			Monitor: handler.NewMonitorHandler(rdb, state, log),
			Journal: handler.NewJournalHandler(journal),
			System:  handler.NewSystemHandler(svc, signals, rdb, journal, log),
		}
		srv = &http.Server{
			Addr:              cfg.BridgeAddr,
			Handler:           router.SetupRouter(handlers, cfg, log),
			ReadHeaderTimeout: readHeaderLimit,
		}

		// Listen before the console starts so a taken port fails fast.
		ln, err := net.Listen("tcp", cfg.BridgeAddr)
		if err != nil {
			svc.Close()
			workerCancel()
			return fmt.Errorf("listen on %s: %w", cfg.BridgeAddr, err)
		}
		go func() {
			log.Info().Str("addr", ln.Addr().String()).Msg("Bridge listening")
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Bridge server error")
			}
		}()
	}

	// ─── Console ──────────────────────────────────────────────────────
	// Reading stdin cannot be interrupted, so a signal abandons the console
	// goroutine instead of waiting for the next line.
	consoleDone := make(chan error, 1)
	go func() {
		consoleDone <- console.New(svc, os.Stdin, os.Stdout, log).Run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-consoleDone:
	case <-ctx.Done():
		log.Info().Msg("Interrupted, shutting down")
	}

	// ─── Graceful Shutdown ────────────────────────────────────────────
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Bridge shutdown error")
		}
		cancel()
	}
	svc.Close()

	// The worker flushes what is still buffered before it returns.
	workerCancel()
	<-workerDone

	log.Info().Msg("Shutdown complete")
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// openJournal opens the journal when a path is configured. The returned
// close function is always safe to call.
func openJournal(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repository.JournalRepository, func(), error) {
	if cfg.JournalPath == "" {
		return nil, func() {}, nil
	}
	db, err := database.OpenJournal(ctx, cfg.JournalPath, log)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open journal: %w", err)
	}
	return repository.NewJournalRepository(db), func() { db.Close() }, nil
}

func parseExamID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid exam id %q", arg)
	}
	return id, nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	examID, err := parseExamID(args[0])
	if err != nil {
		return err
	}

	client := gateway.New(cfg.APIBaseURL, cfg.HTTPTimeout, log)
	summary, err := client.GetSummary(cmd.Context(), examID)
	if err != nil {
		return fmt.Errorf("get summary: %s", gateway.Detail(err))
	}
	return printResult(cmd, cmd.OutOrStdout(), service.Evaluation{Summary: summary})
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	examID, err := parseExamID(args[0])
	if err != nil {
		return err
	}
	evaluate, _ := cmd.Flags().GetBool("evaluate")

	client := gateway.New(cfg.APIBaseURL, cfg.HTTPTimeout, log)
	var result *model.EvaluationResult
	if evaluate {
		result, err = client.Evaluate(cmd.Context(), examID)
	} else {
		result, err = client.GetReport(cmd.Context(), examID)
	}
	if err != nil {
		return fmt.Errorf("get report: %s", gateway.Detail(err))
	}
	return printResult(cmd, cmd.OutOrStdout(), service.Evaluation{Report: result})
}

func printResult(cmd *cobra.Command, w io.Writer, ev service.Evaluation) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(w, ev)
	}
	console.WriteEvaluation(w, ev)
	return nil
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.JournalPath == "" {
		return errors.New("journal is disabled, set --journal-path or EXSTEM_JOURNAL_PATH")
	}

	var examID int64
	if len(args) == 1 {
		if examID, err = parseExamID(args[0]); err != nil {
			return err
		}
	}
	limit, _ := cmd.Flags().GetInt("limit")

	repo, closeJournal, err := openJournal(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer closeJournal()

	entries, err := repo.Entries(cmd.Context(), examID, limit)
	if err != nil {
		return fmt.Errorf("list journal: %w", err)
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if entries == nil {
			entries = []repository.JournalEntry{}
		}
		return writeJSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No journal entries.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  exam %-6d %-10s %s\n", e.At.Local().Format("2006-01-02 15:04:05"), e.ExamID, e.Kind, e.Detail)
	}
	return nil
}

func runArchive(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.RedisURL == "" || cfg.JournalPath == "" {
		return errors.New("archive needs both --redis-url and --journal-path")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	repo, closeJournal, err := openJournal(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeJournal()

	worker.NewCheatArchiver(rdb, repo, log).Start(ctx)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
