package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abadealex/scriptmark/internal/attendance"
	"github.com/abadealex/scriptmark/internal/classify"
	"github.com/abadealex/scriptmark/internal/config"
	"github.com/abadealex/scriptmark/internal/database"
	"github.com/abadealex/scriptmark/internal/events"
	"github.com/abadealex/scriptmark/internal/identity"
	"github.com/abadealex/scriptmark/internal/pipeline"
	"github.com/abadealex/scriptmark/internal/repository"
	"github.com/abadealex/scriptmark/internal/roster"
	"github.com/abadealex/scriptmark/internal/scoring"
	"github.com/abadealex/scriptmark/pkg/similarity"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scriptmark",
		Short:         "Batch exam script processing: classify, segment, match and mark",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(processCmd(), attendanceCmd(), gradeCmd(), migrateCmd())
	return root
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [documents...]",
		Short: "Process a batch of script bundles end to end",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runProcess,
	}
	f := cmd.Flags()
	f.String("session", "", "Marking session identifier (required)")
	f.String("roster", "", "Class roster CSV path (required)")
	f.String("key", "", "Grading key JSON path (enables scoring)")
	f.StringP("out", "o", ".", "Output directory for attendance exports")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("roster")
	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	rosterPath, _ := cmd.Flags().GetString("roster")
	entries, err := roster.LoadFile(rosterPath)
	if err != nil {
		return err
	}

	sessionID, _ := cmd.Flags().GetString("session")
	outDir, _ := cmd.Flags().GetString("out")
	keyPath, _ := cmd.Flags().GetString("key")

	policy, err := identity.ParsePolicy(cfg.MatchPolicy, cfg.NameMatchWeight)
	if err != nil {
		return err
	}

	classifyCfg := classify.DefaultConfig()
	classifyCfg.Threshold = cfg.ClassifyThreshold
	classifyCfg.KeywordWeight = cfg.KeywordWeight
	classifyCfg.LayoutWeight = cfg.LayoutWeight
	classifyCfg.TitleWeight = cfg.TitleWeight

	deps := pipeline.Deps{
		Classifier: classify.NewClassifier(classifyCfg, logger),
		Logger:     logger,
	}

	store := newTextStore()
	deps.Rasterizer = store
	deps.Extractor = store
	deps.Splitter = store

	if keyPath != "" {
		key, err := scoring.LoadKeyFile(keyPath)
		if err != nil {
			return err
		}
		provider, cleanup, err := buildProvider(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		scoringPolicy, err := scoring.ParsePolicy(cfg.ScoringPolicy)
		if err != nil {
			return err
		}
		engine, err := scoring.NewEngine(scoring.Config{
			Policy:              scoringPolicy,
			SimilarityThreshold: cfg.SimilarityThreshold,
			FullCreditThreshold: cfg.FullCreditThreshold,
		}, provider, logger)
		if err != nil {
			return err
		}
		deps.Engine = engine
		deps.Key = key
	}

	if cfg.DatabaseURL != "" {
		db, err := database.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		deps.Manifests = repository.NewManifestRepository(db)
		deps.Presence = repository.NewPresenceRepository(db)
	}

	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		deps.Publisher = events.NewPublisher(conn, "scriptmark.batch", logger)
	}

	p, err := pipeline.New(pipeline.Options{
		SessionID:     sessionID,
		Workers:       cfg.Workers,
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		CallTimeout:   cfg.ExternalCallTimeout,
		MatchPolicy:   policy,
		Thresholds:    identity.Thresholds{ID: cfg.IDThreshold, Name: cfg.NameThreshold},
	}, deps)
	if err != nil {
		return err
	}

	result, err := p.Run(cmd.Context(), args, entries)
	if err != nil {
		return err
	}

	resolutions := make([]identity.Resolution, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		resolutions = append(resolutions, outcome.Resolution)
	}
	if err := writeAttendanceExports(outDir, result.Attendance, result.Unclaimed, resolutions); err != nil {
		return err
	}

	present := 0
	for _, rec := range result.Attendance {
		if rec.Present {
			present++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "batch %s: %d documents, %d segments, %d/%d students present, %d unclaimed, %d failures\n",
		result.BatchID, len(result.Units), len(result.Outcomes), present, len(entries), len(result.Unclaimed), len(result.Failures))
	for _, failure := range result.Failures {
		fmt.Fprintf(cmd.OutOrStdout(), "failed: %s\n", failure)
	}
	return nil
}

func attendanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Reconcile a detected-identity CSV against the class roster",
		RunE:  runAttendance,
	}
	f := cmd.Flags()
	f.String("roster", "", "Class roster CSV path (required)")
	f.String("detected", "", "Detected identities CSV (id,name per segment, required)")
	f.StringP("out", "o", ".", "Output directory for attendance exports")
	_ = cmd.MarkFlagRequired("roster")
	_ = cmd.MarkFlagRequired("detected")
	return cmd
}

func runAttendance(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	rosterPath, _ := cmd.Flags().GetString("roster")
	entries, err := roster.LoadFile(rosterPath)
	if err != nil {
		return err
	}

	detectedPath, _ := cmd.Flags().GetString("detected")
	firstPages, err := loadDetected(detectedPath)
	if err != nil {
		return err
	}

	policy, err := identity.ParsePolicy(cfg.MatchPolicy, cfg.NameMatchWeight)
	if err != nil {
		return err
	}
	matcher, err := identity.NewMatcher(entries, policy, identity.Thresholds{ID: cfg.IDThreshold, Name: cfg.NameThreshold}, logger)
	if err != nil {
		return err
	}

	resolutions := identity.NewResolver(matcher, logger).Resolve(firstPages)
	records, unclaimed := attendance.Reconcile(entries, resolutions)

	outDir, _ := cmd.Flags().GetString("out")
	if err := writeAttendanceExports(outDir, records, unclaimed, resolutions); err != nil {
		return err
	}

	present := 0
	for _, rec := range records {
		if rec.Present {
			present++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d students present, %d unclaimed segments\n", present, len(records), len(unclaimed))
	return nil
}

// loadDetected reads one detected identity per row and synthesises the
// labelled lines the extractor would have produced for that segment.
func loadDetected(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detected identities: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse detected identities: %w", err)
	}

	var firstPages [][]string
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(row[0])
		name := ""
		if len(row) > 1 {
			name = strings.TrimSpace(row[1])
		}
		if i == 0 && strings.EqualFold(id, "id") {
			continue
		}
		var lines []string
		if id != "" {
			lines = append(lines, "ID: "+id)
		}
		if name != "" {
			lines = append(lines, "Name: "+name)
		}
		firstPages = append(firstPages, lines)
	}
	return firstPages, nil
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade [answer files...]",
		Short: "Score free-text answer files against a grading key",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.String("key", "", "Grading key JSON path (required)")
	f.String("policy", "", "Scoring policy override (keyword, similarity, blended)")
	f.Bool("align", false, "Align answer blocks to key questions by prompt similarity instead of position")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func runGrade(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	keyPath, _ := cmd.Flags().GetString("key")
	key, err := scoring.LoadKeyFile(keyPath)
	if err != nil {
		return err
	}

	policyName, _ := cmd.Flags().GetString("policy")
	if policyName == "" {
		policyName = cfg.ScoringPolicy
	}
	policy, err := scoring.ParsePolicy(policyName)
	if err != nil {
		return err
	}

	provider, cleanup, err := buildProvider(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := scoring.NewEngine(scoring.Config{
		Policy:              policy,
		SimilarityThreshold: cfg.SimilarityThreshold,
		FullCreditThreshold: cfg.FullCreditThreshold,
	}, provider, logger)
	if err != nil {
		return err
	}

	type submissionResult struct {
		File   string         `json:"file"`
		Result scoring.Result `json:"result"`
	}

	align, _ := cmd.Flags().GetBool("align")

	results := make([]submissionResult, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read answers %s: %w", path, err)
		}
		blocks := splitBlocks(string(data))
		if align {
			blocks, err = scoring.AlignAnswers(cmd.Context(), provider, blocks, key, 0)
			if err != nil {
				return fmt.Errorf("align answers %s: %w", path, err)
			}
		}
		res, err := engine.ScoreSubmission(cmd.Context(), blocks, key)
		if err != nil {
			return fmt.Errorf("score %s: %w", path, err)
		}
		results = append(results, submissionResult{File: path, Result: res})
	}

	var out io.Writer = cmd.OutOrStdout()
	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath != "" && outputPath != "-" {
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the manifest and presence database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.ConnectPostgres(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

// splitBlocks cuts an answers file into blocks at blank-line boundaries.
func splitBlocks(text string) []string {
	var blocks []string
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if block := strings.TrimSpace(raw); block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func buildProvider(cfg config.Config, logger zerolog.Logger) (similarity.Provider, func(), error) {
	cleanup := func() {}
	if cfg.AIProvider != "openai" {
		return similarity.Local{}, cleanup, nil
	}

	provider, err := similarity.NewOpenAIProvider(similarity.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = client.Close() }
		return similarity.NewCached(provider, client, time.Hour, logger), cleanup, nil
	}
	return provider, cleanup, nil
}

func writeAttendanceExports(outDir string, records []attendance.Record, unclaimed []attendance.Unclaimed, resolutions []identity.Resolution) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	writeCSV := func(name string, write func(io.Writer) error) error {
		f, err := os.Create(filepath.Join(outDir, name))
		if err != nil {
			return err
		}
		if err := write(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	if err := writeCSV("attendance.csv", func(w io.Writer) error {
		return attendance.WriteCSV(w, records)
	}); err != nil {
		return err
	}

	if err := writeCSV("matches.csv", func(w io.Writer) error {
		return attendance.WriteMatchesCSV(w, resolutions)
	}); err != nil {
		return err
	}

	if len(unclaimed) > 0 {
		if err := writeCSV("unclaimed.csv", func(w io.Writer) error {
			return attendance.WriteUnclaimedCSV(w, unclaimed)
		}); err != nil {
			return err
		}
	}

	return attendance.WriteXLSX(filepath.Join(outDir, "attendance.xlsx"), "Attendance", records)
}
