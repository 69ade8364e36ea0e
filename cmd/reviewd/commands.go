package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/muylucir/pr-review-orchestrator/internal/config"
	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	"github.com/muylucir/pr-review-orchestrator/internal/github"
	"github.com/muylucir/pr-review-orchestrator/internal/llm"
	"github.com/muylucir/pr-review-orchestrator/internal/notify"
	"github.com/muylucir/pr-review-orchestrator/internal/prompt"
	"github.com/muylucir/pr-review-orchestrator/internal/retention"
	"github.com/muylucir/pr-review-orchestrator/internal/review"
	"github.com/muylucir/pr-review-orchestrator/internal/store"
	"github.com/muylucir/pr-review-orchestrator/internal/task"
	"github.com/muylucir/pr-review-orchestrator/internal/watch"
	"github.com/muylucir/pr-review-orchestrator/internal/workflow"
	"github.com/muylucir/pr-review-orchestrator/tui"
	"github.com/muylucir/pr-review-orchestrator/web/api"
)

var (
	submitOwner    string
	submitRepo     string
	submitNumber   int
	submitPlatform string
	submitSpool    bool
	listStatus     string
	listLimit      int
	servePort      int
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the review daemon: workflow engine, spool watcher, web API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "web API port (overrides config)")
	rootCmd.AddCommand(serveCmd)

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a pull request for review",
		RunE:  runSubmit,
	}
	submitCmd.Flags().StringVar(&submitOwner, "owner", "", "repository owner")
	submitCmd.Flags().StringVar(&submitRepo, "repo", "", "repository name")
	submitCmd.Flags().IntVar(&submitNumber, "number", 0, "pull request number")
	submitCmd.Flags().StringVar(&submitPlatform, "platform", "github", "code-hosting platform")
	submitCmd.Flags().BoolVar(&submitSpool, "spool", false, "queue via the spool directory instead of the API")
	rootCmd.AddCommand(submitCmd)

	statusCmd := &cobra.Command{
		Use:   "status [EXECUTION]",
		Short: "Show execution status, or one execution's audit trail",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}
	statusCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	statusCmd.Flags().IntVar(&listLimit, "limit", 20, "max executions to list")
	rootCmd.AddCommand(statusCmd)

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished executions past the retention window",
		RunE:  runCleanup,
	}
	rootCmd.AddCommand(cleanupCmd)

	topCmd := &cobra.Command{
		Use:   "top",
		Short: "Live dashboard of review executions",
		RunE:  runTop,
	}
	rootCmd.AddCommand(topCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if dir := filepath.Dir(cfg.General.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return store.New(cfg.General.DatabasePath)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	switch len(notifiers) {
	case 0:
		return notify.NoopNotifier{}
	case 1:
		return notifiers[0]
	default:
		return notify.NewMultiNotifier(notifiers...)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	gh, err := github.NewClient(cfg.GitHub.APIURL, cfg.GitHub.TokenEnv)
	if err != nil {
		return err
	}
	reviewer, err := llm.NewAnthropic(cfg.Review.Model)
	if err != nil {
		return err
	}
	prompts := prompt.DefaultLoader(cfg.Review.PromptDir)
	notifier := buildNotifier(cfg)

	registry := task.NewRegistry()
	collaborators := review.NewCollaborators(gh, reviewer, prompts, notifier, review.Config{
		ChunkMaxFiles: cfg.Review.ChunkMaxFiles,
		ChunkMaxBytes: cfg.Review.ChunkMaxBytes,
		MaxTokens:     cfg.Review.MaxTokens,
	})
	collaborators.RegisterAll(registry)

	port := cfg.Web.Port
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	// The server is the orchestrator's event sink, and the
	// orchestrator backs the server's submit endpoint. The submitter
	// closure binds late so both can exist.
	var orch *workflow.Orchestrator
	server := api.NewServer(st, func(req domain.ReviewRequest) (string, error) {
		return orch.StartReview(req)
	}, addr)

	orch = workflow.New(registry, st, workflow.Config{
		ChunkThreshold:       cfg.Review.ChunkThreshold,
		FirstPassConcurrency: cfg.Review.FirstPassConcurrency,
		RetryPassConcurrency: cfg.Review.RetryPassConcurrency,
		RetryPassDelay:       cfg.Review.RetryPassDelay,
		ItemRetryAttempts:    cfg.Review.ItemRetryAttempts,
		ItemRetryDelay:       cfg.Review.ItemRetryDelay,
		ItemRetryMultiplier:  cfg.Review.ItemRetryMultiplier,
		StateRetry: task.RetryConfig{
			ExtraAttempts: cfg.Review.StateRetryAttempts,
			Base:          cfg.Review.StateRetryBase,
			Multiplier:    cfg.Review.StateRetryMultiplier,
		},
		ExecutionTimeout: cfg.Review.ExecutionTimeout,
	}, workflow.WithEventSink(server))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interrupted executions from a previous run resume from their
	// journal instead of starting over.
	running, err := st.ListExecutions(store.ListOptions{Status: domain.ExecutionRunning})
	if err != nil {
		return err
	}
	for _, e := range running {
		log.Printf("[reviewd] resuming execution %s (%s/%s#%d)", e.ID, e.PR.Owner, e.PR.Repo, e.PR.Number)
		orch.Resume(e.ID)
	}

	watcher, err := watch.NewSpoolWatcher(cfg.General.SpoolDir, func(req domain.ReviewRequest) {
		id, err := orch.StartReview(req)
		if err != nil {
			log.Printf("[reviewd] spool submit failed: %v", err)
			return
		}
		log.Printf("[reviewd] spool submit accepted: %s", id)
	})
	if err != nil {
		return err
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	sweeper, err := retention.NewSweeper(st, cfg.General.RetentionCron, cfg.General.DataRetention)
	if err != nil {
		return err
	}
	go sweeper.Start()
	defer sweeper.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[reviewd] web API listening on http://%s", addr)
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("[reviewd] received %s, draining executions", sig)
		cancel()
		orch.Wait()
		return nil
	}
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if submitOwner == "" || submitRepo == "" || submitNumber <= 0 {
		return fmt.Errorf("--owner, --repo and --number are required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := domain.ReviewRequest{
		Platform: domain.Platform(submitPlatform),
		Owner:    submitOwner,
		Repo:     submitRepo,
		Number:   submitNumber,
	}

	if submitSpool {
		return submitViaSpool(cfg, req)
	}
	return submitViaAPI(cfg, req)
}

// submitViaSpool drops a request file into the spool directory for the
// daemon's watcher to pick up. Works even while the API is unreachable.
func submitViaSpool(cfg *config.Config, req domain.ReviewRequest) error {
	if err := os.MkdirAll(cfg.General.SpoolDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.General.SpoolDir, uuid.NewString()+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Queued %s/%s#%d via %s\n", req.Owner, req.Repo, req.Number, path)
	return nil
}

func submitViaAPI(cfg *config.Config, req domain.ReviewRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s:%d/api/reviews", cfg.Web.Host, cfg.Web.Port)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submitting to %s: %w (is reviewd serve running?)", url, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("submit rejected: %s: %s", resp.Status, data)
	}

	var accepted struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := json.Unmarshal(data, &accepted); err != nil {
		return err
	}
	fmt.Printf("Accepted: execution %s\n", accepted.ExecutionID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 1 {
		return printExecutionDetail(st, args[0])
	}

	executions, err := st.ListExecutions(store.ListOptions{
		Status: domain.ExecutionStatus(listStatus),
		Limit:  listLimit,
	})
	if err != nil {
		return err
	}

	var running, success, failed int
	for _, e := range executions {
		switch e.Status {
		case domain.ExecutionRunning:
			running++
		case domain.ExecutionSuccess:
			success++
		case domain.ExecutionFailed:
			failed++
		}
	}
	fmt.Printf("Executions: %d listed | %d running | %d success | %d failed\n\n",
		len(executions), running, success, failed)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPR\tSTAGE\tSTATUS\tSTARTED")
	for _, e := range executions {
		fmt.Fprintf(w, "%s\t%s/%s#%d\t%s\t%s\t%s\n",
			e.ID, e.PR.Owner, e.PR.Repo, e.PR.Number,
			e.Stage, e.Status, e.StartedAt.Format(time.RFC3339))
	}
	w.Flush()

	return nil
}

func printExecutionDetail(st *store.Store, id string) error {
	e, err := st.GetExecution(id)
	if err != nil {
		return fmt.Errorf("execution %s: %w", id, err)
	}

	fmt.Printf("Execution: %s\n", e.ID)
	fmt.Printf("PR:        %s\n", e.PR.URL())
	fmt.Printf("Stage:     %s\n", e.Stage)
	fmt.Printf("Status:    %s\n", e.Status)
	if e.Error != "" {
		fmt.Printf("Error:     %s\n", e.Error)
	}
	fmt.Printf("Started:   %s\n", e.StartedAt.Format(time.RFC3339))
	if e.FinishedAt != nil {
		fmt.Printf("Finished:  %s\n", e.FinishedAt.Format(time.RFC3339))
	}

	rows, err := st.ListTaskResults(id)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PASS\tTASK\tCHUNK\tSTATUS\tERROR")
	for _, row := range rows {
		errCol := "-"
		if row.Result.ErrorKind != domain.ErrorKindNone {
			errCol = string(row.Result.ErrorKind)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n",
			row.Pass, row.Task, row.Result.ChunkIndex, row.Result.StatusCode, errCol)
	}
	w.Flush()

	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sweeper, err := retention.NewSweeper(st, cfg.General.RetentionCron, cfg.General.DataRetention)
	if err != nil {
		return err
	}

	deleted, err := sweeper.Sweep()
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d finished executions older than %s\n", deleted, cfg.General.DataRetention)
	return nil
}

func runTop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	p := tea.NewProgram(tui.NewModel(st), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
