package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/song-requests/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers: the orphaned payment scanner and the domain event tail.`,
}

var scanWorkerCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the orphaned payment scanner",
	Long:  `Link gateway payments that never reached their request and flag discrepancies for review`,
	Run: func(cmd *cobra.Command, args []string) {
		startScanWorker()
	},
}

var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail domain events from Kafka",
	Long:  `Consume the domain events topic and log each event, for debugging downstream consumers`,
	Run: func(cmd *cobra.Command, args []string) {
		startEventWorker()
	},
}

var (
	scanOnce     bool
	scanInterval time.Duration
	eventGroup   string
)

func startScanWorker() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	lg := deps.Logger
	interval := scanInterval
	if interval <= 0 {
		interval = deps.Config.Scanner.Interval
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runScan := func() {
		report, err := deps.Scanner.Run(ctx)
		if err != nil {
			lg.Error("orphan scan failed", "error", err)
			return
		}
		lg.Info("orphan scan finished",
			"candidates", report.Candidates,
			"linked", report.Linked,
			"still_pending", report.StillPending,
			"failed", report.Failed,
			"intents_scanned", report.IntentsScanned,
			"issues_flagged", report.IssuesFlagged)
	}

	runScan()
	if scanOnce {
		_ = deps.Bus.Wait(ctx)
		return
	}

	lg.Info("scan worker is running. Press Ctrl+C to stop.", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("received signal, shutting down scan worker")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := deps.Bus.Wait(shutdownCtx); err != nil {
				lg.Warn("shutdown timeout reached, forcing exit")
			}
			return
		case <-ticker.C:
			runScan()
		}
	}
}

func startEventWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	if len(config.Kafka.Brokers) == 0 {
		lg.Error("kafka brokers are not configured")
		os.Exit(1)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  config.Kafka.Brokers,
		Topic:    config.Kafka.Topic,
		GroupID:  eventGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg.Info("event worker started. Waiting for events...", "topic", config.Kafka.Topic, "group", eventGroup)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				lg.Info("event worker shutdown complete")
				return
			}
			lg.Error("failed to read event", "error", err)
			return
		}

		var envelope struct {
			ID         string          `json:"id"`
			Type       string          `json:"type"`
			OccurredAt time.Time       `json:"occurred_at"`
			Payload    json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			lg.Warn("skipping malformed event", "offset", msg.Offset, "error", err)
			continue
		}
		lg.Info("received event",
			"event_id", envelope.ID,
			"event_type", envelope.Type,
			"occurred_at", envelope.OccurredAt,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"payload", string(envelope.Payload))
	}
}

func init() {
	scanWorkerCmd.Flags().BoolVar(&scanOnce, "once", false, "Run a single scan and exit")
	scanWorkerCmd.Flags().DurationVar(&scanInterval, "interval", 0, "Time between scans (overrides config)")
	eventWorkerCmd.Flags().StringVar(&eventGroup, "group", "song-requests-tail", "Kafka consumer group")

	workerCmd.AddCommand(scanWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
