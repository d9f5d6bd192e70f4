package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"insidertrack/internal/ingestor/delivery/consumer"
	delivery "insidertrack/internal/ingestor/delivery/http"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/internal/ingestor/normalizer"
	"insidertrack/internal/ingestor/service"
	"insidertrack/internal/ingestor/validator"
	"insidertrack/pkg/logger"

	"github.com/spf13/cobra"
)

// TriggerCLI marks runs started from the command line.
const TriggerCLI = "cli"

var (
	configPath string

	runSource       string
	runUpsert       bool
	runMaxDocuments int

	auditSample int
	auditApply  bool

	validateFile   string
	validateSource string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the ingestor: admin API, scheduler and run request consumer",
	Run:   runServe,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs one source once and prints the run summary",
	Run:   runOnce,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Re-validates a sample of stored trades and prints the report",
	Run:   runAudit,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Normalizes and scores a raw trade read from a JSON file",
	Run:   runValidate,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, true)
	defer a.close()
	cfg, appLogger := a.cfg, a.logger

	appLogger.Info("Starting Ingestor Service", logger.Field("name", cfg.App.Name))

	schedulerSvc, err := service.NewSchedulerService(cfg, a.redis.Client, a.audit, appLogger, nil)
	if err != nil {
		appLogger.Fatal("Invalid scheduler configuration", logger.ErrorField(err))
	}
	go schedulerSvc.Start(ctx)

	runRequestSvc := service.NewRunRequestService(a.redis.Client, a.ingestion, appLogger, cfg.Scheduler.RunTimeout)
	redisConsumer := consumer.NewRedisConsumer(cfg, runRequestSvc, appLogger)
	redisConsumer.Start(ctx)

	e := delivery.NewServer(delivery.Services{Ingestion: a.ingestion, Query: a.query, Audit: a.audit}, appLogger)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.ErrorField(err))
	}
	redisConsumer.Stop()

	appLogger.Info("Server exiting")
}

func runOnce(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, false)
	defer a.close()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Scheduler.RunTimeout)
	defer cancel()

	summary, err := a.ingestion.RunIngestion(ctx, runSource, dto.RunOptions{
		Trigger:      TriggerCLI,
		Upsert:       runUpsert,
		MaxDocuments: runMaxDocuments,
	})
	if err != nil {
		a.logger.Fatal("Ingestion run rejected", logger.ErrorField(err), logger.StringField("source", runSource))
	}
	printJSON(summary)
	if summary.Status != "COMPLETED" {
		a.close()
		os.Exit(2)
	}
}

func runAudit(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, false)
	defer a.close()

	report, err := a.audit.AuditStore(ctx, auditSample, auditApply)
	if err != nil {
		a.logger.Fatal("Audit failed", logger.ErrorField(err))
	}
	printJSON(report)
}

// runValidate needs neither the database nor Redis.
func runValidate(cmd *cobra.Command, args []string) {
	cfg, appLogger := loadBase()
	defer func() { _ = appLogger.Sync() }()

	data, err := os.ReadFile(validateFile)
	if err != nil {
		log.Fatalf("Failed to read trade file: %v", err)
	}
	var raw dto.RawTrade
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Fatalf("Failed to decode trade file: %v", err)
	}

	auditSvc := service.NewAuditService(nil, normalizer.New(nil), validator.New(validator.PolicyFromConfig(cfg.Validation), nil), appLogger, nil)
	resp, err := auditSvc.ValidateRaw(raw, validateSource)
	if err != nil {
		log.Fatalf("Trade cannot be normalized: %v", err)
	}
	printJSON(resp)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
	fmt.Println(string(out))
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "ingestor",
		Short: "Insider trade ingestion pipeline",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config-ingestor.yaml", "Path to the configuration file")

	runCmd.Flags().StringVarP(&runSource, "source", "s", "", "Configured source name to run")
	runCmd.Flags().BoolVar(&runUpsert, "upsert", false, "Update existing records instead of skipping them")
	runCmd.Flags().IntVar(&runMaxDocuments, "max-documents", 0, "Cap on fetched documents (0 keeps the source default)")
	_ = runCmd.MarkFlagRequired("source")

	auditCmd.Flags().IntVar(&auditSample, "sample", 1000, "Number of stored trades to re-validate")
	auditCmd.Flags().BoolVar(&auditApply, "apply", false, "Persist status and confidence changes")

	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "JSON file holding one raw trade")
	validateCmd.Flags().StringVar(&validateSource, "source", "manual", "Source name attributed to the trade")
	_ = validateCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(serveCmd, runCmd, auditCmd, validateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing ingestor CLI: %s\n", err)
		os.Exit(1)
	}
}
