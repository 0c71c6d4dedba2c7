package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-payment-sessions/app/service"
	"github.com/vibast-solutions/ms-go-payment-sessions/config"
)

const jobTimeout = 2 * time.Minute

var workerMode bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Ask providers for the outcome of stale pending checkouts",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(job{
			name:     "reconcile",
			interval: func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			run: func(ctx context.Context, s *service.PaymentService) error {
				return s.RunReconcileBatch(ctx)
			},
		})
	},
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Run record store commands",
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the record store layout if it does not exist",
	Run: func(_ *cobra.Command, _ []string) {
		cfg := mustLoadConfig()
		_, closeStore := mustCreateRecordStore(cfg)
		defer closeStore()
		logrus.WithField("driver", cfg.Store.Driver).Info("Record store initialised")
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeInitCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

// job is a batch operation that can run once or on an interval with --worker.
type job struct {
	name     string
	interval func(cfg *config.Config) time.Duration
	run      func(ctx context.Context, s *service.PaymentService) error
}

func runCommand(j job) {
	cfg, paymentService, cleanup := mustCreatePaymentService()
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !workerMode {
		runJob(ctx, j, paymentService)
		return
	}

	interval := j.interval(cfg)
	if interval <= 0 {
		logrus.WithField("job", j.name).Fatal("invalid worker interval")
	}
	logrus.WithFields(logrus.Fields{"job": j.name, "interval": interval.String()}).Info("Worker started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runJob(ctx, j, paymentService)
	for {
		select {
		case <-ctx.Done():
			logrus.WithField("job", j.name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(ctx, j, paymentService)
		}
	}
}

// runJob runs one batch under jobTimeout.
func runJob(ctx context.Context, j job, paymentService *service.PaymentService) {
	batchCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	err := j.run(batchCtx, paymentService)
	entry := logrus.WithFields(logrus.Fields{"job": j.name, "latency": time.Since(start).String()})
	if err != nil {
		entry.WithError(err).Error("job_failed")
		return
	}
	entry.Info("job_completed")
}
