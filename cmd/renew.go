package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coverline/benefits-engine/api"
	"github.com/coverline/benefits-engine/engine"
)

var renewWorker bool

var renewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Process due renewals",
	Long:  "Process all pending renewals whose date has arrived. With --worker, keeps running on the configured interval.",
	Run: func(_ *cobra.Command, _ []string) {
		cfg, store := mustOpenStore()
		defer store.Close()

		scheduler := api.NewRenewalScheduler(store)

		if renewWorker {
			runRenewalWorker(scheduler, cfg.Scheduler.CheckInterval)
			return
		}
		runJob("renew", func() error {
			scheduler.RunNow()
			return nil
		})
	},
}

var renewPlansCmd = &cobra.Command{
	Use:   "plans <date> <plan-id> [plan-id ...]",
	Short: "Renew specific plans at a given date",
	Args:  cobra.MinimumNArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		_, store := mustOpenStore()
		defer store.Close()

		date, err := engine.ParseDate(args[0])
		if err != nil {
			logrus.WithError(err).Fatal("Invalid renewal date")
		}
		planIDs := make([]engine.PlanID, 0, len(args)-1)
		for _, id := range args[1:] {
			planIDs = append(planIDs, engine.PlanID(id))
		}

		processor := engine.NewRenewalProcessor(store)
		report, err := processor.Process(context.Background(), date, planIDs)
		if err != nil {
			logrus.WithError(err).Fatal("Renewal processing failed")
		}

		logrus.WithFields(logrus.Fields{
			"succeeded": report.Succeeded,
			"skipped":   report.Skipped,
			"failures":  len(report.Failures),
		}).Info("renewal_completed")
		for _, f := range report.Failures {
			logrus.WithFields(logrus.Fields{
				"plan":       f.PlanID,
				"enrollment": f.EnrollmentID,
			}).Warn(f.Reason)
		}
	},
}

func init() {
	rootCmd.AddCommand(renewCmd)
	renewCmd.AddCommand(renewPlansCmd)
	renewCmd.Flags().BoolVar(&renewWorker, "worker", false, "Run continuously using configured interval")
}

func runRenewalWorker(scheduler *api.RenewalScheduler, interval time.Duration) {
	if interval <= 0 {
		logrus.Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runJob("renew", func() error {
		scheduler.RunNow()
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob("renew", func() error {
				scheduler.RunNow()
				return nil
			})
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
