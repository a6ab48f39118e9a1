package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coverline/benefits-engine/api"
)

var seedCmd = &cobra.Command{
	Use:   "seed <scenario-id>",
	Short: "Reset the database and load a demo scenario",
	Long:  "Resets the database and loads one of the demo scenarios (small-group, medicare, renewal-season).",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		_, store := mustOpenStore()
		defer store.Close()

		handler := api.NewHandler(store)
		if err := handler.SeedScenario(context.Background(), args[0]); err != nil {
			logrus.WithError(err).Fatal("Failed to load scenario")
		}
		logrus.WithField("scenario", args[0]).Info("scenario_loaded")
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
