package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-qualifier/internal/scoring"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Inspect the scoring weights file",
}

var weightsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current source priors and the last calibration time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		last, err := st.LastCalibration(ctx)
		if err != nil {
			return eris.Wrap(err, "weights show")
		}

		formatWeights(os.Stdout, scoring.NewStore(cfg.Weights.Path).Load())
		if last == nil {
			fmt.Fprintln(os.Stdout, "Last calibration: never")
		} else {
			fmt.Fprintf(os.Stdout, "Last calibration: %s\n", last.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	weightsCmd.AddCommand(weightsShowCmd)
	rootCmd.AddCommand(weightsCmd)
}
