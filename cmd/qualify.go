package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/model"
)

var qualifyMode string

var qualifyCmd = &cobra.Command{
	Use:   "qualify",
	Short: "Run one qualification batch over unprocessed seeds",
	Long:  "Groups unprocessed seeds by company, verifies them against the register, scores, escalates and gates the survivors, and persists case files. Stops early when the operation or time budget runs out; the remaining seeds stay for the next run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("qualify"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := buildQualifier(cfg, st, nil).Run(ctx, model.ParseMode(qualifyMode))
		if err != nil {
			return err
		}

		for _, e := range rep.Errors {
			zap.L().Warn("qualify: run error", zap.Error(e))
		}
		formatRunSummary(os.Stdout, rep.Run)
		if rep.Run.Qualified > 0 {
			var qualified []model.CaseFile
			for _, cf := range rep.CaseFiles {
				if cf.Status == model.CaseStatusQualified {
					qualified = append(qualified, cf)
				}
			}
			fmt.Fprintln(os.Stdout)
			formatLeads(os.Stdout, qualified, rep.Run.Mode)
		}
		return nil
	},
}

func init() {
	qualifyCmd.Flags().StringVar(&qualifyMode, "mode", string(model.ModeProduction), "output mode: production or test")
	rootCmd.AddCommand(qualifyCmd)
}
