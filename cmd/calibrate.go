package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/publish"
	"github.com/sells-group/lead-qualifier/pkg/notion"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Adjust source priors from graded feedback",
	Long:  "Computes per-source relevance from unconsumed feedback grades and raises or lowers each eligible source's priors. Use --import-notion to pull grades set on published pages first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("calibrate"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		importNotion, _ := cmd.Flags().GetBool("import-notion")
		if importNotion {
			if cfg.Notion.Token == "" || cfg.Notion.CaseDB == "" {
				return eris.New("calibrate: notion.token and notion.case_db are required for --import-notion")
			}
			imp, err := publish.ImportFeedback(ctx, notion.NewClient(cfg.Notion.Token), cfg.Notion.CaseDB, st)
			if err != nil {
				return err
			}
			for _, e := range imp.Errors {
				zap.L().Warn("calibrate: feedback import error", zap.Error(e))
			}
			fmt.Fprintf(os.Stdout, "Imported %d grades (%d skipped, %d errors)\n", imp.Imported, imp.Skipped, len(imp.Errors))
		}

		force, _ := cmd.Flags().GetBool("force")
		res, err := buildCalibrator(cfg, st).Run(ctx, force)
		if err != nil {
			return err
		}
		formatCalibration(os.Stdout, res)
		return nil
	},
}

func init() {
	calibrateCmd.Flags().Bool("force", false, "calibrate even when fewer grades than calibrate.min_items are pending")
	calibrateCmd.Flags().Bool("import-notion", false, "import grades from the Notion case database before calibrating")
	rootCmd.AddCommand(calibrateCmd)
}
