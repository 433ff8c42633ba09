package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List case files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		status, _ := cmd.Flags().GetString("status")
		runID, _ := cmd.Flags().GetString("run")
		limit, _ := cmd.Flags().GetInt("limit")
		mode, _ := cmd.Flags().GetString("mode")

		filter := store.CaseFilter{RunID: runID, Limit: limit}
		switch model.CaseStatus(status) {
		case model.CaseStatusQualified, model.CaseStatusDropped:
			filter.Status = model.CaseStatus(status)
		case "all":
		default:
			return eris.Errorf("leads: --status must be qualified, dropped or all, got %q", status)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if id, _ := cmd.Flags().GetString("id"); id != "" {
			cf, err := st.GetCaseFile(ctx, id)
			if err != nil {
				return eris.Wrapf(err, "leads: get %s", id)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cf)
		}

		cfs, err := st.ListCaseFiles(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "leads")
		}

		if len(cfs) == 0 {
			fmt.Fprintln(os.Stderr, "No case files found.")
			return nil
		}
		formatLeads(os.Stdout, cfs, model.ParseMode(mode))
		return nil
	},
}

func init() {
	leadsCmd.Flags().String("status", string(model.CaseStatusQualified), "filter by status: qualified, dropped or all")
	leadsCmd.Flags().String("run", "", "filter by run id")
	leadsCmd.Flags().Int("limit", 50, "max number of case files to display")
	leadsCmd.Flags().String("mode", string(model.ModeProduction), "production hides scores; test shows them")
	leadsCmd.Flags().String("id", "", "print one case file as JSON")
	rootCmd.AddCommand(leadsCmd)
}
