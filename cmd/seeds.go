package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/store"
)

var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "Manage collected seeds",
}

var seedsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import seeds from a JSON array or JSON lines file (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return eris.Wrap(err, "seeds import: open file")
			}
			defer f.Close() //nolint:errcheck
			r = f
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := importSeeds(ctx, st, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Read %d seeds: %d inserted, %d already known, %d invalid\n",
			res.Read, res.Inserted, res.Read-res.Invalid-res.Inserted, res.Invalid)
		return nil
	},
}

var seedsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Count unprocessed seeds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		seeds, err := st.UnprocessedSeeds(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "seeds pending")
		}
		fmt.Fprintf(os.Stdout, "%d unprocessed seeds\n", len(seeds))
		return nil
	},
}

func init() {
	seedsPendingCmd.Flags().Int("limit", 10000, "max seeds to count")

	seedsCmd.AddCommand(seedsImportCmd)
	seedsCmd.AddCommand(seedsPendingCmd)
	rootCmd.AddCommand(seedsCmd)
}

type seedImport struct {
	Read     int
	Inserted int
	Invalid  int
}

// importSeeds parses r and inserts the valid seeds. Seeds need a company
// name or an org number; triggers are normalized.
func importSeeds(ctx context.Context, st store.Store, r io.Reader) (seedImport, error) {
	seeds, err := parseSeeds(r)
	if err != nil {
		return seedImport{}, err
	}
	res := seedImport{Read: len(seeds)}

	valid := seeds[:0]
	for _, sd := range seeds {
		if strings.TrimSpace(sd.CompanyName) == "" && sd.NormalizedOrgNumber() == "" {
			res.Invalid++
			continue
		}
		sd.Trigger = model.ParseTrigger(string(sd.Trigger))
		if sd.SourceType == "" {
			sd.SourceType = model.SourceDefault
		}
		valid = append(valid, sd)
	}

	n, err := st.InsertSeeds(ctx, valid)
	if err != nil {
		return res, eris.Wrap(err, "seeds import: insert")
	}
	res.Inserted = n
	return res, nil
}

// parseSeeds reads either a JSON array of seeds or a stream of seed
// objects, one per line.
func parseSeeds(r io.Reader) ([]model.Seed, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "seeds import: read")
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var seeds []model.Seed
		if err := dec.Decode(&seeds); err != nil {
			return nil, eris.Wrap(err, "seeds import: decode array")
		}
		return seeds, nil
	}

	var seeds []model.Seed
	for i := 1; ; i++ {
		var sd model.Seed
		err := dec.Decode(&sd)
		if errors.Is(err, io.EOF) {
			return seeds, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "seeds import: decode record %d", i)
		}
		seeds = append(seeds, sd)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsRune([]byte(" \t\r\n"), rune(b)) {
			return b, br.UnreadByte()
		}
	}
}
