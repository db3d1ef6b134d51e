package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"drift/cmd/drift/ui"
	"drift/internal/adapter/sqlite"
	"drift/internal/deploy"
)

func newHistoryCmd() *cobra.Command {
	var (
		historyPath string
		node        string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded convergence cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(historyPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.ListCycles(deploy.NodeAddress(node), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				cmd.Println(ui.Muted("no cycles recorded"))
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					strconv.FormatInt(record.ID, 10),
					ui.FaintStyle.Render(record.Finished.Local().Format(time.RFC3339)),
					string(record.Node),
					ui.Phase(record.Phase),
					strconv.Itoa(record.ChangesSucceeded) + "/" + strconv.Itoa(record.ChangesAttempted),
					strings.Join(record.Failures, "; "),
				})
			}
			cmd.Println(ui.Table([]string{"ID", "FINISHED", "NODE", "PHASE", "CHANGES", "FAILURES"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&historyPath, "history", defaultHistoryPath(), "Cycle history database path")
	cmd.Flags().StringVar(&node, "node", "", "Filter to one node address")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum cycles to show")
	return cmd
}
