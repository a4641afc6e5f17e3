package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/d8vjr/docqa-go/internal/store"
)

// NewHistoryCmd constructs the `docqa history` command, which prints the most
// recent queries recorded by the server, oldest first.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent questions and answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := os.Getenv("DOCQA_HISTORY_DB")
			if dbPath == "" {
				var err error
				dbPath, err = store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("history: %w", err)
				}
			}

			hs, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer func() { _ = hs.Close() }()

			recs, err := hs.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			if len(recs) == 0 {
				fmt.Println("no history yet")
				return nil
			}
			for _, rec := range recs {
				fmt.Printf("[%s] %s (%s, %d sources)\n  %s\n",
					rec.CreatedAt.Format("2006-01-02 15:04"),
					rec.Question, rec.Status, rec.Sources, rec.Answer)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records to show")

	return cmd
}
