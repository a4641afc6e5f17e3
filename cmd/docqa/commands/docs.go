package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/d8vjr/docqa-go/internal/logging"
)

// NewDocsCmd constructs the `docqa docs` command, which lists the documents
// the configured source can provide.
func NewDocsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List documents available from the configured source",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			src, err := buildSource(ctx, log)
			if err != nil {
				return fmt.Errorf("docs: %w", err)
			}
			if src == nil {
				return fmt.Errorf("docs: no document source configured (set DOCQA_SOURCE_DIR or DOCQA_SOURCE_TYPE=drive)")
			}

			infos, err := src.List(ctx)
			if err != nil {
				return fmt.Errorf("docs: %w", err)
			}

			if len(infos) == 0 {
				fmt.Println("no documents found")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%s\t%s\n", info.ID, info.Name)
			}
			return nil
		},
	}
}
