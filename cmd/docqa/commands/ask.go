package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/d8vjr/docqa-go/internal/engine"
	"github.com/d8vjr/docqa-go/internal/logging"
	"github.com/d8vjr/docqa-go/internal/provider"
	"github.com/d8vjr/docqa-go/internal/rag"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// natural language question from the indexed corpus and prints the result.
func NewAskCmd() *cobra.Command {
	var docIDs []string
	var topK int

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the indexed documents",
		Long: `Ask a natural language question and get an answer grounded in the
indexed document corpus. When the corpus cannot answer, docqa says so and
falls back to the model's own knowledge, clearly labelled as ungrounded.

Examples:
  docqa ask "what is the runtime of binary search?"
  docqa ask --doc algorithms "how does quicksort pick a pivot?"
  docqa ask -k 5 "compare B-trees and LSM trees"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			index, _, err := buildIndex(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = index.Close() }()

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}
			gen, err := provider.NewGenerator(chatModel)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			retriever, err := rag.NewRetriever(emb, index, topK)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			eng, err := engine.New(&engine.Config{
				Retriever: retriever,
				Index:     index,
				Generator: gen,
				TopK:      topK,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			question := strings.Join(args, " ")
			ans, err := eng.Answer(ctx, question, docIDs)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(ans.Text)
			if len(ans.Sources) > 0 {
				fmt.Fprintln(os.Stdout)
				fmt.Println("Sources:")
				for i, src := range ans.Sources {
					fmt.Printf("  [%d] %s\n", i+1, src)
				}
			}
			if ans.Status == engine.StatusUngrounded {
				fmt.Fprintln(os.Stderr, "note: answer is not grounded in the indexed documents")
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&docIDs, "doc", "d", nil, "Restrict retrieval to this document ID (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "Number of chunks to retrieve")

	return cmd
}
