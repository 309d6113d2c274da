package cmd

import (
	"fmt"

	"codegraph/internal/embedding"

	"github.com/spf13/cobra"
)

var (
	flagEmbedModel     string
	flagEmbedOllamaURL string
	flagEmbedDim       int
	flagEmbedBatchSize int
)

var embedCmd = &cobra.Command{
	Use:   "embed <repo_url>",
	Short: "Embed unembedded chunks of a repository's active snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoURL := args[0]
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		branch := flagBranch
		if branch == "" {
			branch = "main"
		}
		repoID, err := st.EnsureRepository(cmd.Context(), repoURL, branch, repoDisplayName(repoURL))
		if err != nil {
			return fmt.Errorf("ensure repository: %w", err)
		}
		snapshotID, err := st.ActiveSnapshotOf(cmd.Context(), repoID)
		if err != nil {
			return fmt.Errorf("active snapshot: %w", err)
		}
		if snapshotID == "" {
			return usageError{fmt.Errorf("repository %s has no active snapshot; run `codegraph index` first", repoURL)}
		}

		dim := flagEmbedDim
		if dim <= 0 {
			dim = cfg.VectorDimension
		}
		provider := embedding.NewOllamaProvider(flagEmbedOllamaURL, flagEmbedModel, dim)

		batchSize := flagEmbedBatchSize
		if batchSize <= 0 {
			batchSize = cfg.BatchSize
		}
		pipeline := embedding.New(st, provider, newLogger(), batchSize, cfg.MaxConcurrency)

		events := make(chan embedding.Event, 16)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				switch ev.Kind {
				case "embedding_progress":
					fmt.Printf("embedding: %d/%d\n", ev.Processed, ev.Total)
				case "embedding_failed":
					fmt.Printf("embedding: %d rows failed (retries exhausted)\n", ev.Failed)
				default:
					fmt.Println(ev.Kind)
				}
			}
		}()

		newlyEmbedded, reused, failed, err := pipeline.Run(cmd.Context(), snapshotID, events)
		close(events)
		<-done
		if err != nil {
			return fmt.Errorf("run embedding pipeline: %w", err)
		}

		fmt.Printf("newly_embedded=%d reused=%d failed=%d\n", newlyEmbedded, reused, failed)
		if failed > 0 {
			return fmt.Errorf("%d chunks failed to embed after retries; rerun `codegraph embed` to retry them", failed)
		}
		return nil
	},
}

func init() {
	embedCmd.Flags().StringVar(&flagBranch, "branch", "", "branch of the repository (default: main)")
	embedCmd.Flags().StringVar(&flagEmbedModel, "model", "nomic-embed-text", "embedding model id")
	embedCmd.Flags().StringVar(&flagEmbedOllamaURL, "ollama-url", "http://localhost:11434", "base URL of the embedding provider")
	embedCmd.Flags().IntVar(&flagEmbedDim, "dimension", 0, "vector dimension (default: config vector_dimension)")
	embedCmd.Flags().IntVar(&flagEmbedBatchSize, "batch-size", 0, "chunks per provider call (default: config batch_size)")
}
