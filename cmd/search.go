package cmd

import (
	"encoding/json"
	"fmt"

	"codegraph/internal/embedding"
	"codegraph/internal/retrieval"
	"codegraph/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagSearchStrategy string
	flagSearchLimit    int
	flagSearchModel    string
	flagSearchOllama   string
	flagSearchLanguage []string
	flagSearchCategory []string
)

type searchResult struct {
	NodeID          string   `json:"node_id"`
	FilePath        string   `json:"file_path"`
	StartLine       int      `json:"start_line"`
	EndLine         int      `json:"end_line"`
	Content         string   `json:"content"`
	Score           float64  `json:"score"`
	RetrievalMethod string   `json:"retrieval_method"`
	SemanticLabels  []string `json:"semantic_labels"`
	ParentContext   string   `json:"parent_context,omitempty"`
}

var searchCmd = &cobra.Command{
	Use:   "search <repo_url> <query>",
	Short: "Search a repository's active snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoURL, query := args[0], args[1]
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		strategy := retrieval.Strategy(flagSearchStrategy)
		switch strategy {
		case retrieval.StrategyVector, retrieval.StrategyKeyword, retrieval.StrategyHybrid:
		default:
			return usageError{fmt.Errorf("unknown strategy %q (want vector, keyword, or hybrid)", flagSearchStrategy)}
		}

		st, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		var provider embedding.Provider
		if strategy != retrieval.StrategyKeyword {
			dim := cfg.VectorDimension
			provider = embedding.NewOllamaProvider(flagSearchOllama, flagSearchModel, dim)
		}

		branch := flagBranch
		if branch == "" {
			branch = "main"
		}
		repoID, err := st.EnsureRepository(cmd.Context(), repoURL, branch, repoDisplayName(repoURL))
		if err != nil {
			return fmt.Errorf("ensure repository: %w", err)
		}

		engine := retrieval.New(st, provider)
		filters := store.SearchFilters{
			Language: flagSearchLanguage,
			Category: flagSearchCategory,
		}
		results, err := engine.Retrieve(cmd.Context(), query, repoID, "", flagSearchLimit, strategy, filters)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, r := range results {
			out := searchResult{
				NodeID:          r.NodeID,
				FilePath:        r.FilePath,
				StartLine:       r.StartLine,
				EndLine:         r.EndLine,
				Content:         r.Content,
				Score:           r.Score,
				RetrievalMethod: string(r.RetrievalMethod),
				SemanticLabels:  r.SemanticLabels,
				ParentContext:   r.ParentContext,
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&flagBranch, "branch", "", "branch of the repository (default: main)")
	searchCmd.Flags().StringVar(&flagSearchStrategy, "strategy", "hybrid", "search strategy: vector, keyword, or hybrid")
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 10, "maximum results")
	searchCmd.Flags().StringVar(&flagSearchModel, "model", "nomic-embed-text", "embedding model id (vector/hybrid strategies)")
	searchCmd.Flags().StringVar(&flagSearchOllama, "ollama-url", "http://localhost:11434", "base URL of the embedding provider")
	searchCmd.Flags().StringSliceVar(&flagSearchLanguage, "language", nil, "filter: only these languages")
	searchCmd.Flags().StringSliceVar(&flagSearchCategory, "category", nil, "filter: only these categories")
}
