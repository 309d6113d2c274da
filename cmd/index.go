package cmd

import (
	"fmt"

	"codegraph/internal/orchestrator"
	"codegraph/internal/relations"

	"github.com/spf13/cobra"
)

var (
	flagForce         bool
	flagRelationsFeed string
)

var indexCmd = &cobra.Command{
	Use:   "index <repo_url>",
	Short: "Index a repository into a new snapshot",
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

		locker, err := newLocker(cfg)
		if err != nil {
			return err
		}

		var extractor relations.Extractor
		if flagRelationsFeed != "" {
			extractor = relations.NewFileFeedExtractor(flagRelationsFeed)
		}

		orch := orchestrator.New(st, newGitManager(cfg), orchestrator.NewRegistry(), extractor, locker,
			cfg.RepoVolume, cfg.Workers, cfg.FilesPerTask, newLogger())

		branch := flagBranch
		if branch == "" {
			branch = "main"
		}

		result, err := orch.IndexRepository(cmd.Context(), repoURL, branch, repoDisplayName(repoURL), branch, flagForce)
		if err != nil {
			return err
		}

		switch result.Status {
		case orchestrator.StatusQueued:
			fmt.Println("queued")
		case orchestrator.StatusReused:
			fmt.Println(result.SnapshotID)
		case orchestrator.StatusCompleted:
			fmt.Println(result.SnapshotID)
			fmt.Printf("files: %d total, %d indexed, %d skipped, %d failed\n",
				result.Stats.FilesTotal, result.Stats.FilesIndexed, result.Stats.FilesSkipped, result.Stats.FilesFailed)
			fmt.Printf("chunks: %d  edges: %d (%d dropped to file node)\n",
				result.Stats.ChunksTotal, result.Stats.EdgesTotal, result.Stats.EdgesDroppedToFile)
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&flagBranch, "branch", "", "branch to index (default: main)")
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "force a new snapshot even if the commit was already indexed")
	indexCmd.Flags().StringVar(&flagRelationsFeed, "relations-feed", "", "path to a newline-delimited JSON cross-file relation feed (spec §6)")
}
