package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/mealgraph/config"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

var (
	// cfgFile is the path to the optional YAML configuration file.
	cfgFile string
	// logMode overrides log.mode when set.
	logMode string

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mealgraph",
	Short: "Semantic search and maintenance for the recipe knowledge graph.",
	Long: `mealgraph serves semantic search over recipes, ingredients and categories
stored in Neo4j (or a local SQLite graph), and runs the maintenance passes that
keep the graph clean: ingredient deduplication, vector pushes and enrichment.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logMode != "" {
			c.Log.Mode = logMode
		}
		l, err := logger.New(c.Log.Mode)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		cfg, log = c, l
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			log.Sync()
		}
	},
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "log mode: production or development")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
