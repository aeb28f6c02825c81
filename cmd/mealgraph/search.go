package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/search"
)

var (
	searchType      string
	searchLimit     int
	searchThreshold float64
	similarTarget   string
)

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Rank recipes, ingredients and categories by similarity to a text query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scope, err := search.ParseScope(searchType)
		if err != nil {
			return err
		}
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.close()

		engine := newSearchEngine(ctx, cfg, b.store)
		results, err := engine.SearchText(ctx, strings.Join(args, " "), scope, limitOrDefault(cmd), thresholdOrDefault(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar <type> <id>",
	Short: "Find nodes similar to a stored node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind, err := mealgraph.ParseKind(args[0])
		if err != nil {
			return err
		}
		var target search.Scope
		if similarTarget != "" {
			if target, err = search.ParseScope(similarTarget); err != nil {
				return err
			}
		}
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.close()

		engine := search.NewEngine(b.store, nil, search.Options{PerTypeLimit: cfg.Search.PerTypeLimit}, log)
		results, err := engine.FindSimilar(ctx, kind, args[1], target, limitOrDefault(cmd), thresholdOrDefault(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show embedding coverage per node type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.close()

		stats, err := search.NewEngine(b.store, nil, search.Options{}, log).Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

func limitOrDefault(cmd *cobra.Command) int {
	if cmd.Flags().Changed("limit") {
		return searchLimit
	}
	return cfg.Search.DefaultLimit
}

func thresholdOrDefault(cmd *cobra.Command) float64 {
	if cmd.Flags().Changed("threshold") {
		return searchThreshold
	}
	return cfg.Search.DefaultThreshold
}

func init() {
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "all", "recipe, ingredient, category or all")
	for _, c := range []*cobra.Command{searchCmd, similarCmd} {
		c.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum number of results")
		c.Flags().Float64Var(&searchThreshold, "threshold", 0.7, "minimum similarity score")
	}
	similarCmd.Flags().StringVar(&similarTarget, "target", "", "type to search (default: the node's own type)")

	rootCmd.AddCommand(searchCmd, similarCmd, statsCmd)
}
