package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saulfrancisco-ruizacevedo/mealgraph/dedup"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/enrich"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/vectors"
)

var (
	dedupDryRun      bool
	dedupParallelism int

	pushFile      string
	pushBatchSize int

	exportType  string
	exportLimit int
	exportOut   string

	generateType  string
	generateLimit int

	enrichOpts enrich.Options
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Merge ingredients whose names differ only in case",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.close()
		locker, release, err := newLocker(cfg)
		if err != nil {
			return err
		}
		defer release()

		parallelism := cfg.Dedup.Parallelism
		if cmd.Flags().Changed("parallelism") {
			parallelism = dedupParallelism
		}
		report, err := dedup.NewEngine(b.store, locker, log).Run(ctx, dedup.Options{
			Parallelism: parallelism,
			DryRun:      dedupDryRun,
		})
		if dedupDryRun {
			for _, g := range report.Groups {
				fmt.Fprintf(cmd.OutOrStdout(), "%q: keep %s (%s), merge %d\n",
					g.Key, g.Survivor().ID, g.Survivor().Name, len(g.Losers()))
			}
		}
		if perr := printJSON(cmd.OutOrStdout(), report); perr != nil && err == nil {
			err = perr
		}
		return err
	},
}

var pushVectorsCmd = &cobra.Command{
	Use:   "push-vectors",
	Short: "Write precomputed embeddings from a JSON file to the graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		batch, err := vectors.LoadFile(pushFile)
		if err != nil {
			return err
		}
		log.Info("vector file loaded", "file", pushFile, "rows", batch.Len(), "skipped", batch.Skipped)

		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.close()

		report, err := newPusher(cfg, b.store, pushBatchSize).Push(ctx, batch)
		if report != nil {
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil && err == nil {
				err = perr
			}
		}
		return err
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export node text for external embedding generation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kinds, err := parseKinds(exportType)
		if err != nil {
			return err
		}
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.close()

		docs, err := vectors.NewExporter(b.store, log).Export(ctx, kinds, exportLimit)
		if err != nil {
			return err
		}
		if exportOut == "" || exportOut == "-" {
			return vectors.WriteJSON(cmd.OutOrStdout(), docs)
		}
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		if err := vectors.WriteJSON(f, docs); err != nil {
			_ = f.Close()
			return err
		}
		log.Info("export written", "file", exportOut, "documents", len(docs))
		return f.Close()
	},
}

var generateVectorsCmd = &cobra.Command{
	Use:   "generate-vectors",
	Short: "Embed node text with the configured model and store the vectors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		kinds, err := parseKinds(generateType)
		if err != nil {
			return err
		}
		emb, err := newEmbedder(ctx, cfg)
		if err != nil {
			return err
		}
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.close()

		g := vectors.NewGenerator(vectors.NewExporter(b.store, log), emb, newPusher(cfg, b.store, 0), log)
		report, err := g.Generate(ctx, kinds, generateLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fill in ingredient nutrition and descriptions from DBpedia",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.close()

		source := enrich.NewDBpedia(cfg.Enrich.Endpoint, 0, log)
		report, err := enrich.NewRunner(b.store, source, cfg.Enrich.RequestsPerSecond, log).Run(ctx, enrichOpts)
		if report != nil {
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil && err == nil {
				err = perr
			}
		}
		return err
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create constraints and indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.close()

		if b.neo == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "sqlite schema is created when the database is opened")
			return nil
		}
		failed := b.neo.EnsureSchema(ctx, cfg.Embedding.Dimensions)
		if failed > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied with %d failed statements (see log)\n", failed)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return nil
	},
}

func init() {
	dedupCmd.Flags().BoolVar(&dedupDryRun, "dry-run", false, "show the merge plan without writing")
	dedupCmd.Flags().IntVar(&dedupParallelism, "parallelism", 4, "groups merged concurrently")

	pushVectorsCmd.Flags().StringVar(&pushFile, "file", "", "JSON file of {id, type, embedding} items")
	pushVectorsCmd.Flags().IntVar(&pushBatchSize, "batch-size", 0, "rows per write (default from config)")
	_ = pushVectorsCmd.MarkFlagRequired("file")

	exportCmd.Flags().StringVarP(&exportType, "type", "t", "all", "recipe, ingredient, category or all")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum nodes per type (0 for all)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")

	generateVectorsCmd.Flags().StringVarP(&generateType, "type", "t", "all", "recipe, ingredient, category or all")
	generateVectorsCmd.Flags().IntVar(&generateLimit, "limit", 0, "maximum nodes per type (0 for all)")

	enrichCmd.Flags().IntVar(&enrichOpts.Limit, "limit", 0, "maximum ingredients to process (0 for all)")
	enrichCmd.Flags().StringVar(&enrichOpts.Ingredient, "ingredient", "", "enrich a single ingredient by name")
	enrichCmd.Flags().BoolVar(&enrichOpts.Force, "force", false, "re-enrich ingredients that already have data")
	enrichCmd.Flags().BoolVar(&enrichOpts.DryRun, "dry-run", false, "look up without writing")

	rootCmd.AddCommand(dedupCmd, pushVectorsCmd, exportCmd, generateVectorsCmd, enrichCmd, schemaCmd)
}
