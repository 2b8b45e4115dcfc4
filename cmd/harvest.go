package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vd17tools/harvester/internal/config"
	"github.com/vd17tools/harvester/internal/pipeline"
)

func newHarvestCmd() *cobra.Command {
	var configPath string
	var baseURL string
	var contentURL string
	var set string
	var maxDownloads int
	var maxPerGenre int
	var minYear int
	var maxYear int
	var vocabPath string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Run the selection pipeline and build the labeled dataset",
		Long: `Harvest pages through the repository's identifiers, classifies each record
by its MODS genre terms, filters by publication year and per-genre quota,
downloads and unpacks the OCR archive of every accepted record, and writes
the labeled dataset along with title and rejection logs.

The run is a single sequential pass. It stops once the global download cap
is reached, or when the identifier list is exhausted.`,
		Example: `  # Harvest with the built-in Berlin State Library defaults
  vd17harvest harvest --vocab ./Gattungsbegriffe.txt --output ./harvest

  # Smaller balanced sample, custom year window
  vd17harvest harvest --vocab ./Gattungsbegriffe.txt --max-downloads 500 --max-per-genre 50 --min-year 1651 --max-year 1700

  # Config file with flag overrides
  vd17harvest harvest --config ./harvest.yaml --set 17.Jahrhundert`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("base-url") {
				cfg.OAI.BaseURL = baseURL
			}
			if flags.Changed("content-url") {
				cfg.Content.BaseURL = contentURL
			}
			if flags.Changed("set") {
				cfg.OAI.Set = set
			}
			if flags.Changed("max-downloads") {
				cfg.Selection.MaxDownloads = maxDownloads
			}
			if flags.Changed("max-per-genre") {
				cfg.Selection.MaxPerGenre = maxPerGenre
			}
			if flags.Changed("min-year") {
				cfg.Selection.MinYear = minYear
			}
			if flags.Changed("max-year") {
				cfg.Selection.MaxYear = maxYear
			}
			if flags.Changed("vocab") {
				cfg.Vocabulary = vocabPath
			}
			if flags.Changed("output") {
				cfg.Output.Dir = outputDir
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			p, err := pipeline.New(cfg)
			if err != nil {
				return err
			}

			report, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("\nHarvest complete!\n")
			fmt.Printf("  Identifiers seen: %d\n", report.Identifiers)
			fmt.Printf("  Accepted:         %d\n", report.Accepted)
			fmt.Printf("  Rejected:         %d\n", report.Rejected)
			fmt.Printf("  Dataset:          %s\n", cfg.Output.DatasetPath())

			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "OAI-PMH repository base URL")
	cmd.Flags().StringVar(&contentURL, "content-url", "", "Content-delivery base URL for OCR archives and METS/MODS")
	cmd.Flags().StringVar(&set, "set", "", "OAI-PMH set to harvest")
	cmd.Flags().IntVar(&maxDownloads, "max-downloads", 0, "Global cap on accepted records")
	cmd.Flags().IntVar(&maxPerGenre, "max-per-genre", 0, "Cap on accepted records per genre code")
	cmd.Flags().IntVar(&minYear, "min-year", 0, "Earliest accepted publication year (inclusive)")
	cmd.Flags().IntVar(&maxYear, "max-year", 0, "Latest accepted publication year (inclusive)")
	cmd.Flags().StringVar(&vocabPath, "vocab", "", "Path to the genre vocabulary file")
	cmd.Flags().StringVar(&outputDir, "output", "", "Output directory for zips, texts and the dataset")

	return cmd
}
