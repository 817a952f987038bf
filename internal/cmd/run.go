package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/detect"
	"github.com/dativo-io/veil/internal/engine"
	"github.com/dativo-io/veil/internal/store"
)

var (
	runJSON   bool
	runReport bool
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Pseudonymize a file (or stdin)",
	Long: `Run the detection and substitution pipeline over a text file and write
the pseudonymized text to stdout. With no file argument, reads stdin.

The salt comes from VEIL_SALT (or the config file) and fully determines
the value-to-pseudonym mapping: re-running with the same salt yields the
same output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit the full result (text plus replacement records) as JSON")
	runCmd.Flags().BoolVar(&runReport, "report", false, "persist a replacement report to the local store")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "cmd.run")
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var text []byte
	if len(args) == 1 {
		text, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		span.SetAttributes(attribute.String("run.file", args[0]))
	} else {
		text, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}

	eng, err := newPseudonymizer(cfg)
	if err != nil {
		return err
	}

	res := eng.Pseudonymize(ctx, string(text))
	log.Info().
		Int("entities", res.EntitiesFound()).
		Strs("entity_types", res.EntityTypes()).
		Msg("pseudonymization complete")

	if runReport {
		if err := persistReport(cmd, cfg, res); err != nil {
			return err
		}
	}

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprint(os.Stdout, res.PseudonymizedText)
	return err
}

// newPseudonymizer builds the engine shared by run and serve: a pattern
// detector configured from operator config, over the default checksum
// families.
func newPseudonymizer(cfg *config.Config) (*engine.Pseudonymizer, error) {
	detOpts := []detect.Option{}
	if cfg.PatternFile != "" {
		detOpts = append(detOpts, detect.WithPatternFile(cfg.PatternFile))
	}
	if cfg.MinScore > 0 {
		detOpts = append(detOpts, detect.WithMinScore(cfg.MinScore))
	}
	det, err := detect.NewPatternDetector(detOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading recognizers: %w", err)
	}
	return engine.New(cfg.Salt, engine.WithDetectors(det))
}

func persistReport(cmd *cobra.Command, cfg *config.Config, res *engine.Result) error {
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	st, err := store.NewStore(cfg.ReportsDBPath())
	if err != nil {
		return fmt.Errorf("opening report store: %w", err)
	}
	defer func() { _ = st.Close() }()

	report := store.NewReport("cli", res)
	if err := st.Save(cmd.Context(), report); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	log.Info().Str("report_id", report.ID).Str("db", cfg.ReportsDBPath()).Msg("report saved")
	return nil
}
