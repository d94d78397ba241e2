package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/speedwagon-io/motordiag/internal/config"
	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
	"github.com/speedwagon-io/motordiag/internal/pipeline"
)

func newValidateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the config and artifacts, then run one probe classification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}

			log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

			artifacts, err := loadArtifacts(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}

			p := pipeline.FromArtifacts(log, nil, artifacts)
			if err := p.Probe(cmd.Context()); err != nil {
				return fmt.Errorf("probe failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: backend=%s input_shape=%s labels=%d profiles=%d\n",
				cfg.Inference.Backend,
				artifacts.Classifier.InputShape(),
				len(artifacts.Labels),
				artifacts.Profiles.Len(),
			)
			return nil
		},
	}
}
