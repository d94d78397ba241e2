package app

import (
	"fmt"
	"io"
	"os"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/speedwagon-io/motordiag/internal/model"
	"github.com/speedwagon-io/motordiag/internal/rul"
)

func newEstimateCommand() *cobra.Command {
	var (
		fault        string
		readingPath  string
		profilesPath string
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate remaining useful life for a reading and a known fault type",
		Long: "Estimate reads one reading in the ingest JSON format (from --reading or stdin) " +
			"and prints the severity breakdown and RUL for --fault. No model is needed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd.InOrStdin(), readingPath)
			if err != nil {
				return err
			}

			r, err := model.ParseReading(data)
			if err != nil {
				return err
			}

			table, err := rul.LoadProfiles(profilesPath)
			if err != nil {
				return err
			}

			// Lookup yields the fallback profile for unknown faults.
			profile, known := table.Lookup(fault)

			remaining, severity := rul.NewEstimator(table).EstimateDetailed(fault, r.Features)

			t := uitable.New()
			t.AddRow("fault type:", fault)
			t.AddRow("known profile:", known)
			t.AddRow("base rul:", profile.BaseRUL)
			t.AddRow("impact factor:", profile.ImpactFactor)
			t.AddRow("vibration severity:", severity.Vibration)
			t.AddRow("temperature severity:", severity.Temperature)
			t.AddRow("current severity:", severity.Current)
			t.AddRow("voltage severity:", severity.Voltage)
			t.AddRow("total severity:", severity.Total())
			t.AddRow("rul:", remaining)

			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&fault, "fault", "f", model.HealthyFault, "fault type to estimate for")
	fs.StringVarP(&readingPath, "reading", "r", "-", "reading JSON file, - for stdin")
	fs.StringVar(&profilesPath, "profiles", "", "YAML profile overlay (default built-in table)")

	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reading file: %w", err)
	}
	return data, nil
}
