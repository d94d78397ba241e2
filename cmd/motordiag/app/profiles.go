package app

import (
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/speedwagon-io/motordiag/internal/rul"
)

func newProfilesCommand() *cobra.Command {
	var profilesPath string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Print the fault profile table used for RUL estimation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := rul.LoadProfiles(profilesPath)
			if err != nil {
				return err
			}

			t := uitable.New()
			t.MaxColWidth = 40
			t.AddRow("FAULT", "BASE RUL", "IMPACT", "BASELINE RUL")
			for _, name := range table.Names() {
				p, _ := table.Lookup(name)
				t.AddRow(name, p.BaseRUL, p.ImpactFactor, baselineRUL(p))
			}
			fallback := table.Fallback()
			t.AddRow("(unknown)", fallback.BaseRUL, fallback.ImpactFactor, baselineRUL(fallback))

			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}

	cmd.Flags().StringVar(&profilesPath, "profiles", "", "YAML profile overlay (default built-in table)")
	return cmd
}

func baselineRUL(p rul.Profile) int {
	return int(p.BaseRUL * (1 - p.ImpactFactor))
}
