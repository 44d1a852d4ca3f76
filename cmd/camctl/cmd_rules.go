package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
)

func newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the default rule thresholds as YAML",
		Long: `Print the default thresholds. The output is a valid --rules file and a
valid "rules" section of the server configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(camrules.Defaults()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
