package cmd

import (
	"fmt"
	"strings"

	"github.com/byxorna/stageboard/pkg/stage"
	"github.com/spf13/cobra"
)

var (
	stagesKind string

	stages = &cobra.Command{
		Use:   "stages",
		Short: "Print the stage graph of a kind, or list the known kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if stagesKind == "" {
				for _, k := range cfg.KindNames() {
					fmt.Fprintln(out, k)
				}
				return nil
			}

			reg, err := cfg.Registry(stagesKind)
			if err != nil {
				return err
			}
			for _, s := range reg.Stages() {
				var next []string
				for _, n := range reg.NextStages(s) {
					next = append(next, string(n))
				}
				line := fmt.Sprintf("%-16s %-16q %-8s", s, reg.Label(s), reg.Ordering(s))
				if len(next) > 0 {
					line += " -> " + strings.Join(next, ", ")
				}
				if reg.IsTerminal(s) {
					line += " (terminal)"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
)

func init() {
	stages.Flags().StringVarP(&stagesKind, "kind", "k", "", "entity kind, e.g. "+stage.KindInternshipApplications)
	root.AddCommand(stages)
}
