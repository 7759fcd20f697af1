package main

import (
	"fmt"

	"github.com/jun/cote/internal/language"
	"github.com/spf13/cobra"
)

func newLangCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lang <filename>...",
		Short: "Print the syntax language for each file name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range args {
				fmt.Fprintf(out, "%s\t%s\n", name, language.For(name))
			}
			return nil
		},
	}
}
