package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gyeh/mrfscan/internal/exitcode"
)

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List payer aliases and the handler each one uses",
	RunE:  runHandlers,
}

func init() {
	rootCmd.AddCommand(handlersCmd)
}

func runHandlers(cmd *cobra.Command, args []string) error {
	registry, err := newRegistry()
	if err != nil {
		return exit(exitcode.ValidationError, err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tHANDLER")
	for _, a := range registry.Aliases() {
		fmt.Fprintf(w, "%s\t%s\n", a[0], a[1])
	}
	return w.Flush()
}
