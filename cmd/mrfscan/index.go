package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/mrfscan/internal/exitcode"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect payer index (table of contents) documents",
}

var indexListCmd = &cobra.Command{
	Use:   "list <source>",
	Short: "Print the files an index references as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexList,
}

var indexAnalyzeCmd = &cobra.Command{
	Use:   "analyze <source>",
	Short: "Print structure diagnostics for an index",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexAnalyze,
}

func init() {
	indexCmd.AddCommand(indexListCmd, indexAnalyzeCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexList(cmd *cobra.Command, args []string) error {
	enc := json.NewEncoder(os.Stdout)
	for fd, err := range newIndexReader().ListFiles(cmd.Context(), args[0]) {
		if err != nil {
			log.Error().Err(err).Str("source", args[0]).Msg("index listing failed")
			return exit(exitcode.StructureError, err)
		}
		if err := enc.Encode(fd); err != nil {
			return err
		}
	}
	return nil
}

func runIndexAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newIndexReader().Analyze(cmd.Context(), args[0])
	if a != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(a); encErr != nil {
			return encErr
		}
	}
	if err != nil {
		log.Error().Err(err).Str("source", args[0]).Msg("index analysis failed")
		return exit(exitcode.StructureError, err)
	}
	return nil
}
