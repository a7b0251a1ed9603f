package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/mrfscan/internal/exitcode"
	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/schema"
)

var detectCmd = &cobra.Command{
	Use:   "detect <rate-file>",
	Short: "Report a rate file's provider reference schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

type detectReport struct {
	Source              string `json:"source"`
	ReportingEntityName string `json:"reporting_entity_name,omitempty"`
	LastUpdatedOn       string `json:"last_updated_on,omitempty"`
	schema.Description
}

func runDetect(cmd *cobra.Command, args []string) error {
	engine, err := newEngine(nil)
	if err != nil {
		return exit(exitcode.ValidationError, err)
	}
	doc, err := engine.ReadHeader(cmd.Context(), args[0])
	if err != nil {
		log.Error().Err(err).Str("source", args[0]).Msg("read header failed")
		return exit(exitcode.StructureError, err)
	}

	desc := schema.Describe(doc)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(detectReport{
		Source:              args[0],
		ReportingEntityName: doc.ReportingEntityName,
		LastUpdatedOn:       doc.LastUpdatedOn,
		Description:         desc,
	}); err != nil {
		return err
	}
	if desc.Kind == model.SchemaUnknown {
		return exit(exitcode.StructureError, &model.SchemaUnknownError{Source: args[0], FirstEntryKeys: desc.FirstEntryKeys})
	}
	return nil
}
