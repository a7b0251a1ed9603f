package main

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/mrfscan/internal/config"
	"github.com/gyeh/mrfscan/internal/exitcode"
	"github.com/gyeh/mrfscan/internal/model"
)

var scanFlags struct {
	payer     string
	codes     []string
	codesFile string
	planName  string
	planID    string
}

var scanCmd = &cobra.Command{
	Use:   "scan <rate-file>",
	Short: "Stream a rate file's canonical records to stdout as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVar(&scanFlags.payer, "payer", "", "Payer name; selects the payer handler (required)")
	f.StringSliceVar(&scanFlags.codes, "codes", nil, "Billing code whitelist (comma-separated)")
	f.StringVar(&scanFlags.codesFile, "codes-file", "", "File with one billing code per line")
	f.StringVar(&scanFlags.planName, "plan-name", "", "Plan name to stamp on records")
	f.StringVar(&scanFlags.planID, "plan-id", "", "Plan id to stamp on records")
	_ = scanCmd.MarkFlagRequired("payer")
	rootCmd.AddCommand(scanCmd)
}

// scanCodes resolves the whitelist: flags win over the config file.
func scanCodes() ([]string, error) {
	if scanFlags.codes == nil && scanFlags.codesFile == "" {
		return cfg.BillingCodes, nil
	}
	codes := append([]string{}, scanFlags.codes...)
	if scanFlags.codesFile != "" {
		more, err := config.LoadBillingCodes(scanFlags.codesFile)
		if err != nil {
			return nil, err
		}
		codes = append(codes, more...)
	}
	return codes, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	codes, err := scanCodes()
	if err != nil {
		return exit(exitcode.ValidationError, err)
	}
	engine, err := newEngine(codes)
	if err != nil {
		log.Error().Err(err).Msg("engine setup failed")
		return exit(exitcode.ValidationError, err)
	}

	fd := model.FileDescriptor{
		URL:      args[0],
		Kind:     model.KindRateFile,
		PlanName: scanFlags.planName,
		PlanID:   scanFlags.planID,
	}
	out := bufio.NewWriterSize(os.Stdout, 1<<20)
	defer out.Flush()
	enc := json.NewEncoder(out)

	var stats model.FileStats
	for rec, err := range engine.Scan(cmd.Context(), fd, scanFlags.payer, &stats) {
		if err != nil {
			log.Error().Err(err).Str("source", args[0]).Int64("records", stats.RecordsEmitted).Msg("scan failed")
			out.Flush()
			return exit(exitcode.StructureError, err)
		}
		if err := enc.Encode(&rec); err != nil {
			return err
		}
	}

	log.Info().
		Str("path", stats.Path).
		Stringer("schema", stats.Schema).
		Int64("items_seen", stats.ItemsSeen).
		Int64("items_skipped", stats.ItemsSkipped).
		Int64("items_filtered", stats.ItemsFiltered).
		Int64("records", stats.RecordsEmitted).
		Msg("scan complete")
	return nil
}
