package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gyeh/mrfscan/internal/exitcode"
	"github.com/gyeh/mrfscan/internal/model"
	"github.com/gyeh/mrfscan/internal/normalize"
	"github.com/gyeh/mrfscan/internal/parquetread"
)

var inspectSample int64

var inspectCmd = &cobra.Command{
	Use:   "inspect <batch.parquet>",
	Short: "Validate a written Parquet batch and print sampled stats",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().Int64Var(&inspectSample, "sample", 10_000, "Rows to sample")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]

	sha, err := normalize.FileHash(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash file")
		return exit(exitcode.ValidationError, err)
	}
	stat, err := os.Stat(path)
	if err != nil {
		return exit(exitcode.ValidationError, err)
	}

	reader, err := parquetread.Open(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to open parquet file")
		return exit(exitcode.ValidationError, err)
	}
	defer reader.Close()

	if err := parquetread.ValidateSchema(reader.Schema()); err != nil {
		log.Error().Err(err).Msg("schema validation failed")
		return exit(exitcode.ValidationError, err)
	}

	numRows := reader.NumRows()
	sampleSize := min(inspectSample, numRows)

	codeTypes := make(map[string]int64)
	payers := make(map[string]int64)
	var sampled, nullNPI int64
	buf := make([]model.CanonicalRateRecord, 256)
	for sampled < sampleSize {
		n, readErr := reader.Read(buf)
		for i := 0; i < n && sampled < sampleSize; i++ {
			sampled++
			codeTypes[buf[i].BillingCodeType]++
			payers[buf[i].Payer]++
			if buf[i].ProviderNPI == nil {
				nullNPI++
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			log.Error().Err(readErr).Msg("failed to read sample rows")
			return exit(exitcode.ValidationError, readErr)
		}
	}

	fmt.Println("=== mrfscan inspect ===")
	fmt.Printf("File:       %s\n", path)
	fmt.Printf("SHA-256:    %s\n", sha)
	fmt.Printf("Size:       %d bytes\n", stat.Size())
	fmt.Printf("Total rows: %d\n", numRows)
	fmt.Printf("Sampled:    %d rows (%d without provider NPI)\n", sampled, nullNPI)
	fmt.Println()
	fmt.Println("Billing code types (sampled):")
	for _, ct := range model.AllCodeTypes {
		if count := codeTypes[ct.Name]; count > 0 {
			fmt.Printf("  %-10s %8d sampled → ~%d projected rows\n", ct.Name, count, count*numRows/sampled)
		}
	}
	fmt.Println()
	fmt.Println("Payers (sampled):")
	names := make([]string, 0, len(payers))
	for p := range payers {
		names = append(names, p)
	}
	sort.Strings(names)
	for _, p := range names {
		fmt.Printf("  %-30s %8d\n", p, payers[p])
	}
	fmt.Println("Schema validation: OK")
	return nil
}
