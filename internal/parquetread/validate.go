package parquetread

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// requiredColumns are the columns every rate record batch carries.
var requiredColumns = []string{
	"billing_code",
	"billing_code_type",
	"negotiated_rate",
	"negotiated_type",
	"payer",
	"provider_npi",
	"record_hash",
}

// ValidateSchema checks that the Parquet schema contains the rate record
// columns.
func ValidateSchema(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}

	var missing []string
	for _, col := range requiredColumns {
		if !columns[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
