// mkfixture writes a synthetic payer index and rate files for local runs.
// Usage: go run ./cmd/mkfixture --out testdata/fixture --files 3 --items 500 --schema external --gzip
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

type tin struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type providerGroup struct {
	NPI []int64 `json:"npi"`
	TIN tin     `json:"tin"`
}

type providerReference struct {
	ID       int             `json:"provider_group_id"`
	Groups   []providerGroup `json:"provider_groups,omitempty"`
	Location string          `json:"location,omitempty"`
}

type price struct {
	Type        string   `json:"negotiated_type"`
	Rate        float64  `json:"negotiated_rate"`
	Expiration  string   `json:"expiration_date"`
	Class       string   `json:"billing_class"`
	ServiceCode []string `json:"service_code,omitempty"`
}

type rate struct {
	References []int   `json:"provider_references"`
	Prices     []price `json:"negotiated_prices"`
}

type item struct {
	Arrangement string `json:"negotiation_arrangement"`
	Name        string `json:"name"`
	CodeType    string `json:"billing_code_type"`
	Version     string `json:"billing_code_type_version"`
	Code        string `json:"billing_code"`
	Description string `json:"description"`
	Rates       []rate `json:"negotiated_rates"`
}

type rateFile struct {
	EntityName string              `json:"reporting_entity_name"`
	EntityType string              `json:"reporting_entity_type"`
	Updated    string              `json:"last_updated_on"`
	Version    string              `json:"version"`
	References []providerReference `json:"provider_references"`
	InNetwork  []item              `json:"in_network"`
}

var codePool = []struct{ code, typ, desc string }{
	{"99213", "CPT", "Office visit, established patient, low complexity"},
	{"99214", "CPT", "Office visit, established patient, moderate complexity"},
	{"27447", "CPT", "Total knee arthroplasty"},
	{"70553", "CPT", "MRI brain with and without contrast"},
	{"G0105", "HCPCS", "Colorectal cancer screening"},
	{"470", "MS-DRG", "Major hip and knee joint replacement"},
	{"0450", "RC", "Emergency room"},
}

func main() {
	out := flag.String("out", "testdata/fixture", "output directory")
	files := flag.Int("files", 2, "rate files to write")
	items := flag.Int("items", 100, "in_network items per file")
	groups := flag.Int("groups", 20, "provider groups per file")
	npis := flag.Int("npis", 3, "NPIs per provider group")
	schema := flag.String("schema", "embedded", "provider reference schema: embedded or external")
	gz := flag.Bool("gzip", false, "gzip the rate files")
	payer := flag.String("payer", "Example Health", "reporting entity name")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *schema != "embedded" && *schema != "external" {
		fmt.Fprintf(os.Stderr, "unknown schema %q\n", *schema)
		os.Exit(1)
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}
	dir, err := filepath.Abs(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve output dir: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	var locations []string
	var records int
	for f := range *files {
		name := fmt.Sprintf("rates_%03d.json", f+1)
		if *gz {
			name += ".gz"
		}
		doc := rateFile{
			EntityName: *payer,
			EntityType: "health insurance issuer",
			Updated:    "2025-03-01",
			Version:    "1.3.1",
		}
		for g := range *groups {
			ref := providerReference{ID: g + 1}
			pg := providerGroup{TIN: tin{Type: "ein", Value: fmt.Sprintf("%09d", rng.IntN(1_000_000_000))}}
			for range *npis {
				pg.NPI = append(pg.NPI, 1_000_000_000+rng.Int64N(999_999_999))
			}
			if *schema == "external" {
				loc := filepath.Join(dir, fmt.Sprintf("providers_%03d_%04d.json", f+1, g+1))
				if err := writeJSON(loc, false, map[string]any{"provider_groups": []providerGroup{pg}}); err != nil {
					fmt.Fprintf(os.Stderr, "write provider group: %v\n", err)
					os.Exit(1)
				}
				ref.Location = loc
			} else {
				ref.Groups = []providerGroup{pg}
			}
			doc.References = append(doc.References, ref)
		}
		for i := range *items {
			c := codePool[i%len(codePool)]
			it := item{
				Arrangement: "ffs",
				Name:        c.desc,
				CodeType:    c.typ,
				Version:     "2025",
				Code:        c.code,
				Description: c.desc,
			}
			refs := []int{rng.IntN(*groups) + 1, rng.IntN(*groups) + 1}
			it.Rates = []rate{{
				References: refs,
				Prices: []price{{
					Type:        "negotiated",
					Rate:        float64(rng.IntN(500_00)+1_00) / 100,
					Expiration:  "9999-12-31",
					Class:       "professional",
					ServiceCode: []string{"11", "22"},
				}},
			}}
			records += len(refs) * *npis
			doc.InNetwork = append(doc.InNetwork, it)
		}
		loc := filepath.Join(dir, name)
		if err := writeJSON(loc, *gz, doc); err != nil {
			fmt.Fprintf(os.Stderr, "write rate file: %v\n", err)
			os.Exit(1)
		}
		locations = append(locations, loc)
	}

	var inNetwork []map[string]string
	for _, loc := range locations {
		inNetwork = append(inNetwork, map[string]string{"description": "in-network rates", "location": loc})
	}
	index := map[string]any{
		"reporting_entity_name": *payer,
		"reporting_entity_type": "health insurance issuer",
		"reporting_structure": []map[string]any{{
			"reporting_plans": []map[string]string{{
				"plan_name":        *payer + " PPO",
				"plan_id_type":     "EIN",
				"plan_id":          "123456789",
				"plan_market_type": "group",
			}},
			"in_network_files": inNetwork,
		}},
	}
	indexPath := filepath.Join(dir, "index.json")
	if err := writeJSON(indexPath, false, index); err != nil {
		fmt.Fprintf(os.Stderr, "write index: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %s with %d rate files (%s schema)\n", indexPath, len(locations), *schema)
	fmt.Printf("Upper bound on records: %d\n", records)
}

func writeJSON(path string, compress bool, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = f
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(f)
		w = zw
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		f.Close()
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
