package index

import (
	"context"

	"github.com/gyeh/mrfscan/internal/fetch"
	"github.com/gyeh/mrfscan/internal/model"
)

const maxSampleURLs = 5

// Analysis describes the structure of an index document.
type Analysis struct {
	Source                string                 `json:"source"`
	Compression           string                 `json:"compression"`
	TopLevelKeys          []string               `json:"top_level_keys"`
	Shape                 string                 `json:"shape"`
	Plans                 int                    `json:"plans"`
	Files                 int                    `json:"files"`
	FilesByKind           map[model.FileKind]int `json:"files_by_kind"`
	ProviderReferenceURLs int                    `json:"provider_reference_urls"`
	SampleURLs            []string               `json:"sample_urls"`
}

// Analyze walks the whole index and reports its shape and counts. Unknown
// shapes still return the analysis alongside the StructureError.
func (r *Reader) Analyze(ctx context.Context, source string) (*Analysis, error) {
	a := &Analysis{
		Source:       source,
		Compression:  fetch.Compression(source),
		TopLevelKeys: []string{},
		FilesByKind:  make(map[model.FileKind]int),
	}
	plans := make(map[int]struct{})
	refURLs := make(map[string]struct{})

	err := r.walk(ctx, source, visitor{
		key: func(k string) {
			a.TopLevelKeys = append(a.TopLevelKeys, k)
			if a.Shape == "" && (k == ShapeReportingStructure || k == ShapeBlobs) {
				a.Shape = k
			}
		},
		file: func(fd model.FileDescriptor) bool {
			a.Files++
			a.FilesByKind[fd.Kind]++
			if fd.Kind == model.KindUnknown {
				plans[fd.FileIndex] = struct{}{}
			} else {
				plans[fd.StructureIndex] = struct{}{}
			}
			if fd.ProviderReferenceURL != "" {
				refURLs[fd.ProviderReferenceURL] = struct{}{}
			}
			if len(a.SampleURLs) < maxSampleURLs {
				a.SampleURLs = append(a.SampleURLs, fd.URL)
			}
			return true
		},
	})
	a.Plans = len(plans)
	a.ProviderReferenceURLs = len(refURLs)
	return a, err
}
