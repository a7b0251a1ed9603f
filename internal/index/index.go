package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/fetch"
	"github.com/gyeh/mrfscan/internal/jsontok"
	"github.com/gyeh/mrfscan/internal/model"
)

// Shapes the reader understands.
const (
	ShapeReportingStructure = "reporting_structure"
	ShapeBlobs              = "blobs"
)

// Reader lists the files referenced by a payer's table of contents.
type Reader struct {
	opener fetch.Opener
	log    zerolog.Logger
}

// NewReader creates a Reader that fetches indexes through opener.
func NewReader(opener fetch.Opener, log zerolog.Logger) *Reader {
	return &Reader{opener: opener, log: log.With().Str("component", "index").Logger()}
}

type fileRef struct {
	Location    string     `json:"location"`
	Description model.Text `json:"description"`
}

type reportingPlan struct {
	PlanName       model.Text `json:"plan_name"`
	PlanID         model.Text `json:"plan_id"`
	PlanMarketType model.Text `json:"plan_market_type"`
}

type structureEntry struct {
	reportingPlan
	ReportingPlans     []reportingPlan `json:"reporting_plans"`
	InNetworkFiles     []fileRef       `json:"in_network_files"`
	AllowedAmountFile  *fileRef        `json:"allowed_amount_file"`
	ProviderReferences []fileRef       `json:"provider_references"`
}

type blobEntry struct {
	URL         string     `json:"url"`
	Name        model.Text `json:"name"`
	Description model.Text `json:"description"`
}

// visitor receives walk events. key is called for every top-level key;
// file returns false to stop the walk.
type visitor struct {
	key  func(string)
	file func(model.FileDescriptor) bool
}

var errStopped = errors.New("stopped")

// ListFiles lazily yields one FileDescriptor per referenced file. A document
// of unknown shape yields a single *model.StructureError.
func (r *Reader) ListFiles(ctx context.Context, source string) iter.Seq2[model.FileDescriptor, error] {
	return func(yield func(model.FileDescriptor, error) bool) {
		count := 0
		err := r.walk(ctx, source, visitor{
			file: func(fd model.FileDescriptor) bool {
				count++
				return yield(fd, nil)
			},
		})
		if errors.Is(err, errStopped) {
			return
		}
		if err != nil {
			yield(model.FileDescriptor{}, err)
			return
		}
		r.log.Info().Str("source", source).Int("count", count).Msg("found mrf files")
	}
}

// Collect drains ListFiles into a slice, stopping at the first error.
func (r *Reader) Collect(ctx context.Context, source string) ([]model.FileDescriptor, error) {
	var out []model.FileDescriptor
	for fd, err := range r.ListFiles(ctx, source) {
		if err != nil {
			return out, err
		}
		out = append(out, fd)
	}
	return out, nil
}

func (r *Reader) walk(ctx context.Context, source string, v visitor) error {
	rc, err := r.opener.Open(ctx, source)
	if err != nil {
		return fmt.Errorf("open index %s: %w", source, err)
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	dec.UseNumber()
	if err := jsontok.ExpectDelim(dec, '{'); err != nil {
		return &model.StructureError{Source: source, Msg: "index is not a JSON object", Err: err}
	}

	var (
		keys  = []string{}
		shape string
	)
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := jsontok.Key(dec)
		if err != nil {
			return &model.StructureError{Source: source, Err: err}
		}
		keys = append(keys, key)
		if v.key != nil {
			v.key(key)
		}

		switch {
		case shape == "" && key == ShapeReportingStructure:
			shape = key
			r.log.Info().Str("source", source).Msg("processing table of contents")
			err = r.walkArray(ctx, dec, source, func(i int, raw json.RawMessage) error {
				return r.emitStructure(source, i, raw, v.file)
			})
		case shape == "" && key == ShapeBlobs:
			shape = key
			r.log.Info().Str("source", source).Msg("processing legacy blobs")
			err = r.walkArray(ctx, dec, source, func(i int, raw json.RawMessage) error {
				return r.emitBlob(source, i, raw, v.file)
			})
		default:
			if key == ShapeReportingStructure || key == ShapeBlobs {
				r.log.Warn().Str("source", source).Str("key", key).Str("shape", shape).
					Msg("index carries a second file list, ignoring it")
			}
			err = jsontok.Skip(dec)
		}
		if err != nil {
			if errors.Is(err, errStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			var se *model.StructureError
			if errors.As(err, &se) {
				return err
			}
			return &model.StructureError{Source: source, Msg: fmt.Sprintf("reading %q", key), Err: err}
		}
	}

	if shape == "" {
		r.log.Error().Str("source", source).Strs("keys", keys).Msg("unknown index structure")
		return &model.StructureError{
			Source:        source,
			Msg:           "index has neither reporting_structure nor blobs",
			AvailableKeys: keys,
		}
	}
	return nil
}

// walkArray decodes one array element at a time.
func (r *Reader) walkArray(ctx context.Context, dec *json.Decoder, source string, fn func(int, json.RawMessage) error) error {
	if err := jsontok.ExpectDelim(dec, '['); err != nil {
		return &model.StructureError{Source: source, Msg: "file list is not an array", Err: err}
	}
	for i := 0; dec.More(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(i, raw); err != nil {
			return err
		}
	}
	return jsontok.ExpectDelim(dec, ']')
}

func (r *Reader) emitStructure(source string, i int, raw json.RawMessage, emit func(model.FileDescriptor) bool) error {
	var e structureEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		r.log.Warn().Err(err).Str("source", source).Int("index", i).Msg("skipping malformed reporting structure")
		return nil
	}

	plan := e.reportingPlan
	if len(e.ReportingPlans) > 0 {
		first := e.ReportingPlans[0]
		if plan.PlanName == "" {
			plan.PlanName = first.PlanName
		}
		if plan.PlanID == "" {
			plan.PlanID = first.PlanID
		}
		if plan.PlanMarketType == "" {
			plan.PlanMarketType = first.PlanMarketType
		}
	}
	if plan.PlanName == "" {
		plan.PlanName = model.Text(fmt.Sprintf("plan_%d", i))
	}

	var refURL string
	for _, ref := range e.ProviderReferences {
		if ref.Location != "" {
			refURL = ref.Location
			break
		}
	}

	base := model.FileDescriptor{
		PlanName:       string(plan.PlanName),
		PlanID:         string(plan.PlanID),
		PlanMarketType: string(plan.PlanMarketType),
		StructureIndex: i,
	}
	for j, f := range e.InNetworkFiles {
		if f.Location == "" {
			r.log.Debug().Int("index", i).Int("file_index", j).Msg("in-network file without location")
			continue
		}
		fd := base
		fd.URL = f.Location
		fd.Kind = model.KindRateFile
		fd.Description = string(f.Description)
		fd.FileIndex = j
		fd.ProviderReferenceURL = refURL
		if !emit(fd) {
			return errStopped
		}
	}
	if a := e.AllowedAmountFile; a != nil && a.Location != "" {
		fd := base
		fd.URL = a.Location
		fd.Kind = model.KindAllowedAmountFile
		fd.Description = string(a.Description)
		if !emit(fd) {
			return errStopped
		}
	}
	return nil
}

func (r *Reader) emitBlob(source string, i int, raw json.RawMessage, emit func(model.FileDescriptor) bool) error {
	var b blobEntry
	if err := json.Unmarshal(raw, &b); err != nil || b.URL == "" {
		r.log.Warn().Err(err).Str("source", source).Int("index", i).Msg("skipping blob without url")
		return nil
	}
	name := string(b.Name)
	if name == "" {
		name = fmt.Sprintf("blob_%d", i)
	}
	fd := model.FileDescriptor{
		URL:         b.URL,
		Kind:        model.KindUnknown,
		PlanName:    name,
		Description: string(b.Description),
		FileIndex:   i,
	}
	if !emit(fd) {
		return errStopped
	}
	return nil
}
