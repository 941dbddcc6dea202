package testkit

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"hypocycle/adapters/llm/heuristic"
	"hypocycle/domain/core"
	"hypocycle/domain/spec"
	"hypocycle/domain/verdict"
	"hypocycle/internal/errors"
	"hypocycle/ports"
)

// DensityHypothesis is the reference hypothesis recognized by the built-in
// catalog.
const DensityHypothesis = "p53 accumulation varies with cell density"

// DensityValues are the cell densities swept for DensityHypothesis.
var DensityValues = []float64{25000, 50000, 75000, 100000}

// Template returns the reference p53 staining template.
func Template() spec.SampleSpecification {
	return heuristic.DefaultCatalog().Patterns[0].Template.Clone()
}

// Batch builds a valid sweep batch over field with ids "<prefix>_<n>".
func Batch(prefix, field string, values ...float64) []spec.SampleSpecification {
	template := Template()
	out := make([]spec.SampleSpecification, 0, len(values))
	for i, v := range values {
		s, err := template.WithParameter(field, v)
		if err != nil {
			panic(err)
		}
		s.SampleID = core.NewSampleID(prefix, i+1)
		s.Ordinal = i + 1
		s.VaryingField = field
		out = append(out, s)
	}
	return out
}

// DensityBatch is the four-point reference batch.
func DensityBatch() []spec.SampleSpecification {
	return Batch("p53_density_exp", spec.FieldCellDensity, DensityValues...)
}

// Rand returns a deterministic random source.
func Rand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// StaticExecutor returns fixed values per sample id; ids missing from Values
// become per-sample failures.
type StaticExecutor struct {
	Values map[core.SampleID]float64
	Err    error
	Calls  int
}

func (e *StaticExecutor) Execute(ctx context.Context, specs []spec.SampleSpecification, opts ports.ExecuteOptions) (*ports.ExecutionReport, error) {
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	report := &ports.ExecutionReport{Strategy: "static", Results: verdict.ResultSet{}}
	for _, s := range specs {
		v, ok := e.Values[s.SampleID]
		if !ok {
			report.Errors = append(report.Errors, core.NewExecutionError(s.SampleID, "no instrument response", nil))
			continue
		}
		report.Results[s.SampleID] = v
	}
	if opts.AllOrNothing && report.Failed() {
		report.Results = verdict.ResultSet{}
	}
	return report, nil
}

// InMemoryRecordRepository implements ports.RecordRepository for tests
type InMemoryRecordRepository struct {
	mu      sync.RWMutex
	records map[core.CycleID]*verdict.AnalysisRecord
	batches map[core.CycleID][]spec.SampleSpecification
	order   []core.CycleID
}

// NewInMemoryRecordRepository creates an empty repository
func NewInMemoryRecordRepository() *InMemoryRecordRepository {
	return &InMemoryRecordRepository{
		records: make(map[core.CycleID]*verdict.AnalysisRecord),
		batches: make(map[core.CycleID][]spec.SampleSpecification),
	}
}

func (r *InMemoryRecordRepository) SaveRecord(ctx context.Context, record *verdict.AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.CycleID]; !exists {
		r.order = append(r.order, record.CycleID)
	}
	copied := *record
	copied.Results = record.Results.Clone()
	r.records[record.CycleID] = &copied
	return nil
}

func (r *InMemoryRecordRepository) GetRecord(ctx context.Context, id core.CycleID) (*verdict.AnalysisRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return nil, errors.NotFound("cycle " + id.String())
	}
	copied := *record
	return &copied, nil
}

func (r *InMemoryRecordRepository) ListRecords(ctx context.Context, limit int) ([]*verdict.AnalysisRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*verdict.AnalysisRecord, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		copied := *r.records[r.order[i]]
		out = append(out, &copied)
	}
	return out, nil
}

func (r *InMemoryRecordRepository) SaveBatch(ctx context.Context, cycle core.CycleID, specs []spec.SampleSpecification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make([]spec.SampleSpecification, len(specs))
	for i, s := range specs {
		copied[i] = s.Clone()
	}
	r.batches[cycle] = copied
	return nil
}

func (r *InMemoryRecordRepository) GetBatch(ctx context.Context, cycle core.CycleID) ([]spec.SampleSpecification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs, ok := r.batches[cycle]
	if !ok {
		return nil, errors.NotFound("batch for cycle " + cycle.String())
	}
	out := make([]spec.SampleSpecification, len(specs))
	for i, s := range specs {
		out[i] = s.Clone()
	}
	return out, nil
}

// CycleIDs returns every stored cycle id, sorted.
func (r *InMemoryRecordRepository) CycleIDs() []core.CycleID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := append([]core.CycleID(nil), r.order...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

var (
	_ ports.ExecutorPort     = (*StaticExecutor)(nil)
	_ ports.RecordRepository = (*InMemoryRecordRepository)(nil)
)
