package storage

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/san-kum/rnsim/internal/sim"
)

var (
	ErrNotFound    = errors.New("storage: run not found")
	ErrUnknownKind = errors.New("storage: unknown store kind")
)

type RunMetadata struct {
	ID          string             `json:"id"`
	Model       string             `json:"model"`
	Timestamp   time.Time          `json:"timestamp"`
	Method      string             `json:"method"`
	Backend     string             `json:"backend"`
	EndTime     float64            `json:"end_time"`
	Steps       int                `json:"steps"`
	Sensitivity bool               `json:"sensitivity"`
	Adjoint     bool               `json:"adjoint"`
	Names       []string           `json:"names"`
	Events      []sim.EventRecord  `json:"events,omitempty"`
	Metrics     map[string]float64 `json:"metrics"`
	// AdjointSensitivities holds d(objective)/dp per parameter name.
	AdjointSensitivities map[string]float64 `json:"adjoint_sensitivities,omitempty"`
}

// Run is a stored time course.
type Run struct {
	RunMetadata
	Times  []float64
	Values [][]float64
}

// Store persists finished runs.
type Store interface {
	Save(meta RunMetadata, result *sim.Result) (string, error)
	Load(id string) (*Run, error)
	List() ([]RunMetadata, error)
	Close() error
}

// NewMetadata describes a run of model under s. ID and Timestamp are filled
// in by Save.
func NewMetadata(model string, s sim.Settings, result *sim.Result) RunMetadata {
	outputs := s.Outputs()
	return RunMetadata{
		Model:       model,
		Method:      s.Method,
		Backend:     s.Backend,
		EndTime:     outputs[len(outputs)-1],
		Steps:       len(outputs) - 1,
		Sensitivity: s.Sensitivity,
		Adjoint:     s.Adjoint,
		Names:       append([]string(nil), result.Names...),
		Events:      append([]sim.EventRecord(nil), result.Events...),
		Metrics:     result.Metrics,
	}
}

func newID(model string) string {
	if model == "" {
		model = "run"
	}
	return fmt.Sprintf("%s_%s", model, uuid.NewString()[:8])
}

// stamp fills the fields Save owns.
func stamp(meta *RunMetadata, result *sim.Result) {
	meta.ID = newID(meta.Model)
	meta.Timestamp = time.Now().UTC()
	if meta.Names == nil {
		meta.Names = append([]string(nil), result.Names...)
	}
	// JSON has no encoding for NaN or infinities
	metrics := make(map[string]float64, len(meta.Metrics))
	for name, v := range meta.Metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			logrus.Warnf("storage: dropping non-finite metric %s from run %s", name, meta.ID)
			continue
		}
		metrics[name] = v
	}
	meta.Metrics = metrics
}

func sortRuns(runs []RunMetadata) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].Timestamp.Equal(runs[j].Timestamp) {
			return runs[i].Timestamp.Before(runs[j].Timestamp)
		}
		return runs[i].ID < runs[j].ID
	})
}

// Open returns the store of the given kind rooted at dataDir: "file" keeps
// one directory per run, "bolt" a single runs.db file.
func Open(kind, dataDir string) (Store, error) {
	switch kind {
	case "", "file":
		fs := NewFileStore(dataDir)
		if err := fs.Init(); err != nil {
			return nil, err
		}
		return fs, nil
	case "bolt":
		return OpenBolt(filepath.Join(dataDir, "runs.db"))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}
