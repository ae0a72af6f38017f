package export

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/san-kum/rnsim/internal/storage"
)

// Data is the JSON document of one stored run.
type Data struct {
	ID                   string                `json:"id"`
	Model                string                `json:"model"`
	Method               string                `json:"method"`
	Backend              string                `json:"backend"`
	EndTime              float64               `json:"end_time"`
	Steps                int                   `json:"steps"`
	Names                []string              `json:"names"`
	Times                []float64             `json:"times"`
	Series               map[string][]*float64 `json:"series"`
	Events               []Event               `json:"events,omitempty"`
	Metrics              map[string]float64    `json:"metrics"`
	AdjointSensitivities map[string]float64    `json:"adjoint_sensitivities,omitempty"`
}

type Event struct {
	ID   string  `json:"id"`
	Time float64 `json:"time"`
}

// NewData lays a run out per variable. Non-finite samples become null.
func NewData(run *storage.Run) *Data {
	d := &Data{
		ID:                   run.ID,
		Model:                run.Model,
		Method:               run.Method,
		Backend:              run.Backend,
		EndTime:              run.EndTime,
		Steps:                run.Steps,
		Names:                run.Names,
		Times:                run.Times,
		Series:               make(map[string][]*float64, len(run.Names)),
		Metrics:              run.Metrics,
		AdjointSensitivities: run.AdjointSensitivities,
	}
	for j, name := range run.Names {
		col := make([]*float64, len(run.Values))
		for k, row := range run.Values {
			if v := row[j]; !math.IsNaN(v) && !math.IsInf(v, 0) {
				col[k] = &v
			}
		}
		d.Series[name] = col
	}
	for _, e := range run.Events {
		d.Events = append(d.Events, Event{ID: e.ID, Time: e.Time})
	}
	return d
}

func WriteJSON(w io.Writer, run *storage.Run) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewData(run))
}

func ExportJSON(path string, run *storage.Run) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, run)
}
