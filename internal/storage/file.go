package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/san-kum/rnsim/internal/sim"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
)

// FileStore keeps each run in its own directory as metadata.json plus a
// states.csv time course.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (s *FileStore) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) Save(meta RunMetadata, result *sim.Result) (string, error) {
	stamp(&meta, result)
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, statesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	if err := WriteCSV(csvFile, meta.Names, result.Times, result.Values); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// WriteCSV writes a time column followed by one column per name.
func WriteCSV(w io.Writer, names []string, times []float64, values [][]float64) error {
	cw := csv.NewWriter(w)
	header := append([]string{"time"}, names...)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, t := range times {
		row = row[:1]
		row[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for _, v := range values[i] {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV is the inverse of WriteCSV.
func ReadCSV(r io.Reader) (names []string, times []float64, values [][]float64, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil, nil
	}
	names = records[0][1:]
	for line, record := range records[1:] {
		if len(record) != len(names)+1 {
			return nil, nil, nil, fmt.Errorf("storage: csv line %d has %d fields, want %d", line+2, len(record), len(names)+1)
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, nil, nil, err
		}
		row := make([]float64, len(names))
		for j, field := range record[1:] {
			if row[j], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, nil, nil, err
			}
		}
		times = append(times, t)
		values = append(values, row)
	}
	return names, times, values, nil
}

func (s *FileStore) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.loadMetadata(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *FileStore) loadMetadata(id string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, metadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *FileStore) Load(id string) (*Run, error) {
	meta, err := s.loadMetadata(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.baseDir, id, statesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	_, times, values, err := ReadCSV(f)
	if err != nil {
		return nil, err
	}
	return &Run{RunMetadata: *meta, Times: times, Values: values}, nil
}
