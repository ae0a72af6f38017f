package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/san-kum/rnsim/internal/sim"
)

var (
	metaBucket   = []byte("meta")
	statesBucket = []byte("states")
)

// BoltStore keeps every run in one bbolt file: metadata as JSON and time
// courses in the CSV layout of FileStore, in separate buckets keyed by run
// id.
type BoltStore struct {
	filename string
	db       *bolt.DB
}

func OpenBolt(filename string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filename, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{metaBucket, statesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{filename: filename, db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Save(meta RunMetadata, result *sim.Result) (string, error) {
	stamp(&meta, result)
	mjs, err := json.Marshal(&meta)
	if err != nil {
		return "", err
	}
	var csvBuf bytes.Buffer
	if err := WriteCSV(&csvBuf, meta.Names, result.Times, result.Values); err != nil {
		return "", err
	}
	logrus.Debugf("bolt: saving run %s (%d rows)", meta.ID, len(result.Times))
	err = s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(meta.ID)
		if err := tx.Bucket(metaBucket).Put(key, mjs); err != nil {
			return err
		}
		return tx.Bucket(statesBucket).Put(key, csvBuf.Bytes())
	})
	if err != nil {
		return "", err
	}
	return meta.ID, nil
}

func (s *BoltStore) List() ([]RunMetadata, error) {
	runs := make([]RunMetadata, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(metaBucket).Cursor()
		for id, bs := c.First(); id != nil; id, bs = c.Next() {
			var meta RunMetadata
			if err := json.Unmarshal(bs, &meta); err != nil {
				return fmt.Errorf("storage: run %s: %w", id, err)
			}
			runs = append(runs, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

func (s *BoltStore) Load(id string) (*Run, error) {
	var run Run
	err := s.db.View(func(tx *bolt.Tx) error {
		key := []byte(id)
		mjs := tx.Bucket(metaBucket).Get(key)
		if mjs == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := json.Unmarshal(mjs, &run.RunMetadata); err != nil {
			return err
		}
		// bytes from Get are only valid inside the transaction
		_, times, values, err := ReadCSV(bytes.NewReader(tx.Bucket(statesBucket).Get(key)))
		run.Times, run.Values = times, values
		return err
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}
