package diag

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

type Severity int

const (
	Fatal Severity = iota
	Error
	Warning
	Message
)

var severityNames = [...]string{"fatal", "error", "warning", "message"}

func (s Severity) String() string {
	if s < Fatal || s > Message {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

type Code int

const (
	CodeUnknown Code = iota
	CodeOutOfMemory
	CodeParse
	CodeUnresolvedSymbol
	CodeMissingKineticLaw
	CodeAlgebraicRules
	CodeEvents
	CodeFunctionInline
	CodeDifferentiation
	CodeIntegration
	CodeSettings
	CodeSteadyState
	CodeAdjoint
	CodeUnknownFunction
	CodeCircular
)

var codeNames = map[Code]string{
	CodeUnknown:           "unknown",
	CodeOutOfMemory:       "out-of-memory",
	CodeParse:             "parse",
	CodeUnresolvedSymbol:  "unresolved-symbol",
	CodeMissingKineticLaw: "missing-kinetic-law",
	CodeAlgebraicRules:    "algebraic-rules",
	CodeEvents:            "events",
	CodeFunctionInline:    "function-inline",
	CodeDifferentiation:   "differentiation",
	CodeIntegration:       "integration",
	CodeSettings:          "settings",
	CodeSteadyState:       "steady-state",
	CodeAdjoint:           "adjoint",
	CodeUnknownFunction:   "unknown-function",
	CodeCircular:          "circular-definition",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("code(%d)", int(c))
}

type Entry struct {
	Severity Severity
	Code     Code
	Message  string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s [%s]: %s", e.Severity, e.Code, e.Message)
}

// DefaultCapacity bounds the number of entries a store keeps.
const DefaultCapacity = 4096

var outOfMemory = Entry{Severity: Fatal, Code: CodeOutOfMemory, Message: "diagnostic store exhausted"}

type Store struct {
	mu        sync.Mutex
	entries   []Entry
	counts    [Message + 1]int
	capacity  int
	exhausted bool
}

func NewStore() *Store {
	return NewStoreWithCapacity(DefaultCapacity)
}

func NewStoreWithCapacity(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		entries:  make([]Entry, 0, capacity+1),
		capacity: capacity,
	}
}

// Record stores one diagnostic and mirrors it to logrus.
func (s *Store) Record(sev Severity, code Code, format string, args ...interface{}) {
	if sev < Fatal || sev > Message {
		sev = Error
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exhausted {
		return
	}
	if len(s.entries) >= s.capacity {
		// the slot for the sentinel is reserved at construction
		s.exhausted = true
		s.entries = append(s.entries, outOfMemory)
		s.counts[Fatal]++
		logrus.Error(outOfMemory.String())
		return
	}

	e := Entry{Severity: sev, Code: code, Message: fmt.Sprintf(format, args...)}
	s.entries = append(s.entries, e)
	s.counts[sev]++
	mirror(e)
}

func mirror(e Entry) {
	switch e.Severity {
	case Fatal, Error:
		logrus.Errorf("%s: %s", e.Code, e.Message)
	case Warning:
		logrus.Warnf("%s: %s", e.Code, e.Message)
	default:
		logrus.Debugf("%s: %s", e.Code, e.Message)
	}
}

func (s *Store) Count(sev Severity) int {
	if sev < Fatal || sev > Message {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[sev]
}

// HasErrors reports whether any fatal or error entry is present.
func (s *Store) HasErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[Fatal]+s.counts[Error] > 0
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a copy of the stored entries in recording order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Find returns the entries carrying code.
func (s *Store) Find(code Code) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Code == code {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops every entry and returns what was stored.
func (s *Store) Clear() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.entries
	s.entries = make([]Entry, 0, s.capacity+1)
	s.counts = [Message + 1]int{}
	s.exhausted = false
	return out
}

// DumpAndClear writes every entry, most severe first, then clears the store.
func (s *Store) DumpAndClear(w io.Writer) error {
	entries := s.Clear()
	for sev := Fatal; sev <= Message; sev++ {
		for _, e := range entries {
			if e.Severity != sev {
				continue
			}
			if _, err := fmt.Fprintln(w, e.String()); err != nil {
				return err
			}
		}
	}
	return nil
}
