package expr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnresolvedSymbol indicates a variable name missing from the name table.
	ErrUnresolvedSymbol = errors.New("expr: unresolved symbol")

	// ErrUnknownFunction indicates a call to a function outside the catalogue.
	ErrUnknownFunction = errors.New("expr: unknown function")

	// ErrArity indicates a call with the wrong number of arguments.
	ErrArity = errors.New("expr: wrong number of arguments")

	// ErrSyntax indicates a formula that could not be parsed.
	ErrSyntax = errors.New("expr: syntax error")
)

// UnresolvedError lists every name that could not be indexed.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnresolvedSymbol, strings.Join(e.Names, ", "))
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolvedSymbol }

// ParseError carries the formula text next to the underlying cause.
type ParseError struct {
	Src     string
	Wrapped error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Src, e.Wrapped)
}

func (e *ParseError) Unwrap() error { return e.Wrapped }
