// Package depqerr defines the typed error kinds the treebank query engine
// can raise, mirroring how errors are layered elsewhere in this codebase:
// one struct per kind, each carrying the context a caller needs, each
// Unwrap-able to its underlying cause.
package depqerr

import (
	"fmt"
	"time"
)

// Kind identifies one of the error categories the pipeline can surface.
type Kind string

const (
	KindFileOpen      Kind = "file_open"
	KindDecode        Kind = "decode"
	KindParse         Kind = "parse"
	KindQueryParse    Kind = "query_parse"
	KindQuerySemantic Kind = "query_semantic"
	KindBug           Kind = "bug"
)

// FileOpenError reports that a corpus file could not be opened. The file
// is logged and skipped; iteration over the rest of the input continues.
type FileOpenError struct {
	Path       string
	Underlying error
	Timestamp  time.Time
}

func NewFileOpenError(path string, err error) *FileOpenError {
	return &FileOpenError{Path: path, Underlying: err, Timestamp: time.Now()}
}

func (e *FileOpenError) Kind() Kind   { return KindFileOpen }
func (e *FileOpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Path, e.Underlying)
}
func (e *FileOpenError) Unwrap() error { return e.Underlying }

// DecodeError reports a gzip or encoding failure. Logged and skipped
// within a file; the stream resumes at the next file.
type DecodeError struct {
	Path       string
	Underlying error
	Timestamp  time.Time
}

func NewDecodeError(path string, err error) *DecodeError {
	return &DecodeError{Path: path, Underlying: err, Timestamp: time.Now()}
}

func (e *DecodeError) Kind() Kind   { return KindDecode }
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Underlying)
}
func (e *DecodeError) Unwrap() error { return e.Underlying }

// ParseError reports a malformed sentence record, with the line number and
// offending line text so a caller can report it precisely.
type ParseError struct {
	Path       string
	Line       int
	LineText   string
	Underlying error
	Timestamp  time.Time
}

func NewParseError(path string, line int, lineText string, err error) *ParseError {
	return &ParseError{Path: path, Line: line, LineText: lineText, Underlying: err, Timestamp: time.Now()}
}

func (e *ParseError) Kind() Kind { return KindParse }
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v (line: %q)", e.Path, e.Line, e.Underlying, e.LineText)
}
func (e *ParseError) Unwrap() error { return e.Underlying }

// QueryParseError reports a syntactic error at a location in query text.
// Fatal for the query it belongs to.
type QueryParseError struct {
	Pos     int // byte offset into the query text
	Line    int
	Column  int
	Message string
}

func NewQueryParseError(pos, line, column int, message string) *QueryParseError {
	return &QueryParseError{Pos: pos, Line: line, Column: column, Message: message}
}

func (e *QueryParseError) Kind() Kind { return KindQueryParse }
func (e *QueryParseError) Error() string {
	return fmt.Sprintf("query parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// QuerySemanticError reports a semantic defect in an otherwise
// syntactically valid query: a duplicate variable name, unknown
// constraint key, disconnected variable, or anonymous-only edge. Fatal
// for the query it belongs to.
type QuerySemanticError struct {
	Variable string
	Message  string
}

func NewQuerySemanticError(variable, message string) *QuerySemanticError {
	return &QuerySemanticError{Variable: variable, Message: message}
}

func (e *QuerySemanticError) Kind() Kind { return KindQuerySemantic }
func (e *QuerySemanticError) Error() string {
	if e.Variable == "" {
		return fmt.Sprintf("query semantic error: %s", e.Message)
	}
	return fmt.Sprintf("query semantic error for %q: %s", e.Variable, e.Message)
}

// WithVariable attaches the declaring variable to an error raised before
// its variable name was known (e.g. while still parsing that variable's
// constraint list). It returns e so callers can chain it onto the
// constructor.
func (e *QuerySemanticError) WithVariable(name string) *QuerySemanticError {
	e.Variable = name
	return e
}

// BugError reports an internal invariant violation (e.g. a token head
// pointing out of range after a Tree was linked). It is recovered at the
// producing worker's boundary and returned as a value, never left to
// panic across a package boundary or corrupt sibling workers.
type BugError struct {
	Operation   string
	Underlying  error
	Recoverable bool
}

func NewBugError(op string, err error) *BugError {
	return &BugError{Operation: op, Underlying: err}
}

func (e *BugError) Kind() Kind { return KindBug }
func (e *BugError) Error() string {
	return fmt.Sprintf("internal invariant violated during %s: %v", e.Operation, e.Underlying)
}
func (e *BugError) Unwrap() error { return e.Underlying }

// WithRecoverable marks whether the worker that raised this bug can skip
// the offending sentence and continue, or must abort the file.
func (e *BugError) WithRecoverable(recoverable bool) *BugError {
	e.Recoverable = recoverable
	return e
}

// IsRecoverable reports whether the caller may resume iteration after
// logging this error.
func (e *BugError) IsRecoverable() bool { return e.Recoverable }
