// Package conllu streams CoNLL-U sentence records from a byte stream into
// tree.Tree values, transparently decompressing gzip input and reporting
// malformed records with a line number and the offending text.
package conllu

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/standardbeagle/depq/internal/depqerr"
	"github.com/standardbeagle/depq/internal/symtab"
	"github.com/standardbeagle/depq/internal/tree"
)

// gzipMagic is the two-byte prefix that marks a gzip stream.
var gzipMagic = [2]byte{0x1f, 0x8b}

// Reader decodes one file's worth of sentences, one Tree per call to Next.
type Reader struct {
	path   string
	pool   *symtab.Pool
	sc     *bufio.Scanner
	lineNo int
	done   bool
}

// Open opens path, transparently unwraps gzip if the first two bytes match
// the gzip magic number, and returns a Reader over its CoNLL-U records.
func Open(path string, pool *symtab.Pool) (*Reader, io.Closer, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, nil, depqerr.NewFileOpenError(path, err)
	}

	br := bufio.NewReader(f)
	prefix, _ := br.Peek(2)

	var r io.Reader = br
	var closer io.Closer = f

	if len(prefix) == 2 && prefix[0] == gzipMagic[0] && prefix[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, nil, depqerr.NewDecodeError(path, err)
		}
		r = gz
		closer = multiCloser{gz, f}
	}

	return New(r, path, pool), closer, nil
}

// New wraps an already-open, already-decompressed stream. Callers that
// already know their input is plain text (e.g. an in-memory string) use
// this directly instead of Open.
func New(r io.Reader, path string, pool *symtab.Pool) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Reader{path: path, pool: pool, sc: sc}
}

// Next decodes the next sentence. It returns (nil, io.EOF) once the
// stream is exhausted. After a malformed token line it skips the rest of
// that sentence, so the following call starts at the next sentence.
func (r *Reader) Next() (*tree.Tree, error) {
	if r.done {
		return nil, io.EOF
	}

	b := tree.NewBuilder(r.pool)
	sawToken := false

	for r.sc.Scan() {
		r.lineNo++
		line := r.sc.Text()

		switch {
		case line == "":
			if sawToken {
				return b.Link()
			}
			continue // blank lines between sentences collapse
		case strings.HasPrefix(line, "#"):
			r.consumeComment(b, line)
		default:
			sawToken = true
			if err := r.consumeToken(b, line); err != nil {
				for r.sc.Scan() {
					r.lineNo++
					if r.sc.Text() == "" {
						break
					}
				}
				return nil, err
			}
		}
	}

	r.done = true
	if err := r.sc.Err(); err != nil {
		return nil, depqerr.NewDecodeError(r.path, err)
	}
	if !sawToken {
		return nil, io.EOF
	}
	return b.Link()
}

func (r *Reader) consumeComment(b *tree.Builder, line string) {
	body := strings.TrimPrefix(line, "#")
	body = strings.TrimSpace(body)
	key, value, ok := strings.Cut(body, "=")
	if !ok {
		b.SetMeta(body, "")
		return
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	b.SetMeta(key, value)
	if key == "text" {
		b.SetText(value)
	}
}

func (r *Reader) consumeToken(b *tree.Builder, line string) error {
	cols := strings.Split(line, "\t")
	if len(cols) != 10 {
		return depqerr.NewParseError(r.path, r.lineNo, line,
			fmt.Errorf("expected 10 tab-separated columns, got %d", len(cols)))
	}

	fields := tree.TokenFields{
		ID: cols[0], Form: cols[1], Lemma: cols[2], UPOS: cols[3], XPOS: cols[4],
		Feats: cols[5], Head: cols[6], DepRel: cols[7], Deps: cols[8], Misc: cols[9],
	}

	if err := b.AddToken(fields); err != nil {
		return depqerr.NewParseError(r.path, r.lineNo, line, err)
	}
	return nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
