// Package spreadsheet parses delimited text exports produced by laboratory
// instruments into a header list and raw string rows. Separator and quote
// characters are configurable per upload, and the input may be in any
// charset known to golang.org/x/text.
package spreadsheet

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrEmptyFile         = errors.New("file has no header row")
	ErrUnterminatedQuote = errors.New("unterminated quoted field")
	ErrUnknownCharset    = errors.New("unknown charset")
	ErrTooManyRows       = errors.New("file exceeds the maximum number of rows")
	ErrInvalidOptions    = errors.New("invalid separator or quote character")
)

// ParseError carries the 1-based line where parsing failed.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// HeaderDescriptor describes one spreadsheet column.
type HeaderDescriptor struct {
	Name        string `json:"name"`
	ColumnIndex int    `json:"columnIndex"`
	SampleValue string `json:"sampleValue"`
}

type Options struct {
	Separator rune
	Quote     rune
	Charset   string
	// MaxRows caps data rows; zero means unlimited.
	MaxRows int
}

func DefaultOptions() Options {
	return Options{Separator: ',', Quote: '"'}
}

type Sheet struct {
	Headers []HeaderDescriptor `json:"headers"`
	Rows    [][]string         `json:"rows"`
}

// Parse reads the whole input. The first non-blank record is the header row.
func Parse(r io.Reader, opts Options) (*Sheet, error) {
	if opts.Separator == 0 {
		opts.Separator = ','
	}
	if opts.Quote == 0 {
		opts.Quote = '"'
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	dec, err := decodeReader(r, opts.Charset)
	if err != nil {
		return nil, err
	}

	rr := &recordReader{r: bufio.NewReader(dec), sep: opts.Separator, quote: opts.Quote, line: 1}
	var header []string
	var rows [][]string
	for {
		rec, err := rr.read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if blank(rec) {
			continue
		}
		if header == nil {
			header = rec
			continue
		}
		if opts.MaxRows > 0 && len(rows) >= opts.MaxRows {
			return nil, ErrTooManyRows
		}
		rows = append(rows, rec)
	}
	if header == nil {
		return nil, ErrEmptyFile
	}
	return &Sheet{Headers: describe(header, rows), Rows: rows}, nil
}

func (o Options) validate() error {
	if o.Separator == o.Quote {
		return fmt.Errorf("%w: separator and quote are both %q", ErrInvalidOptions, o.Separator)
	}
	for _, ch := range []rune{o.Separator, o.Quote} {
		if ch == '\n' || ch == '\r' || ch == utf8.RuneError {
			return fmt.Errorf("%w: %q", ErrInvalidOptions, ch)
		}
	}
	return nil
}

func decodeReader(r io.Reader, charset string) (io.Reader, error) {
	var enc encoding.Encoding = unicode.UTF8
	if cs := strings.TrimSpace(charset); cs != "" {
		e, err := htmlindex.Get(cs)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCharset, cs)
		}
		enc = e
	}
	// A byte order mark wins over the declared charset.
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func describe(header []string, rows [][]string) []HeaderDescriptor {
	used := make(map[string]bool, len(header))
	suffix := make(map[string]int, len(header))
	out := make([]HeaderDescriptor, len(header))
	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = fmt.Sprintf("Column %d", i+1)
		}
		if used[name] {
			base, n := name, suffix[name]
			if n < 2 {
				n = 2
			}
			for name = fmt.Sprintf("%s (%d)", base, n); used[name]; name = fmt.Sprintf("%s (%d)", base, n) {
				n++
			}
			suffix[base] = n + 1
		}
		used[name] = true
		hd := HeaderDescriptor{Name: name, ColumnIndex: i}
		if len(rows) > 0 && i < len(rows[0]) {
			hd.SampleValue = rows[0][i]
		}
		out[i] = hd
	}
	return out
}

type recordReader struct {
	r     *bufio.Reader
	sep   rune
	quote rune
	line  int
}

// read returns the next record, or io.EOF when the input is exhausted.
// Quoted fields may contain separators, newlines and doubled quotes.
func (p *recordReader) read() ([]string, error) {
	var fields []string
	var field strings.Builder
	inQuotes := false
	started := false
	startLine := p.line

	for {
		ch, _, err := p.r.ReadRune()
		if err == io.EOF {
			if inQuotes {
				return nil, &ParseError{Line: startLine, Err: ErrUnterminatedQuote}
			}
			if !started {
				return nil, io.EOF
			}
			return append(fields, field.String()), nil
		}
		if err != nil {
			return nil, err
		}
		started = true

		if inQuotes {
			if ch == p.quote {
				next, _, err := p.r.ReadRune()
				if err == nil && next == p.quote {
					field.WriteRune(p.quote)
					continue
				}
				if err == nil {
					_ = p.r.UnreadRune()
				}
				inQuotes = false
				continue
			}
			if ch == '\n' {
				p.line++
			}
			field.WriteRune(ch)
			continue
		}

		switch ch {
		case p.sep:
			fields = append(fields, field.String())
			field.Reset()
		case '\r':
			if next, _, err := p.r.ReadRune(); err == nil && next != '\n' {
				_ = p.r.UnreadRune()
			}
			p.line++
			return append(fields, field.String()), nil
		case '\n':
			p.line++
			return append(fields, field.String()), nil
		case p.quote:
			if field.Len() == 0 {
				inQuotes = true
				continue
			}
			field.WriteRune(ch)
		default:
			field.WriteRune(ch)
		}
	}
}

// FindHeader looks a header up by its exact name.
func FindHeader(headers []HeaderDescriptor, name string) (HeaderDescriptor, bool) {
	for _, h := range headers {
		if h.Name == name {
			return h, true
		}
	}
	return HeaderDescriptor{}, false
}

// HeaderHash identifies a header shape independent of column order, so a
// reordered export of the same instrument still finds its saved mapping.
func HeaderHash(headers []HeaderDescriptor) string {
	names := make([]string, len(headers))
	for i, h := range headers {
		names[i] = h.Name
	}
	sort.Strings(names)
	sum := sha256.Sum256([]byte(strings.Join(names, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Preview returns at most n rows.
func Preview(rows [][]string, n int) [][]string {
	if n < 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}

// ParseRune interprets an operator-supplied separator or quote setting.
// Empty input yields def; "tab" and `\t` mean a tab character.
func ParseRune(s string, def rune) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "tab", `\t`:
		return '\t', nil
	case "space":
		return ' ', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("%w: %q must be a single character", ErrInvalidOptions, s)
	}
	return r, nil
}
