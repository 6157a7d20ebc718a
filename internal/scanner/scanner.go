// Package scanner is a thin filtering layer over internal/source: it
// collapses whitespace, tracks line breaks (absorbing CRLF), strips
// comments, and recognizes identifier characters, while giving the
// parser a small frame push-back so alternative lexemes can be tried
// without losing line/column state.
package scanner

import (
	"fmt"

	"github.com/saugns/sgscore-go/internal/source"
)

// Special filtered character values, mirroring the original's
// SAU_SCAN_SPACE/SAU_SCAN_LNBRK/SAU_SCAN_EOF sentinels.
const (
	Space byte = ' '
	Lnbrk byte = '\n'
	EOF   byte = 0xFF
)

// Frame captures scan position for push-back.
type Frame struct {
	Line int
	Col  int
	C    byte
	pos  int
}

const maxUnget = 63

// Diagnostic is a warning or error produced while scanning, carrying
// enough location info to format like "file:line: message".
type Diagnostic struct {
	File    string
	Line    int
	Col     int
	Message string
	IsError bool
}

// Scanner filters a Source's byte stream for the parser.
type Scanner struct {
	src   *source.Source
	undo  [maxUnget]Frame
	nundo int
	sf    Frame

	Diagnostics []Diagnostic
}

// New creates a Scanner over src.
func New(src *source.Source) *Scanner {
	return &Scanner{src: src, sf: Frame{Line: 1, Col: 1}}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// IsIdentChar reports whether c may appear after the first character
// of an identifier.
func IsIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

// isLineCommentChar matches the body of a line comment: everything up
// to, but not including, the line break that ends it.
func isLineCommentChar(c byte) bool { return c != '\n' && c != '\r' && c != source.Marker }

// pushFrame records the current scan frame for possible Unget; once
// maxUnget frames are held, the oldest one is dropped.
func (s *Scanner) pushFrame() {
	if s.nundo == len(s.undo) {
		copy(s.undo[:], s.undo[1:])
		s.nundo--
	}
	s.undo[s.nundo] = s.sf
	s.nundo++
}

// Unget restores the most recently pushed frame, up to maxUnget deep.
// It returns how many frames were actually available to restore.
func (s *Scanner) Unget(n int) int {
	restored := 0
	for restored < n && s.nundo > 0 {
		if s.sf.C != EOF {
			s.src.Ungetc(1)
		}
		s.nundo--
		s.sf = s.undo[s.nundo]
		restored++
	}
	return restored
}

func (s *Scanner) warnf(format string, args ...any) {
	s.Diagnostics = append(s.Diagnostics, Diagnostic{
		File: s.src.Name(), Line: s.sf.Line, Col: s.sf.Col,
		Message: fmt.Sprintf(format, args...),
	})
}

func (s *Scanner) errorf(format string, args ...any) {
	s.Diagnostics = append(s.Diagnostics, Diagnostic{
		File: s.src.Name(), Line: s.sf.Line, Col: s.sf.Col,
		Message: fmt.Sprintf(format, args...), IsError: true,
	})
}

// GetC reads the next filtered character, applying comment/space/
// linebreak handling. Space runs collapse to a single Space; CRLF and
// lone CR/LF collapse to a single Lnbrk; comments are consumed and do
// not appear in the output at all, except that a line comment ends
// before its line break, which is returned as Lnbrk.
func (s *Scanner) GetC() byte {
	s.pushFrame()
	for {
		raw := s.src.Peek()
		if raw == source.Marker {
			s.sf.C = EOF
			return EOF
		}
		switch {
		case raw == '#':
			s.src.SkipWhile(isLineCommentChar)
			continue
		case raw == '/':
			if s.tryAhead('/') {
				s.src.SkipWhile(isLineCommentChar)
				continue
			}
			if s.tryAhead('*') {
				s.skipBlockComment()
				continue
			}
			s.src.Getc()
			s.sf.Line, s.sf.Col = s.src.Line(), s.src.Col()
			s.sf.C = '/'
			return '/'
		case isSpace(raw):
			s.src.SkipSpace()
			s.sf.Line, s.sf.Col = s.src.Line(), s.src.Col()
			s.sf.C = Space
			return Space
		case raw == '\r':
			s.src.Getc()
			if s.src.Peek() == '\n' {
				s.src.Getc()
			}
			s.sf.Line, s.sf.Col = s.src.Line(), s.src.Col()
			s.sf.C = Lnbrk
			return Lnbrk
		case raw == '\n':
			s.src.Getc()
			s.sf.Line, s.sf.Col = s.src.Line(), s.src.Col()
			s.sf.C = Lnbrk
			return Lnbrk
		default:
			c := s.src.Getc()
			s.sf.Line, s.sf.Col = s.src.Line(), s.src.Col()
			s.sf.C = c
			return c
		}
	}
}

// tryAhead peeks one byte past the current '/' and consumes both the
// '/' and the lookahead byte if they match, else leaves the source
// untouched.
func (s *Scanner) tryAhead(next byte) bool {
	mark := s.src.Pos()
	s.src.Getc() // consume '/'
	if s.src.Peek() == next {
		s.src.Getc()
		return true
	}
	s.src.Ungetc(s.src.Pos() - mark)
	return false
}

func (s *Scanner) skipBlockComment() {
	depth := 1
	for depth > 0 {
		c := s.src.Getc()
		if c == source.Marker {
			s.errorf("unterminated block comment")
			return
		}
		if c == '/' && s.src.Peek() == '*' {
			s.src.Getc()
			depth++
			continue
		}
		if c == '*' && s.src.Peek() == '/' {
			s.src.Getc()
			depth--
		}
	}
}

// GetCSkipSpace is GetC but silently absorbs a single Space result,
// returning the next non-space character.
func (s *Scanner) GetCSkipSpace() byte {
	c := s.GetC()
	if c == Space {
		c = s.GetC()
	}
	return c
}

// TryC consumes and returns true if the next filtered character
// equals testc, leaving the stream untouched otherwise.
func (s *Scanner) TryC(testc byte) bool {
	if s.GetC() == testc {
		return true
	}
	s.Unget(1)
	return false
}

// TryCNoSpace is TryC but first skips a single space.
func (s *Scanner) TryCNoSpace(testc byte) bool {
	c := s.GetC()
	n := 1
	if c == Space {
		c = s.GetC()
		n++
	}
	if c == testc {
		return true
	}
	s.Unget(n)
	return false
}

// SkipSpace advances past space on the same line.
func (s *Scanner) SkipSpace() { s.TryC(Space) }

// SkipWS advances past at most one Space followed by one line break;
// if no line break follows, nothing is consumed.
func (s *Scanner) SkipWS() { s.TryCNoSpace(Lnbrk) }

// Line returns the current 1-based line number.
func (s *Scanner) Line() int { return s.sf.Line }

// Col returns the current 1-based caret column.
func (s *Scanner) Col() int { return s.sf.Col }

// Source exposes the underlying text source, e.g. for number scanning
// that needs GetInt/GetFloat directly.
func (s *Scanner) Source() *source.Source { return s.src }

// Warningf records a warning at the current position.
func (s *Scanner) Warningf(format string, args ...any) { s.warnf(format, args...) }

// Errorf records an error at the current position.
func (s *Scanner) Errorf(format string, args ...any) { s.errorf(format, args...) }
