package parser

import (
	"math"

	"github.com/saugns/sgscore-go/internal/scanner"
)

// numSymLookup resolves a symbolic atom (e.g. pan letters C/L/R) to a
// numeric value, returning ok=false if name is not a recognized
// symbol in the current context.
type numSymLookup func(name string) (float64, bool)

// scanNum parses a numeric expression: additive terms of
// multiplicative terms of power terms of atoms, with parentheses and
// unary sign on atoms, mirroring the original's scan_num_r precedence
// climb (NUMEXP_ADT < MLT < POW < NUM). Any ±Inf appearing in a
// subexpression taints the whole scan (reported and rejected); NaN
// aborts the scan the same way. ok is false if no valid expression
// was found; a rejected result or an unrecognized symbol leaves its
// text consumed.
func scanNum(s *scanner.Scanner, lookup numSymLookup) (value float64, ok bool) {
	v, tainted, had := scanAdd(s, lookup)
	if !had {
		return 0, false
	}
	if tainted || math.IsInf(v, 0) || math.IsNaN(v) {
		s.Errorf("numeric expression contains an infinity or NaN; rejected")
		return 0, false
	}
	return v, true
}

func scanAdd(s *scanner.Scanner, lookup numSymLookup) (value float64, tainted bool, ok bool) {
	v, t, had := scanMul(s, lookup)
	if !had {
		return 0, false, false
	}
	tainted = t
	for {
		c := s.GetCSkipSpace()
		switch c {
		case '+':
			rv, rt, rhad := scanMul(s, lookup)
			if !rhad {
				s.Unget(1)
				return v, tainted, true
			}
			v += rv
			tainted = tainted || rt
		case '-':
			rv, rt, rhad := scanMul(s, lookup)
			if !rhad {
				s.Unget(1)
				return v, tainted, true
			}
			v -= rv
			tainted = tainted || rt
		default:
			s.Unget(1)
			return v, tainted, true
		}
	}
}

func scanMul(s *scanner.Scanner, lookup numSymLookup) (value float64, tainted bool, ok bool) {
	v, t, had := scanPow(s, lookup)
	if !had {
		return 0, false, false
	}
	tainted = t
	for {
		c := s.GetCSkipSpace()
		switch c {
		case '*':
			rv, rt, rhad := scanPow(s, lookup)
			if !rhad {
				s.Unget(1)
				return v, tainted, true
			}
			v *= rv
			tainted = tainted || rt
		case '/':
			rv, rt, rhad := scanPow(s, lookup)
			if !rhad {
				s.Unget(1)
				return v, tainted, true
			}
			v /= rv
			tainted = tainted || rt
		default:
			s.Unget(1)
			return v, tainted, true
		}
	}
}

func scanPow(s *scanner.Scanner, lookup numSymLookup) (value float64, tainted bool, ok bool) {
	v, t, had := scanAtom(s, lookup)
	if !had {
		return 0, false, false
	}
	tainted = t
	c := s.GetCSkipSpace()
	if c != '^' {
		s.Unget(1)
		return v, tainted, true
	}
	rv, rt, rhad := scanPow(s, lookup) // right-assoc
	if !rhad {
		s.Unget(1)
		return v, tainted, true
	}
	return math.Pow(v, rv), tainted || rt || math.IsInf(v, 0) || math.IsInf(rv, 0), true
}

func scanAtom(s *scanner.Scanner, lookup numSymLookup) (value float64, tainted bool, ok bool) {
	neg := false
	c := s.GetCSkipSpace()
	for c == '+' || c == '-' {
		if c == '-' {
			neg = !neg
		}
		c = s.GetCSkipSpace()
	}
	switch {
	case c == '(':
		v, t, had := scanAdd(s, lookup)
		if !had {
			s.Unget(1)
			return 0, false, false
		}
		if s.GetCSkipSpace() != ')' {
			s.Errorf("expected closing parenthesis")
		}
		if neg {
			v = -v
		}
		return v, t, true
	case c >= '0' && c <= '9' || c == '.':
		s.Unget(1)
		src := s.Source()
		v, had := src.GetFloat(false)
		if !had {
			return 0, false, false
		}
		if neg {
			v = -v
		}
		return v, math.IsInf(v, 0), true
	case isSymStart(c):
		name := readIdentTail(s, c)
		if lookup != nil {
			if v, found := lookup(name); found {
				if neg {
					v = -v
				}
				return v, math.IsInf(v, 0), true
			}
		}
		s.Errorf("unrecognized symbol %q in numeric expression", name)
		return 0, false, false
	default:
		s.Unget(1)
		return 0, false, false
	}
}

func isSymStart(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func readIdentTail(s *scanner.Scanner, first byte) string {
	buf := []byte{first}
	for {
		c := s.GetC()
		if !scanner.IsIdentChar(c) {
			s.Unget(1)
			break
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// scanTimeval scans a non-negative time value in milliseconds,
// warning and clamping on a negative result (the original rejects
// negative time values outright).
func scanTimeval(s *scanner.Scanner) (ms int32, ok bool) {
	v, had := scanNum(s, nil)
	if !had {
		return 0, false
	}
	if v < 0 {
		s.Warningf("time value may not be negative; clamped to 0")
		v = 0
	}
	return int32(v + 0.5), true
}
