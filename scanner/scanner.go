// Package scanner is a convenience lexer over a string source, adapted
// for the full token vocabulary of spec §6.2. It exists so the compiler
// and VM can be exercised end-to-end in tests; the spec treats the lexer
// itself as an external collaborator and imposes no format requirements
// on it beyond the Token/Reader boundary in package token.
package scanner

import (
	"strings"
	"unicode"

	"koa/token"
)

var keywords = map[string]token.Type{
	"void": token.KwVoid, "null": token.KwNull, "bool": token.KwBool,
	"char": token.KwChar, "int8": token.KwInt8, "uint8": token.KwUint8,
	"int16": token.KwInt16, "uint16": token.KwUint16, "int32": token.KwInt32,
	"uint32": token.KwUint32, "int": token.KwInt, "uint": token.KwUint,
	"int64": token.KwInt64, "uint64": token.KwUint64, "long": token.KwLong,
	"ulong": token.KwUlong, "float": token.KwFloat, "double": token.KwDouble,
	"str": token.KwStr, "vec": token.KwVec, "dict": token.KwDict,
	"func": token.KwFunc, "struct": token.KwStruct, "union": token.KwUnion,
	"if": token.KwIf, "else": token.KwElse, "while": token.KwWhile,
	"for": token.KwFor, "do": token.KwDo, "switch": token.KwSwitch,
	"case": token.KwCase, "default": token.KwDefault, "break": token.KwBreak,
	"continue": token.KwContinue, "return": token.KwReturn, "try": token.KwTry,
	"catch": token.KwCatch, "throw": token.KwThrow, "true": token.KwTrue,
	"false": token.KwFalse, "import": token.KwImport, "spawn": token.KwSpawn,
	"join": token.KwJoin,
}

// Scanner tokenizes a source string, implementing token.Reader with
// lookahead-1 (spec §4.7).
type Scanner struct {
	src  []rune
	pos  int
	line int

	cur  token.Token
	next *token.Token
}

// New strips a leading UTF-8 BOM if present (spec §6.2: "UTF-8 BOM at
// file start is skipped silently") and primes lookahead.
func New(source string) *Scanner {
	source = strings.TrimPrefix(source, "\xEF\xBB\xBF")
	s := &Scanner{src: []rune(source), line: 1}
	s.cur = s.scan()
	return s
}

// Next returns the current token and advances.
func (s *Scanner) Next() token.Token {
	t := s.cur
	if s.next != nil {
		s.cur = *s.next
		s.next = nil
	} else {
		s.cur = s.scan()
	}
	return t
}

// Peek returns the current token without advancing.
func (s *Scanner) Peek() token.Token {
	return s.cur
}

func (s *Scanner) peekNext() token.Token {
	if s.next == nil {
		t := s.scan()
		s.next = &t
	}
	return *s.next
}

func (s *Scanner) at(off int) rune {
	if s.pos+off >= len(s.src) {
		return 0
	}
	return s.src[s.pos+off]
}

func (s *Scanner) advance() rune {
	ch := s.src[s.pos]
	s.pos++
	if ch == '\n' {
		s.line++
	}
	return ch
}

func isAlpha(ch rune) bool { return unicode.IsLetter(ch) || ch == '_' }
func isDigit(ch rune) bool { return unicode.IsDigit(ch) }
func isSpace(ch rune) bool { return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' }

func tok(typ token.Type, lexeme string, line int) token.Token {
	return token.Token{Type: typ, Lexeme: []byte(lexeme), Line: line}
}

func (s *Scanner) scan() token.Token {
	for s.pos < len(s.src) {
		ch := s.at(0)
		if isSpace(ch) {
			s.advance()
			continue
		}
		if ch == '/' && s.at(1) == '/' {
			for s.pos < len(s.src) && s.at(0) != '\n' {
				s.advance()
			}
			continue
		}
		if ch == '/' && s.at(1) == '*' {
			s.advance()
			s.advance()
			for s.pos < len(s.src) && !(s.at(0) == '*' && s.at(1) == '/') {
				s.advance()
			}
			if s.pos < len(s.src) {
				s.advance()
				s.advance()
			}
			continue
		}
		break
	}

	if s.pos >= len(s.src) {
		return tok(token.END, "", s.line)
	}

	line := s.line
	ch := s.at(0)

	if ch == '"' {
		return s.scanString(line)
	}
	if ch == '\'' {
		return s.scanChar(line)
	}
	if isDigit(ch) {
		return s.scanNumber(line)
	}
	if isAlpha(ch) {
		return s.scanIdent(line)
	}
	return s.scanSymbol(line)
}

func (s *Scanner) scanString(line int) token.Token {
	s.advance() // opening quote
	var sb strings.Builder
	for s.pos < len(s.src) && s.at(0) != '"' {
		ch := s.advance()
		if ch == '\\' && s.pos < len(s.src) {
			ch = unescape(s.advance())
		}
		sb.WriteRune(ch)
	}
	if s.pos >= len(s.src) {
		return tok(token.BROKEN, sb.String(), line)
	}
	s.advance() // closing quote
	return tok(token.STRING, sb.String(), line)
}

func (s *Scanner) scanChar(line int) token.Token {
	s.advance() // opening quote
	if s.pos >= len(s.src) {
		return tok(token.BROKEN, "", line)
	}
	ch := s.advance()
	if ch == '\\' && s.pos < len(s.src) {
		ch = unescape(s.advance())
	}
	if s.pos >= len(s.src) || s.at(0) != '\'' {
		return tok(token.BROKEN, string(ch), line)
	}
	s.advance()
	return tok(token.CHARACTER, string(ch), line)
}

func unescape(ch rune) rune {
	switch ch {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return ch
	}
}

func (s *Scanner) scanNumber(line int) token.Token {
	start := s.pos
	if s.at(0) == '0' && (s.at(1) == 'x' || s.at(1) == 'X') {
		s.advance()
		s.advance()
		for s.pos < len(s.src) && isHex(s.at(0)) {
			s.advance()
		}
		return tok(token.HEXINT, string(s.src[start:s.pos]), line)
	}

	for s.pos < len(s.src) && isDigit(s.at(0)) {
		s.advance()
	}
	typ := token.INTEGER
	if s.at(0) == '.' && isDigit(s.at(1)) {
		typ = token.FLOATING
		s.advance()
		for s.pos < len(s.src) && isDigit(s.at(0)) {
			s.advance()
		}
	}
	if s.at(0) == 'e' || s.at(0) == 'E' {
		typ = token.EXPO
		s.advance()
		if s.at(0) == '+' || s.at(0) == '-' {
			s.advance()
		}
		for s.pos < len(s.src) && isDigit(s.at(0)) {
			s.advance()
		}
	}
	if typ == token.INTEGER && (s.at(0) == 'l' || s.at(0) == 'L') {
		s.advance()
		return tok(token.LINTEGER, string(s.src[start:s.pos]), line)
	}
	return tok(typ, string(s.src[start:s.pos]), line)
}

func isHex(ch rune) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func (s *Scanner) scanIdent(line int) token.Token {
	start := s.pos
	for s.pos < len(s.src) && (isAlpha(s.at(0)) || isDigit(s.at(0))) {
		s.advance()
	}
	word := string(s.src[start:s.pos])
	if kw, ok := keywords[word]; ok {
		return tok(kw, word, line)
	}
	return tok(token.IDENTIFIER, word, line)
}

// two-char operator table, checked before falling back to the one-char
// symbol it prefixes.
var twoChar = map[string]token.Type{
	"==": token.Eq, "!=": token.Ne, "<=": token.Le, ">=": token.Ge,
	"&&": token.AndAnd, "||": token.OrOr, "++": token.Inc, "--": token.Dec,
	"<<": token.Shl, ">>": token.Shr,
	"+=": token.PlusEq, "-=": token.MinusEq, "*=": token.StarEq, "/=": token.SlashEq,
	"%=": token.PercentEq, "&=": token.AmpEq, "|=": token.PipeEq, "^=": token.CaretEq,
}

var oneChar = map[rune]token.Type{
	'(': token.LParen, ')': token.RParen, '{': token.LBrace, '}': token.RBrace,
	'[': token.LBracket, ']': token.RBracket, ';': token.Semicolon, ',': token.Comma,
	'.': token.Dot, '?': token.Question, ':': token.Colon, '=': token.Assign,
	'+': token.Plus, '-': token.Minus, '*': token.Star, '/': token.Slash,
	'%': token.Percent, '&': token.Amp, '|': token.Pipe, '^': token.Caret,
	'~': token.Tilde, '!': token.Bang, '<': token.Lt, '>': token.Gt,
}

func (s *Scanner) scanSymbol(line int) token.Token {
	if s.pos+1 < len(s.src) {
		two := string(s.src[s.pos : s.pos+2])
		if typ, ok := twoChar[two]; ok {
			s.advance()
			s.advance()
			return tok(typ, two, line)
		}
		if s.pos+2 < len(s.src) {
			three := string(s.src[s.pos : s.pos+3])
			if three == "<<=" {
				s.advance()
				s.advance()
				s.advance()
				return tok(token.ShlEq, three, line)
			}
			if three == ">>=" {
				s.advance()
				s.advance()
				s.advance()
				return tok(token.ShrEq, three, line)
			}
		}
	}
	ch := s.advance()
	if typ, ok := oneChar[ch]; ok {
		return tok(typ, string(ch), line)
	}
	return tok(token.BROKEN, string(ch), line)
}
