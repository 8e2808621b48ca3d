package compiler

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: single-pass tokenizer for kuri source
// ---------------------------------------------------------------------------

// Lexer splits a source buffer into tokens. Token text is a substring of the
// buffer, so the buffer must outlive the token slice.
type Lexer struct {
	src       string
	module    ModuleID
	pos       int
	line      int // 0-based
	lineStart int // offset of the current line

	// pending word, -1 when none
	wordStart int
	wordLine  int
	wordCol   int

	tokens []Token
}

// NewLexer creates a lexer over src for the given module.
func NewLexer(src string, module ModuleID) *Lexer {
	return &Lexer{
		src:       src,
		module:    module,
		wordStart: -1,
		tokens:    make([]Token, 0, len(src)/4+1),
	}
}

// Tokenize splits src into tokens. The returned slice carries no EOF token.
func Tokenize(src string, module ModuleID) ([]Token, error) {
	return NewLexer(src, module).Run()
}

var digraphs = map[string]TokenKind{
	"!=": TokenNotEqual,
	"%=": TokenPercentEqual,
	"&&": TokenAndAnd,
	"&=": TokenAndEqual,
	"*=": TokenStarEqual,
	"+=": TokenPlusEqual,
	"-=": TokenMinusEqual,
	"/=": TokenSlashEqual,
	"<<": TokenShiftLeft,
	"<=": TokenLessEqual,
	"==": TokenEqualEqual,
	">=": TokenGreaterEqual,
	">>": TokenShiftRight,
	"^=": TokenCaretEqual,
	"|=": TokenBarEqual,
	"||": TokenBarBar,
}

var trigraphs = map[string]TokenKind{
	"...": TokenEllipsis,
	"<<=": TokenShiftLeftEqual,
	">>=": TokenShiftRightEqual,
}

var singles = [128]TokenKind{
	'!': TokenExclamation,
	'"': TokenQuote,
	'#': TokenHash,
	'$': TokenDollar,
	'%': TokenPercent,
	'&': TokenAmpersand,
	'\'': TokenApostrophe,
	'(': TokenLParen,
	')': TokenRParen,
	'*': TokenStar,
	'+': TokenPlus,
	',': TokenComma,
	'-': TokenMinus,
	'.': TokenDot,
	'/': TokenSlash,
	':': TokenColon,
	';': TokenSemicolon,
	'<': TokenLess,
	'=': TokenEqual,
	'>': TokenGreater,
	'@': TokenAt,
	'[': TokenLBracket,
	']': TokenRBracket,
	'^': TokenCaret,
	'{': TokenLBrace,
	'|': TokenBar,
	'}': TokenRBrace,
	'~': TokenTilde,
}

// isSpecial reports whether an ASCII byte ends a word and starts a
// punctuation token. '_' is part of words.
func isSpecial(c byte) bool {
	return c < 128 && c != '_' && (c > ' ' && c < '0' || c > '9' && c < 'A' || c > 'Z' && c < 'a' || c > 'z' && c < 127)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordByte(c byte) bool {
	return c == '_' || isDigit(c) || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// Run tokenizes the whole buffer.
func (l *Lexer) Run() ([]Token, error) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]

		if c >= utf8.RuneSelf {
			if err := l.multiByte(); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f':
			l.flush()
			l.pos++
		case c == '\n':
			l.flush()
			l.pos++
			l.newline()
		case isDigit(c) && l.wordStart < 0:
			if err := l.number(); err != nil {
				return nil, err
			}
		case isSpecial(c):
			l.flush()
			if err := l.special(); err != nil {
				return nil, err
			}
		default:
			l.extendWord()
			l.pos++
		}
	}

	if l.wordStart >= 0 {
		tok := l.wordToken()
		return nil, newDiagnostic(TrailingCharacters, l.src, tok,
			"unexpected end of input after %q", tok.Text)
	}
	return l.tokens, nil
}

func (l *Lexer) newline() {
	l.line++
	l.lineStart = l.pos
}

func (l *Lexer) column(offset int) int { return offset - l.lineStart }

func (l *Lexer) extendWord() {
	if l.wordStart < 0 {
		l.wordStart = l.pos
		l.wordLine = l.line
		l.wordCol = l.column(l.pos)
	}
}

func (l *Lexer) wordToken() Token {
	text := l.src[l.wordStart:l.pos]
	return Token{
		Text:   text,
		Line:   l.wordLine,
		Column: l.wordCol,
		Offset: l.wordStart,
		Kind:   LookupKeyword(text),
		Module: l.module,
	}
}

// flush emits the pending word, if any.
func (l *Lexer) flush() {
	if l.wordStart < 0 {
		return
	}
	l.tokens = append(l.tokens, l.wordToken())
	l.wordStart = -1
}

func (l *Lexer) emit(kind TokenKind, start, end int) {
	l.tokens = append(l.tokens, Token{
		Text:   l.src[start:end],
		Line:   l.line,
		Column: l.column(start),
		Offset: start,
		Kind:   kind,
		Module: l.module,
	})
}

// errorAt builds a lexing diagnostic spanning src[start:end].
func (l *Lexer) errorAt(kind ErrorKind, start, end int, format string, args ...any) error {
	tok := Token{
		Text:   l.src[start:end],
		Line:   l.line,
		Column: l.column(start),
		Offset: start,
		Module: l.module,
	}
	return newDiagnostic(kind, l.src, tok, format, args...)
}

// multiByte handles a non-ASCII code point: Unicode spaces flush, guillemets
// open a string, anything else joins the current word.
func (l *Lexer) multiByte() error {
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if r == utf8.RuneError && size <= 1 {
		return l.errorAt(InvalidByteSequence, l.pos, l.pos+1,
			"invalid UTF-8 byte 0x%02x", l.src[l.pos])
	}

	switch {
	case r == '«':
		l.flush()
		return l.stringLiteral(size, "»")
	case unicode.IsSpace(r):
		l.flush()
		l.pos += size
	default:
		l.extendWord()
		l.pos += size
	}
	return nil
}

// special resolves a punctuation byte: trigraphs, digraphs, literal
// delimiters, comments, then the single-character table.
func (l *Lexer) special() error {
	rest := l.src[l.pos:]

	if len(rest) >= 3 {
		if kind, ok := trigraphs[rest[:3]]; ok {
			l.emit(kind, l.pos, l.pos+3)
			l.pos += 3
			return nil
		}
	}
	if len(rest) >= 2 {
		if kind, ok := digraphs[rest[:2]]; ok {
			l.emit(kind, l.pos, l.pos+2)
			l.pos += 2
			return nil
		}
	}

	switch rest[0] {
	case '"':
		return l.stringLiteral(1, `"`)
	case '\'':
		return l.charLiteral()
	case '#':
		end := strings.IndexByte(rest, '\n')
		if end < 0 {
			end = len(rest)
		}
		l.pos += end
		return nil
	}

	l.emit(singles[rest[0]], l.pos, l.pos+1)
	l.pos++
	return nil
}

// stringLiteral scans a string whose opening delimiter is open bytes long.
// The token text excludes the delimiters and keeps escapes verbatim.
func (l *Lexer) stringLiteral(open int, closing string) error {
	openAt := l.pos
	openLine, openCol := l.line, l.column(openAt)
	start := l.pos + open
	i := start
	for i < len(l.src) {
		if strings.HasPrefix(l.src[i:], closing) {
			l.tokens = append(l.tokens, Token{
				Text:   l.src[start:i],
				Line:   openLine,
				Column: openCol + open,
				Offset: start,
				Kind:   TokenString,
				Module: l.module,
			})
			l.pos = i + len(closing)
			return nil
		}
		c := l.src[i]
		if c == '\\' && i+1 < len(l.src) {
			i++
			c = l.src[i]
		}
		if c == '\n' {
			l.pos = i + 1
			l.newline()
		}
		i++
	}

	l.line, l.lineStart = openLine, openAt-openCol
	return l.errorAt(UnterminatedLiteral, openAt, openAt+open, "string literal is not terminated")
}

// charLiteral scans 'c' or '\c'; c is a single code point.
func (l *Lexer) charLiteral() error {
	openAt := l.pos
	i := l.pos + 1
	if i < len(l.src) && l.src[i] == '\\' {
		i++
	}
	if i >= len(l.src) {
		return l.errorAt(UnterminatedLiteral, openAt, openAt+1, "character literal is not terminated")
	}
	r, size := utf8.DecodeRuneInString(l.src[i:])
	if r == utf8.RuneError && size <= 1 {
		return l.errorAt(InvalidByteSequence, i, i+1, "invalid UTF-8 byte 0x%02x", l.src[i])
	}
	if r == '\n' {
		return l.errorAt(UnterminatedLiteral, openAt, openAt+1, "character literal is not terminated")
	}
	i += size
	if i >= len(l.src) || l.src[i] != '\'' {
		return l.errorAt(UnterminatedLiteral, openAt, openAt+1, "character literal is not terminated")
	}
	l.emit(TokenCharacter, openAt+1, i)
	l.pos = i + 1
	return nil
}

// number scans an integer or real literal starting at a digit.
func (l *Lexer) number() error {
	start := l.pos
	src := l.src

	if src[start] == '0' && start+1 < len(src) {
		base := 0
		switch src[start+1] {
		case 'b', 'B':
			base = 2
		case 'o', 'O':
			base = 8
		case 'x', 'X':
			base = 16
		}
		if base != 0 {
			i := start + 2
			digits := 0
			for i < len(src) {
				c := src[i]
				if c == '_' {
					i++
					continue
				}
				if digitValue(c) >= base {
					break
				}
				digits++
				i++
			}
			if digits == 0 || i < len(src) && isWordByte(src[i]) {
				end := i
				for end < len(src) && isWordByte(src[end]) {
					end++
				}
				return l.errorAt(MalformedNumber, start, end, "malformed base-%d literal", base)
			}
			l.emit(TokenInteger, start, i)
			l.pos = i
			return nil
		}
	}

	i := start
	dot := false
	for i < len(src) {
		c := src[i]
		if isDigit(c) || c == '_' {
			i++
			continue
		}
		if c != '.' {
			break
		}
		if strings.HasPrefix(src[i:], "...") {
			break
		}
		if dot {
			end := i + 1
			for end < len(src) && (isDigit(src[end]) || src[end] == '.' || src[end] == '_') {
				end++
			}
			return l.errorAt(MalformedNumber, start, end, "number has more than one decimal point")
		}
		dot = true
		i++
	}
	if i < len(src) && isWordByte(src[i]) {
		end := i
		for end < len(src) && isWordByte(src[end]) {
			end++
		}
		return l.errorAt(MalformedNumber, start, end, "unexpected character in number literal")
	}

	kind := TokenInteger
	if dot {
		kind = TokenReal
	}
	l.emit(kind, start, i)
	l.pos = i
	return nil
}

// digitValue returns the value of a hexadecimal digit, or 99.
func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 99
}

// ---------------------------------------------------------------------------
// Number conversion
// ---------------------------------------------------------------------------

// ConvertInteger converts the text of an integer token. Underscores are
// skipped, the radix prefix is case-insensitive and the result saturates at
// math.MaxInt64.
func ConvertInteger(text string) int64 {
	base := 10
	if len(text) > 2 && text[0] == '0' {
		switch text[1] {
		case 'b', 'B':
			base = 2
		case 'o', 'O':
			base = 8
		case 'x', 'X':
			base = 16
		}
		if base != 10 {
			text = text[2:]
		}
	}

	var v uint64
	for i := 0; i < len(text); i++ {
		d := digitValue(text[i])
		if d >= base {
			continue
		}
		if v > (math.MaxInt64-uint64(d))/uint64(base) {
			return math.MaxInt64
		}
		v = v*uint64(base) + uint64(d)
	}
	return int64(v)
}

// ConvertReal converts the text of a real token.
func ConvertReal(text string) float64 {
	f, _ := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	return f
}
