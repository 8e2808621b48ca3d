package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token kinds for the kuri tokenizer
// ---------------------------------------------------------------------------

// TokenKind classifies a token.
type TokenKind int

const (
	TokenUnknown TokenKind = iota
	TokenEOF

	// Literals
	TokenIdentifier // nom, Vecteur
	TokenInteger    // 42, 0x2A, 0b101010, 0o52
	TokenReal       // 3.14, 0.5
	TokenString     // "texte", «texte»
	TokenCharacter  // 'a', '\n'

	// Single-character specials
	TokenExclamation // !
	TokenQuote       // "
	TokenHash        // #
	TokenDollar      // $
	TokenPercent     // %
	TokenAmpersand   // &
	TokenApostrophe  // '
	TokenLParen      // (
	TokenRParen      // )
	TokenStar        // *
	TokenPlus        // +
	TokenComma       // ,
	TokenMinus       // -
	TokenDot         // .
	TokenSlash       // /
	TokenColon       // :
	TokenSemicolon   // ;
	TokenLess        // <
	TokenEqual       // =
	TokenGreater     // >
	TokenAt          // @
	TokenLBracket    // [
	TokenRBracket    // ]
	TokenCaret       // ^
	TokenLBrace      // {
	TokenBar         // |
	TokenRBrace      // }
	TokenTilde       // ~

	// Digraphs
	TokenNotEqual     // !=
	TokenPercentEqual // %=
	TokenAndAnd       // &&
	TokenAndEqual     // &=
	TokenStarEqual    // *=
	TokenPlusEqual    // +=
	TokenMinusEqual   // -=
	TokenSlashEqual   // /=
	TokenShiftLeft    // <<
	TokenLessEqual    // <=
	TokenEqualEqual   // ==
	TokenGreaterEqual // >=
	TokenShiftRight   // >>
	TokenCaretEqual   // ^=
	TokenBarEqual     // |=
	TokenBarBar       // ||

	// Trigraphs
	TokenEllipsis        // ...
	TokenShiftLeftEqual  // <<=
	TokenShiftRightEqual // >>=

	// Unary forms, produced by the parser from + and -
	TokenUnaryPlus
	TokenUnaryMinus

	// Keywords
	TokenArrete     // arrête
	TokenBoucle     // boucle
	TokenContinue   // continue
	TokenCoroutine  // coroutine
	TokenDans       // dans
	TokenDe         // de
	TokenDiffere    // diffère
	TokenDyn        // dyn
	TokenDeloge     // déloge
	TokenEnum       // énum
	TokenExterne    // externe
	TokenFaux       // faux
	TokenFonction   // fonction
	TokenImporte    // importe
	TokenLoge       // loge
	TokenMemoire    // mémoire
	TokenNonsur     // nonsûr
	TokenNul        // nul
	TokenPour       // pour
	TokenReloge     // reloge
	TokenRetiens    // retiens
	TokenRetourne   // retourne
	TokenSansarret  // sansarrêt
	TokenSaufsi     // saufsi
	TokenSi         // si
	TokenSinon      // sinon
	TokenSoit       // soit
	TokenStructure  // structure
	TokenTailleDe   // taille_de
	TokenTantque    // tantque
	TokenTranstype  // transtype
	TokenVrai       // vrai

	// Type keywords
	TokenBool   // bool
	TokenChaine // chaine
	TokenEini   // eini
	TokenOctet  // octet
	TokenRien   // rien
	TokenE8
	TokenE16
	TokenE32
	TokenE64
	TokenN8
	TokenN16
	TokenN32
	TokenN64
	TokenR16
	TokenR32
	TokenR64

	tokenKindCount
)

var tokenNames = [...]string{
	TokenUnknown:    "UNKNOWN",
	TokenEOF:        "EOF",
	TokenIdentifier: "IDENTIFIER",
	TokenInteger:    "INTEGER",
	TokenReal:       "REAL",
	TokenString:     "STRING",
	TokenCharacter:  "CHARACTER",

	TokenExclamation: "!",
	TokenQuote:       "\"",
	TokenHash:        "#",
	TokenDollar:      "$",
	TokenPercent:     "%",
	TokenAmpersand:   "&",
	TokenApostrophe:  "'",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenStar:        "*",
	TokenPlus:        "+",
	TokenComma:       ",",
	TokenMinus:       "-",
	TokenDot:         ".",
	TokenSlash:       "/",
	TokenColon:       ":",
	TokenSemicolon:   ";",
	TokenLess:        "<",
	TokenEqual:       "=",
	TokenGreater:     ">",
	TokenAt:          "@",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenCaret:       "^",
	TokenLBrace:      "{",
	TokenBar:         "|",
	TokenRBrace:      "}",
	TokenTilde:       "~",

	TokenNotEqual:     "!=",
	TokenPercentEqual: "%=",
	TokenAndAnd:       "&&",
	TokenAndEqual:     "&=",
	TokenStarEqual:    "*=",
	TokenPlusEqual:    "+=",
	TokenMinusEqual:   "-=",
	TokenSlashEqual:   "/=",
	TokenShiftLeft:    "<<",
	TokenLessEqual:    "<=",
	TokenEqualEqual:   "==",
	TokenGreaterEqual: ">=",
	TokenShiftRight:   ">>",
	TokenCaretEqual:   "^=",
	TokenBarEqual:     "|=",
	TokenBarBar:       "||",

	TokenEllipsis:        "...",
	TokenShiftLeftEqual:  "<<=",
	TokenShiftRightEqual: ">>=",

	TokenUnaryPlus:  "+unary",
	TokenUnaryMinus: "-unary",

	TokenArrete:    "arrête",
	TokenBoucle:    "boucle",
	TokenContinue:  "continue",
	TokenCoroutine: "coroutine",
	TokenDans:      "dans",
	TokenDe:        "de",
	TokenDiffere:   "diffère",
	TokenDyn:       "dyn",
	TokenDeloge:    "déloge",
	TokenEnum:      "énum",
	TokenExterne:   "externe",
	TokenFaux:      "faux",
	TokenFonction:  "fonction",
	TokenImporte:   "importe",
	TokenLoge:      "loge",
	TokenMemoire:   "mémoire",
	TokenNonsur:    "nonsûr",
	TokenNul:       "nul",
	TokenPour:      "pour",
	TokenReloge:    "reloge",
	TokenRetiens:   "retiens",
	TokenRetourne:  "retourne",
	TokenSansarret: "sansarrêt",
	TokenSaufsi:    "saufsi",
	TokenSi:        "si",
	TokenSinon:     "sinon",
	TokenSoit:      "soit",
	TokenStructure: "structure",
	TokenTailleDe:  "taille_de",
	TokenTantque:   "tantque",
	TokenTranstype: "transtype",
	TokenVrai:      "vrai",

	TokenBool:   "bool",
	TokenChaine: "chaine",
	TokenEini:   "eini",
	TokenOctet:  "octet",
	TokenRien:   "rien",
	TokenE8:     "e8",
	TokenE16:    "e16",
	TokenE32:    "e32",
	TokenE64:    "e64",
	TokenN8:     "n8",
	TokenN16:    "n16",
	TokenN32:    "n32",
	TokenN64:    "n64",
	TokenR16:    "r16",
	TokenR32:    "r32",
	TokenR64:    "r64",
}

// String returns the display name of the kind.
func (k TokenKind) String() string {
	if k >= 0 && int(k) < len(tokenNames) && tokenNames[k] != "" {
		return tokenNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// keywords maps every reserved word to its kind. Built from tokenNames so
// the two tables cannot drift apart.
var keywords = func() map[string]TokenKind {
	m := make(map[string]TokenKind)
	for k := TokenArrete; k <= TokenR64; k++ {
		m[tokenNames[k]] = k
	}
	return m
}()

// LookupKeyword returns the keyword kind for word, or TokenIdentifier.
func LookupKeyword(word string) TokenKind {
	if k, ok := keywords[word]; ok {
		return k
	}
	return TokenIdentifier
}

// Keywords returns every reserved word in token order.
func Keywords() []string {
	out := make([]string, 0, TokenR64-TokenArrete+1)
	for k := TokenArrete; k <= TokenR64; k++ {
		out = append(out, tokenNames[k])
	}
	return out
}

// IsKeyword reports whether k is a reserved word.
func (k TokenKind) IsKeyword() bool {
	return k >= TokenArrete && k <= TokenR64
}

// IsBuiltinType reports whether k names a builtin type.
func (k TokenKind) IsBuiltinType() bool {
	return k >= TokenBool && k <= TokenR64
}

// IsAssignment reports whether k is `=` or a compound assignment.
func (k TokenKind) IsAssignment() bool {
	switch k {
	case TokenEqual, TokenPlusEqual, TokenMinusEqual, TokenStarEqual, TokenSlashEqual,
		TokenPercentEqual, TokenAndEqual, TokenBarEqual, TokenCaretEqual,
		TokenShiftLeftEqual, TokenShiftRightEqual:
		return true
	}
	return false
}

// ModuleID identifies the module a token was read from.
type ModuleID uint32

// Token is one lexeme. Text borrows from the source buffer.
type Token struct {
	Text   string
	Line   int // 0-based line
	Column int // byte offset within the line
	Offset int // byte offset within the buffer
	Kind   TokenKind
	Module ModuleID
}

// String returns a debug representation.
func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %d:%d", t.Kind, t.Text, t.Line+1, t.Column+1)
}
