package compiler

// ---------------------------------------------------------------------------
// Parser: declarations and statements
// ---------------------------------------------------------------------------

// parser is a recursive-descent parser over a module's token slice.
// Expressions go through the shunting-yard engine in expression.go.
type parser struct {
	c     *Context
	m     *Module
	arena *Arena
	toks  []Token
	pos   int
	eof   Token

	depth   int            // open blocks, statements, expressions and types
	heights map[NodeID]int // expression subtree heights
}

// Nesting limits. Validation walks the tree recursively, so both bound the
// stack it needs.
const (
	maxNesting          = 256
	maxExpressionHeight = 1024
)

func newParser(c *Context, m *Module) *parser {
	p := &parser{c: c, m: m, arena: c.Arena, toks: m.Tokens, heights: make(map[NodeID]int)}
	p.eof = Token{Kind: TokenEOF, Module: m.ID, Offset: len(m.Source)}
	if n := len(p.toks); n > 0 {
		last := p.toks[n-1]
		p.eof.Line = last.Line
		p.eof.Column = last.Column + len(last.Text)
	}
	return p
}

// ParseModule parses an already-tokenized module into the context's arena.
func ParseModule(c *Context, m *Module) (NodeID, error) {
	return newParser(c, m).parseModule()
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *parser) peek() Token { return p.peekAt(0) }

func (p *parser) peekAt(n int) Token {
	if i := p.pos + n; i < len(p.toks) {
		return p.toks[i]
	}
	return p.eof
}

func (p *parser) is(kind TokenKind) bool { return p.peek().Kind == kind }

func (p *parser) atEOF() bool { return p.pos >= len(p.toks) }

func (p *parser) next() Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) accept(kind TokenKind) bool {
	if p.is(kind) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind TokenKind, what string) (Token, error) {
	t := p.peek()
	if t.Kind != kind {
		return t, p.errorf(UnexpectedToken, t, "expected %s, found %s", what, describe(t))
	}
	p.pos++
	return t, nil
}

func (p *parser) errorf(kind ErrorKind, tok Token, format string, args ...any) error {
	return p.c.errorf(kind, tok, format, args...)
}

// enter opens one nesting level at t; every successful enter is paired
// with a leave.
func (p *parser) enter(t Token) error {
	if p.depth >= maxNesting {
		return p.errorf(NestingTooDeep, t, "nesting exceeds %d levels", maxNesting)
	}
	p.depth++
	return nil
}

func (p *parser) leave() { p.depth-- }

// seal records the height of an expression node from its children's and
// rejects trees taller than maxExpressionHeight.
func (p *parser) seal(id NodeID) error {
	n := p.arena.Get(id)
	if n == nil {
		return nil
	}
	h := 0
	for _, c := range n.Children {
		if ch := p.height(c); ch > h {
			h = ch
		}
	}
	h++
	if h > maxExpressionHeight {
		return p.errorf(NestingTooDeep, n.Token, "expression nests deeper than %d levels", maxExpressionHeight)
	}
	p.heights[id] = h
	return nil
}

func (p *parser) height(id NodeID) int {
	if h, ok := p.heights[id]; ok {
		return h
	}
	if id.IsValid() {
		return 1
	}
	return 0
}

func describe(t Token) string {
	switch t.Kind {
	case TokenEOF:
		return "end of input"
	case TokenIdentifier:
		return "identifier '" + t.Text + "'"
	case TokenString:
		return "string literal"
	case TokenInteger, TokenReal:
		return "number '" + t.Text + "'"
	}
	return "'" + t.Text + "'"
}

func (p *parser) node(kind NodeKind, tok Token, children ...NodeID) NodeID {
	id := p.arena.New(kind, tok)
	if len(children) > 0 {
		n := p.arena.Get(id)
		n.Children = append(n.Children, children...)
	}
	return id
}

// ---------------------------------------------------------------------------
// Top level
// ---------------------------------------------------------------------------

func (p *parser) parseModule() (NodeID, error) {
	root := p.node(NodeRoot, Token{Kind: TokenUnknown, Module: p.m.ID})
	p.m.Imports = p.m.Imports[:0]

	for !p.atEOF() {
		var (
			id  NodeID
			err error
		)
		switch t := p.peek(); t.Kind {
		case TokenSemicolon:
			p.next()
			continue
		case TokenImporte:
			id, err = p.parseImport()
		case TokenFonction, TokenCoroutine:
			id, err = p.parseFunction()
		case TokenStructure:
			id, err = p.parseStructure()
		case TokenEnum:
			id, err = p.parseEnum()
		case TokenSoit, TokenDyn:
			id, err = p.parseDeclaration()
			if err == nil {
				_, err = p.expect(TokenSemicolon, "';'")
			}
		case TokenDe:
			err = p.errorf(UnsupportedConstruct, t, "'de' is not supported")
		default:
			err = p.errorf(UnexpectedToken, t, "expected a declaration, found %s", describe(t))
		}
		if err != nil {
			p.arena.ReleaseTree(root)
			return NoNode, err
		}
		p.arena.AddChild(root, id)
	}
	return root, nil
}

func (p *parser) parseImport() (NodeID, error) {
	p.next()
	name, err := p.expect(TokenString, "module name")
	if err != nil {
		return NoNode, err
	}
	p.accept(TokenSemicolon)
	id := p.node(NodeImport, name)
	p.arena.Get(id).Str = name.Text
	p.m.Imports = append(p.m.Imports, name.Text)
	return id, nil
}

// parseFunction parses `fonction|coroutine [externe] nom(params) [: type]`
// followed by a body, or `;` for external declarations.
func (p *parser) parseFunction() (NodeID, error) {
	kw := p.next()
	external := p.accept(TokenExterne)
	name, err := p.expect(TokenIdentifier, "function name")
	if err != nil {
		return NoNode, err
	}
	if _, err := p.expect(TokenLParen, "'('"); err != nil {
		return NoNode, err
	}

	fn := &Function{
		Name:      name.Text,
		Token:     name,
		External:  external,
		Coroutine: kw.Kind == TokenCoroutine,
	}

	for !p.is(TokenRParen) {
		if len(fn.Params) > 0 {
			if _, err := p.expect(TokenComma, "',' or ')'"); err != nil {
				return NoNode, err
			}
		}
		if fn.Variadic {
			return NoNode, p.errorf(UnexpectedToken, p.peek(), "a variadic parameter must be the last one")
		}
		param, err := p.parseParam()
		if err != nil {
			return NoNode, err
		}
		fn.Variadic = param.Variadic
		fn.Params = append(fn.Params, param)
	}
	p.next()

	if p.accept(TokenColon) {
		if fn.ReturnSpec, err = p.parseType(); err != nil {
			return NoNode, err
		}
	}

	id := p.node(NodeFunctionDecl, name)
	n := p.arena.Get(id)
	n.Str = name.Text
	n.Func = fn
	fn.Decl = id
	if external {
		n.Flags |= FlagExternal
		if _, err := p.expect(TokenSemicolon, "';' after an external declaration"); err != nil {
			return NoNode, err
		}
		return id, nil
	}

	body, err := p.parseBlock()
	if err != nil {
		p.arena.ReleaseTree(id)
		return NoNode, err
	}
	p.arena.AddChild(id, body)
	return id, nil
}

func (p *parser) parseParam() (Param, error) {
	mutable := p.accept(TokenDyn)
	name, err := p.expect(TokenIdentifier, "parameter name")
	if err != nil {
		return Param{}, err
	}
	if _, err := p.expect(TokenColon, "':' after parameter name"); err != nil {
		return Param{}, err
	}
	variadic := p.accept(TokenEllipsis)
	spec, err := p.parseType()
	if err != nil {
		return Param{}, err
	}
	spec.Variadic = variadic
	return Param{Name: name.Text, Token: name, Spec: spec, Variadic: variadic, Mutable: mutable}, nil
}

// parseStructure parses `structure Nom { membre : type [= expr]; ... }`.
// Each member is a Variable child whose first child, if any, is the default.
func (p *parser) parseStructure() (NodeID, error) {
	p.next()
	name, err := p.expect(TokenIdentifier, "structure name")
	if err != nil {
		return NoNode, err
	}
	if _, err := p.expect(TokenLBrace, "'{'"); err != nil {
		return NoNode, err
	}

	id := p.node(NodeStructDecl, name)
	p.arena.Get(id).Str = name.Text
	for !p.accept(TokenRBrace) {
		if p.accept(TokenSemicolon) {
			continue
		}
		member, err := p.parseMember(true)
		if err != nil {
			p.arena.ReleaseTree(id)
			return NoNode, err
		}
		p.arena.AddChild(id, member)
	}
	return id, nil
}

// parseEnum parses `énum Nom [: type] { A [= expr], B, ... }`.
func (p *parser) parseEnum() (NodeID, error) {
	p.next()
	name, err := p.expect(TokenIdentifier, "enum name")
	if err != nil {
		return NoNode, err
	}
	var spec *TypeSpec
	if p.accept(TokenColon) {
		if spec, err = p.parseType(); err != nil {
			return NoNode, err
		}
	}
	if _, err := p.expect(TokenLBrace, "'{'"); err != nil {
		return NoNode, err
	}

	id := p.node(NodeEnumDecl, name)
	n := p.arena.Get(id)
	n.Str = name.Text
	n.Spec = spec
	for !p.accept(TokenRBrace) {
		if p.accept(TokenSemicolon) || p.accept(TokenComma) {
			continue
		}
		member, err := p.parseMember(false)
		if err != nil {
			p.arena.ReleaseTree(id)
			return NoNode, err
		}
		p.arena.AddChild(id, member)
	}
	return id, nil
}

func (p *parser) parseMember(typed bool) (NodeID, error) {
	name, err := p.expect(TokenIdentifier, "member name")
	if err != nil {
		return NoNode, err
	}
	id := p.node(NodeVariable, name)
	n := p.arena.Get(id)
	n.Str = name.Text
	n.Flags |= FlagDeclaration
	if typed && p.accept(TokenColon) {
		spec, err := p.parseType()
		if err != nil {
			return NoNode, err
		}
		p.arena.Get(id).Spec = spec
	}
	if p.accept(TokenEqual) {
		value, err := p.parseExpression(exprMode{})
		if err != nil {
			return NoNode, err
		}
		p.arena.AddChild(id, value)
	}
	if typed && p.arena.Get(id).Spec == nil && len(p.arena.Get(id).Children) == 0 {
		return NoNode, p.errorf(UnexpectedToken, name, "member '%s' needs a type or a default value", name.Text)
	}
	if typed {
		if !p.is(TokenRBrace) {
			if _, err := p.expect(TokenSemicolon, "';' after member"); err != nil {
				return NoNode, err
			}
		}
	}
	return id, nil
}

// parseDeclaration parses `soit|dyn nom [: type] [= expr]` without the
// terminator. A declaration with a value becomes an Assign node whose
// first child is the declared Variable.
func (p *parser) parseDeclaration() (NodeID, error) {
	kw := p.next()
	name, err := p.expect(TokenIdentifier, "variable name")
	if err != nil {
		return NoNode, err
	}

	v := p.node(NodeVariable, name)
	n := p.arena.Get(v)
	n.Str = name.Text
	n.Flags |= FlagDeclaration
	if kw.Kind == TokenDyn {
		n.Flags |= FlagMutable
	}

	if p.accept(TokenColon) {
		spec, err := p.parseType()
		if err != nil {
			return NoNode, err
		}
		p.arena.Get(v).Spec = spec
	}

	if !p.is(TokenEqual) {
		if p.arena.Get(v).Spec == nil {
			return NoNode, p.errorf(UnexpectedToken, name, "declaration of '%s' needs a type or a value", name.Text)
		}
		return v, nil
	}

	eq := p.next()
	value, err := p.parseExpression(exprMode{})
	if err != nil {
		p.arena.ReleaseTree(v)
		return NoNode, err
	}
	if vn := p.arena.Get(value); vn != nil && vn.Kind == NodeAssign {
		return NoNode, p.errorf(UnsupportedConstruct, vn.Token, "chained assignment is not supported")
	}
	return p.node(NodeAssign, eq, v, value), nil
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// parseType parses modifiers then a base type.
func (p *parser) parseType() (*TypeSpec, error) {
	spec := &TypeSpec{Token: p.peek()}
	if err := p.enter(spec.Token); err != nil {
		return nil, err
	}
	defer p.leave()

	for {
		t := p.peek()
		switch t.Kind {
		case TokenStar:
			p.next()
			spec.Modifiers = append(spec.Modifiers, MakeTag(TagPointer, 0))
			continue
		case TokenAmpersand:
			p.next()
			spec.Modifiers = append(spec.Modifiers, MakeTag(TagReference, 0))
			continue
		case TokenLBracket:
			p.next()
			var n int64
			if p.is(TokenInteger) {
				lit := p.next()
				n = ConvertInteger(lit.Text)
				if n <= 0 || n > MaxTagPayload {
					return nil, p.errorf(UnexpectedToken, lit, "array length %s is out of range", lit.Text)
				}
			}
			if _, err := p.expect(TokenRBracket, "']'"); err != nil {
				return nil, err
			}
			spec.Modifiers = append(spec.Modifiers, MakeTag(TagArray, uint32(n)))
			continue
		}
		break
	}

	t := p.peek()
	switch {
	case t.Kind.IsBuiltinType():
		p.next()
		spec.Base = t.Kind
	case t.Kind == TokenIdentifier:
		p.next()
		spec.Base = TokenIdentifier
		spec.Name = t.Text
	case t.Kind == TokenFonction || t.Kind == TokenCoroutine:
		p.next()
		spec.Base = t.Kind
		spec.Callable = TagFunc
		if t.Kind == TokenCoroutine {
			spec.Callable = TagCoroutine
		}
		if _, err := p.expect(TokenLParen, "'('"); err != nil {
			return nil, err
		}
		for !p.accept(TokenRParen) {
			if len(spec.Params) > 0 {
				if _, err := p.expect(TokenComma, "',' or ')'"); err != nil {
					return nil, err
				}
			}
			variadic := p.accept(TokenEllipsis)
			param, err := p.parseType()
			if err != nil {
				return nil, err
			}
			param.Variadic = variadic
			spec.Params = append(spec.Params, param)
			if variadic && !p.is(TokenRParen) {
				return nil, p.errorf(UnexpectedToken, p.peek(), "a variadic parameter must be the last one")
			}
		}
		if startsType(p.peek().Kind) {
			ret, err := p.parseType()
			if err != nil {
				return nil, err
			}
			spec.Return = ret
		}
	default:
		return nil, p.errorf(UnexpectedToken, t, "expected a type, found %s", describe(t))
	}
	return spec, nil
}

func startsType(k TokenKind) bool {
	switch k {
	case TokenStar, TokenAmpersand, TokenLBracket, TokenIdentifier, TokenFonction, TokenCoroutine:
		return true
	}
	return k.IsBuiltinType()
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *parser) parseBlock() (NodeID, error) {
	if err := p.enter(p.peek()); err != nil {
		return NoNode, err
	}
	defer p.leave()

	open, err := p.expect(TokenLBrace, "'{'")
	if err != nil {
		return NoNode, err
	}
	block := p.node(NodeBlock, open)
	for {
		if p.accept(TokenRBrace) {
			return block, nil
		}
		if p.atEOF() {
			p.arena.ReleaseTree(block)
			return NoNode, p.errorf(UnexpectedToken, p.peek(), "expected '}' to close the block opened at line %d", open.Line+1)
		}
		stmt, err := p.parseStatement()
		if err != nil {
			p.arena.ReleaseTree(block)
			return NoNode, err
		}
		if stmt.IsValid() {
			p.arena.AddChild(block, stmt)
		}
	}
}

func (p *parser) parseStatement() (NodeID, error) {
	t := p.peek()
	if err := p.enter(t); err != nil {
		return NoNode, err
	}
	defer p.leave()

	switch t.Kind {
	case TokenSemicolon:
		p.next()
		return NoNode, nil
	case TokenLBrace:
		return p.parseBlock()
	case TokenSoit, TokenDyn:
		id, err := p.parseDeclaration()
		if err != nil {
			return NoNode, err
		}
		return id, p.terminate()
	case TokenRetourne:
		p.next()
		id := p.node(NodeReturn, t)
		if !p.is(TokenSemicolon) && !p.is(TokenRBrace) {
			value, err := p.parseExpression(exprMode{})
			if err != nil {
				return NoNode, err
			}
			p.arena.AddChild(id, value)
		}
		return id, p.terminate()
	case TokenRetiens:
		p.next()
		value, err := p.parseExpression(exprMode{})
		if err != nil {
			return NoNode, err
		}
		return p.node(NodeYield, t, value), p.terminate()
	case TokenSi, TokenSaufsi:
		return p.parseIf()
	case TokenPour:
		return p.parseFor()
	case TokenBoucle:
		p.next()
		body, err := p.parseBlock()
		if err != nil {
			return NoNode, err
		}
		return p.node(NodeLoop, t, body), nil
	case TokenTantque:
		p.next()
		cond, err := p.parseExpression(exprMode{noConstruct: true})
		if err != nil {
			return NoNode, err
		}
		body, err := p.parseBlock()
		if err != nil {
			p.arena.ReleaseTree(cond)
			return NoNode, err
		}
		return p.node(NodeWhile, t, cond, body), nil
	case TokenContinue, TokenArrete:
		p.next()
		id := p.node(NodeBreakContinue, t)
		if p.is(TokenIdentifier) {
			p.arena.Get(id).Label = p.next().Text
		}
		return id, p.terminate()
	case TokenDiffere, TokenNonsur:
		p.next()
		body, err := p.parseBlock()
		if err != nil {
			return NoNode, err
		}
		kind := NodeDefer
		if t.Kind == TokenNonsur {
			kind = NodeUnsafe
		}
		return p.node(kind, t, body), nil
	case TokenStructure:
		return p.parseStructure()
	case TokenEnum:
		return p.parseEnum()
	case TokenDe:
		return NoNode, p.errorf(UnsupportedConstruct, t, "'de' is not supported")
	case TokenFonction, TokenCoroutine, TokenImporte:
		return NoNode, p.errorf(UnexpectedToken, t, "%s is only allowed at module level", describe(t))
	}

	id, err := p.parseExpression(exprMode{})
	if err != nil {
		return NoNode, err
	}
	return id, p.terminate()
}

// terminate consumes the ';' ending a statement. A statement directly
// before '}' may omit it.
func (p *parser) terminate() error {
	if p.accept(TokenSemicolon) || p.is(TokenRBrace) {
		return nil
	}
	t := p.peek()
	return p.errorf(UnexpectedToken, t, "expected ';' after statement, found %s", describe(t))
}

// parseIf: children are condition, then-block and an optional else branch
// (a block or a nested if).
func (p *parser) parseIf() (NodeID, error) {
	kw := p.next()
	cond, err := p.parseExpression(exprMode{noConstruct: true})
	if err != nil {
		return NoNode, err
	}
	then, err := p.parseBlock()
	if err != nil {
		p.arena.ReleaseTree(cond)
		return NoNode, err
	}
	kind := NodeIf
	if kw.Kind == TokenSaufsi {
		kind = NodeUnless
	}
	id := p.node(kind, kw, cond, then)

	if p.accept(TokenSinon) {
		var alt NodeID
		if p.is(TokenSi) || p.is(TokenSaufsi) {
			alt, err = p.parseIf()
		} else {
			alt, err = p.parseBlock()
		}
		if err != nil {
			p.arena.ReleaseTree(id)
			return NoNode, err
		}
		p.arena.AddChild(id, alt)
	}
	return id, nil
}

// For-loop child slots. Absent parts hold NoNode.
const (
	forVar = iota
	forIndex
	forIterable
	forBody
	forNoBreak
	forElse
	forSlots
)

// parseFor parses `pour x[, i] dans expr { } [sansarrêt { }] [sinon { }]`.
func (p *parser) parseFor() (NodeID, error) {
	kw := p.next()
	slots := make([]NodeID, forSlots)
	release := func(err error) (NodeID, error) {
		for _, id := range slots {
			p.arena.ReleaseTree(id)
		}
		return NoNode, err
	}

	name, err := p.expect(TokenIdentifier, "loop variable")
	if err != nil {
		return NoNode, err
	}
	slots[forVar] = p.loopVariable(name)
	if p.accept(TokenComma) {
		index, err := p.expect(TokenIdentifier, "index variable")
		if err != nil {
			return release(err)
		}
		slots[forIndex] = p.loopVariable(index)
	}
	if _, err := p.expect(TokenDans, "'dans'"); err != nil {
		return release(err)
	}
	if slots[forIterable], err = p.parseExpression(exprMode{noConstruct: true}); err != nil {
		return release(err)
	}
	if slots[forBody], err = p.parseBlock(); err != nil {
		return release(err)
	}
	if p.accept(TokenSansarret) {
		if slots[forNoBreak], err = p.parseBlock(); err != nil {
			return release(err)
		}
	}
	if p.accept(TokenSinon) {
		if slots[forElse], err = p.parseBlock(); err != nil {
			return release(err)
		}
	}
	id := p.node(NodeFor, kw, slots...)
	p.arena.Get(id).Label = name.Text
	return id, nil
}

func (p *parser) loopVariable(name Token) NodeID {
	id := p.node(NodeVariable, name)
	n := p.arena.Get(id)
	n.Str = name.Text
	n.Flags |= FlagDeclaration
	return id
}
