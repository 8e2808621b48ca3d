package compiler

// ---------------------------------------------------------------------------
// Expressions: shunting-yard over the operator table
// ---------------------------------------------------------------------------

// exprMode tunes where an expression ends.
type exprMode struct {
	// noConstruct stops at '{' after an identifier instead of parsing a
	// structure construction; used for conditions and loop headers.
	noConstruct bool

	// inParens ends the expression at an unmatched ')' without consuming
	// it; used for call arguments and parenthesized forms.
	inParens bool
}

// Precedence levels. Member access and indexing (precPostfix) bind
// tightest and are reduced as soon as they are read, so they never wait on
// the operator stack.
const (
	precRange   = 0
	precAssign  = 1
	precOrOr    = 3
	precAndAnd  = 4
	precBar     = 5
	precCaret   = 6
	precAmp     = 7
	precEquals  = 8
	precCompare = 9
	precShift   = 10
	precAdd     = 11
	precMul     = 12
	precUnary   = 13
	precPostfix = 14
)

// precedence returns the binding level of an operator and whether it
// associates to the right. ok is false for non-operators.
func precedence(k TokenKind) (level int, right bool, ok bool) {
	switch k {
	case TokenEllipsis:
		return precRange, false, true
	case TokenEqual, TokenPlusEqual, TokenMinusEqual, TokenStarEqual, TokenSlashEqual,
		TokenPercentEqual, TokenAndEqual, TokenBarEqual, TokenCaretEqual,
		TokenShiftLeftEqual, TokenShiftRightEqual:
		return precAssign, false, true
	case TokenBarBar:
		return precOrOr, false, true
	case TokenAndAnd:
		return precAndAnd, false, true
	case TokenBar:
		return precBar, false, true
	case TokenCaret:
		return precCaret, false, true
	case TokenAmpersand:
		return precAmp, false, true
	case TokenEqualEqual, TokenNotEqual:
		return precEquals, false, true
	case TokenLess, TokenLessEqual, TokenGreater, TokenGreaterEqual:
		return precCompare, false, true
	case TokenShiftLeft, TokenShiftRight:
		return precShift, false, true
	case TokenPlus, TokenMinus:
		return precAdd, false, true
	case TokenStar, TokenSlash, TokenPercent:
		return precMul, false, true
	case TokenExclamation, TokenTilde, TokenAt, TokenUnaryPlus, TokenUnaryMinus:
		return precUnary, true, true
	}
	return 0, false, false
}

// yields reports whether the operator on top of the stack must be reduced
// before pushing cur.
func yields(top, cur TokenKind) bool {
	pt, _, _ := precedence(top)
	pc, right, _ := precedence(cur)
	return !right && pc <= pt || right && pc < pt
}

func isPrefixOperator(k TokenKind) bool {
	switch k {
	case TokenExclamation, TokenTilde, TokenAt, TokenPlus, TokenMinus:
		return true
	}
	return false
}

func startsOperand(k TokenKind) bool {
	switch k {
	case TokenInteger, TokenReal, TokenString, TokenCharacter, TokenIdentifier,
		TokenVrai, TokenFaux, TokenNul, TokenLBracket, TokenTranstype, TokenTailleDe,
		TokenMemoire, TokenLoge, TokenReloge, TokenDeloge, TokenDe, TokenUnknown:
		return true
	}
	return k.IsBuiltinType()
}

type pendingOp struct {
	tok   Token
	unary bool
	paren bool
}

type shuntingYard struct {
	p        *parser
	operands []NodeID
	ops      []pendingOp
}

// parseExpression reads one expression and returns its root.
func (p *parser) parseExpression(mode exprMode) (NodeID, error) {
	if err := p.enter(p.peek()); err != nil {
		return NoNode, err
	}
	defer p.leave()

	sy := &shuntingYard{p: p}
	first := p.peek()
	last := first
	expectOperand := true
	depth := 0

loop:
	for {
		t := p.peek()
		switch t.Kind {
		case TokenEOF, TokenSemicolon, TokenRBrace, TokenLBrace, TokenComma, TokenRBracket, TokenColon:
			break loop

		case TokenRParen:
			if depth == 0 {
				if mode.inParens {
					break loop
				}
				sy.release()
				return NoNode, p.errorf(UnmatchedParenthesis, t, "')' has no matching '('")
			}
			p.next()
			last = t
			depth--
			for len(sy.ops) > 0 && !sy.ops[len(sy.ops)-1].paren {
				if err := sy.reduce(); err != nil {
					sy.release()
					return NoNode, err
				}
			}
			sy.ops = sy.ops[:len(sy.ops)-1]
			expectOperand = false
			continue

		case TokenLParen:
			if !expectOperand {
				sy.release()
				return NoNode, p.errorf(UnexpectedToken, t, "unexpected '(' after an operand")
			}
			if p.depth+depth >= maxNesting {
				sy.release()
				return NoNode, p.errorf(NestingTooDeep, t, "parentheses nest deeper than %d levels", maxNesting)
			}
			p.next()
			last = t
			depth++
			sy.ops = append(sy.ops, pendingOp{tok: t, paren: true})
			continue
		}

		if !expectOperand && (t.Kind == TokenDot || t.Kind == TokenLBracket) {
			if err := sy.postfix(); err != nil {
				sy.release()
				return NoNode, err
			}
			last = p.toks[p.pos-1]
			continue
		}

		if _, _, isOp := precedence(t.Kind); isOp {
			if expectOperand {
				if !isPrefixOperator(t.Kind) {
					sy.release()
					return NoNode, p.errorf(UnexpectedToken, t, "expected an operand, found %s", describe(t))
				}
				p.next()
				last = t
				switch t.Kind {
				case TokenPlus:
					t.Kind = TokenUnaryPlus
				case TokenMinus:
					t.Kind = TokenUnaryMinus
				}
				sy.ops = append(sy.ops, pendingOp{tok: t, unary: true})
				continue
			}
			if t.Kind == TokenExclamation || t.Kind == TokenTilde || t.Kind == TokenAt {
				sy.release()
				return NoNode, p.errorf(UnexpectedToken, t, "unexpected %s after an operand", describe(t))
			}
			p.next()
			last = t
			for len(sy.ops) > 0 {
				top := sy.ops[len(sy.ops)-1]
				if top.paren || !yields(top.tok.Kind, t.Kind) {
					break
				}
				if err := sy.reduce(); err != nil {
					sy.release()
					return NoNode, err
				}
			}
			sy.ops = append(sy.ops, pendingOp{tok: t})
			expectOperand = true
			continue
		}

		if !startsOperand(t.Kind) {
			if expectOperand && len(sy.operands) == 0 && len(sy.ops) == 0 {
				return NoNode, p.errorf(UnexpectedToken, t, "expected an expression, found %s", describe(t))
			}
			break loop
		}

		if !expectOperand {
			sy.release()
			return NoNode, p.errorf(UnexpectedToken, p.span(first, t), "malformed expression, possibly missing an operator")
		}
		id, err := p.parseOperand(mode)
		if err == nil {
			if err = p.seal(id); err != nil {
				p.arena.ReleaseTree(id)
			}
		}
		if err != nil {
			sy.release()
			return NoNode, err
		}
		last = p.toks[p.pos-1]
		sy.operands = append(sy.operands, id)
		expectOperand = false
	}

	for len(sy.ops) > 0 {
		if top := sy.ops[len(sy.ops)-1]; top.paren {
			sy.release()
			return NoNode, p.errorf(UnmatchedParenthesis, top.tok, "'(' is never closed")
		}
		if err := sy.reduce(); err != nil {
			sy.release()
			return NoNode, err
		}
	}

	switch len(sy.operands) {
	case 0:
		return NoNode, p.errorf(UnexpectedToken, p.peek(), "expected an expression, found %s", describe(p.peek()))
	case 1:
		return sy.operands[0], nil
	}
	sy.release()
	return NoNode, p.errorf(UnexpectedToken, p.span(first, last), "malformed expression, possibly missing an operator")
}

// span merges two tokens on one line into a single token covering both.
func (p *parser) span(first, last Token) Token {
	end := last.Offset + len(last.Text)
	if first.Line != last.Line || end <= first.Offset || end > len(p.m.Source) {
		return first
	}
	t := first
	t.Text = p.m.Source[first.Offset:end]
	return t
}

// postfix handles `.membre` and `[index]` on the operand on top of the
// stack.
func (sy *shuntingYard) postfix() error {
	p := sy.p
	t := p.next()
	left := sy.operands[len(sy.operands)-1]

	if t.Kind == TokenDot {
		name, err := p.expect(TokenIdentifier, "member name after '.'")
		if err != nil {
			return err
		}
		id := p.node(NodeMemberAccess, name, left)
		p.arena.Get(id).Str = name.Text
		sy.operands[len(sy.operands)-1] = id
		return p.seal(id)
	}

	index, err := p.parseExpression(exprMode{})
	if err != nil {
		return err
	}
	if _, err := p.expect(TokenRBracket, "']'"); err != nil {
		p.arena.ReleaseTree(index)
		return err
	}
	id := p.node(NodeBinaryOp, t, left, index)
	p.arena.Get(id).Str = "[]"
	sy.operands[len(sy.operands)-1] = id
	return p.seal(id)
}

// reduce pops one operator and its operands into a node.
func (sy *shuntingYard) reduce() error {
	p := sy.p
	op := sy.ops[len(sy.ops)-1]
	sy.ops = sy.ops[:len(sy.ops)-1]

	if op.unary {
		if len(sy.operands) < 1 {
			return p.errorf(UnexpectedToken, op.tok, "operator '%s' is missing its operand", op.tok.Text)
		}
		operand := sy.operands[len(sy.operands)-1]
		if folded, ok := p.foldSign(op.tok, operand); ok {
			sy.operands[len(sy.operands)-1] = folded
			return nil
		}
		id := p.node(NodeUnaryOp, op.tok, operand)
		p.arena.Get(id).Str = op.tok.Text
		sy.operands[len(sy.operands)-1] = id
		return p.seal(id)
	}

	if len(sy.operands) < 2 {
		return p.errorf(UnexpectedToken, op.tok, "operator '%s' is missing an operand", op.tok.Text)
	}
	right := sy.operands[len(sy.operands)-1]
	left := sy.operands[len(sy.operands)-2]
	sy.operands = sy.operands[:len(sy.operands)-2]

	kind := NodeBinaryOp
	switch op.tok.Kind {
	case TokenEqual:
		kind = NodeAssign
	case TokenEllipsis:
		kind = NodeRange
	}
	if op.tok.Kind.IsAssignment() {
		for _, side := range []NodeID{left, right} {
			if n := p.arena.Get(side); n != nil && (n.Kind == NodeAssign || n.Kind == NodeBinaryOp && n.Token.Kind.IsAssignment()) {
				sy.operands = append(sy.operands, left, right)
				return p.errorf(UnsupportedConstruct, op.tok, "chained assignment is not supported")
			}
		}
	}

	id := p.node(kind, op.tok, left, right)
	p.arena.Get(id).Str = op.tok.Text
	sy.operands = append(sy.operands, id)
	return p.seal(id)
}

// foldSign applies a unary sign directly to a numeric literal so `-5` stays
// a literal for compatibility checks.
func (p *parser) foldSign(op Token, operand NodeID) (NodeID, bool) {
	if op.Kind != TokenUnaryMinus && op.Kind != TokenUnaryPlus {
		return NoNode, false
	}
	n := p.arena.Get(operand)
	if n == nil || n.Kind != NodeIntLiteral && n.Kind != NodeRealLiteral {
		return NoNode, false
	}
	if op.Kind == TokenUnaryMinus {
		n.Int = -n.Int
		n.Real = -n.Real
	}
	n.Token = p.span(op, n.Token)
	return operand, true
}

// release frees every partial result.
func (sy *shuntingYard) release() {
	for _, id := range sy.operands {
		sy.p.arena.ReleaseTree(id)
	}
	sy.operands = nil
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

func (p *parser) parseOperand(mode exprMode) (NodeID, error) {
	t := p.next()
	switch t.Kind {
	case TokenInteger:
		id := p.node(NodeIntLiteral, t)
		p.arena.Get(id).Int = ConvertInteger(t.Text)
		return id, nil
	case TokenReal:
		id := p.node(NodeRealLiteral, t)
		p.arena.Get(id).Real = ConvertReal(t.Text)
		return id, nil
	case TokenString:
		return p.node(NodeStringLiteral, t), nil
	case TokenCharacter:
		return p.node(NodeCharLiteral, t), nil
	case TokenVrai, TokenFaux:
		id := p.node(NodeBoolLiteral, t)
		p.arena.Get(id).Bool = t.Kind == TokenVrai
		return id, nil
	case TokenNul:
		return p.node(NodeNull, t), nil

	case TokenIdentifier:
		if p.is(TokenLParen) {
			return p.parseCall(t)
		}
		if p.is(TokenLBrace) && !mode.noConstruct {
			return p.parseConstruct(t)
		}
		id := p.node(NodeVariable, t)
		p.arena.Get(id).Str = t.Text
		return id, nil

	case TokenLBracket:
		return p.parseArray(t)

	case TokenTranstype:
		if _, err := p.expect(TokenLParen, "'(' after transtype"); err != nil {
			return NoNode, err
		}
		value, err := p.parseExpression(exprMode{inParens: true})
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokenColon, "':' before the target type"); err != nil {
			return NoNode, err
		}
		spec, err := p.parseType()
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return NoNode, err
		}
		id := p.node(NodeCast, t, value)
		p.arena.Get(id).Spec = spec
		return id, nil

	case TokenTailleDe:
		if _, err := p.expect(TokenLParen, "'(' after taille_de"); err != nil {
			return NoNode, err
		}
		spec, err := p.parseType()
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return NoNode, err
		}
		id := p.node(NodeSizeOf, t)
		p.arena.Get(id).Spec = spec
		return id, nil

	case TokenMemoire:
		if _, err := p.expect(TokenLParen, "'(' after mémoire"); err != nil {
			return NoNode, err
		}
		value, err := p.parseExpression(exprMode{inParens: true})
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return NoNode, err
		}
		return p.node(NodeMemory, t, value), nil

	case TokenLoge:
		spec, err := p.parseType()
		if err != nil {
			return NoNode, err
		}
		id := p.node(NodeAlloc, t)
		p.arena.Get(id).Spec = spec
		return id, nil

	case TokenReloge:
		value, err := p.parseExpression(exprMode{})
		if err != nil {
			return NoNode, err
		}
		if _, err := p.expect(TokenColon, "':' before the new type"); err != nil {
			return NoNode, err
		}
		spec, err := p.parseType()
		if err != nil {
			return NoNode, err
		}
		id := p.node(NodeRealloc, t, value)
		p.arena.Get(id).Spec = spec
		return id, nil

	case TokenDeloge:
		value, err := p.parseExpression(exprMode{inParens: mode.inParens})
		if err != nil {
			return NoNode, err
		}
		return p.node(NodeFree, t, value), nil

	case TokenDe:
		return NoNode, p.errorf(UnsupportedConstruct, t, "'de' is not supported")
	}

	if t.Kind.IsBuiltinType() {
		return NoNode, p.errorf(UnexpectedToken, t, "type '%s' cannot be used as a value", t.Text)
	}
	return NoNode, p.errorf(UnexpectedToken, t, "unexpected %s in expression", describe(t))
}

// parseCall parses the argument list after a function name. Arguments may
// be named with `nom = valeur`.
func (p *parser) parseCall(name Token) (NodeID, error) {
	p.next() // '('
	id := p.node(NodeCall, name)
	p.arena.Get(id).Str = name.Text

	var names []string
	named := false
	for !p.accept(TokenRParen) {
		if len(names) > 0 {
			if _, err := p.expect(TokenComma, "',' or ')' in argument list"); err != nil {
				p.arena.ReleaseTree(id)
				return NoNode, err
			}
		}
		argName := ""
		if p.is(TokenIdentifier) && p.peekAt(1).Kind == TokenEqual {
			argName = p.next().Text
			p.next()
			named = true
		}
		arg, err := p.parseExpression(exprMode{inParens: true})
		if err != nil {
			p.arena.ReleaseTree(id)
			return NoNode, err
		}
		p.arena.AddChild(id, arg)
		names = append(names, argName)
	}
	if named {
		p.arena.Get(id).Names = names
	}
	return id, nil
}

// parseConstruct parses `Nom { membre = valeur, ... }`.
func (p *parser) parseConstruct(name Token) (NodeID, error) {
	p.next() // '{'
	id := p.node(NodeStructConstruct, name)
	p.arena.Get(id).Str = name.Text

	var names []string
	for !p.accept(TokenRBrace) {
		member, err := p.expect(TokenIdentifier, "member name in construction")
		if err != nil {
			p.arena.ReleaseTree(id)
			return NoNode, err
		}
		if _, err := p.expect(TokenEqual, "'=' after member name"); err != nil {
			p.arena.ReleaseTree(id)
			return NoNode, err
		}
		value, err := p.parseExpression(exprMode{})
		if err != nil {
			p.arena.ReleaseTree(id)
			return NoNode, err
		}
		p.arena.AddChild(id, value)
		names = append(names, member.Text)
		if !p.accept(TokenComma) && !p.is(TokenRBrace) {
			p.arena.ReleaseTree(id)
			return NoNode, p.errorf(UnexpectedToken, p.peek(), "expected ',' or '}' in construction, found %s", describe(p.peek()))
		}
	}
	p.arena.Get(id).Names = names
	return id, nil
}

// parseArray parses `[a, b, c]`.
func (p *parser) parseArray(open Token) (NodeID, error) {
	id := p.node(NodeArrayConstruct, open)
	for !p.accept(TokenRBracket) {
		value, err := p.parseExpression(exprMode{})
		if err != nil {
			p.arena.ReleaseTree(id)
			return NoNode, err
		}
		p.arena.AddChild(id, value)
		if !p.accept(TokenComma) && !p.is(TokenRBracket) {
			p.arena.ReleaseTree(id)
			return NoNode, p.errorf(UnexpectedToken, p.peek(), "expected ',' or ']' in array, found %s", describe(p.peek()))
		}
	}
	return id, nil
}
