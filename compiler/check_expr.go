package compiler

import "unicode/utf8"

// ---------------------------------------------------------------------------
// Semantic validation: expressions
// ---------------------------------------------------------------------------

// expr validates an expression and records its type on the node.
func (v *validator) expr(id NodeID) error {
	n := v.arena.Get(id)
	switch n.Kind {
	case NodeIntLiteral:
		n.Type = TypeE32
	case NodeRealLiteral:
		n.Type = TypeR64
	case NodeBoolLiteral:
		n.Type = TypeBool
	case NodeNull:
		n.Type = TypePtrNul

	case NodeStringLiteral:
		s, bad, ok := decodeEscapes(n.Token.Text)
		if !ok {
			return v.errorf(UnsupportedConstruct, n.Token, "unknown escape sequence %q", bad)
		}
		n.Str = s
		n.Type = TypeChaine

	case NodeCharLiteral:
		s, bad, ok := decodeEscapes(n.Token.Text)
		if !ok {
			return v.errorf(UnsupportedConstruct, n.Token, "unknown escape sequence %q", bad)
		}
		r, _ := utf8.DecodeRuneInString(s)
		n.Int = int64(r)
		n.Type = TypeE8

	case NodeVariable:
		return v.variable(n)

	case NodeMemberAccess:
		return v.member(n)

	case NodeCall:
		return v.call(id)

	case NodeAssign:
		return v.assign(id)

	case NodeBinaryOp:
		return v.binary(n)

	case NodeUnaryOp:
		return v.unary(n)

	case NodeRange:
		return v.rangeExpr(n)

	case NodeStructConstruct:
		return v.construct(n)

	case NodeArrayConstruct:
		return v.arrayConstruct(n)

	case NodeCast:
		if err := v.expr(n.Children[0]); err != nil {
			return err
		}
		t, err := v.resolveSpec(n.Spec)
		if err != nil {
			return err
		}
		n.Type = t

	case NodeSizeOf:
		t, err := v.resolveSpec(n.Spec)
		if err != nil {
			return err
		}
		n.Int = int64(v.tt.SizeOf(t))
		n.Type = TypeN32

	case NodeMemory:
		if err := v.expr(n.Children[0]); err != nil {
			return err
		}
		pn := v.arena.Get(n.Children[0])
		if !v.tt.IsPointer(pn.Type) || pn.Type == TypePtrNul {
			return v.errorf(TypeMismatch, pn.Token, "'mémoire' needs a pointer, not %s", v.tt.Text(pn.Type))
		}
		n.Type = v.tt.Element(pn.Type)

	case NodeAlloc:
		t, err := v.resolveSpec(n.Spec)
		if err != nil {
			return err
		}
		n.Type = v.allocated(t)

	case NodeRealloc:
		if err := v.expr(n.Children[0]); err != nil {
			return err
		}
		t, err := v.resolveSpec(n.Spec)
		if err != nil {
			return err
		}
		want := v.allocated(t)
		vn := v.arena.Get(n.Children[0])
		if vn.Type != want {
			return v.errorf(TypeMismatch, vn.Token, "'reloge' of a %s as %s", v.tt.Text(vn.Type), v.tt.Text(want))
		}
		n.Type = want

	case NodeFree:
		if err := v.expr(n.Children[0]); err != nil {
			return err
		}
		vn := v.arena.Get(n.Children[0])
		switch {
		case v.tt.IsPointer(vn.Type) && vn.Type != TypePtrNul,
			v.tt.IsArray(vn.Type) && v.tt.ArrayLength(vn.Type) == 0,
			vn.Type == TypeChaine:
		default:
			return v.errorf(TypeMismatch, vn.Token, "'déloge' cannot release a value of type %s", v.tt.Text(vn.Type))
		}
		n.Type = TypeRien

	case NodeVariadicArray:
		// built by overload resolution from arguments already checked

	case NodeInvalid, NodeRoot, NodeImport, NodeFunctionDecl, NodeBlock, NodeIf, NodeUnless,
		NodeFor, NodeLoop, NodeWhile, NodeBreakContinue, NodeReturn, NodeYield, NodeDefer,
		NodeUnsafe, NodeStructDecl, NodeEnumDecl:
		return v.errorf(UnsupportedConstruct, n.Token, "%s is not an expression", n.Kind)

	default:
		return v.errorf(UnsupportedConstruct, n.Token, "unexpected %s", n.Kind)
	}
	return nil
}

// allocated is the type `loge T` yields: a slice for arrays, the string
// itself for chaine, a pointer otherwise.
func (v *validator) allocated(t TypeID) TypeID {
	switch {
	case v.tt.IsArray(t):
		return v.tt.ArrayOf(v.tt.Element(t), 0)
	case t == TypeChaine:
		return t
	}
	return v.tt.PointerTo(t)
}

func (v *validator) variable(n *Node) error {
	if l, ok := v.scope.Lookup(n.Str); ok {
		if l.Failed {
			return errPoisoned
		}
		n.Type = l.Type
		return nil
	}
	if g, ok := v.lookupGlobal(n.Str); ok {
		n.Type = g.Type
		return nil
	}
	if fns := v.m.visibleFunctions(n.Str); len(fns) > 0 {
		if len(fns) > 1 {
			return v.errorf(NoMatchingOverload, n.Token, "'%s' names %d overloads; cannot take one as a value", n.Str, len(fns))
		}
		fns[0].Used = true
		n.Func = fns[0]
		n.Type = fns[0].Type
		return nil
	}
	if _, ok := v.c.structures[n.Str]; ok {
		return v.errorf(UnknownIdentifier, n.Token, "type '%s' cannot be used as a value", n.Str)
	}
	if v.isPoisoned(n.Str) {
		return errPoisoned
	}
	return v.errorf(UnknownIdentifier, n.Token, "unknown identifier '%s'", n.Str)
}

// enumValue resolves `Enum.Value` when base names an enum rather than a
// variable.
func (v *validator) enumValue(n, base *Node) (bool, error) {
	if base.Kind != NodeVariable {
		return false, nil
	}
	if _, ok := v.scope.Lookup(base.Str); ok {
		return false, nil
	}
	if _, ok := v.lookupGlobal(base.Str); ok {
		return false, nil
	}
	s, ok := v.c.structures[base.Str]
	if !ok || !s.Enum {
		return false, nil
	}
	m, ok := s.Member(n.Str)
	if !ok {
		return true, v.errorf(UnknownMember, n.Token, "enum '%s' has no value '%s'", s.Name, n.Str)
	}
	base.Type = s.Type
	n.Type = s.Type
	n.Int = m.Value
	n.Flags |= FlagConstant
	return true, nil
}

func (v *validator) member(n *Node) error {
	base := v.arena.Get(n.Children[0])
	if handled, err := v.enumValue(n, base); handled {
		return err
	}
	if err := v.expr(n.Children[0]); err != nil {
		return err
	}

	t := base.Type
	if k := v.tt.Kind(t); k == TagPointer && t != TypePtrNul || k == TagReference {
		t = v.tt.Element(t)
		n.Flags |= FlagNeedsDeref
	}

	switch {
	case t == TypeChaine:
		switch n.Str {
		case "taille":
			n.Type = TypeE64
			return nil
		case "pointeur":
			n.Type = TypePtrE8
			return nil
		}
	case t == TypeEini:
		switch n.Str {
		case "info", "pointeur":
			n.Type = TypePtrRien
			return nil
		}
	case v.tt.IsArray(t):
		switch n.Str {
		case "taille":
			n.Type = TypeE64
			return nil
		case "pointeur":
			n.Type = v.tt.PointerTo(v.tt.Element(t))
			return nil
		}
	case v.tt.Kind(t) == TagStruct:
		s, ok := v.c.structures[v.tt.StructureName(t)]
		if ok {
			if m, ok := s.Member(n.Str); ok {
				n.Type = m.Type
				return nil
			}
		}
		return v.errorf(UnknownMember, n.Token, "structure '%s' has no member '%s'", v.tt.StructureName(t), n.Str)
	}
	return v.errorf(UnknownMember, n.Token, "type %s has no member '%s'", v.tt.Text(t), n.Str)
}

func isComparison(op TokenKind) bool {
	switch op {
	case TokenLess, TokenLessEqual, TokenGreater, TokenGreaterEqual, TokenEqualEqual, TokenNotEqual:
		return true
	}
	return false
}

func isLiteral(k NodeKind) bool {
	return k == NodeIntLiteral || k == NodeRealLiteral
}

func (v *validator) binary(n *Node) error {
	for _, c := range n.Children {
		if err := v.expr(c); err != nil {
			return err
		}
	}
	left, right := v.arena.Get(n.Children[0]), v.arena.Get(n.Children[1])

	if n.Str == "[]" {
		if !v.tt.IsIntegral(right.Type) {
			return v.errorf(TypeMismatch, right.Token, "index must be an integer, not %s", v.tt.Text(right.Type))
		}
		n.Flags |= FlagNeedsDeref
		switch {
		case v.tt.IsArray(left.Type), v.tt.IsPointer(left.Type) && left.Type != TypePtrNul:
			n.Type = v.tt.Element(left.Type)
		case left.Type == TypeChaine:
			n.Type = TypeE8
		default:
			return v.errorf(TypeMismatch, left.Token, "cannot index a value of type %s", v.tt.Text(left.Type))
		}
		return nil
	}

	op := n.Token.Kind
	switch op {
	case TokenAndAnd, TokenBarBar:
		for _, side := range []*Node{left, right} {
			if side.Type != TypeBool {
				return v.errorf(TypeMismatch, side.Token, "'%s' needs bool operands, not %s", n.Str, v.tt.Text(side.Type))
			}
		}
		n.Type = TypeBool
		return nil
	}

	chained := isComparison(op) && left.Kind == NodeBinaryOp && isComparison(left.Token.Kind)
	if !chained && !v.tt.Operable(left.Type, right.Type, left.Kind, right.Kind) {
		return v.errorf(TypeMismatch, n.Token, "'%s' cannot combine %s and %s",
			n.Str, v.tt.Text(left.Type), v.tt.Text(right.Type))
	}

	if op.IsAssignment() {
		if !v.assignable(n.Children[0]) {
			return v.errorf(InvalidAssignmentTarget, left.Token, "cannot assign to '%s'", left.Token.Text)
		}
		n.Type = left.Type
		return nil
	}

	switch {
	case isComparison(op):
		n.Type = TypeBool
	case isLiteral(left.Kind) && !isLiteral(right.Kind):
		n.Type = right.Type
	default:
		n.Type = left.Type
	}
	return nil
}

func (v *validator) unary(n *Node) error {
	if err := v.expr(n.Children[0]); err != nil {
		return err
	}
	operand := v.arena.Get(n.Children[0])
	t := operand.Type

	switch n.Token.Kind {
	case TokenAt:
		n.Type = v.tt.PointerTo(t)
		return nil
	case TokenExclamation:
		if t != TypeBool {
			return v.errorf(TypeMismatch, n.Token, "'!' needs a bool operand, not %s", v.tt.Text(t))
		}
	case TokenTilde:
		if !v.tt.IsIntegral(t) {
			return v.errorf(TypeMismatch, n.Token, "'~' needs an integral operand, not %s", v.tt.Text(t))
		}
	case TokenUnaryMinus, TokenUnaryPlus:
		if !v.tt.IsIntegral(t) && !v.tt.IsReal(t) {
			return v.errorf(TypeMismatch, n.Token, "'%s' needs a numeric operand, not %s", n.Token.Text, v.tt.Text(t))
		}
	}
	n.Type = t
	return nil
}

func (v *validator) rangeExpr(n *Node) error {
	for _, c := range n.Children {
		if err := v.expr(c); err != nil {
			return err
		}
	}
	lo, hi := v.arena.Get(n.Children[0]), v.arena.Get(n.Children[1])
	if !v.tt.Operable(lo.Type, hi.Type, lo.Kind, hi.Kind) {
		return v.errorf(TypeMismatch, n.Token, "range bounds %s and %s do not match", v.tt.Text(lo.Type), v.tt.Text(hi.Type))
	}
	t := lo.Type
	if isLiteral(lo.Kind) && !isLiteral(hi.Kind) {
		t = hi.Type
	}
	if !v.tt.IsIntegral(t) && !v.tt.IsReal(t) {
		return v.errorf(TypeMismatch, n.Token, "range bounds must be numeric, not %s", v.tt.Text(t))
	}
	n.Type = t
	return nil
}

func (v *validator) construct(n *Node) error {
	s, ok := v.c.structures[n.Str]
	if !ok {
		return v.errorf(UnknownType, n.Token, "unknown structure '%s'", n.Str)
	}
	if s.Enum {
		return v.errorf(TypeMismatch, n.Token, "enum '%s' cannot be constructed", n.Str)
	}

	seen := make(map[string]bool, len(n.Names))
	for i, name := range n.Names {
		valueID := n.Children[i]
		vn := v.arena.Get(valueID)
		m, ok := s.Member(name)
		if !ok {
			return v.errorf(UnknownMember, vn.Token, "structure '%s' has no member '%s'", s.Name, name)
		}
		if seen[name] {
			return v.errorf(DuplicateMember, vn.Token, "member '%s' is initialized twice", name)
		}
		seen[name] = true

		if err := v.expr(valueID); err != nil {
			return err
		}
		c := v.tt.Compatible(m.Type, vn.Type, vn.Kind)
		if c == CompatReject {
			return v.errorf(TypeMismatch, vn.Token, "member '%s' has type %s, value has type %s",
				name, v.tt.Text(m.Type), v.tt.Text(vn.Type))
		}
		vn.Flags |= coercionFlags(c)
	}
	n.Type = s.Type
	return nil
}

func (v *validator) arrayConstruct(n *Node) error {
	if len(n.Children) == 0 {
		return v.errorf(TypeMismatch, n.Token, "cannot infer the element type of an empty array")
	}
	var elem TypeID
	for i, c := range n.Children {
		if err := v.expr(c); err != nil {
			return err
		}
		cn := v.arena.Get(c)
		if i == 0 {
			elem = cn.Type
			continue
		}
		if cn.Type != elem {
			return v.errorf(TypeMismatch, cn.Token, "array element has type %s, expected %s",
				v.tt.Text(cn.Type), v.tt.Text(elem))
		}
	}
	n.Type = v.tt.ArrayOf(elem, uint32(len(n.Children)))
	return nil
}
