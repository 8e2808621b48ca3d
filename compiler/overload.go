package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Calls and overload resolution
// ---------------------------------------------------------------------------

// binding is one candidate's assignment of call arguments to parameters.
type binding struct {
	fn       *Function
	weight   float64
	slots    []NodeID // one per non-variadic parameter, in parameter order
	variadic []NodeID
	flags    map[NodeID]NodeFlags
}

func (v *validator) call(id NodeID) error {
	n := v.arena.Get(id)
	if l, ok := v.scope.Lookup(n.Str); ok {
		if l.Failed {
			return errPoisoned
		}
		return v.pointerCall(n, l)
	}

	for _, arg := range n.Children {
		if err := v.expr(arg); err != nil {
			return err
		}
	}

	candidates := v.m.visibleFunctions(n.Str)
	if len(candidates) == 0 {
		if g, ok := v.lookupGlobal(n.Str); ok && v.tt.IsCallable(g.Type) {
			return v.pointerCall(n, &Local{Name: g.Name, Type: g.Type})
		}
		if v.isPoisoned(n.Str) {
			return errPoisoned
		}
		return v.errorf(NoMatchingOverload, n.Token, "no function named '%s'", n.Str)
	}

	var best *binding
	var reports []CandidateReport
	for _, fn := range candidates {
		b, report := v.match(fn, n)
		if report != nil {
			reports = append(reports, *report)
			continue
		}
		// strictly greater: on a tie the first declared candidate wins
		if best == nil || b.weight > best.weight {
			best = b
		}
	}
	if best == nil {
		if v.isPoisoned(n.Str) {
			return errPoisoned
		}
		d := v.errorf(NoMatchingOverload, n.Token, "no overload of '%s' accepts these arguments", n.Str)
		d.Candidates = reports
		return d
	}
	v.bind(n, best)
	return nil
}

// pointerCall checks a call through a local or global of function type.
func (v *validator) pointerCall(n *Node, l *Local) error {
	if !v.tt.IsCallable(l.Type) {
		return v.errorf(TypeMismatch, n.Token, "'%s' has type %s and cannot be called", l.Name, v.tt.Text(l.Type))
	}
	for i, name := range n.Names {
		if name != "" {
			tok := v.arena.Get(n.Children[i]).Token
			return v.errorf(UnknownNamedArgument, tok, "calls through '%s' cannot name their arguments", l.Name)
		}
	}

	parts, err := v.tt.ParameterAndReturnTypes(l.Type)
	if err != nil {
		return v.errorf(TypeMismatch, n.Token, "%v", err)
	}
	params := parts[:len(parts)-1]
	fixed := len(params)
	variadic := fixed > 0 && params[fixed-1].IsVariadic()
	if variadic {
		fixed--
	}
	if !variadic && len(n.Children) != fixed || len(n.Children) < fixed {
		want := strconv.Itoa(fixed)
		if variadic {
			want = fmt.Sprintf("at least %d", fixed)
		}
		return v.errorf(ArityMismatch, n.Token, "'%s' takes %s arguments, got %d", l.Name, want, len(n.Children))
	}
	for i, arg := range n.Children {
		if err := v.expr(arg); err != nil {
			return err
		}
		an := v.arena.Get(arg)
		var want TypeID
		if i < fixed {
			want = v.tt.Intern(params[i])
		} else {
			want = v.tt.Intern(params[fixed][1:])
		}
		c := v.tt.Compatible(want, an.Type, an.Kind)
		if c == CompatReject {
			return v.errorf(TypeMismatch, an.Token, "argument %d of '%s' must be %s, not %s",
				i+1, l.Name, v.tt.Text(want), v.tt.Text(an.Type))
		}
		an.Flags |= coercionFlags(c)
	}
	if variadic {
		elem := v.tt.Intern(params[fixed][1:])
		pack := v.arena.New(NodeVariadicArray, n.Token)
		pn := v.arena.Get(pack)
		pn.Children = append(pn.Children, n.Children[fixed:]...)
		pn.Type = v.tt.ArrayOf(elem, 0)
		n.Children = append(n.Children[:fixed:fixed], pack)
	}
	n.Names = nil
	n.Type = v.tt.Intern(parts[len(parts)-1])
	n.Hint = HintFuncPtrCall
	return nil
}

func paramNames(fn *Function) []string {
	out := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		out[i] = p.Name
	}
	return out
}

func (fn *Function) paramIndex(name string) int {
	for i, p := range fn.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// match binds the call's arguments to fn. A nil binding comes with a report
// explaining the rejection.
func (v *validator) match(fn *Function, call *Node) (*binding, *CandidateReport) {
	report := func(reason ErrorKind) *CandidateReport {
		return &CandidateReport{
			Name:   fn.Signature(v.tt),
			Path:   fn.Module.Path,
			Line:   fn.Token.Line,
			Reason: reason,
			Params: paramNames(fn),
		}
	}
	arity := func() *CandidateReport {
		r := report(ArityMismatch)
		r.Expected = strconv.Itoa(len(fn.Params))
		if fn.Variadic {
			r.Expected = fmt.Sprintf("at least %d", len(fn.Params)-1)
		}
		r.Obtained = strconv.Itoa(len(call.Children))
		return r
	}

	nparams := len(fn.Params)
	fixed := nparams
	if fn.Variadic {
		fixed--
	}
	if !fn.Variadic && len(call.Children) != nparams || len(call.Children) < fixed {
		return nil, arity()
	}

	b := &binding{fn: fn, weight: 1, slots: make([]NodeID, fixed), flags: make(map[NodeID]NodeFlags)}
	bound := make([]bool, nparams)
	named := false
	lastNamedVariadic := false

	for i, arg := range call.Children {
		name := ""
		if call.Names != nil {
			name = call.Names[i]
		}

		if name != "" {
			idx := fn.paramIndex(name)
			if idx < 0 {
				r := report(UnknownNamedArgument)
				r.Argument = name
				return nil, r
			}
			if fn.Params[idx].Variadic {
				b.variadic = append(b.variadic, arg)
				bound[idx] = true
			} else {
				if bound[idx] {
					r := report(DuplicateNamedArgument)
					r.Argument = name
					return nil, r
				}
				b.slots[idx] = arg
				bound[idx] = true
			}
			named = true
			lastNamedVariadic = fn.Params[idx].Variadic
			continue
		}

		if named {
			if !lastNamedVariadic {
				return nil, report(MisplacedPositionalArgument)
			}
			b.variadic = append(b.variadic, arg)
			continue
		}

		idx := 0
		for idx < nparams && bound[idx] && !fn.Params[idx].Variadic {
			idx++
		}
		if idx == nparams {
			return nil, arity()
		}
		if fn.Params[idx].Variadic {
			b.variadic = append(b.variadic, arg)
		} else {
			b.slots[idx] = arg
		}
		bound[idx] = true
	}

	for i := 0; i < fixed; i++ {
		if !bound[i] {
			return nil, arity()
		}
	}

	check := func(p Param, want TypeID, arg NodeID) *CandidateReport {
		an := v.arena.Get(arg)
		c := v.tt.Compatible(want, an.Type, an.Kind)
		if c == CompatReject {
			r := report(TypeMismatch)
			r.Argument = p.Name
			r.Expected = v.tt.Text(want)
			r.Obtained = v.tt.Text(an.Type)
			return r
		}
		b.weight *= c.Weight()
		b.flags[arg] = coercionFlags(c)
		return nil
	}

	for i, arg := range b.slots {
		if r := check(fn.Params[i], fn.Params[i].Type, arg); r != nil {
			return nil, r
		}
	}
	if fn.Variadic {
		p := fn.Params[nparams-1]
		elem := v.tt.Element(p.Type)
		for _, arg := range b.variadic {
			if r := check(p, elem, arg); r != nil {
				return nil, r
			}
		}
	}
	return b, nil
}

// bind rewrites the call's children into parameter order. Trailing
// arguments of an internally variadic function are packed into one
// VariadicArray node.
func (v *validator) bind(n *Node, b *binding) {
	fn := b.fn
	for arg, f := range b.flags {
		v.arena.Get(arg).Flags |= f
	}

	children := make([]NodeID, 0, len(b.slots)+len(b.variadic))
	children = append(children, b.slots...)
	if fn.Variadic {
		if fn.internallyVariadic() {
			p := fn.Params[len(fn.Params)-1]
			pack := v.arena.New(NodeVariadicArray, n.Token)
			pn := v.arena.Get(pack)
			pn.Children = append(pn.Children, b.variadic...)
			pn.Type = p.Type
			pn.Str = p.Name
			children = append(children, pack)
		} else {
			children = append(children, b.variadic...)
		}
	}

	n.Children = children
	n.Names = nil
	n.Func = fn
	n.Type = fn.Return
	fn.Used = true
}
