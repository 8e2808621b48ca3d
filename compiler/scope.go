package compiler

import "strconv"

// ---------------------------------------------------------------------------
// Scope: block-structured locals and loop labels
// ---------------------------------------------------------------------------

// Local is a variable visible inside a function body.
type Local struct {
	Name     string
	Type     TypeID
	Mutable  bool
	Param    bool
	Decl     NodeID
	Variadic bool
	Failed   bool // its declaration was rejected in collect mode
}

// LoopLabels names the jump targets registered by a loop. Name is the loop
// variable for `pour`, empty for `boucle` and `tantque`.
type LoopLabels struct {
	Name     string
	Continue string
	Break    string
}

// Scope tracks the locals of the function being validated. Blocks push a
// mark; popping truncates back to it.
type Scope struct {
	locals []Local
	marks  []int
	loops  []LoopLabels
	unsafe int
	label  int
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Reset clears all state between functions.
func (s *Scope) Reset() {
	s.locals = s.locals[:0]
	s.marks = s.marks[:0]
	s.loops = s.loops[:0]
	s.unsafe = 0
}

// PushBlock opens a nested block.
func (s *Scope) PushBlock() {
	s.marks = append(s.marks, len(s.locals))
}

// PopBlock discards the locals of the innermost block.
func (s *Scope) PopBlock() {
	n := len(s.marks)
	if n == 0 {
		return
	}
	s.locals = s.locals[:s.marks[n-1]]
	s.marks = s.marks[:n-1]
}

// Depth returns the number of open blocks.
func (s *Scope) Depth() int { return len(s.marks) }

// Declare adds a local to the innermost block.
func (s *Scope) Declare(l Local) {
	s.locals = append(s.locals, l)
}

// Lookup finds the innermost local named name.
func (s *Scope) Lookup(name string) (*Local, bool) {
	for i := len(s.locals) - 1; i >= 0; i-- {
		if s.locals[i].Name == name {
			return &s.locals[i], true
		}
	}
	return nil, false
}

// Locals returns the visible locals, outermost first.
func (s *Scope) Locals() []Local { return s.locals }

// EnterUnsafe and LeaveUnsafe bracket a `nonsûr` block.
func (s *Scope) EnterUnsafe() { s.unsafe++ }
func (s *Scope) LeaveUnsafe() {
	if s.unsafe > 0 {
		s.unsafe--
	}
}

// Unsafe reports whether an enclosing block is `nonsûr`.
func (s *Scope) Unsafe() bool { return s.unsafe > 0 }

// PushLoop registers a loop's labels. A loop with a `sansarrêt` block
// breaks to a distinct label so the block can be skipped.
func (s *Scope) PushLoop(name string, hasNoBreak bool) LoopLabels {
	s.label++
	l := LoopLabels{
		Name:     name,
		Continue: labelName("continue", s.label),
		Break:    labelName("break", s.label),
	}
	if hasNoBreak {
		l.Break = labelName("break_nobreak", s.label)
	}
	s.loops = append(s.loops, l)
	return l
}

// PopLoop removes the innermost loop.
func (s *Scope) PopLoop() {
	if n := len(s.loops); n > 0 {
		s.loops = s.loops[:n-1]
	}
}

// InLoop reports whether any loop is open.
func (s *Scope) InLoop() bool { return len(s.loops) > 0 }

// Loop finds the labels for a break/continue target: the innermost loop
// when name is empty, else the innermost `pour` whose variable is name.
func (s *Scope) Loop(name string) (LoopLabels, bool) {
	for i := len(s.loops) - 1; i >= 0; i-- {
		if name == "" || s.loops[i].Name == name {
			return s.loops[i], true
		}
	}
	return LoopLabels{}, false
}

func labelName(prefix string, n int) string {
	return prefix + "_" + strconv.Itoa(n)
}
