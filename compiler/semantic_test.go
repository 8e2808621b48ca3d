package compiler

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func compileSource(src string) (*Context, *Module, error) {
	c := NewContext(Options{})
	m, err := c.AddModule("principal", "principal.kuri", src, true)
	if err != nil {
		return nil, nil, err
	}
	return c, m, c.Compile(m)
}

func mustCompile(t *testing.T, src string) (*Context, *Module) {
	t.Helper()
	c, m, err := compileSource(src)
	if err != nil {
		t.Fatalf("Compile error:\n%v", err)
	}
	return c, m
}

// bodyStatement returns statement i of the first overload of fn.
func bodyStatement(t *testing.T, c *Context, m *Module, fn string, i int) *Node {
	t.Helper()
	fns := m.Functions[fn]
	if len(fns) == 0 {
		t.Fatalf("no function %q", fn)
	}
	decl := c.Arena.Get(fns[0].Decl)
	body := c.Arena.Get(decl.Children[0])
	if i >= len(body.Children) {
		t.Fatalf("%s has %d statements, want index %d", fn, len(body.Children), i)
	}
	return c.Arena.Get(body.Children[i])
}

func TestValidPrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"entry point", "fonction principale() : e32 { retourne 0; }"},
		{"arithmetic", "fonction f(a : e32, b : e64) : e64 { soit c = b + 1; retourne c; }"},
		{"mutation", "fonction f() { dyn x = 1; x = 2; x += 3; }"},
		{"structure", `structure Point { x : r32; y : r32 = 1.0 }
fonction f() : r32 { soit p = Point { x = 2.0 }; retourne p.x + p.y; }`},
		{"pointer members", `structure N { v : e32; suivant : *N }
fonction f(n : *N) : e32 { retourne n.suivant.v; }`},
		{"enum", `énum Couleur { Rouge, Vert = 5, Bleu }
fonction f() : bool { soit c = Couleur.Bleu; retourne c == Couleur.Rouge; }`},
		{"loops", `fonction f(t : []e32) : e32 {
	dyn total = 0;
	pour x, i dans t { total += x; }
	pour j dans 0...10 { si j == 5 { arrête; } }
	pour c dans "abc" { continue; }
	tantque total > 100 { total -= 1; }
	boucle { arrête; }
	retourne total;
}`},
		{"unsafe global", "dyn compteur : e32;\nfonction f() { nonsûr { compteur = 1; } }"},
		{"read global", "soit LIMITE = 10;\nfonction f() : e32 { retourne LIMITE; }"},
		{"memory", `fonction f() {
	soit p = loge e32;
	mémoire(p) = 4;
	dyn t = loge [4]r64;
	t = reloge t : [8]r64;
	déloge p;
	déloge t;
}`},
		{"cast and sizeof", "fonction f(x : r64) : e32 { soit n = taille_de(r64); retourne transtype(x : e32); }"},
		{"function pointer", `fonction double(x : e32) : e32 { retourne x * 2; }
fonction applique(f : fonction(e32)e32, v : e32) : e32 { retourne f(v); }
fonction principale() : e32 { retourne applique(double, 3); }`},
		{"coroutine", `coroutine compte(n : e32) : e32 {
	dyn i = 0;
	tantque i < n { retiens i; i += 1; }
}
fonction somme() : e32 {
	dyn s = 0;
	pour v dans compte(3) { s += v; }
	retourne s;
}`},
		{"branches", "fonction f(a : bool) : e32 { diffère { } si a { retourne 1; } sinon { retourne 2; } }"},
		{"else if chain", "fonction f(a : e32) : e32 { si a == 0 { retourne 1; } sinon si a == 1 { retourne 2; } sinon { retourne 3; } }"},
		{"unless branches", "fonction f(a : bool) : e32 { saufsi a { retourne 1; } sinon { retourne 2; } }"},
		{"nested block return", "fonction f() : e32 { { retourne 1; } }"},
		{"branch ending in block", "fonction f(a : bool) : e32 { si a { { retourne 1; } } sinon { soit x = 2; retourne x; } }"},
		{"unless", "fonction f(a : bool) { saufsi a { } sinon si !a { } }"},
		{"escapes", `fonction f() : chaine { soit c = '\n'; retourne "l\tigne\n"; }`},
		{"array literal", "fonction f() : e32 { soit t = [1, 2, 3]; soit n = t.taille; retourne t[0]; }"},
		{"boxing", "fonction montre(v : eini) {}\nfonction f() { montre(3); montre([1, 2]); }"},
		{"c string", "fonction externe puts(s : *e8) : e32;\nfonction f() { puts(\"salut\"); }"},
		{"declared after use", "fonction f() : e32 { retourne g(); }\nfonction g() : e32 { retourne 1; }"},
		{"string members", "fonction f(s : chaine) : *e8 { soit n = s.taille; retourne s.pointeur; }"},
		{"null pointer", "fonction f() { dyn p : *e32 = nul; p = nul; }"},
		{"local structure", "fonction f() { structure L { a : e8 } soit l = L { a = 1 }; }"},
		{"index assignment", "fonction f() { dyn t = [1, 2]; t[0] = 3; }"},
		{"comparison chain", "fonction f(a : e32, b : e32) : bool { retourne 0 < a < b; }"},
	}
	for _, tc := range tests {
		if _, _, err := compileSource(tc.src); err != nil {
			t.Errorf("%s: unexpected error:\n%v", tc.name, err)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want ErrorKind
	}{
		{"local redeclared", "fonction f() { soit x = 1; soit x = 2; }", Redeclaration},
		{"param shadowed", "fonction f(a : e32) { soit a = 1; }", Redeclaration},
		{"global shadowed", "soit A = 1;\nfonction f() { soit A = 2; }", Redeclaration},
		{"global redeclared", "soit A = 1;\nsoit A = 2;", Redeclaration},
		{"structure redeclared", "structure A { x : e32 }\nstructure A { y : e32 }", Redeclaration},
		{"same signature", "fonction f() {}\nfonction f() {}", Redeclaration},
		{"parameter twice", "fonction f(a : e32, a : e32) {}", Redeclaration},
		{"unknown identifier", "fonction f() : e32 { retourne y; }", UnknownIdentifier},
		{"type as value", "structure P { x : e32 }\nfonction f() { soit p = P; }", UnknownIdentifier},
		{"unknown type", "fonction f(a : Inconnu) {}", UnknownType},
		{"unknown construct", "fonction f() { soit p = Q { x = 1 }; }", UnknownType},
		{"unknown member", "structure P { x : e32 }\nfonction f(p : P) : e32 { retourne p.z; }", UnknownMember},
		{"unknown enum value", "énum C { A }\nfonction f() { soit c = C.B; }", UnknownMember},
		{"scalar member", "fonction f(a : e32) { soit b = a.taille; }", UnknownMember},
		{"declared type", "fonction f() { soit x : bool = 1; }", TypeMismatch},
		{"global type", "soit g : bool = 3;", TypeMismatch},
		{"condition", "fonction f() { si 1 { } }", TypeMismatch},
		{"mixed operands", "fonction f(a : e32, b : r64) { soit c = a + b; }", TypeMismatch},
		{"not on integer", "fonction f(a : e32) { soit b = !a; }", TypeMismatch},
		{"logical and", "fonction f(a : e32) { soit b = a && vrai; }", TypeMismatch},
		{"index type", "fonction f(t : []e32) { soit x = t[vrai]; }", TypeMismatch},
		{"iterate bool", "fonction f() { pour x dans vrai { } }", TypeMismatch},
		{"memory of value", "fonction f(a : e32) { soit b = mémoire(a); }", TypeMismatch},
		{"realloc type", "fonction f() { dyn p = loge e32; p = reloge p : r64; }", TypeMismatch},
		{"free value", "fonction f(a : e32) { déloge a; }", TypeMismatch},
		{"enum expression value", "énum C { A = 1 + 2 }", TypeMismatch},
		{"enum real base", "énum C : r32 { A }", TypeMismatch},
		{"empty array", "fonction f() { soit t = []; }", TypeMismatch},
		{"mixed array", "fonction f() { soit t = [1, vrai]; }", TypeMismatch},
		{"member value", "structure P { x : e32 }\nfonction f() { soit p = P { x = vrai }; }", TypeMismatch},
		{"call a value", "fonction f(a : e32) { a(); }", TypeMismatch},
		{"no value", "fonction g() {}\nfonction f() { soit x = g(); }", TypeMismatch},
		{"immutable local", "fonction f() { soit x = 1; x = 2; }", InvalidAssignmentTarget},
		{"immutable compound", "fonction f() { soit x = 1; x += 2; }", InvalidAssignmentTarget},
		{"global outside unsafe", "dyn g : e32;\nfonction f() { g = 1; }", InvalidAssignmentTarget},
		{"immutable global", "soit G = 1;\nfonction f() { nonsûr { G = 2; } }", InvalidAssignmentTarget},
		{"parameter", "fonction f(a : e32) { a = 1; }", InvalidAssignmentTarget},
		{"pointer arity", "fonction f(g : fonction(e32)rien) { g(1, 2); }", ArityMismatch},
		{"pointer named", "fonction f(g : fonction(e32)rien) { g(x = 1); }", UnknownNamedArgument},
		{"variadic pointer arity", "fonction f(g : fonction(e32, ...e32)rien) { g(); }", ArityMismatch},
		{"variadic pointer element", "fonction f(g : fonction(e32, ...e32)rien) { g(1, 2, vrai); }", TypeMismatch},
		{"no overload", "fonction g(a : e32) {}\nfonction f() { g(vrai); }", NoMatchingOverload},
		{"unknown function", "fonction f() { inconnue(); }", NoMatchingOverload},
		{"overloads as value", "fonction g(a : e32) {}\nfonction g(a : r32) {}\nfonction f() { soit p = g; }", NoMatchingOverload},
		{"missing return", "fonction f() : e32 { soit x = 1; }", MissingReturn},
		{"empty body", "fonction f() : e32 { }", MissingReturn},
		{"return in branch only", "fonction f(a : bool) : e32 { si a { retourne 1; } }", MissingReturn},
		{"else without return", "fonction f(a : bool) : e32 { si a { retourne 1; } sinon { } }", MissingReturn},
		{"else if without else", "fonction f(a : e32) : e32 { si a == 0 { retourne 1; } sinon si a == 1 { retourne 2; } }", MissingReturn},
		{"empty nested block", "fonction f() : e32 { { } }", MissingReturn},
		{"wrong return", "fonction f() : e32 { retourne vrai; }", ReturnTypeMismatch},
		{"bare return", "fonction f() : e32 { retourne; }", ReturnTypeMismatch},
		{"value from rien", "fonction f() { retourne 1; }", ReturnTypeMismatch},
		{"coroutine return value", "coroutine c() : e32 { retourne 1; }", ReturnTypeMismatch},
		{"break outside loop", "fonction f() { arrête; }", InvalidControlTransfer},
		{"unknown label", "fonction f() { pour x dans 0...3 { continue y; } }", InvalidControlTransfer},
		{"yield outside coroutine", "fonction f() : e32 { retiens 1; retourne 1; }", InvalidControlTransfer},
		{"break in nobreak", "fonction f() { pour x dans 0...3 { } sansarrêt { arrête; } }", InvalidControlTransfer},
		{"recursive member", "structure N { suivant : N }", RecursiveValueMember},
		{"recursive array member", "structure N { enfants : [2]N }", RecursiveValueMember},
		{"duplicate member", "structure P { x : e32; x : r32 }", DuplicateMember},
		{"duplicate enum value", "énum C { A, A }", DuplicateMember},
		{"duplicate initializer", "structure P { x : e32 }\nfonction f() { soit p = P { x = 1, x = 2 }; }", DuplicateMember},
		{"bad escape", `fonction f() { soit s = "a\qb"; }`, UnsupportedConstruct},
	}
	for _, tc := range tests {
		_, _, err := compileSource(tc.src)
		if err == nil {
			t.Errorf("%s: expected %v, got no error", tc.name, tc.want)
			continue
		}
		if got := KindOf(err); got != tc.want {
			t.Errorf("%s: kind = %v, want %v\n%v", tc.name, got, tc.want, err)
		}
	}
}

func TestRedeclarationPointsAtBoth(t *testing.T) {
	_, _, err := compileSource("fonction f() {\n\tsoit x = 1;\n\tsoit x = 2;\n}")
	ds := Diagnostics(err)
	if len(ds) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(ds))
	}
	d := ds[0]
	if d.Token.Line != 2 {
		t.Errorf("primary line = %d, want 2", d.Token.Line)
	}
	if d.Related == nil || d.Related.Line != 1 {
		t.Errorf("related = %+v, want line 1", d.Related)
	}
	if d.Path != "principal.kuri" {
		t.Errorf("Path = %q", d.Path)
	}
	if d.LineText != "\tsoit x = 2;" {
		t.Errorf("LineText = %q", d.LineText)
	}
}

func TestExpressionTypes(t *testing.T) {
	c, m := mustCompile(t, `structure P { x : r32 }
fonction f(p : *P, s : chaine, t : [3]e8) {
	soit a = 2 + 3;
	soit b = 1.5;
	soit c = p.x;
	soit d = s[0];
	soit e = t.pointeur;
	soit g = @a;
	soit h = -b;
	soit i = taille_de(P);
	soit j = 1 < 2;
}`)
	want := []string{"e32", "r64", "r32", "e8", "*e8", "*e32", "r64", "n32", "bool"}
	for i, w := range want {
		n := bodyStatement(t, c, m, "f", i)
		if got := c.Types.Text(n.Type); got != w {
			t.Errorf("statement %d type = %s, want %s", i, got, w)
		}
	}

	member := c.Arena.Get(bodyStatement(t, c, m, "f", 2).Children[1])
	if !member.Flags.Has(FlagNeedsDeref) {
		t.Error("member access through a pointer should need a dereference")
	}
	size := c.Arena.Get(bodyStatement(t, c, m, "f", 7).Children[1])
	if size.Int != 4 {
		t.Errorf("taille_de(P) = %d, want 4", size.Int)
	}
}

func TestReferenceAutoDereference(t *testing.T) {
	c, m := mustCompile(t, `structure P { x : e32 }
fonction lis(v : e32) : e32 { retourne v; }
fonction f(p : &P, n : &e32) : e32 { soit a = p.x; retourne lis(n); }`)

	member := c.Arena.Get(bodyStatement(t, c, m, "f", 0).Children[1])
	if got := c.Types.Text(member.Type); got != "e32" {
		t.Errorf("p.x type = %s, want e32", got)
	}
	if !member.Flags.Has(FlagNeedsDeref) {
		t.Error("member access through a reference should need a dereference")
	}

	call := c.Arena.Get(bodyStatement(t, c, m, "f", 1).Children[0])
	if call.Func == nil || call.Func.Name != "lis" {
		t.Fatalf("call resolved to %v, want lis", call.Func)
	}
	arg := c.Arena.Get(call.Children[0])
	if !arg.Flags.Has(FlagNeedsDeref) {
		t.Errorf("argument flags = %v, want deref", arg.Flags)
	}
}

func TestOverloadPrefersReferenceParameter(t *testing.T) {
	c, m := mustCompile(t, `fonction g(a : e32) {}
fonction g(a : &e32) {}
fonction f(n : &e32) { g(n); }`)
	call := bodyStatement(t, c, m, "f", 0)
	if call.Func != m.Functions["g"][1] {
		t.Errorf("g(n) picked %s, want the reference overload", call.Func.Signature(c.Types))
	}
}

func TestLiteralDecoding(t *testing.T) {
	c, m := mustCompile(t, `fonction f() { soit s = "a\tb\n"; soit r = '\n'; soit e = 'é'; }`)
	s := c.Arena.Get(bodyStatement(t, c, m, "f", 0).Children[1])
	if s.Str != "a\tb\n" {
		t.Errorf("string = %q", s.Str)
	}
	r := c.Arena.Get(bodyStatement(t, c, m, "f", 1).Children[1])
	if r.Int != '\n' {
		t.Errorf("'\\n' = %d", r.Int)
	}
	e := c.Arena.Get(bodyStatement(t, c, m, "f", 2).Children[1])
	if e.Int != 'é' {
		t.Errorf("'é' = %d", e.Int)
	}
}

func TestEnumValues(t *testing.T) {
	c, _ := mustCompile(t, "énum Couleur : n8 { Rouge, Vert = 5, Bleu }")
	s, ok := c.Structure("Couleur")
	if !ok || !s.Enum {
		t.Fatal("Couleur not registered as an enum")
	}
	want := []int64{0, 5, 6}
	for i, w := range want {
		if s.Members[i].Value != w {
			t.Errorf("%s = %d, want %d", s.Members[i].Name, s.Members[i].Value, w)
		}
	}
	if got := c.Types.SizeOf(s.Type); got != 1 {
		t.Errorf("SizeOf(Couleur) = %d, want 1", got)
	}
}

func TestStructureLayout(t *testing.T) {
	c, _ := mustCompile(t, "structure Paire { a : e32; b : r64 = 2.0 }")
	s, _ := c.Structure("Paire")
	if len(s.Members) != 2 {
		t.Fatalf("Paire has %d members", len(s.Members))
	}
	if c.Types.Text(s.Members[1].Type) != "r64" || !s.Members[1].Default.IsValid() {
		t.Errorf("b = %s default %v", c.Types.Text(s.Members[1].Type), s.Members[1].Default)
	}
	if got := c.Types.SizeOf(s.Type); got != 12 {
		t.Errorf("SizeOf(Paire) = %d, want 12", got)
	}
}

func TestCoercionFlags(t *testing.T) {
	c, m := mustCompile(t, `fonction montre(v : eini) {}
fonction externe puts(s : *e8) : e32;
fonction somme(t : []e32) : e32 { retourne 0; }
fonction f() {
	montre(3);
	puts("salut");
	soit fixe = [1, 2];
	somme(fixe);
}`)
	tests := []struct {
		stmt int
		flag NodeFlags
	}{
		{0, FlagBoxAny},
		{1, FlagExtractCString},
		{3, FlagConvertArray},
	}
	for _, tc := range tests {
		call := bodyStatement(t, c, m, "f", tc.stmt)
		arg := c.Arena.Get(call.Children[0])
		if !arg.Flags.Has(tc.flag) {
			t.Errorf("statement %d argument flags = %v, want %v", tc.stmt, arg.Flags, tc.flag)
		}
	}
}

func TestOverloadPicksBestWeight(t *testing.T) {
	c, m := mustCompile(t, `fonction g(a : eini) {}
fonction g(a : e64) {}
fonction f() { soit x : e64 = 1; g(x); }`)
	call := bodyStatement(t, c, m, "f", 1)
	if call.Func != m.Functions["g"][1] {
		t.Errorf("g(x) bound to %s, want the e64 overload", call.Func.Signature(c.Types))
	}
	if call.Func.MangledName != "g_e64" {
		t.Errorf("MangledName = %q, want g_e64", call.Func.MangledName)
	}
}

func TestOverloadSymbols(t *testing.T) {
	c := NewContext(Options{})
	c.Loader = mapLoader{
		"maths": `fonction aire(r : r32) : r32 { retourne r * r; }
fonction aire(l : r32, h : r32) : r32 { retourne l * h; }
fonction aire(t : []e32) {}
fonction aire(p : *e8) : e32 { retourne 0; }
fonction aire(v : ...e32) {}
fonction unique(x : e32) : e32 { retourne x; }`,
	}
	m, _ := c.AddModule("principal", "principal.kuri", `importe "maths"
fonction montre(a : e32) {}
fonction montre(a : &e32) {}
fonction principale() : e32 { retourne unique(1); }`, true)
	if err := c.Compile(m); err != nil {
		t.Fatalf("Compile error:\n%v", err)
	}
	maths, _ := c.Module("maths")

	tests := []struct {
		fn   *Function
		want string
	}{
		{maths.Functions["aire"][0], "maths_aire_r32__r32"},
		{maths.Functions["aire"][1], "maths_aire_r32_r32__r32"},
		{maths.Functions["aire"][2], "maths_aire_Ae32"},
		{maths.Functions["aire"][3], "maths_aire_Pe8__e32"},
		{maths.Functions["aire"][4], "maths_aire_Ve32"},
		{maths.Functions["unique"][0], "maths_unique"},
		{m.Functions["montre"][0], "montre_e32"},
		{m.Functions["montre"][1], "montre_Re32"},
		{m.Functions["principale"][0], "principale"},
	}
	seen := make(map[string]bool)
	for _, tc := range tests {
		if tc.fn.MangledName != tc.want {
			t.Errorf("%s mangled = %q, want %q", tc.fn.Signature(c.Types), tc.fn.MangledName, tc.want)
		}
		if seen[tc.fn.MangledName] {
			t.Errorf("symbol %q used twice", tc.fn.MangledName)
		}
		seen[tc.fn.MangledName] = true
	}
}

func TestOverloadTieKeepsFirstDeclared(t *testing.T) {
	c, m := mustCompile(t, `fonction montre(a : eini) {}
fonction montre(a : &e32) {}
fonction f() { dyn x = 1; montre(x); }`)
	call := bodyStatement(t, c, m, "f", 1)
	if call.Func != m.Functions["montre"][0] {
		t.Errorf("tie resolved to %s, want the first declaration", call.Func.Signature(c.Types))
	}
	if !m.Functions["montre"][0].Used || m.Functions["montre"][1].Used {
		t.Error("only the chosen overload should be marked used")
	}
}

func TestNamedArguments(t *testing.T) {
	c, m := mustCompile(t, `fonction h(a : e32, b : e32) {}
fonction f() { h(b = 1, a = 2); }`)
	call := bodyStatement(t, c, m, "f", 0)
	if len(call.Children) != 2 || call.Names != nil {
		t.Fatalf("call has %d children, names %v", len(call.Children), call.Names)
	}
	if a := c.Arena.Get(call.Children[0]); a.Int != 2 {
		t.Errorf("first argument = %d, want 2", a.Int)
	}
	if b := c.Arena.Get(call.Children[1]); b.Int != 1 {
		t.Errorf("second argument = %d, want 1", b.Int)
	}
}

func TestVariadicPacking(t *testing.T) {
	c, m := mustCompile(t, `fonction somme(base : e32, v : ...e32) : e32 { retourne base; }
fonction externe printf(f : *e8, args : ...eini) : e32;
fonction f() {
	somme(1, 2, 3, 4);
	somme(1);
	somme(base = 1, v = 2, 3);
	printf("%d", 1, 2);
}`)
	tests := []struct {
		stmt   int
		packed int
	}{
		{0, 3},
		{1, 0},
		{2, 2},
	}
	for _, tc := range tests {
		call := bodyStatement(t, c, m, "f", tc.stmt)
		if len(call.Children) != 2 {
			t.Errorf("statement %d: %d children, want 2", tc.stmt, len(call.Children))
			continue
		}
		pack := c.Arena.Get(call.Children[1])
		if pack.Kind != NodeVariadicArray {
			t.Errorf("statement %d: last child is %v", tc.stmt, pack.Kind)
			continue
		}
		if len(pack.Children) != tc.packed || pack.Str != "v" || c.Types.Text(pack.Type) != "[]e32" {
			t.Errorf("statement %d: pack = %d children %q %s", tc.stmt, len(pack.Children), pack.Str, c.Types.Text(pack.Type))
		}
	}

	printf := bodyStatement(t, c, m, "f", 3)
	if len(printf.Children) != 3 {
		t.Errorf("external variadic call has %d children, want 3", len(printf.Children))
	}
	for _, id := range printf.Children[1:] {
		if n := c.Arena.Get(id); n.Kind == NodeVariadicArray || !n.Flags.Has(FlagBoxAny) {
			t.Errorf("external variadic argument = %v flags %v", n.Kind, n.Flags)
		}
	}
}

func TestCandidateReports(t *testing.T) {
	_, _, err := compileSource(`fonction g(a : e32, b : bool) {}
fonction g(x : r64) {}
fonction f() { g(z = 1); }`)
	ds := Diagnostics(err)
	if len(ds) != 1 || ds[0].Kind != NoMatchingOverload {
		t.Fatalf("diagnostics = %v", err)
	}
	cands := ds[0].Candidates
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].Reason != ArityMismatch || cands[0].Expected != "2" || cands[0].Obtained != "1" || cands[0].Line != 0 {
		t.Errorf("candidate 0 = %+v", cands[0])
	}
	if cands[1].Reason != UnknownNamedArgument || cands[1].Argument != "z" || cands[1].Line != 1 {
		t.Errorf("candidate 1 = %+v", cands[1])
	}
	if len(cands[1].Params) != 1 || cands[1].Params[0] != "x" {
		t.Errorf("candidate 1 params = %v", cands[1].Params)
	}
	if !strings.Contains(err.Error(), "unknown argument 'z'") {
		t.Errorf("message lacks the candidate reason:\n%v", err)
	}
}

func TestCandidateReasons(t *testing.T) {
	decls := "fonction h(a : e32, b : e32) {}\nfonction v(a : e32, r : ...e32) {}\n"
	tests := []struct {
		call     string
		reason   ErrorKind
		argument string
		expected string
	}{
		{"h(vrai, 1)", TypeMismatch, "a", "e32"},
		{"h(a = 1, a = 2)", DuplicateNamedArgument, "a", ""},
		{"h(a = 1, 2)", MisplacedPositionalArgument, "", ""},
		{"h(1, 2, 3)", ArityMismatch, "", "2"},
		{"v()", ArityMismatch, "", "at least 1"},
		{"v(1, 2, vrai)", TypeMismatch, "r", "e32"},
	}
	for _, tc := range tests {
		_, _, err := compileSource(decls + "fonction f() { " + tc.call + "; }")
		ds := Diagnostics(err)
		if len(ds) != 1 || len(ds[0].Candidates) != 1 {
			t.Errorf("%s: diagnostics = %v", tc.call, err)
			continue
		}
		c := ds[0].Candidates[0]
		if c.Reason != tc.reason || c.Argument != tc.argument || c.Expected != tc.expected {
			t.Errorf("%s: candidate = %+v, want %v %q %q", tc.call, c, tc.reason, tc.argument, tc.expected)
		}
	}
}

func TestForLoopHints(t *testing.T) {
	c, m := mustCompile(t, `coroutine gen() : e32 { retiens 1; }
fonction f(t : []r32, s : chaine) {
	pour x dans t { }
	pour x, i dans t { }
	pour x dans 0...4 { }
	pour x, i dans 0...4 { }
	pour x dans s { }
	pour x, i dans s { }
	pour x dans gen() { }
	pour x, i dans gen() { }
}`)
	want := []GenHint{HintArray, HintArrayIndex, HintRange, HintRangeIndex,
		HintString, HintStringIndex, HintCoroutine, HintCoroutineIndex}
	for i, w := range want {
		if got := bodyStatement(t, c, m, "f", i).Hint; got != w {
			t.Errorf("loop %d hint = %v, want %v", i, got, w)
		}
	}

	loop := bodyStatement(t, c, m, "f", 1)
	x := c.Arena.Get(loop.Children[forVar])
	if c.Types.Text(x.Type) != "r32" || !x.Flags.Has(FlagNeedsDeref) {
		t.Errorf("array element = %s flags %v", c.Types.Text(x.Type), x.Flags)
	}
	if i := c.Arena.Get(loop.Children[forIndex]); i.Type != TypeE32 {
		t.Errorf("index type = %s", c.Types.Text(i.Type))
	}
	if ch := c.Arena.Get(bodyStatement(t, c, m, "f", 4).Children[forVar]); ch.Type != TypeE8 {
		t.Errorf("string element = %s", c.Types.Text(ch.Type))
	}
}

func TestLoopLabels(t *testing.T) {
	c, m := mustCompile(t, `fonction f() {
	pour x dans 0...3 {
		boucle { arrête x; }
		continue;
	} sansarrêt { } sinon { }
	tantque faux { arrête; }
}`)
	outer := bodyStatement(t, c, m, "f", 0)
	if len(outer.Names) != 2 || outer.Names[0] != "continue_1" || outer.Names[1] != "break_nobreak_1" {
		t.Fatalf("pour labels = %v", outer.Names)
	}
	body := c.Arena.Get(outer.Children[forBody])
	inner := c.Arena.Get(body.Children[0])
	if inner.Names[1] != "break_2" {
		t.Errorf("boucle labels = %v", inner.Names)
	}
	jump := c.Arena.Get(c.Arena.Get(inner.Children[0]).Children[0])
	if jump.Str != "break_nobreak_1" {
		t.Errorf("'arrête x' targets %q, want the pour's break label", jump.Str)
	}
	if cont := c.Arena.Get(body.Children[1]); cont.Str != "continue_1" {
		t.Errorf("continue targets %q", cont.Str)
	}
	if w := bodyStatement(t, c, m, "f", 1); w.Names[1] != "break_3" {
		t.Errorf("tantque labels = %v", w.Names)
	}
}

func TestCoroutineCaptures(t *testing.T) {
	_, m := mustCompile(t, `coroutine compte(n : e32) : e32 {
	dyn i = 0;
	tantque i < n {
		soit carre = i * i;
		retiens carre;
		retiens i;
		i += 1;
	}
}`)
	fn := m.Functions["compte"][0]
	want := []string{"i", "carre"}
	if len(fn.Captured) != len(want) {
		t.Fatalf("captured %v, want %v", fn.Captured, want)
	}
	for i, w := range want {
		if fn.Captured[i].Name != w || fn.Captured[i].Type != TypeE32 {
			t.Errorf("capture %d = %+v, want %s e32", i, fn.Captured[i], w)
		}
	}
}

func TestFunctionPointerCall(t *testing.T) {
	c, m := mustCompile(t, `fonction double(x : e32) : e32 { retourne x * 2; }
dyn rappel : fonction(e32)e32 = nul;
fonction f(g : fonction(e32)e32) : e32 { soit a = rappel(1); retourne g(a); }`)
	for i := 0; i < 2; i++ {
		stmt := bodyStatement(t, c, m, "f", i)
		call := c.Arena.Get(stmt.Children[len(stmt.Children)-1])
		if call.Hint != HintFuncPtrCall || call.Type != TypeE32 || call.Func != nil {
			t.Errorf("statement %d call = hint %v type %s", i, call.Hint, c.Types.Text(call.Type))
		}
	}
	if m.Functions["double"][0].Used {
		t.Error("double is never referenced")
	}
}

func TestVariadicPointerCall(t *testing.T) {
	c, m := mustCompile(t, `fonction somme(v : ...e32) : e32 { retourne 0; }
fonction f() : e32 { soit p : fonction(...e32)e32 = somme; retourne p(1, 2, 3); }`)
	somme := m.Functions["somme"][0]
	if got := c.Types.Text(somme.Type); got != "fonction(...e32)e32" {
		t.Errorf("somme type = %q, want fonction(...e32)e32", got)
	}
	if got := c.Types.Text(somme.Params[0].Type); got != "[]e32" {
		t.Errorf("parameter type = %q, want []e32", got)
	}

	ret := bodyStatement(t, c, m, "f", 1)
	call := c.Arena.Get(ret.Children[0])
	if call.Hint != HintFuncPtrCall || call.Type != TypeE32 {
		t.Fatalf("call = hint %v type %s", call.Hint, c.Types.Text(call.Type))
	}
	if len(call.Children) != 1 {
		t.Fatalf("call has %d children, want 1 packed array", len(call.Children))
	}
	pack := c.Arena.Get(call.Children[0])
	if pack.Kind != NodeVariadicArray || len(pack.Children) != 3 {
		t.Errorf("pack = %v with %d children, want VariadicArray with 3", pack.Kind, len(pack.Children))
	}
	if got := c.Types.Text(pack.Type); got != "[]e32" {
		t.Errorf("pack type = %q, want []e32", got)
	}
}

func TestCollectAllDiagnostics(t *testing.T) {
	src := `fonction a() { soit x = y; soit z = 1; }
fonction b() : e32 { retourne vrai; }
fonction c() { soit z = 1; z = 2; }
`
	c := NewContext(Options{CollectAll: true})
	m, _ := c.AddModule("principal", "principal.kuri", src, true)
	err := c.Compile(m)
	var list DiagnosticList
	if !errors.As(err, &list) {
		t.Fatalf("error = %T, want DiagnosticList", err)
	}
	want := []ErrorKind{UnknownIdentifier, ReturnTypeMismatch, InvalidAssignmentTarget}
	if len(list) != len(want) {
		t.Fatalf("got %d diagnostics, want %d:\n%v", len(list), len(want), err)
	}
	for i, w := range want {
		if list[i].Kind != w {
			t.Errorf("diagnostic %d = %v, want %v", i, list[i].Kind, w)
		}
	}
	failed := bodyStatement(t, c, m, "a", 0)
	if !failed.Flags.Has(FlagFailed) {
		t.Error("failed statement not marked")
	}
	if bodyStatement(t, c, m, "a", 1).Flags.Has(FlagFailed) {
		t.Error("valid statement marked failed")
	}

	c = NewContext(Options{CollectAll: true, MaxDiagnostics: 2})
	m, _ = c.AddModule("principal", "principal.kuri", src, true)
	if ds := Diagnostics(c.Compile(m)); len(ds) != 2 {
		t.Errorf("capped run returned %d diagnostics, want 2", len(ds))
	}

	_, _, err = compileSource(src)
	if ds := Diagnostics(err); len(ds) != 1 || ds[0].Kind != UnknownIdentifier {
		t.Errorf("default mode = %v", err)
	}
}

func TestCollectAllSkipsFailedSignature(t *testing.T) {
	c := NewContext(Options{CollectAll: true})
	m, _ := c.AddModule("principal", "principal.kuri", `fonction f(a : Inconnu) { soit x = 1 + vrai; }
fonction g() { soit y = w; }
`, true)
	ds := Diagnostics(c.Compile(m))
	if len(ds) != 2 || ds[0].Kind != UnknownType || ds[1].Kind != UnknownIdentifier {
		t.Errorf("diagnostics = %v", ds)
	}
}

func TestCollectAllSuppressesFollowOnErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []ErrorKind
	}{
		{"failed signature then call", "fonction f(a : Inconnu) {}\nfonction g() { f(1); f(2); }", []ErrorKind{UnknownType}},
		{"failed global then use", "soit G : Inconnu;\nfonction g() : e32 { soit x = G; retourne 1; }", []ErrorKind{UnknownType}},
		{"failed global initializer", "soit G = absent;\nsoit H = G;\nfonction g() { soit x = G + H; }", []ErrorKind{UnknownIdentifier}},
		{"failed local then use", "fonction g() { soit x = absent; soit y = x; x(); }", []ErrorKind{UnknownIdentifier}},
		{"failed local redeclared", "fonction g() { soit x = absent; soit x = 1; soit y = x + 1; }", []ErrorKind{UnknownIdentifier}},
		{"unrelated errors still reported", "fonction f(a : Inconnu) {}\nfonction g() { f(1); soit y = w; }", []ErrorKind{UnknownType, UnknownIdentifier}},
		{"body error does not silence calls", "fonction f(a : e32) : e32 { }\nfonction g() { f(vrai); }", []ErrorKind{MissingReturn, NoMatchingOverload}},
	}
	for _, tc := range tests {
		c := NewContext(Options{CollectAll: true})
		m, _ := c.AddModule("principal", "principal.kuri", tc.src, true)
		ds := Diagnostics(c.Compile(m))
		if len(ds) != len(tc.want) {
			t.Errorf("%s: diagnostics = %v, want kinds %v", tc.name, ds, tc.want)
			continue
		}
		for i, d := range ds {
			if d.Kind != tc.want[i] {
				t.Errorf("%s: diagnostic %d = %v, want %v", tc.name, i, d.Kind, tc.want[i])
			}
		}
	}
}

func TestCollectAllSuppressesImportedFailures(t *testing.T) {
	c := NewContext(Options{CollectAll: true})
	c.Loader = mapLoader{"maths": "fonction carre(x : Inconnu) : e32 { retourne 1; }"}
	m, _ := c.AddModule("principal", "principal.kuri", `importe "maths"
fonction principale() : e32 { retourne carre(2); }`, true)
	ds := Diagnostics(c.Compile(m))
	if len(ds) != 1 || ds[0].Kind != UnknownType {
		t.Errorf("diagnostics = %v, want one unknown type", ds)
	}
}

type mapLoader map[string]string

func (l mapLoader) LoadModule(name string, _ *Module) (string, string, error) {
	src, ok := l[name]
	if !ok {
		return "", "", ErrModuleNotFound
	}
	return name + ".kuri", src, nil
}

func TestImports(t *testing.T) {
	c := NewContext(Options{})
	c.Loader = mapLoader{
		"maths":  "importe \"base\"\nsoit DIX = 10;\nfonction carre(x : e32) : e32 { retourne x * x + UN; }\nfonction inutile() {}",
		"base":   "soit UN = 1;\nstructure Vec { x : r32 }",
		"unused": "fonction jamais() {}",
	}
	m, _ := c.AddModule("principal", "principal.kuri", `importe "maths"
importe "base"
fonction principale() : e32 { soit v = Vec { x = 1.0 }; retourne carre(DIX); }`, true)
	if err := c.Compile(m); err != nil {
		t.Fatalf("Compile error:\n%v", err)
	}

	maths, ok := c.Module("maths")
	if !ok {
		t.Fatal("maths not loaded")
	}
	if _, ok := c.Module("unused"); ok {
		t.Error("unimported module was loaded")
	}
	carre := maths.Functions["carre"][0]
	if carre.MangledName != "maths_carre" || !carre.Used {
		t.Errorf("carre = %q used %v", carre.MangledName, carre.Used)
	}
	if maths.Functions["inutile"][0].Used {
		t.Error("inutile marked used")
	}
	if p := m.Functions["principale"][0]; p.MangledName != "principale" || !p.Used {
		t.Errorf("principale = %q used %v", p.MangledName, p.Used)
	}
	if got := len(m.ImportedModules()); got != 2 {
		t.Errorf("principal imports %d modules, want 2", got)
	}
	if maths.Path != "maths.kuri" {
		t.Errorf("maths path = %q", maths.Path)
	}
}

func TestImportErrors(t *testing.T) {
	c := NewContext(Options{})
	c.Loader = mapLoader{"casse": "fonction f() : e32 { retourne vrai; }"}
	m, _ := c.AddModule("principal", "principal.kuri", "importe \"absent\"\n", true)
	err := c.Compile(m)
	if KindOf(err) != UnknownIdentifier || !strings.Contains(err.Error(), "module not found") {
		t.Errorf("missing import = %v", err)
	}

	m, _ = c.AddModule("autre", "autre.kuri", "importe \"casse\"\n", true)
	ds := Diagnostics(c.Compile(m))
	if len(ds) != 1 || ds[0].Path != "casse.kuri" {
		t.Errorf("error in import = %v", ds)
	}

	c = NewContext(Options{})
	m, _ = c.AddModule("principal", "principal.kuri", "importe \"x\"\n", true)
	if KindOf(c.Compile(m)) != UnknownIdentifier {
		t.Error("import without a loader should fail")
	}
}

func TestRecompileAfterFix(t *testing.T) {
	c := NewContext(Options{})
	m, _ := c.AddModule("principal", "principal.kuri", "structure P { x : e32 }\nfonction f() : e32 { retourne vrai; }", true)
	if c.Compile(m) == nil {
		t.Fatal("expected an error")
	}
	if err := c.UpdateSource(m, "structure P { x : e32 }\nfonction f() : e32 { retourne 1; }"); err != nil {
		t.Fatalf("UpdateSource error: %v", err)
	}
	if err := c.Compile(m); err != nil {
		t.Fatalf("Compile after fix:\n%v", err)
	}
	if err := c.Compile(m); err != nil {
		t.Errorf("second Compile of a validated module:\n%v", err)
	}
	if len(c.Structures()) != 1 {
		t.Errorf("%d structures registered, want 1", len(c.Structures()))
	}

	m2, _ := c.AddModule("autre", "autre.kuri", "fonction g() : e32 { retourne vrai; }", true)
	if c.Compile(m2) == nil {
		t.Fatal("expected an error")
	}
	if KindOf(c.Compile(m2)) != ReturnTypeMismatch {
		t.Error("recompiling a failed module should report the same error, not a redeclaration")
	}
}

func TestCompileCancelled(t *testing.T) {
	c := NewContext(Options{})
	m, _ := c.AddModule("principal", "principal.kuri", "fonction f() {}", true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.CompileContext(ctx, m); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestAddModuleTwice(t *testing.T) {
	c := NewContext(Options{})
	if _, err := c.AddModule("a", "a.kuri", "", true); err != nil {
		t.Fatal(err)
	}
	if _, err := c.AddModule("a", "b.kuri", "", false); err == nil {
		t.Error("expected an error for a duplicate module name")
	}
}
