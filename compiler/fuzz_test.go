package compiler

import "testing"

// ---------------------------------------------------------------------------
// FuzzLexer: the tokenizer never panics and keeps token positions ordered.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	seeds := []string{
		// Punctuation
		`( ) [ ] { } ; , : . ... @ ~ ! ^`,
		`<<= >>= <= >= == != && || += -= *= /= %= &= |= ^=`,
		// Numbers
		`42;`, `0x_FF;`, `0b1010;`, `0o17;`, `1_000.5;`, `1.2.3;`, `0x;`,
		// Strings and characters
		`"bonjour";`, `"a\"b";`, "«salut»;", `'a';`, `'\n';`, `'é';`, `"ouvert`, `'`,
		// Keywords
		`fonction coroutine externe retourne retiens soit dyn si saufsi sinon pour dans`,
		`boucle tantque arrête continue sansarrêt diffère nonsûr structure énum importe`,
		`loge reloge déloge mémoire transtype taille_de vrai faux nul`,
		`e8 e16 e32 e64 n8 n16 n32 n64 r16 r32 r64 octet bool chaine eini rien`,
		// Separators
		"a b;", "a b;", "# commentaire\nx;", "\t\r\n",
		// Programs
		"fonction principale() : e32 { retourne 0; }",
		"structure Point { x : r32; y : r32 = 1.0 }\n",
		// Invalid bytes
		"x = \xff;", "\xc3", "soit x",
		``,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("tokenizer panicked on input %q: %v", data, r)
			}
		}()

		toks, err := Tokenize(data, 1)
		if err != nil {
			if len(Diagnostics(err)) == 0 {
				t.Fatalf("tokenizer error carries no diagnostic: %v", err)
			}
			return
		}
		prev := -1
		for i, tok := range toks {
			if tok.Offset <= prev {
				t.Fatalf("token %d offset %d does not follow %d", i, tok.Offset, prev)
			}
			if tok.Offset+len(tok.Text) > len(data) {
				t.Fatalf("token %d runs past the end of the input", i)
			}
			prev = tok.Offset
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzParser: parse errors are acceptable; panics are not.
// ---------------------------------------------------------------------------

func FuzzParser(f *testing.F) {
	seeds := []string{
		"fonction f(a : e32, b : ...r64) : e32 { retourne a; }",
		"fonction externe puts(s : *e8) : e32;",
		"coroutine c() : e32 { retiens 1; }",
		"soit x : [4]*e32;",
		"fonction f() { x = a + b * c - -d; }",
		"fonction f() { pour x, i dans 0...10 { continue x; } sansarrêt { } sinon { } }",
		"fonction f() { si a { } sinon si b { } sinon { } }",
		"fonction f() { p = P { x = 1, y = [1, 2] }; }",
		"fonction f() { mémoire(p) = transtype(y : r64); déloge p; }",
		"fonction f() { g(a = 1, 2)(3); }",
		"énum C : e8 { A, B = 4; C }",
		"importe \"maths\"",
		// Broken input
		"fonction", "fonction f(", "fonction f() {", "fonction f() { x = ; }",
		"fonction f() { (a + b; }", "fonction f() { a) }", "{", "}", ";;",
		"fonction f() { x = 1 y = 2; }",
		"fonction f() { soit x = a = b; }",
		``,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("parser panicked on input %q: %v", data, r)
			}
		}()

		c := NewContext(Options{})
		m, _ := c.AddModule("fuzz", "fuzz.kuri", data, true)
		if err := c.Parse(m); err != nil {
			if len(Diagnostics(err)) == 0 {
				t.Fatalf("parse error carries no diagnostic: %v", err)
			}
			return
		}
		before := c.Arena.Live()
		if err := c.UpdateSource(m, ""); err != nil {
			t.Fatalf("empty source failed to parse: %v", err)
		}
		if after := c.Arena.Live(); after > before {
			t.Fatalf("re-parse grew the arena from %d to %d live nodes", before, after)
		}
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: the validator never panics and every failure is reported,
// in both diagnostic modes.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		"fonction principale() : e32 { retourne 0; }",
		"fonction f(x : e32) : e32 { retourne x; } fonction principale() { soit y = f(5); }",
		"fonction f() { si 1 { } }",
		"structure N { suivant : N }",
		"structure N { v : e32; suivant : *N } fonction f(n : *N) : e32 { retourne n.suivant.v; }",
		"fonction g(a : eini) {} fonction g(a : &e32) {} fonction f() { dyn x = 1; g(x); }",
		"fonction s(v : ...e32) {} fonction f() { s(1, 2, v = 3); }",
		"coroutine c(n : e32) : e32 { dyn i = 0; tantque i < n { retiens i; i += 1; } }",
		"fonction f() { pour x dans c() { arrête x; } }",
		"énum C { A = 1, B } fonction f() : bool { retourne C.A == C.B; }",
		"dyn g : e32; fonction f() { nonsûr { g = 1; } }",
		"fonction f(t : []e32) { t[0] = t[1] + t.taille; }",
		"fonction f() { soit p = loge [3]e8; p = reloge p : [6]e8; déloge p; }",
		"fonction f() : chaine { retourne \"a\\qb\"; }",
	}
	for _, s := range seeds {
		f.Add(s, false)
		f.Add(s, true)
	}

	f.Fuzz(func(t *testing.T, data string, collect bool) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("compiler panicked on input %q: %v", data, r)
			}
		}()

		c := NewContext(Options{CollectAll: collect, MaxDiagnostics: 16})
		m, _ := c.AddModule("fuzz", "fuzz.kuri", data, true)
		err := c.Compile(m)
		if err == nil {
			return
		}
		ds := Diagnostics(err)
		if len(ds) == 0 {
			t.Fatalf("compile error carries no diagnostic: %v", err)
		}
		if !collect && len(ds) != 1 {
			t.Fatalf("first-error mode returned %d diagnostics", len(ds))
		}
		for _, d := range ds {
			if d.Kind == ErrNone {
				t.Fatalf("diagnostic without a kind: %s", d.Message)
			}
			_ = d.Format()
		}
	})
}
