package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestGoldenFiles verifies that known modules produce expected hashes.
// If the golden files don't exist, they are created (first run).
// This prevents accidental format drift.
func TestGoldenFiles(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{
			name: "empty_module",
			src:  ``,
		},
		{
			name: "single_function",
			src:  `fonction reponse() : e32 { retourne 42; }`,
		},
		{
			name: "variadic_overloads",
			src: `fonction f(a : e32) {}
fonction f(a : e32, b : ...r64) {}
`,
		},
		{
			name: "structure_with_default",
			src:  `structure Point { x : r32; y : r32 = 1.0 }`,
		},
		{
			name: "enum_and_global",
			src: `énum Etat : n8 { Vide, Plein = 4 }
dyn etat : Etat = Etat.Vide;
`,
		},
		{
			name: "external_and_coroutine",
			src: `fonction externe puts(s : *e8) : e32;
coroutine gen(n : e32) : e32 { retiens n; }
`,
		},
	}

	goldenDir := filepath.Join("testdata")
	if err := os.MkdirAll(goldenDir, 0o755); err != nil {
		t.Fatalf("create testdata dir: %v", err)
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, m := compile(t, tc.src)

			data := Serialize(NormalizeModule(c, m))
			h := sha256.Sum256(data)

			serializedHex := hex.EncodeToString(data)
			hashHex := hex.EncodeToString(h[:])

			goldenPath := filepath.Join(goldenDir, tc.name+".golden")
			expected, err := os.ReadFile(goldenPath)
			if err != nil {
				// First run: create golden file
				content := serializedHex + "\n" + hashHex + "\n"
				if writeErr := os.WriteFile(goldenPath, []byte(content), 0o644); writeErr != nil {
					t.Fatalf("write golden file: %v", writeErr)
				}
				t.Logf("created golden file: %s", goldenPath)
				return
			}

			lines := strings.Split(strings.TrimSpace(string(expected)), "\n")
			if len(lines) != 2 {
				t.Fatalf("golden file %s: expected 2 lines, got %d", goldenPath, len(lines))
			}

			if serializedHex != lines[0] {
				t.Errorf("serialized bytes mismatch:\n  got:  %s\n  want: %s", serializedHex, lines[0])
			}
			if hashHex != lines[1] {
				t.Errorf("hash mismatch:\n  got:  %s\n  want: %s", hashHex, lines[1])
			}
		})
	}
}
