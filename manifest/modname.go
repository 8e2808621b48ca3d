package manifest

import (
	"strings"
	"unicode"

	"github.com/diekev/delsace-sub011/compiler"
)

// ToModuleName converts a dependency or project name to an import name.
// Symbols of imported modules are mangled as <module>_<function>, so the
// result must be an identifier.
// "my-lib" -> "my_lib", "Maths" -> "maths", "2d" -> "_2d"
func ToModuleName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(unicode.ToLower(r))
		}
	}
	out := b.String()
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "_" + out
	}
	return out
}

// IsReservedModuleName reports whether name cannot be used as an import
// name: it is empty or a language keyword.
func IsReservedModuleName(name string) bool {
	return name == "" || compiler.LookupKeyword(name) != compiler.TokenIdentifier
}
