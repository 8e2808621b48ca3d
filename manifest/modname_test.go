package manifest

import "testing"

func TestToModuleName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"maths", "maths"},
		{"my-lib", "my_lib"},
		{"Maths", "maths"},
		{"vue.rendu", "vue_rendu"},
		{"2d", "_2d"},
		{"élève", "élève"},
		{"a+b", "ab"},
		{"", ""},
	}

	for _, tc := range tests {
		got := ToModuleName(tc.input)
		if got != tc.want {
			t.Errorf("ToModuleName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsReservedModuleName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"maths", false},
		{"texte", false},
		{"", true},
		{"fonction", true},
		{"si", true},
		{"e32", true},
	}
	for _, tc := range tests {
		if got := IsReservedModuleName(tc.name); got != tc.want {
			t.Errorf("IsReservedModuleName(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
