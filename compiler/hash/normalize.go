package hash

import (
	"sort"

	"github.com/diekev/delsace-sub011/compiler"
)

// ---------------------------------------------------------------------------
// Normalizer: Module -> HModule
// ---------------------------------------------------------------------------

// NormalizeModule extracts the interface of a validated module.
//
// Function bodies, source positions and type ids are dropped; types are
// rendered to their canonical text so the result does not depend on the
// order in which a Context interned them. Structures, enums and globals are
// sorted by name. Functions are sorted by name, but overloads of one name
// keep their declaration order, since ties in overload resolution go to
// the first declared candidate. Imports keep their written order, which
// decides overload visibility.
func NormalizeModule(c *compiler.Context, m *compiler.Module) *HModule {
	tt := c.Types
	hm := &HModule{
		Name:    m.Name,
		Imports: append([]string(nil), m.Imports...),
	}

	for _, s := range c.Structures() {
		if s.Module != m {
			continue
		}
		if s.Enum {
			hm.Enums = append(hm.Enums, normalizeEnum(tt, s))
		} else {
			hm.Structures = append(hm.Structures, normalizeStructure(tt, s))
		}
	}
	sort.Slice(hm.Structures, func(i, j int) bool { return hm.Structures[i].Name < hm.Structures[j].Name })
	sort.Slice(hm.Enums, func(i, j int) bool { return hm.Enums[i].Name < hm.Enums[j].Name })

	for _, g := range m.Globals {
		hm.Globals = append(hm.Globals, &HGlobal{
			Name:    g.Name,
			Type:    typeNode(tt, g.Type),
			Mutable: g.Mutable,
		})
	}
	sort.Slice(hm.Globals, func(i, j int) bool { return hm.Globals[i].Name < hm.Globals[j].Name })

	for _, f := range m.AllFunctions() {
		hm.Functions = append(hm.Functions, normalizeFunction(tt, f))
	}
	sort.SliceStable(hm.Functions, func(i, j int) bool { return hm.Functions[i].Name < hm.Functions[j].Name })

	return hm
}

func normalizeFunction(tt *compiler.TypeTable, f *compiler.Function) *HFunction {
	hf := &HFunction{
		Name:      f.Name,
		Symbol:    f.MangledName,
		Return:    typeNode(tt, f.Return),
		External:  f.External,
		Coroutine: f.Coroutine,
		Variadic:  f.Variadic,
	}
	for _, p := range f.Params {
		hf.Params = append(hf.Params, &HParam{
			Name:     p.Name,
			Type:     typeNode(tt, p.Type),
			Variadic: p.Variadic,
		})
	}
	return hf
}

func normalizeStructure(tt *compiler.TypeTable, s *compiler.Structure) *HStructure {
	hs := &HStructure{Name: s.Name}
	for _, m := range s.Members {
		hs.Members = append(hs.Members, &HMember{
			Name:       m.Name,
			Type:       typeNode(tt, m.Type),
			HasDefault: m.Default != compiler.NoNode,
		})
	}
	return hs
}

func normalizeEnum(tt *compiler.TypeTable, s *compiler.Structure) *HEnum {
	he := &HEnum{Name: s.Name, Base: &HType{Text: tt.Text(compiler.TypeE32)}}
	if layout := tt.Layout(s.Type); len(layout) == 1 {
		he.Base = typeNode(tt, layout[0])
	}
	for _, m := range s.Members {
		he.Values = append(he.Values, &HEnumValue{Name: m.Name, Value: m.Value})
	}
	return he
}

func typeNode(tt *compiler.TypeTable, id compiler.TypeID) *HType {
	return &HType{Text: tt.Text(id)}
}
