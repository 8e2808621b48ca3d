package server

import (
	"sort"
	"strings"

	"github.com/diekev/delsace-sub011/compiler"
)

// Completion kinds.
const (
	KindKeyword   = "keyword"
	KindFunction  = "function"
	KindStructure = "structure"
	KindEnum      = "enum"
	KindGlobal    = "global"
	KindModule    = "module"
)

// completions lists keywords and the names declared in c that start with
// prefix, sorted by label. c may be nil.
func completions(c *compiler.Context, prefix string) []CompletionItem {
	var items []CompletionItem
	seen := make(map[string]bool)
	add := func(item CompletionItem) {
		key := item.Kind + "\x00" + item.Label + "\x00" + item.Detail
		if !strings.HasPrefix(item.Label, prefix) || seen[key] {
			return
		}
		seen[key] = true
		items = append(items, item)
	}

	for _, kw := range compiler.Keywords() {
		add(CompletionItem{Label: kw, Kind: KindKeyword})
	}

	if c != nil {
		for _, m := range c.Modules() {
			add(CompletionItem{Label: m.Name, Kind: KindModule, Detail: m.Path})
			for _, f := range m.AllFunctions() {
				add(CompletionItem{Label: f.Name, Kind: KindFunction, Detail: f.Signature(c.Types)})
			}
			for name, g := range m.Globals {
				add(CompletionItem{Label: name, Kind: KindGlobal, Detail: c.Types.Text(g.Type)})
			}
		}
		for _, s := range c.Structures() {
			kind := KindStructure
			if s.Enum {
				kind = KindEnum
			}
			add(CompletionItem{Label: s.Name, Kind: kind})
		}
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}
