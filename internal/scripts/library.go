package scripts

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Library provides the combined searchable set of loaded scripts.
type Library interface {
	// All returns all scripts sorted by Bias ascending, then Source (BuiltIn
	// before UserProvided), then Name ascending (case-insensitive).
	All() []Script

	// Search fuzzy-matches query against names and tags, best match first.
	// Returns All() when query is empty and a non-nil empty slice when
	// nothing matches.
	Search(query string) []Script

	// Find returns the script whose name equals name, ignoring case.
	Find(name string) (Script, bool)

	Len() int
}

// ScriptLibrary is the concrete implementation of Library.
type ScriptLibrary struct {
	sorted []Script
}

// NewLibrary sorts the scripts of result into canonical order.
func NewLibrary(result LoadResult) *ScriptLibrary {
	scripts := make([]Script, len(result.Scripts))
	copy(scripts, result.Scripts)

	sort.SliceStable(scripts, func(i, j int) bool {
		a, b := scripts[i], scripts[j]
		if a.Bias != b.Bias {
			return a.Bias < b.Bias
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})

	return &ScriptLibrary{sorted: scripts}
}

// All implements Library.
func (lib *ScriptLibrary) All() []Script {
	out := make([]Script, len(lib.sorted))
	copy(out, lib.sorted)
	return out
}

// Len implements Library.
func (lib *ScriptLibrary) Len() int {
	return len(lib.sorted)
}

// Find implements Library. When a user script shadows a built-in of the same
// name, the first in canonical order wins.
func (lib *ScriptLibrary) Find(name string) (Script, bool) {
	for _, s := range lib.sorted {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Script{}, false
}

// Search implements Library using sahilm/fuzzy.
func (lib *ScriptLibrary) Search(query string) []Script {
	if query == "" {
		return lib.All()
	}

	matches := fuzzy.FindFrom(query, &scriptSource{scripts: lib.sorted})
	result := make([]Script, len(matches))
	for i, m := range matches {
		result[i] = lib.sorted[m.Index]
	}
	return result
}

// scriptSource implements fuzzy.Source over script names and tags.
type scriptSource struct {
	scripts []Script
}

func (s *scriptSource) String(i int) string {
	sc := s.scripts[i]
	if len(sc.Tags) == 0 {
		return sc.Name
	}
	return sc.Name + " " + strings.Join(sc.Tags, " ")
}

func (s *scriptSource) Len() int { return len(s.scripts) }
