package proc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/derekparker/trie"
)

// Symbol is one of the fixed set of values of the target workload that a
// logpoint can read.
type Symbol uint8

const (
	SymbolInvalid Symbol = iota
	// SymbolA is the first accumulator of the reference sequence.
	SymbolA
	// SymbolB is the second accumulator, holding the current term.
	SymbolB
	// SymbolI is the iteration counter.
	SymbolI
)

var symbolNames = map[Symbol]string{
	SymbolA: "a",
	SymbolB: "b",
	SymbolI: "i",
}

var symbolTrie = func() *trie.Trie {
	t := trie.New()
	for sym, name := range symbolNames {
		t.Add(name, sym)
	}
	return t
}()

func (s Symbol) String() string {
	if name, ok := symbolNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Symbol(%d)", uint8(s))
}

// Symbols returns the names of all known symbols, sorted.
func Symbols() []string {
	names := symbolTrie.Keys()
	sort.Strings(names)
	return names
}

// ParseSymbol returns the symbol called name.
func ParseSymbol(name string) (Symbol, error) {
	if node, ok := symbolTrie.Find(name); ok {
		return node.Meta().(Symbol), nil
	}
	var candidates []string
	if name != "" {
		candidates = symbolTrie.PrefixSearch(name[:1])
	}
	if len(candidates) == 0 {
		candidates = Symbols()
	}
	sort.Strings(candidates)
	return SymbolInvalid, fmt.Errorf("invalid target expression %q (available: %s)", name, strings.Join(candidates, ", "))
}
