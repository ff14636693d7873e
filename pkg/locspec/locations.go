package locspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-delve/logpoint/pkg/instrument"
	"github.com/go-delve/logpoint/pkg/proc/binfo"
)

const maxFindLocationCandidates = 5

// Kind selects how a location string without a '*' prefix is interpreted.
type Kind uint8

const (
	// KindCounter locations are hook call ordinals.
	KindCounter Kind = iota
	// KindLine locations are source lines of hook call sites.
	KindLine
	// KindAddr locations are hexadecimal file offsets.
	KindAddr
	// KindFunc locations are function names.
	KindFunc
)

var kindNames = []string{"counter", "line", "addr", "func"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return KindCounter, fmt.Errorf("unknown location mode %q (must be one of %s)", s, strings.Join(kindNames, ", "))
}

// LocationSpec is a parsed location string.
type LocationSpec interface {
	Kind() Kind
	String() string
}

// HookLocationSpec is a location reported by the instrumentation hook of
// the target itself.
type HookLocationSpec interface {
	LocationSpec
	// Hook returns the hook mode and the value the hook compares against.
	Hook() (instrument.Mode, int64)
}

// InjectedLocationSpec is a location where the tracer writes a breakpoint
// instruction.
type InjectedLocationSpec interface {
	LocationSpec
	// FileOffset returns the offset of the location in the executable file
	// at path exe.
	FileOffset(exe string) (uint64, error)
}

// CounterLocationSpec is the Index-th call, starting at zero, of the
// instrumentation hook.
type CounterLocationSpec struct {
	Index int64
}

func (loc *CounterLocationSpec) Kind() Kind { return KindCounter }

func (loc *CounterLocationSpec) String() string { return strconv.FormatInt(loc.Index, 10) }

// Hook implements HookLocationSpec.
func (loc *CounterLocationSpec) Hook() (instrument.Mode, int64) {
	return instrument.ModeCounter, loc.Index
}

// LineLocationSpec is every hook call made from a source line.
type LineLocationSpec struct {
	Line int
}

func (loc *LineLocationSpec) Kind() Kind { return KindLine }

func (loc *LineLocationSpec) String() string { return strconv.Itoa(loc.Line) }

// Hook implements HookLocationSpec.
func (loc *LineLocationSpec) Hook() (instrument.Mode, int64) {
	return instrument.ModeLine, int64(loc.Line)
}

// AddrLocationSpec is an offset into the executable file.
type AddrLocationSpec struct {
	Offset uint64
}

func (loc *AddrLocationSpec) Kind() Kind { return KindAddr }

func (loc *AddrLocationSpec) String() string { return fmt.Sprintf("*%#x", loc.Offset) }

// FileOffset implements InjectedLocationSpec.
func (loc *AddrLocationSpec) FileOffset(string) (uint64, error) {
	return loc.Offset, nil
}

// FuncLocationSpec is the entry point of a function.
type FuncLocationSpec struct {
	Name string
}

func (loc *FuncLocationSpec) Kind() Kind { return KindFunc }

func (loc *FuncLocationSpec) String() string { return loc.Name }

// FileOffset implements InjectedLocationSpec. The name matches a function
// if it is its full name or a suffix of it starting after a '/' or a '.'.
func (loc *FuncLocationSpec) FileOffset(exe string) (uint64, error) {
	img, err := binfo.Open(exe)
	if err != nil {
		return 0, err
	}
	if off, err := img.FuncOffset(loc.Name); err == nil {
		return off, nil
	}

	var candidates []string
	for _, fn := range img.Funcs() {
		if partialFuncMatch(loc.Name, fn) {
			candidates = append(candidates, fn)
		}
	}
	switch len(candidates) {
	case 0:
		// reports the error with suggestions
		return img.FuncOffset(loc.Name)
	case 1:
		return img.FuncOffset(candidates[0])
	}
	if len(candidates) > maxFindLocationCandidates {
		candidates = candidates[:maxFindLocationCandidates]
	}
	return 0, AmbiguousLocationError{Location: loc.Name, CandidatesString: candidates}
}

func partialFuncMatch(expr, fn string) bool {
	if len(expr) >= len(fn) {
		return false
	}
	if !strings.HasSuffix(fn, expr) {
		return false
	}
	c := fn[len(fn)-len(expr)-1]
	return c == '/' || c == '.'
}

// AmbiguousLocationError is returned when the location spec
// should only return one location but returns multiple instead.
type AmbiguousLocationError struct {
	Location         string
	CandidatesString []string
}

func (ale AmbiguousLocationError) Error() string {
	return fmt.Sprintf("Location %q ambiguous: %s...", ale.Location, strings.Join(ale.CandidatesString, ", "))
}

// Parse will turn locStr into a parsed LocationSpec. A '*' prefix always
// makes an address location, otherwise kind decides.
func Parse(locStr string, kind Kind) (LocationSpec, error) {
	rest := locStr

	malformed := func(reason string) error {
		return fmt.Errorf("malformed logpoint location %q at %d: %s", locStr, len(locStr)-len(rest), reason)
	}

	if len(rest) <= 0 {
		return nil, malformed("empty string")
	}

	if rest[0] == '*' {
		rest = rest[1:]
		kind = KindAddr
	}

	switch kind {
	case KindCounter:
		n, err := strconv.ParseInt(rest, 0, 64)
		if err != nil || n < 0 {
			return nil, malformed("hook index negative or not a number")
		}
		return &CounterLocationSpec{Index: n}, nil

	case KindLine:
		n, err := strconv.Atoi(rest)
		if err != nil || n <= 0 {
			return nil, malformed("line not a positive number")
		}
		return &LineLocationSpec{Line: n}, nil

	case KindAddr:
		hex := strings.TrimPrefix(strings.TrimPrefix(rest, "0x"), "0X")
		if hex == "" {
			return nil, malformed("empty offset")
		}
		off, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return nil, malformed("offset not a hexadecimal number")
		}
		return &AddrLocationSpec{Offset: off}, nil

	case KindFunc:
		if strings.ContainsAny(rest, " \t:") {
			return nil, malformed("not a function name")
		}
		return &FuncLocationSpec{Name: rest}, nil
	}
	return nil, fmt.Errorf("unknown location kind %v", kind)
}
