package binfo

import (
	"debug/elf"
	"errors"
	"os"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/go-delve/logpoint/pkg/proc/maps"
)

//go:noinline
func tripleIt(x int) int {
	return x * 3
}

func openSelf(t *testing.T) *Image {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	img, err := Open(exe)
	if err != nil {
		t.Fatalf("could not load functions of the test binary: %v", err)
	}
	return img
}

func TestFuncOffsetRoundTrip(t *testing.T) {
	img := openSelf(t)

	pc := reflect.ValueOf(tripleIt).Pointer()
	name := runtime.FuncForPC(pc).Name()

	off, err := img.FuncOffset(name)
	if err != nil {
		t.Fatal(err)
	}
	addr, err := maps.Translate(maps.Self, off)
	if err != nil {
		t.Fatal(err)
	}
	if addr != uint64(pc) {
		t.Fatalf("%s: offset %#x translated to %#x, function is at %#x", name, off, addr, pc)
	}
}

func TestOpenCached(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	img1, err := Open(exe)
	if err != nil {
		t.Fatal(err)
	}
	img2, err := Open(exe)
	if err != nil {
		t.Fatal(err)
	}
	if img1 != img2 {
		t.Fatalf("second Open did not hit the cache")
	}
}

func TestFuncOffsetUnknown(t *testing.T) {
	img := openSelf(t)
	_, err := img.FuncOffset("main.tripleIt")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "binfo.tripleIt") {
		t.Errorf("expected a suggestion, got %v", err)
	}

	if _, err := Open("/nonexistent/binary"); err == nil {
		t.Errorf("expected an error opening a missing file")
	}
}

// The test binary is built without an ELF symbol table, functions come from
// its pclntab.
func TestOpenGoLineTable(t *testing.T) {
	img := openSelf(t)
	funcs := img.Funcs()
	for _, want := range []string{"runtime.main", "github.com/go-delve/logpoint/pkg/proc/binfo.Open"} {
		i := sort.SearchStrings(funcs, want)
		if i >= len(funcs) || funcs[i] != want {
			t.Errorf("%s not found among %d functions", want, len(funcs))
		}
	}
}

func TestLoadELFFuncsStripped(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	f, err := elf.Open(exe)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	funcs, err := loadELFFuncs(f)
	if err != nil {
		if !errors.Is(err, ErrNoSymbols) {
			t.Fatalf("expected ErrNoSymbols, got %v", err)
		}
		return
	}
	if _, ok := funcs["runtime.main"]; !ok {
		t.Fatalf("runtime.main missing from the ELF symbol table")
	}
}
