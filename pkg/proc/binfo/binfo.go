// Package binfo reads the function table of an executable and converts
// function names into file offsets that the address translator understands.
//
// Go executables are read through their pclntab, which survives stripping
// and is present in test binaries. Other executables fall back to the ELF
// symbol table.
package binfo

import (
	"debug/elf"
	"debug/gosym"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const imageCacheSize = 8

var imageCache = func() *lru.Cache {
	c, err := lru.New(imageCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}()

type cacheKey struct {
	path    string
	size    int64
	modTime time.Time
}

// Image is the symbol information of an executable.
type Image struct {
	Path string

	// funcs maps function names to their link time entry address.
	funcs map[string]uint64
	progs []elf.ProgHeader
}

// ErrNoSymbols is returned for executables that have neither a Go line
// table nor an ELF symbol table.
var ErrNoSymbols = errors.New("executable has no symbol table")

// Open loads the symbol table of the executable at path. Images are cached
// by path, size and modification time.
func Open(path string) (*Image, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := cacheKey{path: path, size: fi.Size(), modTime: fi.ModTime()}
	if img, ok := imageCache.Get(key); ok {
		return img.(*Image), nil
	}

	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img := &Image{Path: path}
	img.funcs, err = loadGoFuncs(f)
	if err != nil {
		img.funcs, err = loadELFFuncs(f)
		if err != nil {
			return nil, err
		}
	}
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			img.progs = append(img.progs, p.ProgHeader)
		}
	}

	imageCache.Add(key, img)
	return img, nil
}

// loadGoFuncs reads the functions listed in the pclntab of a Go executable.
func loadGoFuncs(f *elf.File) (map[string]uint64, error) {
	text := f.Section(".text")
	pcln := f.Section(".gopclntab")
	if text == nil || pcln == nil {
		return nil, errors.New("not a Go executable")
	}
	data, err := pcln.Data()
	if err != nil {
		return nil, err
	}
	tab, err := gosym.NewTable(nil, gosym.NewLineTable(data, text.Addr))
	if err != nil {
		return nil, err
	}
	funcs := make(map[string]uint64, len(tab.Funcs))
	for i := range tab.Funcs {
		if tab.Funcs[i].Entry == 0 {
			continue
		}
		funcs[tab.Funcs[i].Name] = tab.Funcs[i].Entry
	}
	if len(funcs) == 0 {
		return nil, errors.New("empty pclntab")
	}
	return funcs, nil
}

// loadELFFuncs reads the function symbols of the ELF symbol table.
func loadELFFuncs(f *elf.File) (map[string]uint64, error) {
	syms, err := f.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, ErrNoSymbols
		}
		return nil, err
	}
	funcs := make(map[string]uint64)
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Value == 0 {
			continue
		}
		funcs[sym.Name] = sym.Value
	}
	if len(funcs) == 0 {
		return nil, ErrNoSymbols
	}
	return funcs, nil
}

// FuncOffset returns the file offset of the entry point of function name.
func (img *Image) FuncOffset(name string) (uint64, error) {
	entry, ok := img.funcs[name]
	if !ok {
		return 0, fmt.Errorf("function %q not found in %s%s", name, img.Path, img.suggest(name))
	}
	return img.VaddrToOffset(entry)
}

// VaddrToOffset converts a link time virtual address into a file offset
// through the executable's loadable segments.
func (img *Image) VaddrToOffset(vaddr uint64) (uint64, error) {
	for _, p := range img.progs {
		if p.Flags&elf.PF_X == 0 {
			continue
		}
		if vaddr >= p.Vaddr && vaddr-p.Vaddr < p.Filesz {
			return vaddr - p.Vaddr + p.Off, nil
		}
	}
	return 0, fmt.Errorf("address %#x is not in an executable segment of %s", vaddr, img.Path)
}

// Funcs returns the sorted names of the functions of the image.
func (img *Image) Funcs() []string {
	r := make([]string, 0, len(img.funcs))
	for fn := range img.funcs {
		r = append(r, fn)
	}
	sort.Strings(r)
	return r
}

func (img *Image) suggest(name string) string {
	base := name
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	var candidates []string
	for fn := range img.funcs {
		if strings.HasSuffix(fn, "."+base) {
			candidates = append(candidates, fn)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	if len(candidates) > 5 {
		candidates = candidates[:5]
	}
	return " (did you mean " + strings.Join(candidates, ", ") + "?)"
}
