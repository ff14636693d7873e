// Package maps parses the memory map listing of a process and translates
// file offsets of its executable into runtime addresses.
package maps

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-delve/logpoint/pkg/logflags"
)

// Self designates the calling process.
const Self = 0

// Entry is a row of /proc/<pid>/maps.
type Entry struct {
	Start, End uint64
	Perm       string
	Offset     uint64
	Dev        string
	Inode      uint64
	Path       string
}

// Read reports whether the region is readable.
func (e Entry) Read() bool { return e.Perm[0] == 'r' }

// Write reports whether the region is writable.
func (e Entry) Write() bool { return e.Perm[1] == 'w' }

// Exec reports whether the region is executable.
func (e Entry) Exec() bool { return e.Perm[2] == 'x' }

// Size is the size of the region in bytes.
func (e Entry) Size() uint64 { return e.End - e.Start }

// Contains reports whether the file offset off is mapped by this region.
func (e Entry) Contains(off uint64) bool {
	return off >= e.Offset && off-e.Offset < e.Size()
}

// ParseLine parses one line of a memory map listing. The fields are, in
// order: address range, permissions, file offset, device, inode and an
// optional path, which may contain spaces.
func ParseLine(lineno int, in string) (Entry, error) {
	var e Entry
	malformed := func(reason string) error {
		return fmt.Errorf("malformed /proc/pid/maps on line %d: %q (%s)", lineno, in, reason)
	}

	rest := in
	var fields [5]string
	for i := range fields {
		rest = strings.TrimLeft(rest, " \t")
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		fields[i], rest = rest[:end], rest[end:]
		if fields[i] == "" {
			return e, malformed("wrong number of fields")
		}
	}

	v := strings.Split(fields[0], "-")
	if len(v) != 2 {
		return e, malformed("bad first field")
	}
	var err error
	e.Start, err = strconv.ParseUint(v[0], 16, 64)
	if err != nil {
		return e, malformed(err.Error())
	}
	e.End, err = strconv.ParseUint(v[1], 16, 64)
	if err != nil {
		return e, malformed(err.Error())
	}
	if e.End < e.Start {
		return e, malformed("region ends before it starts")
	}

	e.Perm = fields[1]
	if len(e.Perm) < 4 {
		return e, malformed("permissions column too short")
	}

	e.Offset, err = strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return e, malformed(err.Error())
	}

	e.Dev = fields[3]

	e.Inode, err = strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return e, malformed(err.Error())
	}

	e.Path = strings.TrimRight(strings.TrimLeft(rest, " \t"), "\n")
	return e, nil
}

// Parse parses a whole memory map listing.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	err := scan(r, func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries, err
}

func scan(r io.Reader, fn func(Entry) bool) error {
	s := bufio.NewScanner(r)
	lineno := 0
	for s.Scan() {
		lineno++
		if s.Text() == "" {
			continue
		}
		e, err := ParseLine(lineno, s.Text())
		if err != nil {
			return err
		}
		if !fn(e) {
			return nil
		}
	}
	return s.Err()
}

// ErrNoMapping means no executable region of the binary maps the requested
// file offset.
var ErrNoMapping = errors.New("no executable mapping of the binary contains the offset")

// ErrNoImage means the executable of the process is not mapped at file
// offset zero.
var ErrNoImage = errors.New("executable image not found in memory map")

// TranslationError is returned when a file offset or address can not be
// translated for a process.
type TranslationError struct {
	Pid    string
	Offset uint64
	Err    error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("could not translate %#x for process %s: %v", e.Offset, e.Pid, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// Translator reads memory maps from a procfs mount.
type Translator struct {
	// ProcRoot is the procfs mount point, "/proc" if empty.
	ProcRoot string
}

// Default is the translator for the host's /proc.
var Default = Translator{}

func (t Translator) procDir(pid int) string {
	root := t.ProcRoot
	if root == "" {
		root = "/proc"
	}
	if pid == Self {
		return filepath.Join(root, "self")
	}
	return filepath.Join(root, strconv.Itoa(pid))
}

func pidString(pid int) string {
	if pid == Self {
		return "self"
	}
	return strconv.Itoa(pid)
}

// ExePath resolves the executable of process pid.
func (t Translator) ExePath(pid int) (string, error) {
	return os.Readlink(filepath.Join(t.procDir(pid), "exe"))
}

// Entries returns the current memory map of process pid.
func (t Translator) Entries(pid int) ([]Entry, error) {
	fh, err := os.Open(filepath.Join(t.procDir(pid), "maps"))
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Parse(fh)
}

// Translate returns the runtime address of the file offset off of the
// executable of process pid.
//
// The memory map is read again on every call. Only executable regions backed
// by the process' own executable are considered and the first one that maps
// off is used.
func (t Translator) Translate(pid int, off uint64) (uint64, error) {
	log := logflags.MapsLogger()
	fail := func(err error) (uint64, error) {
		return 0, &TranslationError{Pid: pidString(pid), Offset: off, Err: err}
	}

	exe, err := t.ExePath(pid)
	if err != nil {
		return fail(err)
	}
	fh, err := os.Open(filepath.Join(t.procDir(pid), "maps"))
	if err != nil {
		return fail(err)
	}
	defer fh.Close()

	var (
		addr  uint64
		found bool
	)
	err = scan(fh, func(e Entry) bool {
		if !e.Exec() || e.Path != exe {
			return true
		}
		if !e.Contains(off) {
			log.Debugf("skipping %#x-%#x (offset %#x): %#x out of range", e.Start, e.End, e.Offset, off)
			return true
		}
		addr = e.Start + off - e.Offset
		found = true
		if logflags.Maps() {
			log.Debugf("%#x in %s: row %#x-%#x %s offset %#x -> %#x", off, exe, e.Start, e.End, e.Perm, e.Offset, addr)
		}
		return false
	})
	if err != nil {
		return fail(err)
	}
	if !found {
		return fail(ErrNoMapping)
	}
	return addr, nil
}

// ImageBase returns the address at which the start of the executable of
// process pid is mapped.
func (t Translator) ImageBase(pid int) (uint64, error) {
	exe, err := t.ExePath(pid)
	if err != nil {
		return 0, err
	}
	entries, err := t.Entries(pid)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Path == exe && e.Offset == 0 {
			return e.Start, nil
		}
	}
	return 0, ErrNoImage
}

// Relocate translates addr, an address in process from, to the same
// location in process to. Both processes must be running the same
// executable, loaded as a single image.
func (t Translator) Relocate(addr uint64, from, to int) (uint64, error) {
	fail := func(err error) (uint64, error) {
		return 0, &TranslationError{Pid: pidString(to), Offset: addr, Err: err}
	}
	fromExe, err := t.ExePath(from)
	if err != nil {
		return fail(err)
	}
	toExe, err := t.ExePath(to)
	if err != nil {
		return fail(err)
	}
	if fromExe != toExe {
		return fail(fmt.Errorf("process %s runs %s, not %s", pidString(to), toExe, fromExe))
	}
	fromBase, err := t.ImageBase(from)
	if err != nil {
		return fail(err)
	}
	toBase, err := t.ImageBase(to)
	if err != nil {
		return fail(err)
	}
	if addr < fromBase {
		return fail(fmt.Errorf("address below image base %#x", fromBase))
	}
	r := addr - fromBase + toBase
	logflags.MapsLogger().Debugf("relocated %#x (base %#x) -> %#x (base %#x)", addr, fromBase, r, toBase)
	return r, nil
}

// Translate calls Default.Translate.
func Translate(pid int, off uint64) (uint64, error) {
	return Default.Translate(pid, off)
}

// Relocate calls Default.Relocate.
func Relocate(addr uint64, from, to int) (uint64, error) {
	return Default.Relocate(addr, from, to)
}
