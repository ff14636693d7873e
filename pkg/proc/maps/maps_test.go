package maps

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const exePath = "/opt/fib/bin/logpoint"

// fakeProc creates a procfs-like tree with a single process directory.
func fakeProc(t *testing.T, dir, exe, maps string) Translator {
	root := t.TempDir()
	p := filepath.Join(root, dir)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(exe, filepath.Join(p, "exe")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p, "maps"), []byte(maps), 0o644); err != nil {
		t.Fatal(err)
	}
	return Translator{ProcRoot: root}
}

const pieMaps = `55d0c8a00000-55d0c8a01000 r--p 00000000 fd:01 1310786                    /opt/fib/bin/logpoint
55d0c8a01000-55d0c8a02000 r-xp 00001000 fd:01 1310786                    /opt/fib/bin/logpoint
55d0c8a02000-55d0c8a03000 r--p 00002000 fd:01 1310786                    /opt/fib/bin/logpoint
55d0c8a03000-55d0c8a04000 rw-p 00002000 fd:01 1310786                    /opt/fib/bin/logpoint
55d0c9b3e000-55d0c9b5f000 rw-p 00000000 00:00 0                          [heap]
7f2a1e400000-7f2a1e428000 r--p 00000000 fd:01 2883812                    /usr/lib/x86_64-linux-gnu/libc.so.6
7f2a1e428000-7f2a1e5bd000 r-xp 00028000 fd:01 2883812                    /usr/lib/x86_64-linux-gnu/libc.so.6
7ffd3c9e6000-7ffd3ca07000 rw-p 00000000 00:00 0                          [stack]
7ffd3cbd5000-7ffd3cbd7000 r-xp 00000000 00:00 0                          [vdso]
`

func TestParseLine(t *testing.T) {
	e, err := ParseLine(1, "55d0c8a01000-55d0c8a02000 r-xp 00001000 fd:01 1310786                    /opt/fib/bin/logpoint")
	if err != nil {
		t.Fatal(err)
	}
	want := Entry{Start: 0x55d0c8a01000, End: 0x55d0c8a02000, Perm: "r-xp", Offset: 0x1000, Dev: "fd:01", Inode: 1310786, Path: exePath}
	if !reflect.DeepEqual(e, want) {
		t.Fatalf("expected %#v got %#v", want, e)
	}
	if !e.Read() || e.Write() || !e.Exec() || e.Size() != 0x1000 {
		t.Fatalf("wrong accessors for %#v", e)
	}

	e, err = ParseLine(2, "7f0000000000-7f0000001000 rw-p 00000000 00:00 0 ")
	if err != nil {
		t.Fatal(err)
	}
	if e.Path != "" {
		t.Fatalf("anonymous mapping has path %q", e.Path)
	}

	e, err = ParseLine(3, "00400000-00401000 r-xp 00000000 08:01 42 /tmp/dir with spaces/bin (deleted)")
	if err != nil {
		t.Fatal(err)
	}
	if e.Path != "/tmp/dir with spaces/bin (deleted)" {
		t.Fatalf("wrong path %q", e.Path)
	}
}

func TestParseLineMalformed(t *testing.T) {
	for _, in := range []string{
		"00400000-00401000 r-xp 00000000 08:01",
		"00400000 r-xp 00000000 08:01 42 /bin/true",
		"0040000g-00401000 r-xp 00000000 08:01 42 /bin/true",
		"00401000-00400000 r-xp 00000000 08:01 42 /bin/true",
		"00400000-00401000 rx 00000000 08:01 42 /bin/true",
		"00400000-00401000 r-xp zz 08:01 42 /bin/true",
		"00400000-00401000 r-xp 00000000 08:01 inode /bin/true",
	} {
		if _, err := ParseLine(7, in); err == nil || !strings.Contains(err.Error(), "line 7") {
			t.Errorf("%q: expected malformed error, got %v", in, err)
		}
	}
}

func TestTranslate(t *testing.T) {
	tr := fakeProc(t, "self", exePath, pieMaps)

	for _, tc := range []struct {
		off, addr uint64
	}{
		{0x1000, 0x55d0c8a01000},
		{0x1234, 0x55d0c8a01234},
		{0x1fff, 0x55d0c8a01fff},
	} {
		addr, err := tr.Translate(Self, tc.off)
		if err != nil {
			t.Fatalf("%#x: %v", tc.off, err)
		}
		if addr != tc.addr {
			t.Errorf("%#x: expected %#x got %#x", tc.off, tc.addr, addr)
		}
	}
}

func TestTranslateIdempotent(t *testing.T) {
	tr := fakeProc(t, "1234", exePath, pieMaps)
	first, err := tr.Translate(1234, 0x1800)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		addr, err := tr.Translate(1234, 0x1800)
		if err != nil || addr != first {
			t.Fatalf("call %d: got %#x %v, expected %#x", i, addr, err, first)
		}
	}
}

func TestTranslateNoMapping(t *testing.T) {
	for _, tc := range []struct {
		name string
		exe  string
		off  uint64
	}{
		// the offset is only covered by non executable rows
		{"out of range", exePath, 0x2100},
		{"before text", exePath, 0x10},
		// the executable rows belong to libc and the vdso
		{"other binary", "/opt/fib/bin/other", 0x1000},
	} {
		tr := fakeProc(t, "self", tc.exe, pieMaps)
		addr, err := tr.Translate(Self, tc.off)
		if !errors.Is(err, ErrNoMapping) {
			t.Errorf("%s: expected ErrNoMapping, got %#x %v", tc.name, addr, err)
		}
		var terr *TranslationError
		if !errors.As(err, &terr) || terr.Pid != "self" || terr.Offset != tc.off {
			t.Errorf("%s: expected a TranslationError, got %#v", tc.name, err)
		}
	}
}

func TestTranslateFirstMatch(t *testing.T) {
	// the same file range mapped twice: the first region wins
	const dup = `00400000-00402000 r-xp 00000000 08:01 42 /opt/fib/bin/logpoint
00600000-00602000 r-xp 00000000 08:01 42 /opt/fib/bin/logpoint
`
	tr := fakeProc(t, "self", exePath, dup)
	addr, err := tr.Translate(Self, 0x100)
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0x400100 {
		t.Fatalf("expected first mapping, got %#x", addr)
	}
}

func TestTranslateMissingFiles(t *testing.T) {
	tr := Translator{ProcRoot: t.TempDir()}
	if _, err := tr.Translate(Self, 0x1000); err == nil || errors.Is(err, ErrNoMapping) {
		t.Fatalf("expected error resolving the executable, got %v", err)
	}
}

func TestRelocate(t *testing.T) {
	root := t.TempDir()
	write := func(dir, maps string) {
		p := filepath.Join(root, dir)
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(exePath, filepath.Join(p, "exe")); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(p, "maps"), []byte(maps), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("self", pieMaps)
	write("99", strings.ReplaceAll(pieMaps, "55d0c8a0", "5600aaa0"))
	tr := Translator{ProcRoot: root}

	base, err := tr.ImageBase(99)
	if err != nil || base != 0x5600aaa00000 {
		t.Fatalf("wrong image base %#x %v", base, err)
	}

	// a bss address past the file backed part of the data segment
	addr, err := tr.Relocate(0x55d0c8a03f10, Self, 99)
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0x5600aaa03f10 {
		t.Fatalf("expected %#x got %#x", uint64(0x5600aaa03f10), addr)
	}

	if _, err := tr.Relocate(0x1000, Self, 99); err == nil {
		t.Fatalf("address below the image base should not relocate")
	}
}

func TestTranslateSelf(t *testing.T) {
	entries, err := Default.Entries(Self)
	if err != nil {
		t.Skipf("no procfs: %v", err)
	}
	exe, err := Default.ExePath(Self)
	if err != nil {
		t.Fatal(err)
	}
	var text *Entry
	for i := range entries {
		if entries[i].Exec() && entries[i].Path == exe {
			text = &entries[i]
			break
		}
	}
	if text == nil {
		t.Skip("test binary has no executable mapping")
	}
	off := text.Offset + text.Size()/2
	addr, err := Translate(Self, off)
	if err != nil {
		t.Fatal(err)
	}
	if addr != text.Start+text.Size()/2 {
		t.Fatalf("expected %#x got %#x", text.Start+text.Size()/2, addr)
	}
	again, err := Translate(Self, off)
	if err != nil || again != addr {
		t.Fatalf("translation not idempotent: %#x %#x %v", addr, again, err)
	}
}
