package logpoint

import (
	"bytes"
	"errors"
	"os"
	"runtime"
	"syscall"
	"testing"

	"github.com/go-delve/logpoint/pkg/locspec"
	"github.com/go-delve/logpoint/pkg/proc"
	"github.com/go-delve/logpoint/pkg/proc/binfo"
	"github.com/go-delve/logpoint/pkg/proc/maps"
	"github.com/go-delve/logpoint/pkg/target"
	"github.com/go-delve/logpoint/pkg/workload"
)

const fib100 = 3736710778780434371

func TestMain(m *testing.M) {
	if os.Getenv(target.EnvFixture) != "" {
		os.Exit(target.Main(os.Args[1:], os.Stdout))
	}
	os.Exit(m.Run())
}

type recorder struct {
	hits      []proc.Hit
	forwarded []syscall.Signal
	outcome   proc.Outcome
}

func (r *recorder) Hit(h proc.Hit) { r.hits = append(r.hits, h) }
func (r *recorder) Forwarded(pid int, sig syscall.Signal) { r.forwarded = append(r.forwarded, sig) }
func (r *recorder) Exited(o proc.Outcome) { r.outcome = o }

func fixtureConfig(loc locspec.LocationSpec, sym proc.Symbol) Config {
	return Config{
		Location:   loc,
		Symbol:     sym,
		Iterations: 100,
		Env:        append(os.Environ(), target.EnvFixture+"=1"),
	}
}

func runSession(t *testing.T, cfg Config) (*recorder, proc.Outcome) {
	t.Helper()
	rec := &recorder{}
	o, err := Run(cfg, rec)
	if err != nil {
		if errors.Is(err, syscall.EPERM) {
			t.Skipf("ptrace not permitted: %v", err)
		}
		t.Fatalf("Run: %v", err)
	}
	if rec.outcome != o {
		t.Fatalf("reported outcome %#v differs from returned %#v", rec.outcome, o)
	}
	return rec, o
}

func values(hits []proc.Hit) []int64 {
	r := make([]int64, len(hits))
	for i := range hits {
		r[i] = hits[i].Value
	}
	return r
}

func TestFibBeforeFirstIteration(t *testing.T) {
	for sym, want := range map[proc.Symbol]int64{proc.SymbolA: 1, proc.SymbolB: 0, proc.SymbolI: 0} {
		rec, o := runSession(t, fixtureConfig(&locspec.CounterLocationSpec{Index: 0}, sym))
		if ExitCode(o) != ExitOK {
			t.Fatalf("unexpected outcome %v", o)
		}
		if len(rec.hits) != 1 || rec.hits[0].Value != want {
			t.Fatalf("%s at index 0: %v, expected %d", sym, values(rec.hits), want)
		}
	}
}

func TestFibAfterLastIteration(t *testing.T) {
	rec, o := runSession(t, fixtureConfig(&locspec.CounterLocationSpec{Index: 101}, proc.SymbolB))
	if ExitCode(o) != ExitOK {
		t.Fatalf("unexpected outcome %v", o)
	}
	if len(rec.hits) != 1 || rec.hits[0].Value != fib100 {
		t.Fatalf("b after the last iteration: %v, expected %d", values(rec.hits), int64(fib100))
	}
}

func TestOneTrapPerIndex(t *testing.T) {
	seq := workload.Sequence(100)
	for _, idx := range []int64{1, 2, 33, 100} {
		rec, _ := runSession(t, fixtureConfig(&locspec.CounterLocationSpec{Index: idx}, proc.SymbolB))
		if len(rec.hits) != 1 {
			t.Fatalf("index %d: %d hits", idx, len(rec.hits))
		}
		if rec.hits[0].Value != seq[idx] {
			t.Fatalf("index %d: b = %d, expected %d", idx, rec.hits[0].Value, seq[idx])
		}
	}
}

type siteLines struct {
	lines []int
}

func (s *siteLines) Maybe() {
	_, _, line, _ := runtime.Caller(1)
	s.lines = append(s.lines, line)
}

func TestLineMode(t *testing.T) {
	var st workload.State
	sites := &siteLines{}
	workload.Fib(1, &st, sites)
	if len(sites.lines) != 3 {
		t.Fatalf("unexpected hook sites %v", sites.lines)
	}
	loop := sites.lines[1]

	rec, o := runSession(t, fixtureConfig(&locspec.LineLocationSpec{Line: loop}, proc.SymbolB))
	if ExitCode(o) != ExitOK {
		t.Fatalf("unexpected outcome %v", o)
	}
	seq := workload.Sequence(100)
	if len(rec.hits) != 100 {
		t.Fatalf("expected a hit per iteration, got %d", len(rec.hits))
	}
	for i, h := range rec.hits {
		if h.N != i+1 || h.Value != seq[i+1] {
			t.Fatalf("hit %d: %#v, expected b = %d", i, h, seq[i+1])
		}
	}
}

func TestUnreachedLocation(t *testing.T) {
	rec, o := runSession(t, fixtureConfig(&locspec.CounterLocationSpec{Index: 1000}, proc.SymbolB))
	if len(rec.hits) != 0 {
		t.Fatalf("unexpected hits %v", values(rec.hits))
	}
	if !o.Exited || ExitCode(o) != ExitOK {
		t.Fatalf("expected a natural exit, got %v", o)
	}
}

func TestSignaledTarget(t *testing.T) {
	cfg := fixtureConfig(&locspec.CounterLocationSpec{Index: 1000}, proc.SymbolB)
	cfg.TargetArgs = []string{"--abort"}
	_, o := runSession(t, cfg)
	if ExitCode(o) != ExitSignaled || o.Signal != syscall.SIGKILL {
		t.Fatalf("expected the target to be killed, got %v", o)
	}
}

func TestForwardedSignal(t *testing.T) {
	cfg := fixtureConfig(&locspec.CounterLocationSpec{Index: 5}, proc.SymbolB)
	cfg.TargetArgs = []string{"--notify"}
	rec, o := runSession(t, cfg)
	if ExitCode(o) != ExitOK || o.ExitStatus != 0 {
		t.Fatalf("notification lost: %v", o)
	}
	found := false
	for _, sig := range rec.forwarded {
		found = found || sig == syscall.SIGUSR1
	}
	if !found {
		t.Fatalf("SIGUSR1 not forwarded: %v", rec.forwarded)
	}
	if len(rec.hits) != 1 || rec.hits[0].Value != 3 {
		t.Fatalf("unexpected hits %v", values(rec.hits))
	}
}

func TestInjectedFunc(t *testing.T) {
	if _, err := proc.ArchForGOARCH(runtime.GOARCH); err != nil {
		t.Skip(err)
	}
	rec, o := runSession(t, fixtureConfig(&locspec.FuncLocationSpec{Name: "workload.step"}, proc.SymbolA))
	if ExitCode(o) != ExitOK {
		t.Fatalf("unexpected outcome %v", o)
	}
	if len(rec.hits) != 1 || rec.hits[0].Value != 1 {
		t.Fatalf("a at the first step: %v", values(rec.hits))
	}
}

func TestInjectedAddr(t *testing.T) {
	if _, err := proc.ArchForGOARCH(runtime.GOARCH); err != nil {
		t.Skip(err)
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	img, err := binfo.Open(exe)
	if err != nil {
		t.Fatalf("could not load functions of the test binary: %v", err)
	}
	off, err := img.FuncOffset("github.com/go-delve/logpoint/pkg/workload.step")
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := runSession(t, fixtureConfig(&locspec.AddrLocationSpec{Offset: off}, proc.SymbolB))
	if len(rec.hits) != 1 || rec.hits[0].Value != 0 {
		t.Fatalf("b at the first step: %v", values(rec.hits))
	}
}

func TestTranslationFailure(t *testing.T) {
	if _, err := proc.ArchForGOARCH(runtime.GOARCH); err != nil {
		t.Skip(err)
	}
	_, err := Run(fixtureConfig(&locspec.AddrLocationSpec{Offset: 1 << 40}, proc.SymbolB), &recorder{})
	if errors.Is(err, syscall.EPERM) {
		t.Skipf("ptrace not permitted: %v", err)
	}
	if !errors.Is(err, maps.ErrNoMapping) {
		t.Fatalf("expected ErrNoMapping, got %v", err)
	}
	var serr *proc.SetupError
	if !errors.As(err, &serr) {
		t.Fatalf("expected a SetupError, got %T", err)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)
	p.Hit(proc.Hit{N: 1, Symbol: proc.SymbolB, Value: 0})
	p.Hit(proc.Hit{N: 2, Symbol: proc.SymbolB, Value: -1})
	p.Forwarded(1, syscall.SIGUSR1)
	p.Exited(proc.Outcome{Exited: true, ExitStatus: 0})
	p.Exited(proc.Outcome{Signal: syscall.SIGKILL})
	const want = "0\n-1\nexit status for tracee: 0\nexit signal for tracee: 9\n"
	if buf.String() != want {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
