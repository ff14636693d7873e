// Package workload is the reference computation run by the traced target.
package workload

// State holds the accumulators of the computation. The tracer reads its
// fields from another process, so they are fixed size and every update is
// stored to memory before the next hook call.
type State struct {
	A int64
	B int64
	I int64
}

// Hook is called at every instrumented point of the computation.
type Hook interface {
	Maybe()
}

// Fib computes the n-th term of the Fibonacci sequence starting from
// (A, B) = (1, 0), wrapping around on overflow. The hook is called once
// before the loop, once at the top of every iteration and once after the
// loop, n+2 times in total.
func Fib(n int, st *State, hook Hook) int64 {
	st.A = 1
	st.B = 0
	st.I = 0

	hook.Maybe()

	for st.I = 0; st.I < int64(n); st.I++ {
		hook.Maybe()

		step(st)
	}

	hook.Maybe()

	return st.B
}

//go:noinline
func step(st *State) {
	b := st.A + st.B
	st.A = st.B
	st.B = b
}

// Sequence returns the values that B holds at every hook call of Fib(n).
func Sequence(n int) []int64 {
	r := make([]int64, 0, n+2)
	a, b := int64(1), int64(0)
	r = append(r, b)
	for i := 0; i < n; i++ {
		r = append(r, b)
		a, b = b, a+b
	}
	r = append(r, b)
	return r
}
