// Package result provides a generic two-variant outcome type. A Result is
// either a success carrying a value or a failure carrying a typed error,
// never both. It exists so capability interfaces can express fallibility in
// their signatures with a closed error type instead of a bare error.
package result

// Unit is the value of a Result that carries no payload on success.
type Unit = struct{}

// Result holds either a success value of type T or a failure of type E.
// The zero value is a failure with E's zero value; construct results with Ok
// and Err.
type Result[T any, E error] struct {
	value T
	err   E
	ok    bool
}

// Ok returns a successful Result carrying v.
func Ok[T any, E error](v T) Result[T, E] {
	return Result[T, E]{value: v, ok: true}
}

// Err returns a failed Result carrying e.
func Err[T any, E error](e E) Result[T, E] {
	return Result[T, E]{err: e}
}

// IsOk reports whether the result is a success.
func (r Result[T, E]) IsOk() bool { return r.ok }

// Value returns the success value and whether the result is a success.
func (r Result[T, E]) Value() (T, bool) {
	return r.value, r.ok
}

// Failure returns the typed error and whether the result is a failure.
func (r Result[T, E]) Failure() (E, bool) {
	return r.err, !r.ok
}

// Unpack converts the result to Go's conventional (value, error) pair. On
// success the returned error is untyped nil, so it is always safe to compare
// with nil directly.
func (r Result[T, E]) Unpack() (T, error) {
	if r.ok {
		return r.value, nil
	}
	return r.value, r.err
}

// Map transforms the success value, passing failures through unchanged.
func Map[T, U any, E error](r Result[T, E], fn func(T) U) Result[U, E] {
	if !r.ok {
		return Err[U](r.err)
	}
	return Ok[U, E](fn(r.value))
}

// MapErr transforms the failure, passing successes through unchanged.
func MapErr[T any, E, F error](r Result[T, E], fn func(E) F) Result[T, F] {
	if r.ok {
		return Ok[T, F](r.value)
	}
	return Err[T](fn(r.err))
}

// FlatMap chains a fallible transformation: fn runs only on success, and its
// result becomes the overall result. Failures short-circuit.
func FlatMap[T, U any, E error](r Result[T, E], fn func(T) Result[U, E]) Result[U, E] {
	if !r.ok {
		return Err[U](r.err)
	}
	return fn(r.value)
}
