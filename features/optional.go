package features

// Optional marks a feature track a backend may or may not supply. Callers ask
// Get instead of testing slices for nil.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent value
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether a value is set
func (o Optional[T]) Present() bool {
	return o.ok
}

// OrElse returns the value or fallback when absent
func (o Optional[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}
