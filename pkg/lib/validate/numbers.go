package validate

// Number is any built-in integer or floating point type, including named
// types such as time.Duration.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// IsGreaterThanZero returns an error if value is not strictly positive.
func IsGreaterThanZero[T Number](value T, msg string, args ...any) error {
	if value <= 0 {
		return createError(msg, args...)
	}
	return nil
}

// IsGreaterOrEqual returns an error if value is less than bound.
func IsGreaterOrEqual[T Number](value, bound T, msg string, args ...any) error {
	if value < bound {
		return createError(msg, args...)
	}
	return nil
}
