// Package validate holds small checks that return an error built from a
// caller-supplied message, so several can be joined with errors.Join.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// NotNil returns an error if value is nil or a typed nil pointer, map,
// slice, func, chan or interface.
func NotNil(value any, msg string, args ...any) error {
	if value == nil {
		return createError(msg, args...)
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			return createError(msg, args...)
		}
	}
	return nil
}

// NotBlank returns an error if s is empty or only whitespace.
func NotBlank(s string, msg string, args ...any) error {
	if strings.TrimSpace(s) == "" {
		return createError(msg, args...)
	}
	return nil
}

// NotEmpty returns an error if the slice has no elements.
func NotEmpty[T any](s []T, msg string, args ...any) error {
	if len(s) == 0 {
		return createError(msg, args...)
	}
	return nil
}

// KeyNotInMap returns an error if key is already present in m.
func KeyNotInMap[K comparable, V any](key K, m map[K]V, msg string, args ...any) error {
	if _, ok := m[key]; ok {
		return createError(msg, args...)
	}
	return nil
}

func createError(msg string, args ...any) error {
	if len(args) == 0 {
		return errors.New(msg)
	}
	return fmt.Errorf(msg, args...)
}
