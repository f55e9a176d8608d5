// Package internal holds test helpers shared across the module.
package internal

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

// FailureMessage reports a mismatch between got and want
func FailureMessage(t testing.TB, got, want interface{}) {
	t.Helper()

	t.Errorf("\nGot: %s\nwant: %s", TypeToString(got), TypeToString(want))
}

// TypeToString returns the string representation of a non-string type
func TypeToString(obj interface{}) string {
	if s, ok := obj.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%+v", obj)
}

// AssertNoError checks for the non-existence of an error
func AssertNoError(t testing.TB, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
}

// AssertErrored checks for the existence of an error
func AssertErrored(t testing.TB, err error) {
	t.Helper()

	if err == nil {
		t.Fatal("Expected an error, but got nil")
	}
}

// AssertErrorIs checks that err wraps target
func AssertErrorIs(t testing.TB, err, target error) {
	t.Helper()

	if !errors.Is(err, target) {
		t.Errorf("got error %v, want %v", err, target)
	}
}

// AssertEqual checks that the values are equal
func AssertEqual(t testing.TB, got, want interface{}) {
	t.Helper()

	if got != want {
		FailureMessage(t, got, want)
	}
}

// AssertDeepEqual checks that the values are deeply equal
func AssertDeepEqual(t testing.TB, got, want interface{}) {
	t.Helper()

	if !reflect.DeepEqual(got, want) {
		FailureMessage(t, got, want)
	}
}

// AssertTrue checks that the value is true
func AssertTrue(t testing.TB, got bool) {
	t.Helper()

	if !got {
		t.Error("Expected to be true, but it wasn't")
	}
}

// AssertFalse checks that the value is false
func AssertFalse(t testing.TB, got bool) {
	t.Helper()

	if got {
		t.Error("Expected to be false, but it wasn't")
	}
}

// AssertNotNil checks that the value is not nil
func AssertNotNil(t testing.TB, got interface{}) {
	t.Helper()

	if got == nil {
		t.Error("Value is unexpectedly nil")
	}
}

// AssertNotEmptyString checks the string is not the empty string
func AssertNotEmptyString(t testing.TB, got string) {
	t.Helper()

	if got == "" {
		t.Error("unexpected empty string")
	}
}

// AssertPanics checks that fn panics
func AssertPanics(t testing.TB, fn func()) {
	t.Helper()

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected to panic, but it didn't")
		}
	}()
	fn()
}

// Within fails the test if assert does not return within d
func Within(t testing.TB, d time.Duration, assert func()) {
	t.Helper()

	done := make(chan struct{}, 1)

	go func() {
		assert()
		done <- struct{}{}
	}()

	select {
	case <-time.After(d):
		t.Error("timed out")
	case <-done:
	}
}
