package errs_test

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"depot/internal/errs"
)

func TestDecodeErrorMessageIncludesPathAndReason(t *testing.T) {
	err := errs.NewDecode("/library/game.nsp", "truncated header", io.ErrUnexpectedEOF)
	msg := err.Error()
	for _, want := range []string{"/library/game.nsp", "truncated header", "unexpected EOF"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
	if !errs.IsDecode(err) {
		t.Fatal("expected IsDecode to match")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("expected wrapped cause to survive")
	}
}

func TestPredicatesMatchWrappedErrors(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		match func(error) bool
		other []func(error) bool
	}{
		{
			name:  "not found",
			err:   fmt.Errorf("lookup: %w", errs.NewNotFound("download", "abc")),
			match: errs.IsNotFound,
			other: []func(error) bool{errs.IsDecode, errs.IsTransientIO, errs.IsConflict},
		},
		{
			name:  "transient io",
			err:   fmt.Errorf("fetch: %w", errs.NewTransientIO("download", io.ErrClosedPipe)),
			match: errs.IsTransientIO,
			other: []func(error) bool{errs.IsDecode, errs.IsNotFound, errs.IsConflict},
		},
		{
			name:  "conflict",
			err:   fmt.Errorf("scan: %w", errs.NewConflict("scan", "library")),
			match: errs.IsConflict,
			other: []func(error) bool{errs.IsDecode, errs.IsNotFound, errs.IsTransientIO},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.match(tc.err) {
				t.Fatalf("predicate did not match %v", tc.err)
			}
			for _, fn := range tc.other {
				if fn(tc.err) {
					t.Fatalf("unexpected cross-match for %v", tc.err)
				}
			}
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := errs.NewNotFound("title", "0100ABCD00000000")
	if got := err.Error(); got != `title "0100ABCD00000000" not found` {
		t.Fatalf("unexpected message %q", got)
	}
}
