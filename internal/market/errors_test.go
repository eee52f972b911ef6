package market

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindMatching(t *testing.T) {
	err := NewError(ErrRateLimited, "okx", "token bucket exhausted")
	if !errors.Is(err, &Error{Kind: ErrRateLimited}) {
		t.Fatalf("errors.Is should match on kind")
	}
	if errors.Is(err, &Error{Kind: ErrUnknownSource}) {
		t.Fatalf("errors.Is matched wrong kind")
	}
	if KindOf(err) != ErrRateLimited {
		t.Fatalf("KindOf: got %q", KindOf(err))
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := WrapError(ErrUpstreamUnavailable, "kraken", cause, "fetch candles")
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped cause lost")
	}

	wrapped := fmt.Errorf("request failed: %w", err)
	if KindOf(wrapped) != ErrUpstreamUnavailable {
		t.Fatalf("kind lost through wrapping: %q", KindOf(wrapped))
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(fmt.Errorf("plain")) != "" {
		t.Fatalf("plain error should have no kind")
	}
}

func TestIsValidation(t *testing.T) {
	cases := map[ErrorKind]bool{
		ErrUnknownSource:          true,
		ErrSymbolNotSupported:     true,
		ErrUnparsableSymbol:       true,
		ErrUnsupportedGranularity: true,
		ErrRateLimited:            false,
		ErrUpstreamUnavailable:    false,
		ErrUpstreamProtocol:       false,
	}
	for kind, want := range cases {
		if got := IsValidation(NewError(kind, "x", "msg")); got != want {
			t.Errorf("IsValidation(%s) = %v, want %v", kind, got, want)
		}
	}
}
