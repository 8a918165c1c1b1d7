package executor

import (
	"testing"
	"time"
)

func TestValidateTimeoutDefaultsWhenUnset(t *testing.T) {
	got, err := validateTimeout(0)
	if err != nil || got != defaultTimeout {
		t.Errorf("validateTimeout(0) = (%v, %v), want (%v, nil)", got, err, defaultTimeout)
	}
	got, err = validateTimeout(-1 * time.Second)
	if err != nil || got != defaultTimeout {
		t.Errorf("validateTimeout(negative) = (%v, %v), want (%v, nil)", got, err, defaultTimeout)
	}
}

func TestValidateTimeoutRejectsBelowMin(t *testing.T) {
	if _, err := validateTimeout(999 * time.Millisecond); err == nil {
		t.Error("validateTimeout(999ms) = nil error, want a ValidationError")
	}
}

func TestValidateTimeoutRejectsAboveMax(t *testing.T) {
	if _, err := validateTimeout(maxTimeout + time.Millisecond); err == nil {
		t.Error("validateTimeout(300001ms) = nil error, want a ValidationError")
	}
}

func TestValidateTimeoutPassesThroughInRange(t *testing.T) {
	want := 15 * time.Second
	got, err := validateTimeout(want)
	if err != nil || got != want {
		t.Errorf("validateTimeout(%v) = (%v, %v), want (%v, nil)", want, got, err, want)
	}
}

func TestValidateTimeoutAcceptsBoundaries(t *testing.T) {
	if _, err := validateTimeout(minTimeout); err != nil {
		t.Errorf("validateTimeout(minTimeout) returned error: %v", err)
	}
	if _, err := validateTimeout(maxTimeout); err != nil {
		t.Errorf("validateTimeout(maxTimeout) returned error: %v", err)
	}
}

func TestDomainOfExtractsHostname(t *testing.T) {
	cases := map[string]string{
		"https://example.com/path?q=1": "example.com",
		"http://sub.example.com:8080/": "sub.example.com",
		"not a url at all":             "",
	}
	for input, want := range cases {
		if got := domainOf(input); got != want {
			t.Errorf("domainOf(%q) = %q, want %q", input, got, want)
		}
	}
}
