package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(capturesTotal.WithLabelValues("metrics-test.example", "success"))
	ObserveCapture("https://metrics-test.example/a", true, 2*time.Second)
	after := testutil.ToFloat64(capturesTotal.WithLabelValues("metrics-test.example", "success"))
	if after-before != 1 {
		t.Fatalf("expected capture counter to increase by 1, got %f", after-before)
	}

	gauge := testutil.ToFloat64(activeCaptures)
	IncActiveCaptures()
	if got := testutil.ToFloat64(activeCaptures); got != gauge+1 {
		t.Fatalf("expected active captures %f, got %f", gauge+1, got)
	}
	DecActiveCaptures()
	if got := testutil.ToFloat64(activeCaptures); got != gauge {
		t.Fatalf("expected active captures back to %f, got %f", gauge, got)
	}

	ObserveSinkError("metrics-test")
	if got := testutil.ToFloat64(sinkErrorsTotal.WithLabelValues("metrics-test")); got != 1 {
		t.Fatalf("expected one sink error, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
