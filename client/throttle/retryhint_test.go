package throttle

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestParseRetryAfter(t *testing.T) {
	testCases := []struct {
		name    string
		header  string
		body    string
		expSecs int
		expOK   bool
	}{
		{
			name:    "Header wins over body",
			header:  "120",
			body:    "Please try again after '3' minutes.",
			expSecs: 120,
			expOK:   true,
		},
		{
			name:    "Body minutes",
			body:    "Rate limit hit. Try again after '3' minutes.",
			expSecs: 180,
			expOK:   true,
		},
		{
			name:    "Body seconds",
			body:    "please try again after '45' seconds",
			expSecs: 45,
			expOK:   true,
		},
		{
			name:    "Minutes checked before seconds",
			body:    "try again after '10' seconds or try again after '1' minute",
			expSecs: 60,
			expOK:   true,
		},
		{
			name:    "Unquoted number",
			body:    "TRY AGAIN AFTER 7 SECONDS",
			expSecs: 7,
			expOK:   true,
		},
		{
			name:    "Malformed header falls through to body",
			header:  "soon",
			body:    "try again after '2' seconds",
			expSecs: 2,
			expOK:   true,
		},
		{
			name:   "Zero header ignored",
			header: "0",
		},
		{
			name:   "Negative header ignored",
			header: "-5",
		},
		{
			name: "No hint",
			body: `{"error":{"code":"TooManyRequests"}}`,
		},
		{
			name: "Zero in body ignored",
			body: "try again after '0' minutes",
		},
		{
			name: "Overflowing number ignored",
			body: "try again after '99999999999999999999999' seconds",
		},
		{
			name: "Empty",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			if tc.header != "" {
				h.Set("Retry-After", tc.header)
			}

			secs, ok := ParseRetryAfter(h, tc.body)
			if ok != tc.expOK {
				t.Fatalf("exp ok %t; got %t", tc.expOK, ok)
			}
			if secs != tc.expSecs {
				t.Errorf("exp %d seconds; got %d", tc.expSecs, secs)
			}
		})
	}
}

func TestRetryAfter_BodyRemainsReadable(t *testing.T) {
	body := strings.Repeat("x", 1<<20) + " try again after '4' seconds"

	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}

	secs, ok := RetryAfter(resp)
	if !ok || secs != 4 {
		t.Fatalf("exp 4 seconds from the end of a large body; got %d, %t", secs, ok)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading materialized body: %v", err)
	}
	if string(b) != body {
		t.Errorf("exp body preserved (%d bytes); got %d bytes", len(body), len(b))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestRetryAfter_UnreadableBody(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{},
		Body:   io.NopCloser(failingReader{}),
	}

	if secs, ok := RetryAfter(resp); ok {
		t.Errorf("exp no hint from unreadable body; got %d", secs)
	}

	if _, ok := RetryAfter(nil); ok {
		t.Error("exp no hint from nil response")
	}

	if _, ok := RetryAfter(&http.Response{Header: http.Header{}, Body: http.NoBody}); ok {
		t.Error("exp no hint from empty body")
	}
}
