package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/adamwoolhether/quotaguard/client/throttle"
	"github.com/adamwoolhether/quotaguard/config"
)

// quotaServer serves resource group listings with the remaining reads
// given per call, then a 429 once reads run out.
func quotaServer(t *testing.T, reads ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))

		if r.URL.Query().Get("api-version") != "2021-04-01" {
			http.Error(w, "missing api-version", http.StatusBadRequest)
			return
		}

		if n > len(reads) {
			w.Header().Set(throttle.HeaderSubscriptionReads, "0")
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		w.Header().Set(throttle.HeaderSubscriptionReads, strconv.Itoa(reads[n-1]))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[{"name":"rg-a"},{"name":"rg-b"}]}`))
	}))
	t.Cleanup(srv.Close)

	return srv, &calls
}

func testConfig(endpoint string) config.Config {
	return config.Config{
		Endpoint:       endpoint,
		APIVersion:     "2021-04-01",
		TenantID:       "tenant-1",
		SubscriptionID: "sub-1",
		Timeout:        5 * time.Second,
		Throttle: config.ThrottleConfig{
			DefaultRetryAfter: time.Minute,
		},
		Adaptive: config.AdaptiveConfig{
			Enabled: true,
			Steps:   []config.StepConfig{{Below: 100, Delay: 5 * time.Millisecond}},
		},
		Log: config.LogConfig{Level: "info"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProber_Run(t *testing.T) {
	srv, calls := quotaServer(t, 150, 50)

	p, err := newProber(testConfig(srv.URL), discardLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newProber: %v", err)
	}

	results, err := p.run(t.Context(), 5, "")

	var rlErr *throttle.RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if rlErr.WaitSeconds != 7 {
		t.Errorf("expected 7s wait, got %d", rlErr.WaitSeconds)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected probe to stop after 3 calls, got %d", got)
	}

	exp := []probeResult{
		{N: 1, Status: http.StatusOK, Items: 2, Reads: 150, ReadsKnown: true, Delay: 0, Sequence: 1},
		{N: 2, Status: http.StatusOK, Items: 2, Reads: 50, ReadsKnown: true, Delay: 0, Sequence: 2},
		{N: 3, Status: http.StatusTooManyRequests, Reads: 0, ReadsKnown: true, Delay: 5 * time.Millisecond, Sequence: 3},
	}
	if diff := cmp.Diff(exp, results, cmpopts.IgnoreFields(probeResult{}, "Err")); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	if got := testutil.ToFloat64(p.collector.RateLimitedTotal); got != 1 {
		t.Errorf("expected 1 rate limited, got %v", got)
	}
	if got := testutil.ToFloat64(p.collector.RemainingReads); got != 0 {
		t.Errorf("expected remaining reads gauge 0, got %v", got)
	}
	if last, ok := p.controller.Last(); !ok || last != 0 {
		t.Errorf("expected controller to have seen 0, got %d, %t", last, ok)
	}
}

func TestProber_IssueWithoutResponse(t *testing.T) {
	srv, calls := quotaServer(t, 150)

	p, err := newProber(testConfig(srv.URL), discardLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("newProber: %v", err)
	}

	target, err := p.target("")
	if err != nil {
		t.Fatalf("target: %v", err)
	}

	first := p.issue(t.Context(), 1, target)
	if first.Err != nil || !first.ReadsKnown || first.Reads != 150 {
		t.Fatalf("expected 150 remaining reads, got %d, %t, %v", first.Reads, first.ReadsKnown, first.Err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	second := p.issue(ctx, 2, target)
	if second.Err == nil {
		t.Fatal("expected error from a cancelled request")
	}
	if second.ReadsKnown || second.Reads != 0 {
		t.Errorf("expected no remaining reads without a response, got %d, %t", second.Reads, second.ReadsKnown)
	}
	if second.Status != 0 {
		t.Errorf("expected no status without a response, got %d", second.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected the cancelled request never to reach the server, got %d calls", got)
	}
}

func TestProber_Target(t *testing.T) {
	testCases := map[string]struct {
		endpoint string
		path     string
		exp      string
	}{
		"defaultPath": {
			endpoint: "https://management.azure.com",
			exp:      "https://management.azure.com/subscriptions/sub-1/resourcegroups?api-version=2021-04-01",
		},
		"customPathWithPort": {
			endpoint: "http://127.0.0.1:8080/",
			path:     "/providers",
			exp:      "http://127.0.0.1:8080/providers?api-version=2021-04-01",
		},
		"endpointPrefix": {
			endpoint: "https://proxy.example.com/arm/",
			path:     "/tenants",
			exp:      "https://proxy.example.com/arm/tenants?api-version=2021-04-01",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			p, err := newProber(testConfig(tc.endpoint), discardLogger(), nil)
			if err != nil {
				t.Fatalf("newProber: %v", err)
			}

			got, err := p.target(tc.path)
			if err != nil {
				t.Fatalf("target: %v", err)
			}
			if got.String() != tc.exp {
				t.Errorf("expected %s, got %s", tc.exp, got)
			}
		})
	}
}

func TestProber_RunInvalidCount(t *testing.T) {
	p := &prober{cfg: testConfig("https://management.azure.com"), logger: discardLogger()}

	if _, err := p.run(t.Context(), 0, ""); err == nil {
		t.Fatal("expected error for zero requests")
	}
}

func TestRenderResults(t *testing.T) {
	out := renderResults(testConfig(""), []probeResult{
		{N: 1, Status: http.StatusOK, Items: 2, Reads: 150, ReadsKnown: true, Sequence: 1},
		{N: 2, Status: http.StatusTooManyRequests, Delay: time.Second, Sequence: 2, Err: &throttle.RateLimitError{WaitSeconds: 7}},
	})

	for _, want := range []string{"subscription sub-1 (tenant tenant-1)", "200 OK", "429 throttled", "150", "1s", "1/2 ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}

	if renderResults(testConfig(""), nil) != "" {
		t.Error("expected empty output without results")
	}
}

func TestProbeCommand(t *testing.T) {
	srv, _ := quotaServer(t, 4000)

	path := filepath.Join(t.TempDir(), "quotaguard.yaml")
	body := "endpoint: " + srv.URL + "\ntenant_id: tenant-1\nsubscription_id: sub-1\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"probe", "--config", path, "--requests", "2"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	for _, want := range []string{"4000", "429 throttled", "rate limited: retry after 7s"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected output to contain %q:\n%s", want, out.String())
		}
	}
}
