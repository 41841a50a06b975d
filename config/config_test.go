package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/quotaguard/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "quotaguard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
tenant_id: tenant-1
subscription_id: sub-1
throttle:
  initial_delay: 250ms
  rps: 5
  burst: 2
adaptive:
  base_delay: 10ms
  steps:
    - below: 100
      delay: 2s
log:
  level: debug
metrics:
  addr: localhost:9090
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("exp nil err; got %v", err)
	}

	exp := config.Config{
		Endpoint:       "https://management.azure.com",
		APIVersion:     "2021-04-01",
		TenantID:       "tenant-1",
		SubscriptionID: "sub-1",
		UserAgent:      "quotaguard/1.0",
		Timeout:        30 * time.Second,
		Throttle: config.ThrottleConfig{
			InitialDelay:      250 * time.Millisecond,
			DefaultRetryAfter: 5 * time.Minute,
			RPS:               5,
			Burst:             2,
		},
		Adaptive: config.AdaptiveConfig{
			Enabled:   true,
			BaseDelay: 10 * time.Millisecond,
			Steps:     []config.StepConfig{{Below: 100, Delay: 2 * time.Second}},
		},
		Log:     config.LogConfig{Level: "debug"},
		Metrics: config.MetricsConfig{Addr: "localhost:9090"},
	}

	if diff := cmp.Diff(exp, cfg); diff != "" {
		t.Errorf("config mismatch (-exp +got):\n%s", diff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
tenant_id: tenant-1
subscription_id: sub-1
`)

	t.Setenv("QUOTAGUARD_SUBSCRIPTION_ID", "sub-env")
	t.Setenv("QUOTAGUARD_THROTTLE_INITIAL_DELAY", "1s")
	t.Setenv("QUOTAGUARD_ADAPTIVE_ENABLED", "false")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("exp nil err; got %v", err)
	}

	if cfg.SubscriptionID != "sub-env" {
		t.Errorf("exp env subscription; got %q", cfg.SubscriptionID)
	}
	if cfg.Throttle.InitialDelay != time.Second {
		t.Errorf("exp env delay 1s; got %v", cfg.Throttle.InitialDelay)
	}
	if cfg.Adaptive.Enabled {
		t.Error("exp adaptive disabled by env")
	}
}

func TestLoad_Invalid(t *testing.T) {
	testCases := map[string]struct {
		body      string
		expFields []string
	}{
		"missingIDs": {
			body:      `endpoint: https://management.example.com`,
			expFields: []string{"tenant_id", "subscription_id"},
		},
		"burstWithoutRPS": {
			body: `
tenant_id: t
subscription_id: s
throttle:
  rps: 3
`,
			expFields: []string{"throttle.burst"},
		},
		"badLevelAndRetry": {
			body: `
tenant_id: t
subscription_id: s
throttle:
  default_retry_after: 0s
log:
  level: loud
`,
			expFields: []string{"throttle.default_retry_after", "log.level"},
		},
		"badStep": {
			body: `
tenant_id: t
subscription_id: s
adaptive:
  steps:
    - below: 0
      delay: 1s
`,
			expFields: []string{"adaptive.steps[0].below"},
		},
		"duplicateSteps": {
			body: `
tenant_id: t
subscription_id: s
adaptive:
  steps:
    - below: 50
      delay: 1s
    - below: 50
      delay: 2s
`,
			expFields: []string{"adaptive.steps"},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.body))
			if !errors.Is(err, config.ErrInvalid) {
				t.Fatalf("exp ErrInvalid; got %v", err)
			}

			var fields config.FieldErrors
			if !errors.As(err, &fields) {
				t.Fatalf("exp FieldErrors; got %T", err)
			}

			var got []string
			for _, f := range fields {
				got = append(got, f.Field)
			}
			if diff := cmp.Diff(tc.expFields, got); diff != "" {
				t.Errorf("field mismatch (-exp +got):\n%s", diff)
			}
		})
	}
}

func TestValidate_Messages(t *testing.T) {
	cfg := config.Config{
		Endpoint:   "https://management.azure.com",
		APIVersion: "2021-04-01",
		TenantID:   "t",
		Throttle: config.ThrottleConfig{
			DefaultRetryAfter: time.Minute,
			RPS:               2,
		},
		Log:     config.LogConfig{Level: "info"},
		Metrics: config.MetricsConfig{Addr: "not an address"},
	}

	err := config.Validate(cfg)

	var fields config.FieldErrors
	if !errors.As(err, &fields) {
		t.Fatalf("exp FieldErrors; got %v", err)
	}

	exp := map[string]string{
		"subscription_id": "must be set",
		"throttle.burst":  "must be set when throttle.rps is set",
		"metrics.addr":    "must be a host:port address",
	}
	if diff := cmp.Diff(exp, fields.Fields()); diff != "" {
		t.Errorf("message mismatch (-exp +got):\n%s", diff)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("exp error for missing file")
	}
}
