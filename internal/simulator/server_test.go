package simulator

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestServer_RunAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	srv := NewServer("127.0.0.1:0", New(WithReads(3)), nil)

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + listPath)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_ListenError(t *testing.T) {
	srv := NewServer("256.0.0.1:bad", New(), nil)

	if err := srv.Run(t.Context(), nil); err == nil {
		t.Fatal("expected listen error")
	}
}
