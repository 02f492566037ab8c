package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hazz-dev/portwatch/internal/checker"
	"github.com/hazz-dev/portwatch/internal/config"
)

func listen(t *testing.T) (config.Endpoint, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return config.Endpoint{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}, func() { ln.Close() }
}

func TestRunChecks_AllUp_OutputFormat(t *testing.T) {
	ep, stop := listen(t)
	defer stop()

	var buf bytes.Buffer
	err := runChecks(context.Background(), &buf, []config.Endpoint{ep}, checker.NewTCPProber(2*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "ENDPOINT") {
		t.Errorf("expected header row with 'ENDPOINT', got:\n%s", output)
	}
	if !strings.Contains(output, ep.String()) {
		t.Errorf("expected %q in output, got:\n%s", ep, output)
	}
	if !strings.Contains(output, "up") {
		t.Errorf("expected 'up' in output, got:\n%s", output)
	}
}

func TestRunChecks_DownEndpointFails(t *testing.T) {
	up, stop := listen(t)
	defer stop()
	down, closeDown := listen(t)
	closeDown()

	var buf bytes.Buffer
	err := runChecks(context.Background(), &buf, []config.Endpoint{up, down}, checker.NewTCPProber(2*time.Second))
	if err == nil {
		t.Fatal("expected error when an endpoint is down, got nil")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, up.String()) || !strings.Contains(output, down.String()) {
		t.Errorf("expected both endpoints in output, got:\n%s", output)
	}
	if !strings.Contains(output, "down") {
		t.Errorf("expected 'down' in output, got:\n%s", output)
	}
}

func TestRunChecks_PreservesOrder(t *testing.T) {
	eps := []config.Endpoint{
		{Host: "c", Port: 3},
		{Host: "a", Port: 1},
		{Host: "b", Port: 2},
	}
	prober := checker.ProberFunc(func(_ context.Context, ep config.Endpoint) checker.Result {
		return checker.Result{Endpoint: ep, Status: checker.StatusUp, CheckedAt: time.Now()}
	})

	var buf bytes.Buffer
	if err := runChecks(context.Background(), &buf, eps, prober); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got:\n%s", buf.String())
	}
	for i, ep := range eps {
		if !strings.HasPrefix(lines[i+1], ep.String()) {
			t.Errorf("row %d: expected %s first, got %q", i, ep, lines[i+1])
		}
	}
}
