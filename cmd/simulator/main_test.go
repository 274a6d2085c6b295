package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/barge-simulator/internal/logging"
)

const singleDemandScenario = `
name: single-demand
terminals: [{id: A}, {id: B}, {id: C}, {id: D}]
connections:
  - {from: A, to: B, travel_time: 4, bidirectional: true}
  - {from: B, to: C, travel_time: 4, bidirectional: true}
  - {from: C, to: D, travel_time: 4, bidirectional: true}
  - {from: D, to: A, travel_time: 4, bidirectional: true}
services:
  - id: S1
    origin: A
    destination: D
    start_time: 0
    capacity: 100
    legs:
      - {from: A, to: B, duration: 4}
      - {from: B, to: C, duration: 4}
      - {from: C, to: D, duration: 4}
barges:
  - {id: b1, capacity: 100, position: A, service_id: S1}
demands:
  - {id: d1, origin: A, destination: D, volume: 10, availability_time: 0, due_date: 20}
`

func writeScenario(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestRunPrintsSummary(t *testing.T) {
	path := writeScenario(t, "scenario.yaml", singleDemandScenario)
	var out bytes.Buffer

	code := run(context.Background(), []string{"-scenario", path, "-until", "30", "-events"}, &out, logging.Noop())
	if code != 0 {
		t.Fatalf("exit code = %d, output:\n%s", code, out.String())
	}
	got := out.String()
	for _, want := range []string{
		"ended at t=30",
		"Demands: 1 completed (1 on time, 100%), 0 failed",
		"Total distance: 12",
		"unloading_complete",
		"d1",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunBundledScenario(t *testing.T) {
	var out bytes.Buffer
	code := run(context.Background(), []string{"-scenario", "../../configs/cycle_scenario.yaml", "-stats", "6"}, &out, logging.Noop())
	if code != 0 {
		t.Fatalf("exit code = %d, output:\n%s", code, out.String())
	}
	if !strings.Contains(out.String(), "Demands:") {
		t.Fatalf("missing summary:\n%s", out.String())
	}
}

func TestRunFailures(t *testing.T) {
	invalid := writeScenario(t, "bad.json", `{"terminals":[{"id":"A"}],"demands":[{"id":"d","origin":"A","destination":"Z","volume":1,"due_date":1}]}`)
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "unknown flag", args: []string{"-bogus"}, want: 2},
		{name: "empty scenario", args: []string{"-scenario", ""}, want: 2},
		{name: "missing file", args: []string{"-scenario", filepath.Join(t.TempDir(), "missing.yaml")}, want: 1},
		{name: "invalid scenario", args: []string{"-scenario", invalid}, want: 1},
		{name: "until in the past", args: []string{"-scenario", writeScenario(t, "ok.yaml", singleDemandScenario), "-until", "-1"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if code := run(context.Background(), tt.args, &out, logging.Noop()); code != tt.want {
				t.Fatalf("exit code = %d, want %d; output:\n%s", code, tt.want, out.String())
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	path := writeScenario(t, "scenario.yaml", singleDemandScenario)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if code := run(ctx, []string{"-scenario", path}, &out, logging.Noop()); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out.String(), "after 0 events") {
		t.Fatalf("expected an empty run summary:\n%s", out.String())
	}
}
