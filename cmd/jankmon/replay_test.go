package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

const testLog = `{"thread":"ui","queue_ms":0,"start_ms":0,"finish_ms":350}
{"thread":"io","queue_ms":1000,"start_ms":1200,"finish_ms":1250}
{"thread":"ui","queue_ms":30100,"start_ms":30100,"finish_ms":30100}
`

func runCLI(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("jankmon %v failed: %v", args, err)
	}
	return out.String()
}

func decodeSamples(t *testing.T, out string) []printedSample {
	t.Helper()
	var samples []printedSample
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var s printedSample
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			t.Fatalf("Unmarshal(%q) failed: %v", line, err)
		}
		samples = append(samples, s)
	}
	return samples
}

func TestReplay_File(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "completions.jsonl")
	tracePath := filepath.Join(dir, "trace.json")
	if err := os.WriteFile(logPath, []byte(testLog), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	out := runCLI(t, "", "replay", "--trace", tracePath, logPath)

	want := []printedSample{
		{Window: 0, JankType: "execution", JankySlices: 3},
		{Window: 0, JankType: "queue_and_execution", JankySlices: 5},
	}
	if diff := cmp.Diff(want, decodeSamples(t, out)); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}

	trace, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("trace not written: %v", err)
	}
	if !bytes.Contains(trace, []byte("Large IO Jank")) {
		t.Fatalf("trace has no IO jank: %s", trace)
	}
}

func TestReplay_Stdin(t *testing.T) {
	out := runCLI(t, testLog, "replay")
	if got := len(decodeSamples(t, out)); got != 2 {
		t.Fatalf("samples = %d, want 2", got)
	}
}

func TestReplay_InvalidLog(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(`{"thread":"gpu","finish_ms":1}`))
	cmd.SetArgs([]string{"replay"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("replay of invalid log succeeded")
	}
}
