package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
	"github.com/qiuxuhao/pdf-merge-tool/internal/impose/imposetest"
)

func TestDefaultOutputName(t *testing.T) {
	now := time.Date(2024, 3, 9, 7, 5, 2, 0, time.Local)
	if got := defaultOutputName(now); got != "merged_2024_03_09_07_05_02.pdf" {
		t.Fatalf("defaultOutputName = %s", got)
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	content := "capacity = 6\norientation = \"landscape\"\noutput_dir = \"out\"\nworkers = 3\ncolour = \"red\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, unknown, err := loadFileConfig(path)
	if err != nil {
		t.Fatalf("loadFileConfig returned error: %v", err)
	}
	want := fileConfig{Capacity: 6, Orientation: "landscape", OutputDir: "out", Workers: 3}
	if cfg != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
	if len(unknown) != 1 || unknown[0] != "colour" {
		t.Fatalf("unexpected unknown keys: %v", unknown)
	}
}

func TestLoadFileConfigMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, _, err := loadFileConfig("")
	if err != nil || cfg != (fileConfig{}) {
		t.Fatalf("missing default config should be ignored: %+v %v", cfg, err)
	}
	if _, _, err := loadFileConfig("nope.toml"); err == nil {
		t.Fatal("explicit missing config should fail")
	}
}

func TestResolveSettings(t *testing.T) {
	three := 3
	tests := []struct {
		name    string
		flags   flagValues
		file    fileConfig
		want    settings
		wantErr bool
	}{
		{
			name: "defaults",
			want: settings{capacity: 4, orientation: impose.Portrait},
		},
		{
			name: "file",
			file: fileConfig{Capacity: 8, Orientation: "landscape", OutputDir: "out"},
			want: settings{capacity: 8, orientation: impose.Landscape, outputDir: "out"},
		},
		{
			name:  "flags win",
			flags: flagValues{capacity: &three, orientation: "portrait", workers: &three},
			file:  fileConfig{Capacity: 8, Orientation: "landscape", Workers: 1},
			want:  settings{capacity: 3, orientation: impose.Portrait, workers: 3},
		},
		{
			name:    "bad orientation",
			file:    fileConfig{Orientation: "sideways"},
			wantErr: true,
		},
		{
			name:    "zero capacity flag",
			flags:   flagValues{capacity: new(int)},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSettings(tt.flags, tt.file)
			if tt.wantErr {
				if !errors.Is(err, impose.ErrInvalidRequest) {
					t.Fatalf("expected ErrInvalidRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveSettings returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	if w, h, err := parseSize("595x842"); err != nil || w != 595 || h != 842 {
		t.Fatalf("parseSize = %g %g %v", w, h, err)
	}
	for _, raw := range []string{"", "abc", "0x10", "-1x5"} {
		if _, _, err := parseSize(raw); err == nil {
			t.Fatalf("parseSize(%q) should fail", raw)
		}
	}
}

func testBackend(b *imposetest.Backend) BackendFactory {
	return func(string) impose.Backend { return b }
}

func runRoot(t *testing.T, backend BackendFactory, args ...string) (string, string, error) {
	t.Helper()
	var stdout, logs bytes.Buffer
	root := NewRootCommand(&logs, backend)
	root.SetOut(&stdout)
	root.SetErr(&logs)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), logs.String(), err
}

func TestImposeCommand(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for i, data := range [][]byte{
		imposetest.Doc(595, 842),
		[]byte("broken"),
		imposetest.Doc(842, 595),
		imposetest.Doc(400, 400),
	} {
		p := filepath.Join(dir, "in"+string(rune('a'+i))+".pdf")
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatalf("failed to write input: %v", err)
		}
		inputs = append(inputs, p)
	}
	output := filepath.Join(dir, "out", "result.pdf")

	backend := &imposetest.Backend{}
	args := append([]string{"impose", "-n", "2", "-O", "landscape", "-o", output, "--config", filepath.Join(dir, "missing.toml")}, inputs...)
	if _, _, err := runRoot(t, testBackend(backend), args...); err == nil {
		t.Fatal("explicit missing config should fail")
	}

	args = append([]string{"impose", "-n", "2", "-O", "landscape", "-o", output}, inputs...)
	t.Chdir(dir)
	stdout, logs, err := runRoot(t, testBackend(backend), args...)
	if err != nil {
		t.Fatalf("impose failed: %v\n%s", err, logs)
	}
	if strings.TrimSpace(stdout) != output {
		t.Fatalf("stdout = %q, want output path", stdout)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if got := len(backend.LastOutput().Pages()); got != 2 {
		t.Fatalf("pages = %d, want 2", got)
	}
	if !strings.Contains(logs, "skipped") {
		t.Fatalf("expected a skip warning in logs:\n%s", logs)
	}
}

func TestImposeCommandAllInvalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.pdf")
	if err := os.WriteFile(p, []byte("broken"), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	t.Chdir(dir)

	_, _, err := runRoot(t, testBackend(&imposetest.Backend{}), "impose", p)
	if !errors.Is(err, impose.ErrNoValidSources) {
		t.Fatalf("expected ErrNoValidSources, got %v", err)
	}
}

func TestPlanCommand(t *testing.T) {
	stdout, _, err := runRoot(t, nil, "plan", "-n", "7", "-O", "portrait")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if !strings.Contains(stdout, "3 columns x 3 rows") {
		t.Fatalf("unexpected plan output:\n%s", stdout)
	}
	// header + 7 slot rows
	lines := strings.Split(strings.TrimSpace(stdout[strings.Index(stdout, "SLOT"):]), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected 8 table lines, got %d:\n%s", len(lines), stdout)
	}
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pdf")
	if err := os.WriteFile(good, []byte(imposetest.Header+"612x792x3"), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	stdout, _, err := runRoot(t, testBackend(&imposetest.Backend{}), "inspect", good, filepath.Join(dir, "missing.pdf"))
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !strings.Contains(stdout, "good.pdf") || !strings.Contains(stdout, "612.00") || !strings.Contains(stdout, "792.00") {
		t.Fatalf("unexpected inspect output:\n%s", stdout)
	}
}

func TestEngineLoggerForcesWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, log.WarnLevel)
	engineLogger(logger).Printf("skip source %d", 1)
	if !strings.Contains(buf.String(), "skip source 1") {
		t.Fatalf("engine message should pass a warn-level logger: %q", buf.String())
	}
}
