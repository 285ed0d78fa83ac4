package main

import (
	"armos/kernel/mm"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "machine.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMachineDefaults(t *testing.T) {
	m, err := loadMachine("")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(defaultMachine(), m); diff != "" {
		t.Fatalf("unexpected machine (-want +got):\n%s", diff)
	}
	if l := m.Layout(); l.MemorySize != 256*mm.Mb || l.ConsoleAddr != 0x101f1000 {
		t.Fatalf("expected the Versatile/PB layout; got %+v", l)
	}
}

func TestLoadMachineOverlay(t *testing.T) {
	path := writeConfig(t, `
memory_mb = 64
cmdline = "console=ttyAMA0 mmcheck=1"
`)

	m, err := loadMachine(path)
	if err != nil {
		t.Fatal(err)
	}

	exp := defaultMachine()
	exp.MemoryMB = 64
	exp.CmdLine = "console=ttyAMA0 mmcheck=1"
	if diff := cmp.Diff(exp, m); diff != "" {
		t.Fatalf("unexpected machine (-want +got):\n%s", diff)
	}
}

func TestLoadMachineErrors(t *testing.T) {
	specs := []struct {
		contents string
		expErr   string
	}{
		{"memory_mb = 64\nflux_capacitor = 1\n", "unknown keys: flux_capacitor"},
		{"memory_mb = \"lots\"\n", "decoding"},
		{"directory_addr = 0x100400\n", "directory must be 16K aligned"},
	}

	for specIndex, spec := range specs {
		_, err := loadMachine(writeConfig(t, spec.contents))
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Errorf("[spec %d] expected error containing %q; got %v", specIndex, spec.expErr, err)
		}
	}

	if _, err := loadMachine(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
