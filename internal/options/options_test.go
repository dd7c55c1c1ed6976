package options

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opts.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	opts, err := Load(writeFile(t, "processing:\n  mode: 3\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Processing.Mode != ModeStatic {
		t.Errorf("mode = %d, want 3", opts.Processing.Mode)
	}
	if opts.Processing.ElevationMaskDeg != 15 {
		t.Errorf("elevation mask = %v, want 15", opts.Processing.ElevationMaskDeg)
	}
	if opts.Processing.NavSys != SysGPS|SysGLO {
		t.Errorf("navsys = %#x, want GPS|GLO", opts.Processing.NavSys)
	}
	if opts.Solution.TimeDecimals != 3 {
		t.Errorf("time decimals = %d, want 3", opts.Solution.TimeDecimals)
	}
}

func TestLoad_FullFile(t *testing.T) {
	body := `
processing:
  mode: 6
  systems: "G,E,C"
  elevation_mask_deg: 10
  frequencies: 3
  ar_threshold: 2.5
  ref_pos:
    kind: llh
    position: [35.0, 139.0, 40.0]
solution:
  pos_format: xyz
  time_system: utc
file:
  trace: run.trace
`
	opts, err := Load(writeFile(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Processing.NavSys != SysGPS|SysGAL|SysBDS {
		t.Errorf("navsys = %#x", opts.Processing.NavSys)
	}
	if opts.Processing.RefPos.Position[1] != 139.0 {
		t.Errorf("ref pos = %v", opts.Processing.RefPos.Position)
	}
	if opts.Solution.PosFormat != "xyz" || opts.File.Trace != "run.trace" {
		t.Errorf("unexpected solution/file options %+v %+v", opts.Solution, opts.File)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"mode":        "processing:\n  mode: 9\n",
		"frequencies": "processing:\n  frequencies: 4\n",
		"systems":     "processing:\n  systems: \"G,X\"\n",
		"pos_format":  "solution:\n  pos_format: kml\n",
		"yaml":        "processing: [",
	}
	for name, body := range cases {
		if _, err := Load(writeFile(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseSystems(t *testing.T) {
	mask, err := ParseSystems("G,R")
	if err != nil {
		t.Fatalf("ParseSystems: %v", err)
	}
	// each letter sets only its own system
	if mask != SysGPS|SysGLO {
		t.Errorf("mask = %#x, want %#x", mask, SysGPS|SysGLO)
	}
	mask, _ = ParseSystems("GREJ")
	if mask != SysGPS|SysGLO|SysGAL|SysQZS {
		t.Errorf("mask = %#x", mask)
	}
	if _, err := ParseSystems("G,Z"); err == nil || !strings.Contains(err.Error(), "Z") {
		t.Errorf("expected error naming Z, got %v", err)
	}
}

func TestSystemOf(t *testing.T) {
	cases := map[string]NavSys{"G05": SysGPS, "R12": SysGLO, "E11": SysGAL, "C30": SysBDS, "X01": 0, "": 0}
	for id, want := range cases {
		if got := SystemOf(id); got != want {
			t.Errorf("SystemOf(%q) = %#x, want %#x", id, got, want)
		}
	}
}
