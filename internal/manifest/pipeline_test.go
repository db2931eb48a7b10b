package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nerrad567/device-orchestra/internal/pipeline"
)

func TestParsePipeline_Forms(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		data     string
		wantName string
	}{
		{
			name:   "bare list",
			format: FormatYAML,
			data: `
- step: snap
  device: fake_cam
  action: capture
  save_to: snap.json
- step: pause
  action: wait
  args: {seconds: 0.1}
`,
		},
		{
			name:     "named object",
			format:   FormatJSON,
			wantName: "inspection",
			data: `{"name": "inspection", "steps": [
				{"step": "snap", "device": "fake_cam", "action": "capture", "save_to": "snap.json"},
				{"step": "pause", "action": "wait", "args": {"seconds": 0.1}}
			]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePipeline([]byte(tt.data), tt.format)
			if err != nil {
				t.Fatalf("ParsePipeline() error = %v", err)
			}
			if p.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", p.Name, tt.wantName)
			}
			if len(p.Steps) != 2 {
				t.Fatalf("steps = %d, want 2", len(p.Steps))
			}
			snap := p.Steps[0]
			if snap.Step != "snap" || snap.Device != "fake_cam" || snap.Action != "capture" || snap.SaveTo != "snap.json" {
				t.Errorf("step 0 = %+v", snap)
			}
			pause := p.Steps[1]
			if !pause.IsBuiltin() || pause.Action != pipeline.ActionWait {
				t.Errorf("step 1 = %+v, want builtin wait", pause)
			}
			if secs, _ := pause.Args.Float("seconds", 0); secs != 0.1 {
				t.Errorf("seconds = %v, want 0.1", secs)
			}
		})
	}
}

func TestParsePipeline_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing action", "- step: a\n  device: d\n"},
		{"missing step", "- device: d\n  action: ping\n"},
		{"args not object", "- step: a\n  device: d\n  action: ping\n  args: [1]\n"},
		{"steps not list", "name: x\nsteps: 3\n"},
		{"unknown top-level key", "name: x\nsteps: []\nretries: 3\n"},
		{"scalar", "hello\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePipeline([]byte(tt.data), FormatYAML); !errors.Is(err, ErrInvalidManifest) {
				t.Errorf("error = %v, want ErrInvalidManifest", err)
			}
		})
	}
}

func TestParsePipeline_Empty(t *testing.T) {
	p, err := ParsePipeline([]byte("[]"), FormatJSON)
	if err != nil {
		t.Fatalf("ParsePipeline() error = %v", err)
	}
	if p.Steps == nil || len(p.Steps) != 0 {
		t.Errorf("Steps = %#v, want empty slice", p.Steps)
	}
}

func TestLoadPipeline_NamesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warmup.yaml")
	if err := os.WriteFile(path, []byte("- step: ping\n  device: d\n  action: ping\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPipeline(path)
	if err != nil {
		t.Fatalf("LoadPipeline() error = %v", err)
	}
	if p.Name != "warmup" {
		t.Errorf("Name = %q, want warmup", p.Name)
	}
}
