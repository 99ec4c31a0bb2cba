package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// MockRenderer fakes a render by writing a placeholder artifact where the
// CLI renderer would have put one. Used when no manim binary is installed
// and by the pipeline tests, which script its failures.
type MockRenderer struct {
	mediaDir string

	// FailTimes makes the first N renders fail with a subprocess-style
	// error. Negative means fail forever.
	FailTimes int
	// OmitArtifact makes renders exit cleanly without producing output.
	OmitArtifact bool

	renders int
}

func NewMockRenderer(mediaDir string) *MockRenderer {
	if strings.TrimSpace(mediaDir) == "" {
		mediaDir = "media"
	}
	return &MockRenderer{mediaDir: mediaDir}
}

func (r *MockRenderer) Render(ctx context.Context, scriptPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.renders++
	if r.FailTimes < 0 || r.renders <= r.FailTimes {
		return errors.New("renderer failed: mock render error")
	}
	if r.OmitArtifact {
		return nil
	}

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	scene, err := SceneName(string(script))
	if err != nil {
		return fmt.Errorf("renderer failed: %w", err)
	}

	out := r.OutputPath(scriptPath, scene)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(out, []byte("mock video\n"), 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

func (r *MockRenderer) OutputPath(scriptPath, scene string) string {
	base := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	return filepath.Join(r.mediaDir, "videos", base, "480p15", scene+".mp4")
}

// NewRenderer picks the CLI renderer when the binary is present, otherwise
// the mock. Explicit modes skip the probe.
func NewRenderer(mode, binary, mediaDir string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		bin := strings.TrimSpace(binary)
		if bin == "" {
			bin = "manim"
		}
		if _, err := exec.LookPath(bin); err == nil {
			return NewCLIRenderer(bin, mediaDir), nil
		}
		return NewMockRenderer(mediaDir), nil
	case "cli":
		return NewCLIRenderer(binary, mediaDir), nil
	case "mock":
		return NewMockRenderer(mediaDir), nil
	default:
		return nil, fmt.Errorf("unsupported renderer mode %q", mode)
	}
}
