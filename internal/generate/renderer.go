package generate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Renderer turns a validated scene script into a video artifact. The
// subprocess blocks its calling goroutine; no shared lock may be held
// around Render.
type Renderer interface {
	Render(ctx context.Context, scriptPath string) error
	// OutputPath is where a successful render deposits the artifact,
	// derived from the script's filename and the declared scene name.
	OutputPath(scriptPath, scene string) string
}

// CLIRenderer shells out to the manim binary.
type CLIRenderer struct {
	binary   string
	mediaDir string
}

func NewCLIRenderer(binary, mediaDir string) *CLIRenderer {
	if strings.TrimSpace(binary) == "" {
		binary = "manim"
	}
	if strings.TrimSpace(mediaDir) == "" {
		mediaDir = "media"
	}
	return &CLIRenderer{binary: binary, mediaDir: mediaDir}
}

func (r *CLIRenderer) Render(ctx context.Context, scriptPath string) error {
	cmd := exec.CommandContext(ctx, r.binary, "-ql", "--media_dir", r.mediaDir, scriptPath)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// exec.CommandContext may surface "signal: killed" instead of
			// context cancellation.
			return ctx.Err()
		}
		errText := strings.TrimSpace(stderr.String())
		if errText == "" {
			errText = strings.TrimSpace(stdout.String())
		}
		if errText != "" {
			return fmt.Errorf("renderer failed: %w: %s", err, errText)
		}
		return fmt.Errorf("renderer failed: %w", err)
	}
	return nil
}

// OutputPath follows manim's low-quality layout:
// {media}/videos/{scriptBase}/480p15/{scene}.mp4.
func (r *CLIRenderer) OutputPath(scriptPath, scene string) string {
	base := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	return filepath.Join(r.mediaDir, "videos", base, "480p15", scene+".mp4")
}
