package generate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/antoniostano/scenegen/internal/chat"
	"github.com/antoniostano/scenegen/internal/observability"
	"github.com/antoniostano/scenegen/internal/prompt"
	"github.com/antoniostano/scenegen/internal/reliability"
)

// DefaultMaxAttempts is the attempt ceiling, inclusive of the first try.
const DefaultMaxAttempts = 3

// Result is the structured outcome of one generation request. Exhaustion
// is a result, not an error: the caller still gets the last script, the
// best-known scene name and the final failure.
type Result struct {
	Script    string `json:"script"`
	Scene     string `json:"scene"`
	VideoPath string `json:"video_path,omitempty"`
	Attempts  int    `json:"attempts"`
	Success   bool   `json:"success"`
	Err       error  `json:"-"`
}

// FinalError is the reportable failure text after exhaustion.
func (r Result) FinalError() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Progress receives pipeline stage events, mainly for the websocket
// stream. Detail is stage-specific (scene name, error text).
type Progress func(stage string, attempt int, detail string)

// Pipeline stages reported to Progress.
const (
	StageGenerate  = "generate"
	StageValidate  = "validate"
	StageRender    = "render"
	StageFixing    = "fixing"
	StageSuccess   = "success"
	StageExhausted = "exhausted"
)

// PipelineConfig controls the generation state machine.
type PipelineConfig struct {
	MaxAttempts int
	ScriptsDir  string
	VideosDir   string
	// BackoffBase of zero disables the inter-attempt delay.
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Pipeline drives one prompt through generate → validate → render, with a
// bounded model-assisted correction loop around every failure.
type Pipeline struct {
	gen     Generator
	rend    Renderer
	cfg     PipelineConfig
	metrics *observability.Metrics
	log     *slog.Logger
}

func NewPipeline(gen Generator, rend Renderer, cfg PipelineConfig, metrics *observability.Metrics, log *slog.Logger) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.VideosDir == "" {
		cfg.VideosDir = filepath.Join("static", "videos")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{gen: gen, rend: rend, cfg: cfg, metrics: metrics, log: log}
}

// Run executes the state machine for one request. History is the
// session's recent turns; concept is the new prompt. The returned error is
// non-nil only for aborts (context cancellation); attempt failures are
// absorbed by the fix loop and, after the ceiling, surfaced inside Result.
func (p *Pipeline) Run(ctx context.Context, history []chat.Turn, concept string, onProgress Progress) (Result, error) {
	if p.metrics != nil {
		p.metrics.ActiveGenerations.Inc()
		defer p.metrics.ActiveGenerations.Dec()
	}

	notify := func(stage string, attempt int, detail string) {
		if onProgress != nil {
			onProgress(stage, attempt, detail)
		}
	}

	res := Result{Scene: "unknown"}
	msgs := p.firstAttemptContext(history, concept)

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		attemptErr := p.runAttempt(ctx, msgs, attempt, &res, notify)
		if attemptErr == nil {
			notify(StageSuccess, attempt, res.Scene)
			p.observeResult("success", attempt)
			res.Success = true
			res.Err = nil
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !reliability.IsFixable(attemptErr) {
			return res, attemptErr
		}

		res.Err = attemptErr
		if attempt == p.cfg.MaxAttempts {
			break
		}

		p.log.Warn("generation attempt failed",
			"attempt", attempt, "scene", res.Scene, "error", attemptErr)
		notify(StageFixing, attempt, attemptErr.Error())

		code := res.Script
		if code == "" {
			code = "(no script produced)"
		}
		msgs = []Message{
			{Role: RoleSystem, Content: prompt.System()},
			{Role: RoleUser, Content: prompt.Correction(code, attemptErr.Error(), attempt)},
		}

		if err := p.backoff(ctx, attempt); err != nil {
			return res, err
		}
	}

	notify(StageExhausted, res.Attempts, res.FinalError())
	p.observeResult("exhausted", res.Attempts)
	res.Success = false
	return res, nil
}

func (p *Pipeline) runAttempt(ctx context.Context, msgs []Message, attempt int, res *Result, notify Progress) error {
	notify(StageGenerate, attempt, "")
	raw, err := p.gen.Generate(ctx, msgs)
	if err != nil {
		return err
	}
	if raw == "" {
		return chat.ErrEmptyResponse
	}

	notify(StageValidate, attempt, "")
	script := ExtractScript(raw)
	res.Script = script

	scene, err := SceneName(script)
	if err != nil {
		p.observeRenderFailure("validation")
		return err
	}
	res.Scene = scene

	// Attempt-qualified filename so repeated attempts of the same scene
	// never collide.
	scriptPath := filepath.Join(p.cfg.ScriptsDir, fmt.Sprintf("%s_attempt%d.py", scene, attempt))
	if err := os.MkdirAll(p.cfg.ScriptsDir, 0o755); err != nil {
		return fmt.Errorf("create scripts dir: %w", err)
	}
	if err := os.WriteFile(scriptPath, []byte(script+"\n"), 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}

	notify(StageRender, attempt, scene)
	if err := p.rend.Render(ctx, scriptPath); err != nil {
		p.observeRenderFailure("exec")
		return err
	}

	produced := p.rend.OutputPath(scriptPath, scene)
	if _, err := os.Stat(produced); err != nil {
		// A clean subprocess exit without the expected output is still a
		// failed render.
		p.observeRenderFailure("artifact_missing")
		return fmt.Errorf("%w: expected %s", chat.ErrArtifactNotFound, produced)
	}

	dest := filepath.Join(p.cfg.VideosDir, scene+".mp4")
	if err := os.MkdirAll(p.cfg.VideosDir, 0o755); err != nil {
		return fmt.Errorf("create videos dir: %w", err)
	}
	if err := os.Rename(produced, dest); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	res.VideoPath = dest
	return nil
}

func (p *Pipeline) firstAttemptContext(history []chat.Turn, concept string) []Message {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: prompt.System()})
	for _, turn := range history {
		msgs = append(msgs, FromTurn(turn))
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt.Request(concept)})
	return msgs
}

func (p *Pipeline) backoff(ctx context.Context, attempt int) error {
	if p.cfg.BackoffBase <= 0 {
		return nil
	}
	cap := p.cfg.BackoffCap
	if cap <= 0 {
		cap = 10 * time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(reliability.ExponentialBackoff(attempt, p.cfg.BackoffBase, cap)):
		return nil
	}
}

func (p *Pipeline) observeResult(result string, attempts int) {
	if p.metrics == nil {
		return
	}
	p.metrics.GenerationResults.WithLabelValues(result).Inc()
	p.metrics.GenerationAttempts.Observe(float64(attempts))
}

func (p *Pipeline) observeRenderFailure(kind string) {
	if p.metrics == nil {
		return
	}
	p.metrics.RenderFailures.WithLabelValues(kind).Inc()
}
