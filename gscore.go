// Package sgscore is the top-level facade over the compiler and
// synthesis engine: Compile turns script text into a program.Program,
// and a Renderer drives one to completion against a file or device
// sink. The functional-options shape mirrors the teacher's
// PlayerOption/playerConfig pattern in player.go.
package sgscore

import (
	"context"
	"fmt"
	"os"

	"github.com/saugns/sgscore-go/internal/audiosink"
	"github.com/saugns/sgscore-go/internal/lower"
	"github.com/saugns/sgscore-go/internal/parser"
	"github.com/saugns/sgscore-go/internal/program"
	"github.com/saugns/sgscore-go/internal/source"
	"github.com/saugns/sgscore-go/internal/synth"
	"github.com/saugns/sgscore-go/internal/wavsink"
)

// Diagnostic is a non-fatal warning collected while scanning or
// parsing a script (§7 "Warnings are advisory").
type Diagnostic = parser.Diagnostic

// Sink receives rendered audio; wavsink.Sink and audiosink.Sink both
// satisfy it.
type Sink = synth.Sink

// Compile parses and lowers script text into a program ready to
// render. Diagnostics are returned alongside a non-nil program even
// when some constructs were discarded; err is non-nil only for a
// fatal source-level failure.
func Compile(name, text string) (*program.Program, []Diagnostic, error) {
	src := source.NewFromString(name, text)
	tree, diags, err := parser.Parse(src)
	if err != nil {
		return nil, diags, fmt.Errorf("sgscore: parsing %s: %w", name, err)
	}
	return lower.Lower(tree, name), diags, nil
}

// CompileFile reads and compiles a script from path.
func CompileFile(path string) (*program.Program, []Diagnostic, error) {
	src, err := source.NewFromFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("sgscore: reading %s: %w", path, err)
	}
	tree, diags, err := parser.Parse(src)
	if err != nil {
		return nil, diags, fmt.Errorf("sgscore: parsing %s: %w", path, err)
	}
	return lower.Lower(tree, path), diags, nil
}

// RendererOption configures a Renderer.
type RendererOption func(*rendererConfig)

type rendererConfig struct {
	sampleRate int
}

func defaultRendererConfig() rendererConfig {
	return rendererConfig{sampleRate: 44100}
}

// WithSampleRate sets the preferred output sample rate; a sink is
// free to report back a different rate it actually used.
func WithSampleRate(hz int) RendererOption {
	return func(cfg *rendererConfig) {
		cfg.sampleRate = hz
	}
}

// Renderer drives a program.Program to completion against a Sink.
type Renderer struct {
	sampleRate int
}

// NewRenderer builds a Renderer; default sample rate is 44100 Hz.
func NewRenderer(opts ...RendererOption) *Renderer {
	cfg := defaultRendererConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Renderer{sampleRate: cfg.sampleRate}
}

// RenderToSink drives prog against sink until finished, cancelled, or
// a fatal sink error occurs (§5).
func (r *Renderer) RenderToSink(ctx context.Context, prog *program.Program, sink Sink) error {
	e := synth.New(r.sampleRate)
	return e.Run(ctx, prog, sink)
}

// RenderToWAVFile renders prog to a new WAV file at path (§6 "WAV
// file layout").
func (r *Renderer) RenderToWAVFile(ctx context.Context, prog *program.Program, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sgscore: creating %s: %w", path, err)
	}
	if err := r.RenderToSink(ctx, prog, wavsink.New(f)); err != nil {
		f.Close()
		return err
	}
	return nil
}

// RenderToDevice renders prog to the platform audio device (§6
// "Audio device").
func (r *Renderer) RenderToDevice(ctx context.Context, prog *program.Program) error {
	return r.RenderToSink(ctx, prog, audiosink.New())
}
