package generation

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGenerator is a Generator whose behavior is supplied per test.
type fakeGenerator struct {
	GenerateFn func(ctx context.Context, prompt string) (Result, error)

	mu      sync.Mutex
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (Result, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.GenerateFn(ctx, prompt)
}

func (f *fakeGenerator) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// progressLog collects progress reports.
type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) report(v int) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func (p *progressLog) Values() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}
