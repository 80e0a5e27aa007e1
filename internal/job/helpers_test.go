package job

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testInput struct {
	Prompt string `json:"prompt"`
}

type testResult struct {
	URL string `json:"url"`
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// seedJob stores a queued job and registers it with tracker.
func seedJob(t *testing.T, store *MockStore[testInput, testResult], tracker *Tracker, id string) {
	t.Helper()

	now := time.Now()
	_, err := store.AddJob(context.Background(), Job[testInput, testResult]{
		ID:        id,
		Namespace: DefaultNamespace,
		Type:      "image",
		Input:     testInput{Prompt: "x"},
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	tracker.Add(id)
}

func waitRuns(t *testing.T, c *Controller[testInput, testResult]) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx), "job runs did not finish in time")
}
