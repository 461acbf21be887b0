package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryBlobClient is an in-memory BlobClient for tests.
type memoryBlobClient struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemoryBlobClient() *memoryBlobClient {
	return &memoryBlobClient{blobs: make(map[string][]byte)}
}

func (m *memoryBlobClient) Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[blobPath] = append([]byte(nil), data...)
	return "memory://" + blobPath, nil
}

func (m *memoryBlobClient) Download(ctx context.Context, blobPath string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[blobPath]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", blobPath)
	}
	return append([]byte(nil), data...), nil
}

func TestNewRunReport_Outcomes(t *testing.T) {
	started := time.Now().Add(-50 * time.Millisecond)

	completed := NewRunReport("run-1", "s/c", 10, 4, started, nil)
	assert.Equal(t, "completed", completed.Outcome)
	assert.Empty(t, completed.Fault)
	assert.GreaterOrEqual(t, completed.DurationMs, int64(50))

	cancelled := NewRunReport("run-2", "s/c", 10, 4, started, context.Canceled)
	assert.Equal(t, "cancelled", cancelled.Outcome)
	assert.Empty(t, cancelled.Fault)

	faulted := NewRunReport("run-3", "s/c", 10, 4, started, errors.New("boom"))
	assert.Equal(t, "faulted", faulted.Outcome)
	assert.Equal(t, "boom", faulted.Fault)
}

func TestReportWriter_AppendAndLoad(t *testing.T) {
	writer := NewReportWriter(newMemoryBlobClient(), nil)
	started := time.Now()

	url, err := writer.Append(context.Background(),
		NewRunReport("run-1", "orders/main", 5, 2, started, nil))
	require.NoError(t, err)
	assert.Contains(t, url, ReportPath("orders/main"))

	_, err = writer.Append(context.Background(),
		NewRunReport("run-2", "orders/main", 8, 0, started, errors.New("boom")))
	require.NoError(t, err)

	file, err := writer.Load(context.Background(), "orders/main")
	require.NoError(t, err)
	require.Len(t, file, 2)
	assert.Equal(t, "completed", file["run-1"].Outcome)
	assert.Equal(t, "faulted", file["run-2"].Outcome)
	assert.Equal(t, 8, file["run-2"].Items)
}

func TestReportWriter_AppendOverwritesSameRun(t *testing.T) {
	writer := NewReportWriter(newMemoryBlobClient(), nil)
	started := time.Now()

	_, err := writer.Append(context.Background(),
		NewRunReport("run-1", "", 1, 1, started, errors.New("first try")))
	require.NoError(t, err)

	_, err = writer.Append(context.Background(),
		NewRunReport("run-1", "", 1, 1, started, nil))
	require.NoError(t, err)

	file, err := writer.Load(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, file, 1)
	assert.Equal(t, "completed", file["run-1"].Outcome)
}

func TestReportWriter_RequiresRunID(t *testing.T) {
	writer := NewReportWriter(newMemoryBlobClient(), nil)

	_, err := writer.Append(context.Background(), &RunReport{})
	require.Error(t, err)

	_, err = writer.Append(context.Background(), nil)
	require.Error(t, err)
}
