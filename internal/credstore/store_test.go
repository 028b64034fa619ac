package credstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type recorder struct {
	mu     sync.Mutex
	values []string
}

func (r *recorder) add(v string) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func TestGetSetClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "slopwatch.db")
	s := openStore(t, path)
	assert.Equal(t, path, s.Path())

	_, ok, err := s.Get()
	require.NoError(t, err)
	assert.False(t, ok)

	var rec recorder
	s.OnChange(rec.add)

	require.NoError(t, s.Set("sk-first"))
	v, ok, err := s.Get()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-first", v)

	// same value is not a change
	require.NoError(t, s.Set("sk-first"))
	require.NoError(t, s.Set("sk-second"))
	require.NoError(t, s.Clear())

	_, ok, err = s.Get()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"sk-first", "sk-second", ""}, rec.snapshot())
}

func TestWatchSeesOtherWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slopwatch.db")
	reader := openStore(t, path)
	writer := openStore(t, path)

	var rec recorder
	reader.OnChange(rec.add)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reader.Watch(ctx, 50*time.Millisecond) }()

	require.NoError(t, writer.Set("sk-from-elsewhere"))

	require.Eventually(t, func() bool {
		vals := rec.snapshot()
		return len(vals) > 0 && vals[len(vals)-1] == "sk-from-elsewhere"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want error
	}{
		{"valid", "sk-abc123", nil},
		{"valid with spaces", "  sk-abc123  ", nil},
		{"empty", "", ErrEmptyKey},
		{"blank", "   ", ErrEmptyKey},
		{"wrong prefix", "pk-abc123", ErrKeyFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateKey(tt.key), tt.want)
		})
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "sk-proj...wxyz", Mask("sk-proj-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "*****", Mask("sk-ab"))
}
