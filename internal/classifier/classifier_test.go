package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticKey string

func (k staticKey) Credential() string { return string(k) }

type countingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *countingReporter) ClassifyFailed(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *countingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

const longPost = "Agree? 👇 Comment below! Nobody talks about this, but the best leaders always listen first."

func replyWith(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestClassifyWithoutCredentialNeverCalls(t *testing.T) {
	srv, hits := newServer(t, http.StatusOK, replyWith("SLOP"))
	c := New(staticKey(""), Options{Endpoint: srv.URL}, zaptest.NewLogger(t))

	assert.Equal(t, NotFlagged, c.Classify(context.Background(), longPost))
	assert.Zero(t, hits.Load())
}

func TestClassifyShortTextNeverCalls(t *testing.T) {
	srv, hits := newServer(t, http.StatusOK, replyWith("SLOP"))
	c := New(staticKey("sk-test"), Options{Endpoint: srv.URL}, zaptest.NewLogger(t))

	short := strings.Repeat("x", MinTextLength-1)
	assert.Equal(t, NotFlagged, c.Classify(context.Background(), short))
	assert.Zero(t, hits.Load())

	// the gate counts characters, not bytes
	assert.True(t, TooShort(strings.Repeat("é", MinTextLength-1)))
	assert.False(t, TooShort(strings.Repeat("x", MinTextLength)))
}

func TestClassifyLenientLabel(t *testing.T) {
	tests := []struct {
		reply string
		want  Verdict
	}{
		{"SLOP", Flagged},
		{"slop.", Flagged},
		{"  Slop  ", Flagged},
		{"GENUINE", NotFlagged},
		{"", NotFlagged},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.reply), func(t *testing.T) {
			srv, hits := newServer(t, http.StatusOK, replyWith(tt.reply))
			c := New(staticKey("sk-test"), Options{Endpoint: srv.URL}, zaptest.NewLogger(t))

			assert.Equal(t, tt.want, c.Classify(context.Background(), longPost))
			assert.EqualValues(t, 1, hits.Load())
		})
	}
}

func TestClassifyFailOpen(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, replyWith("SLOP")},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`},
		{"malformed body", http.StatusOK, `{"choices": [`},
		{"empty choices", http.StatusOK, `{"choices": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := newServer(t, tt.status, tt.body)
			rep := &countingReporter{}
			c := New(staticKey("sk-test"), Options{Endpoint: srv.URL, Reporter: rep}, zaptest.NewLogger(t))

			assert.Equal(t, NotFlagged, c.Classify(context.Background(), longPost))
			// never retried
			assert.EqualValues(t, 1, hits.Load())
			assert.Equal(t, 1, rep.count())
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	rep := &countingReporter{}
	c := New(staticKey("sk-test"), Options{Endpoint: endpoint, Reporter: rep}, zaptest.NewLogger(t))
	assert.Equal(t, NotFlagged, c.Classify(context.Background(), longPost))
	assert.Equal(t, 1, rep.count())
}

func TestClassifyRequestShape(t *testing.T) {
	var got chatRequest
	var auth, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, replyWith("GENUINE"))
	}))
	defer srv.Close()

	c := New(staticKey("sk-secret"), Options{Endpoint: srv.URL, Temperature: -1}, zaptest.NewLogger(t))
	c.Classify(context.Background(), longPost)

	assert.Equal(t, "Bearer sk-secret", auth)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	assert.InDelta(t, DefaultTemperature, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, `Respond with only "SLOP" or "GENUINE".`)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, longPost, got.Messages[1].Content)
}

func TestClassifyZeroTemperature(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, replyWith("GENUINE"))
	}))
	defer srv.Close()

	c := New(staticKey("sk-test"), Options{Endpoint: srv.URL, Temperature: 0}, zaptest.NewLogger(t))
	c.Classify(context.Background(), longPost)

	require.Contains(t, got, "temperature")
	assert.EqualValues(t, 0, got["temperature"])
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "slop", Flagged.String())
	assert.Equal(t, "genuine", NotFlagged.String())
}
