package ark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memelens/memelens/internal/domain/analysis"
	"github.com/memelens/memelens/internal/domain/meme"
)

const testModel = "doubao-seed-1-8-251228"

func completionBody(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", srv.URL, testModel, "分析这张图", 5*time.Second, nil)
}

func TestAnalyze_Success(t *testing.T) {
	var gotPath string
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, completionBody(`{"所代表情绪":"开心","使用场景":"聊天","设计灵感":"卡通"}`))
	})

	result, err := client.Analyze(context.Background(), meme.Record{
		Name: "a.jpg",
		URL:  "http://img.example.com/a.jpg",
	})

	require.NoError(t, err)
	assert.Equal(t, "开心", result.Emotion)
	assert.Equal(t, "聊天", result.UsageScenario)
	assert.Equal(t, "卡通", result.DesignInspiration)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestAnalyze_SendsURLAndPrompt(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, completionBody(`{"所代表情绪":"x","使用场景":"y","设计灵感":"z"}`))
	})

	_, err := client.Analyze(context.Background(), meme.Record{
		Name: "a.jpg",
		URL:  "http://img.example.com/a.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, testModel, body["model"])
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "http://img.example.com/a.jpg")
	assert.Contains(t, string(raw), "分析这张图")
}

func TestAnalyze_InlineDataBecomesDataURL(t *testing.T) {
	var raw []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		io.WriteString(w, completionBody(`{"所代表情绪":"x","使用场景":"y","设计灵感":"z"}`))
	})

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	_, err := client.Analyze(context.Background(), meme.Record{Name: "a.png", Data: png})
	require.NoError(t, err)

	assert.Contains(t, string(raw), "data:image/png;base64,")
}

func TestAnalyze_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   analysis.Kind
	}{
		{http.StatusUnauthorized, analysis.KindAuth},
		{http.StatusForbidden, analysis.KindAuth},
		{http.StatusTooManyRequests, analysis.KindRateLimited},
		{http.StatusInternalServerError, analysis.KindTransport},
		{http.StatusBadGateway, analysis.KindTransport},
		{http.StatusBadRequest, analysis.KindInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error":{"message":"nope","type":"test"}}`)
			})

			_, err := client.Analyze(context.Background(), meme.Record{Name: "a.jpg", URL: "http://x/a.jpg"})
			require.Error(t, err)

			var aerr *analysis.Error
			require.True(t, errors.As(err, &aerr))
			assert.Equal(t, tt.kind, aerr.Kind)
		})
	}
}

func TestAnalyze_UnparsableAnswer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, completionBody("这张图很有趣，但我不输出JSON"))
	})

	_, err := client.Analyze(context.Background(), meme.Record{Name: "a.jpg", URL: "http://x/a.jpg"})
	require.Error(t, err)

	var aerr *analysis.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, analysis.KindInvalidResponse, aerr.Kind)
	assert.True(t, analysis.IsRetryable(err))
}

func TestAnalyze_EmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	})

	_, err := client.Analyze(context.Background(), meme.Record{Name: "a.jpg", URL: "http://x/a.jpg"})
	require.Error(t, err)

	var aerr *analysis.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, analysis.KindInvalidResponse, aerr.Kind)
}

func TestAnalyze_NoImageContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty record")
	})

	_, err := client.Analyze(context.Background(), meme.Record{Name: "a.jpg"})
	require.Error(t, err)

	var aerr *analysis.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, analysis.KindInvalidRequest, aerr.Kind)
	assert.False(t, analysis.IsRetryable(err))
}

type fetcherFunc func(ctx context.Context, url string) (string, error)

func (f fetcherFunc) FetchDataURL(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

func TestAnalyze_FetcherFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected when the download fails")
	}))
	t.Cleanup(srv.Close)

	fetcher := fetcherFunc(func(ctx context.Context, url string) (string, error) {
		return "", errors.New("connection refused")
	})
	client := New("test-key", srv.URL, testModel, "p", time.Second, fetcher)

	_, err := client.Analyze(context.Background(), meme.Record{Name: "a.jpg", URL: "http://x/a.jpg"})
	require.Error(t, err)

	var aerr *analysis.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, analysis.KindTransport, aerr.Kind)
}

func TestAnalyze_FetcherResultSubmitted(t *testing.T) {
	var raw []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		io.WriteString(w, completionBody(`{"所代表情绪":"x","使用场景":"y","设计灵感":"z"}`))
	})
	client.fetcher = fetcherFunc(func(ctx context.Context, url string) (string, error) {
		assert.Equal(t, "http://x/a.jpg", url)
		return "data:image/jpeg;base64,AAAA", nil
	})

	_, err := client.Analyze(context.Background(), meme.Record{Name: "a.jpg", URL: "http://x/a.jpg"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "data:image/jpeg;base64,AAAA"))
}
