package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baton-ci/baton/pkg/types"
)

func testNotice() types.Notice {
	return types.Notice{
		Level:           types.NoticeCritical,
		OrchestrationID: "01JP3E1QZX7M2Q9T4R8V6W0YBD",
		Backend:         types.BackendGitHubActions,
		Workflow:        "deploy.yml",
		RunID:           "101",
		ReferenceURL:    "https://ci.example.com/runs/101",
		Message:         "workflow run failed",
		Timestamp:       time.Now(),
	}
}

func TestConsoleSink_Send(t *testing.T) {
	sink := NewConsoleSink()
	assert.Equal(t, "console", sink.Name())

	ctx := context.Background()
	for _, level := range []types.NoticeLevel{types.NoticeCritical, types.NoticeWarning, types.NoticeInfo} {
		n := testNotice()
		n.Level = level
		err := sink.Send(ctx, n)
		assert.NoError(t, err)
	}
}

func TestWebhookSink_Send_Success(t *testing.T) {
	var received []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		received = buf[:n]
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	notice := testNotice()

	err := sink.Send(context.Background(), notice)
	require.NoError(t, err)

	var got types.Notice
	require.NoError(t, json.Unmarshal(received, &got))
	assert.Equal(t, notice.Message, got.Message)
	assert.Equal(t, notice.OrchestrationID, got.OrchestrationID)
	assert.Equal(t, notice.ReferenceURL, got.ReferenceURL)
}

func TestWebhookSink_Send_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)

	err := sink.Send(context.Background(), testNotice())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestFileSink_Send(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "notice-*.jsonl")
	require.NoError(t, err)
	_ = f.Close()

	sink, err := NewFileSink(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "file", sink.Name())

	notice := testNotice()
	require.NoError(t, sink.Send(context.Background(), notice))

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)

	lines := strings.TrimSpace(string(data))
	var got types.Notice
	require.NoError(t, json.Unmarshal([]byte(lines), &got))
	assert.Equal(t, notice.Message, got.Message)
}

// errSink is a test sink that always returns an error.
type errSink struct{}

func (s *errSink) Send(_ context.Context, _ types.Notice) error { return fmt.Errorf("sink error") }
func (s *errSink) Name() string                                 { return "error-sink" }

// recordSink records all notices sent to it.
type recordSink struct {
	notices []types.Notice
}

func (s *recordSink) Send(_ context.Context, n types.Notice) error {
	s.notices = append(s.notices, n)
	return nil
}
func (s *recordSink) Name() string { return "record-sink" }

func TestDispatcher_MultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	d := &Dispatcher{entries: []entry{{sink: s1}, {sink: s2}}, logger: slog.Default()}

	notice := testNotice()
	d.Dispatch(context.Background(), notice)

	assert.Len(t, s1.notices, 1)
	assert.Len(t, s2.notices, 1)
	assert.Equal(t, notice.Message, s1.notices[0].Message)
}

func TestDispatcher_SinkError_ContinuesOthers(t *testing.T) {
	failing := &errSink{}
	recording := &recordSink{}
	d := &Dispatcher{
		entries: []entry{{sink: failing}, {sink: recording}},
		logger:  slog.Default(),
	}

	d.Dispatch(context.Background(), testNotice())

	// Even though first sink failed, second should have received the notice
	assert.Len(t, recording.notices, 1)
}

func TestDispatcher_MinLevelFilters(t *testing.T) {
	critOnly := &recordSink{}
	all := &recordSink{}
	d := &Dispatcher{
		entries: []entry{
			{sink: critOnly, min: types.NoticeCritical},
			{sink: all},
		},
		logger: slog.Default(),
	}

	info := testNotice()
	info.Level = types.NoticeInfo
	d.Dispatch(context.Background(), info)

	crit := testNotice()
	d.Dispatch(context.Background(), crit)

	assert.Len(t, critOnly.notices, 1)
	assert.Equal(t, types.NoticeCritical, critOnly.notices[0].Level)
	assert.Len(t, all.notices, 2)
}

func TestNewDispatcher_UnknownSinkType(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: "pager"}}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sink type")
}

func TestNewDispatcher_WebhookRequiresURL(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: types.SinkWebhook}}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "webhook URL required")
}
