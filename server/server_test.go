package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quii/guardedcounter/config"
	"github.com/quii/guardedcounter/service"
	"github.com/quii/guardedcounter/sink"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	s := New(context.Background(), WithLogger(slog.New(slog.DiscardHandler)))
	t.Cleanup(s.Wait)

	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) runResponse {
	t.Helper()

	var out runResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))

	return out
}

func TestServer_CreateAndWait(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/runs", `{"wait": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode(t, rec)
	assert.Equal(t, StatusSucceeded, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, int64(config.DefaultWorkers), got.Summary.Final)
	assert.True(t, got.Summary.Trustworthy)
	assert.Equal(t, got.ID, got.Summary.ID)
	assert.Equal(t, "/runs/"+got.ID.String(), rec.Header().Get("Location"))

	t.Run("status", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/runs/"+got.ID.String(), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, StatusSucceeded, decode(t, rec).Status)
	})

	t.Run("html report", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/runs/"+got.ID.String()+"/report", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "<table>")
	})

	t.Run("markdown report", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/runs/"+got.ID.String()+"/report?format=markdown", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "| Final | 10 |")
	})

	t.Run("unknown report format", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/runs/"+got.ID.String()+"/report?format=pdf", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_CreateAsync(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/runs", `{"workers": 25, "initial": 5, "sample_interval": "5ms"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	created := decode(t, rec)
	assert.Equal(t, StatusRunning, created.Status)
	assert.Nil(t, created.Summary)
	assert.Equal(t, 1, s.runs.count())

	s.Wait()

	got := decode(t, do(t, s, http.MethodGet, "/runs/"+created.ID.String(), ""))
	assert.Equal(t, StatusSucceeded, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, int64(30), got.Summary.Final)
}

func TestServer_FailingRun(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/runs", `{"workers": 2, "fail": [1], "wait": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode(t, rec)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "injected failure in worker 1")
	require.NotNil(t, got.Summary)
	assert.False(t, got.Summary.Trustworthy)
	assert.Equal(t, int64(1), got.Summary.Final)
}

func TestServer_BadRequests(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		method string
		target string
		body   string
		want   int
	}{
		"malformed body":       {method: http.MethodPost, target: "/runs", body: `{`, want: http.StatusBadRequest},
		"negative workers":     {method: http.MethodPost, target: "/runs", body: `{"workers": -1}`, want: http.StatusBadRequest},
		"fail out of range":    {method: http.MethodPost, target: "/runs", body: `{"workers": 2, "fail": [3]}`, want: http.StatusBadRequest},
		"bad duration":         {method: http.MethodPost, target: "/runs", body: `{"timeout": "soon"}`, want: http.StatusBadRequest},
		"invalid id":           {method: http.MethodGet, target: "/runs/nope", want: http.StatusBadRequest},
		"unknown run":          {method: http.MethodGet, target: "/runs/" + uuid.NewString(), want: http.StatusNotFound},
		"unknown run report":   {method: http.MethodGet, target: "/runs/" + uuid.NewString() + "/report", want: http.StatusNotFound},
		"wrong method on runs": {method: http.MethodGet, target: "/runs", want: http.StatusMethodNotAllowed},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t)

			rec := do(t, s, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_ReportWhileRunning(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	rn := &run{
		id:          uuid.New(),
		broadcaster: sink.NewBroadcaster(),
		done:        make(chan struct{}),
	}
	s.runs.add(rn)

	rec := do(t, s, http.MethodGet, "/runs/"+rn.id.String()+"/report", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	got := decode(t, do(t, s, http.MethodGet, "/runs/"+rn.id.String(), ""))
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.Summary)

	rn.finish(service.Summary{ID: rn.id, Trustworthy: true, Workers: []service.WorkerResult{}}, nil)

	rec = do(t, s, http.MethodGet, "/runs/"+rn.id.String()+"/report", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Watch(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	rn := &run{
		id:          uuid.New(),
		broadcaster: sink.NewBroadcaster(),
		done:        make(chan struct{}),
	}
	s.runs.add(rn)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/runs/" + rn.id.String() + "/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return rn.broadcaster.Len() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, rn.broadcaster.WriteLine(context.Background(), "worker 1: SPAWNED"))
	require.NoError(t, rn.broadcaster.WriteLine(context.Background(), "Result: 1"))
	rn.finish(service.Summary{ID: rn.id}, nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var lines []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

			break
		}
		lines = append(lines, string(msg))
	}

	assert.Equal(t, []string{"worker 1: SPAWNED", "Result: 1"}, lines)
}

func TestServer_WritesToSink(t *testing.T) {
	t.Parallel()

	buffer := bytes.Buffer{}
	s := New(context.Background(),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithSink(sink.NewWriterSink(&buffer)),
	)

	rec := do(t, s, http.MethodPost, "/runs", `{"workers": 3, "wait": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	s.Wait()

	assert.Contains(t, buffer.String(), "worker 3: SPAWNED\n")
	assert.True(t, strings.HasSuffix(buffer.String(), "Result: 3\n"))
}

func TestRegistry_ExpiresFinishedRuns(t *testing.T) {
	reg := newRegistry(2*time.Second, slog.New(slog.DiscardHandler))

	synctest.Test(t, func(t *testing.T) {
		rn := &run{id: uuid.New(), broadcaster: sink.NewBroadcaster(), done: make(chan struct{})}
		reg.add(rn)

		// Running runs never expire.
		time.Sleep(time.Hour)

		got, err := reg.get(rn.id)
		require.NoError(t, err)
		assert.Same(t, rn, got)

		rn.finish(service.Summary{}, nil)
		reg.expire(rn)

		time.Sleep(time.Second)

		_, err = reg.get(rn.id)
		require.NoError(t, err)

		time.Sleep(3 * time.Second)

		_, err = reg.get(rn.id)
		require.ErrorIs(t, err, ErrRunNotFound)
	})
}
