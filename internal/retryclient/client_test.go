package retryclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(t *testing.T, httpClient *http.Client) (*Client, *sleepRecorder) {
	t.Helper()
	c := New(Config{
		MaxAttempts:    3,
		BaseDelay:      5 * time.Millisecond,
		RateLimitDelay: 10 * time.Millisecond,
		Timeout:        time.Second,
	}, httpClient, nil)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func statusSequence(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1)) - 1
		status := statuses[len(statuses)-1]
		if n < len(statuses) {
			status = statuses[n]
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

type okBody struct {
	OK bool `json:"ok"`
}

func TestClient_SuccessFirstTry(t *testing.T) {
	t.Parallel()

	srv, calls := statusSequence(t, http.StatusOK)
	c, rec := newTestClient(t, srv.Client())

	var out okBody
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, nil, &out))
	require.True(t, out.OK)
	require.EqualValues(t, 1, calls.Load())
	require.Empty(t, rec.delays)
}

func TestClient_RateLimitLinearBackoff(t *testing.T) {
	t.Parallel()

	srv, calls := statusSequence(t, http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusOK)
	c, rec := newTestClient(t, srv.Client())

	var out okBody
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, nil, map[string]string{"q": "x"}, &out))
	require.True(t, out.OK)
	require.EqualValues(t, 3, calls.Load())
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, rec.delays)
}

func TestClient_RateLimitExhausted(t *testing.T) {
	t.Parallel()

	srv, calls := statusSequence(t, http.StatusTooManyRequests)
	c, _ := newTestClient(t, srv.Client())

	err := c.GetJSON(context.Background(), srv.URL, nil, &okBody{})
	require.ErrorIs(t, err, ErrRateLimitExhausted)
	require.EqualValues(t, 3, calls.Load())
}

func TestClient_NonRetryableStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		srv, calls := statusSequence(t, status)
		c, rec := newTestClient(t, srv.Client())

		err := c.GetJSON(context.Background(), srv.URL, nil, &okBody{})
		require.ErrorIs(t, err, ErrNonRetryableStatus)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, status, statusErr.StatusCode)
		require.EqualValues(t, 1, calls.Load())
		require.Empty(t, rec.delays)
	}
}

func TestClient_TransientExponentialBackoff(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset by peer")
		}
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusOK)
		_, _ = rec.WriteString(`{"ok":true}`)
		resp := rec.Result()
		resp.Request = r
		return resp, nil
	})
	c, rec := newTestClient(t, &http.Client{Transport: transport})

	var out okBody
	require.NoError(t, c.GetJSON(context.Background(), "http://upstream.test/models", nil, &out))
	require.True(t, out.OK)
	require.Equal(t, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}, rec.delays)
}

func TestClient_TransientExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	})
	c, _ := newTestClient(t, &http.Client{Transport: transport})

	err := c.GetJSON(context.Background(), "http://upstream.test/models", nil, &okBody{})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.EqualValues(t, 3, calls.Load())
}

func TestClient_PermanentTransportErrorNotRetried(t *testing.T) {
	t.Parallel()

	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(tlsSrv.Close)

	tests := []struct {
		name string
		url  string
	}{
		{"untrusted certificate", tlsSrv.URL},
		{"unsupported scheme", "ftp://upstream.test/models"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			base := &http.Transport{}
			t.Cleanup(base.CloseIdleConnections)
			transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
				calls.Add(1)
				return base.RoundTrip(r)
			})
			c, sleeps := newTestClient(t, &http.Client{Transport: transport})

			err := c.GetJSON(context.Background(), tt.url, nil, &okBody{})
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrRetriesExhausted)
			require.EqualValues(t, 1, calls.Load())
			require.Empty(t, sleeps.delays)
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	t.Parallel()

	wrap := func(err error) error {
		return &url.Error{Op: "Get", URL: "https://upstream.test", Err: err}
	}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline", wrap(context.DeadlineExceeded), true},
		{"timeout", wrap(timeoutError{}), true},
		{"refused", wrap(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}), true},
		{"reset", wrap(&net.OpError{Op: "write", Net: "tcp", Err: syscall.ECONNRESET}), true},
		{"dns", wrap(&net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "upstream.test"}}), true},
		{"read", wrap(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection closed")}), true},
		{"eof", wrap(io.EOF), true},
		{"unexpected eof", wrap(io.ErrUnexpectedEOF), true},
		{"scheme", wrap(errors.New(`unsupported protocol scheme "ftp"`)), false},
		{"certificate", wrap(&tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestClient_CanceledContextStops(t *testing.T) {
	t.Parallel()

	srv, calls := statusSequence(t, http.StatusTooManyRequests)
	c, _ := newTestClient(t, srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	err := c.GetJSON(ctx, srv.URL, nil, &okBody{})
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 1, calls.Load())
}

func TestClient_HeadersForwarded(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	c, _ := newTestClient(t, srv.Client())

	header := http.Header{"Authorization": {"Bearer secret"}}
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, header, struct{}{}, &okBody{}))
}

func TestSchedule(t *testing.T) {
	t.Parallel()

	s := &schedule{maxAttempts: 4, baseDelay: time.Second, rateLimitDelay: 2 * time.Second, maxDelay: 5 * time.Second}
	d, ok := s.record(outcomeTransient)
	require.True(t, ok)
	require.Equal(t, time.Second, d)
	d, ok = s.record(outcomeRateLimited)
	require.True(t, ok)
	require.Equal(t, 4*time.Second, d)
	d, ok = s.record(outcomeTransient)
	require.True(t, ok)
	require.Equal(t, 4*time.Second, d)
	_, ok = s.record(outcomeTransient)
	require.False(t, ok)

	fatal := &schedule{maxAttempts: 4}
	_, ok = fatal.record(outcomeFatal)
	require.False(t, ok)
}

func TestPacer_ReserveSpacesConcurrentCallers(t *testing.T) {
	t.Parallel()

	p := NewPacer(100 * time.Millisecond)
	now := time.Unix(1_700_000_000, 0)

	var (
		mu     sync.Mutex
		starts []time.Time
		wg     sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := p.reserve(now)
			mu.Lock()
			starts = append(starts, start)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	require.Equal(t, now, starts[0])
	for i := 1; i < len(starts); i++ {
		require.Equal(t, 100*time.Millisecond, starts[i].Sub(starts[i-1]))
	}
}

func TestPacer_WaitDelaysSecondCall(t *testing.T) {
	t.Parallel()

	p := NewPacer(50 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, p.Wait(ctx))

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPacer_Disabled(t *testing.T) {
	t.Parallel()

	p := NewPacer(0)
	start := time.Now()
	for range 3 {
		require.NoError(t, p.Wait(context.Background()))
	}
	require.Less(t, time.Since(start), 20*time.Millisecond)
}
