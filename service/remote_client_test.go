package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(server *httptest.Server, sleep *recordingSleep) *DiscordClient {
	return NewDiscordClient(RemoteClientOptions{
		APIBase:    server.URL,
		Token:      "bot-token",
		PageSize:   2,
		HTTPClient: server.Client(),
		Sleep:      sleep.Sleep,
	})
}

func TestListMembersSendsCursorAndAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/guilds/g1/members", r.URL.Path)
		require.Equal(t, "Bot bot-token", r.Header.Get("Authorization"))
		require.Equal(t, "2", r.URL.Query().Get("limit"))
		require.Equal(t, "100", r.URL.Query().Get("after"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"user":{"id":"101","username":"a","banner":"a_b1","avatar_decoration_data":{"asset":"h1","sku_id":"s1"}}}]`))
	}))
	defer server.Close()

	client := newTestClient(server, &recordingSleep{})
	members, err := client.ListMembers(context.Background(), "g1", "100")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "101", members[0].User.ID)
	require.NotNil(t, members[0].User.AvatarDecorationData)
	require.Equal(t, "h1", members[0].User.AvatarDecorationData.Asset)
	require.Equal(t, "a_b1", *members[0].User.Banner)
}

func TestListMembersHonoursRetryAfter(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	var cursors []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cursors = append(cursors, r.URL.Query().Get("after"))
		mu.Unlock()
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.Header().Set("Retry-After", "1.5")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"You are being rate limited.","retry_after":0.25,"global":false}`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer server.Close()

	sleep := &recordingSleep{}
	members, err := newTestClient(server, sleep).ListMembers(context.Background(), "g1", "250")
	require.NoError(t, err)
	require.Empty(t, members)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Equal(t, []time.Duration{1500 * time.Millisecond, 250 * time.Millisecond}, sleep.Delays())
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"250", "250", "250"}, cursors)
}

func TestListMembersRateLimitBudgetExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sleep := &recordingSleep{}
	_, err := newTestClient(server, sleep).ListMembers(context.Background(), "g1", "")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, int32(defaultRateLimitRetries+1), atomic.LoadInt32(&calls))
	require.Len(t, sleep.Delays(), defaultRateLimitRetries)
	for _, d := range sleep.Delays() {
		require.Equal(t, 2*time.Second, d)
	}
}

func TestListMembersServerErrorFailsImmediately(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":0,"message":"internal"}`))
	}))
	defer server.Close()

	sleep := &recordingSleep{}
	_, err := newTestClient(server, sleep).ListMembers(context.Background(), "g1", "")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	require.Equal(t, "internal", httpErr.Message)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Empty(t, sleep.Delays())
}

func TestListMembersRequiresToken(t *testing.T) {
	client := NewDiscordClient(RemoteClientOptions{APIBase: "http://127.0.0.1:1"})
	_, err := client.ListMembers(context.Background(), "g1", "")
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestRetryAfterFallsBackToOneSecond(t *testing.T) {
	require.Equal(t, time.Second, retryAfter(http.Header{}, []byte("not json")))
}

func TestRetryAfterRejectsUnboundedValues(t *testing.T) {
	_, ok := parseSeconds("Inf")
	require.False(t, ok)
	_, ok = parseSeconds("NaN")
	require.False(t, ok)

	d, ok := parseSeconds("1e300")
	require.True(t, ok)
	require.Equal(t, maxRetryAfter, d)

	require.Equal(t, time.Second, retryAfter(http.Header{"Retry-After": []string{"+Inf"}}, nil))
	require.Equal(t, maxRetryAfter, retryAfter(http.Header{}, []byte(`{"retry_after":1e300}`)))
}
