package authclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/store"
)

type recordingRedirector struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingRedirector) Redirect(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recordingRedirector) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func testConfig(baseURL string) *authclient.Config {
	return &authclient.Config{
		BaseURL:              baseURL + "/api/v1",
		TokenPath:            "/token/",
		RefreshPath:          "/token/refresh/",
		RegisterPath:         "/register/",
		CurrentUserPath:      "/users/me/",
		ProfilePath:          "/users/me/",
		DeactivatePath:       "/deactivate/",
		VerifyEmailPath:      "/verify-email/",
		PasswordResetPath:    "/password-reset/",
		LoginRoute:           "/login",
		VerifyRequiredRoute:  "/verify-email-required",
		ApprovalPendingRoute: "/doctor/approval-pending",
		DefaultRoute:         "/",
		PatientHomeRoute:     "/patient/dashboard",
		DoctorHomeRoute:      "/doctor/dashboard",
		AdminHomeRoute:       "/admin/dashboard",
		RequestTimeout:       5 * time.Second,
	}
}

func seedTokens(t *testing.T, s authclient.TokenStore, pair authclient.TokenPair) {
	t.Helper()
	require.NoError(t, s.Save(context.Background(), pair))
}

func TestClientAttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	access := tokenExpiringAt(t, time.Now().Add(time.Hour))
	tokens := store.NewMemoryStore()
	seedTokens(t, tokens, authclient.TokenPair{Access: access, Refresh: "refresh-1"})

	client := authclient.NewClient(testConfig(srv.URL), tokens)

	resp, err := client.Do(context.Background(), http.MethodGet, "/users/me/", nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "Bearer "+access, gotAuth)
}

func TestClientWithoutAuthSkipsCredentials(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tokens := store.NewMemoryStore()
	seedTokens(t, tokens, authclient.TokenPair{
		Access:  tokenExpiringAt(t, time.Now().Add(time.Hour)),
		Refresh: "refresh-1",
	})

	client := authclient.NewClient(testConfig(srv.URL), tokens)

	_, err := client.Do(context.Background(), http.MethodPost, "/token/", nil, authclient.WithoutAuth())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClientRefreshesAndRetriesOn401(t *testing.T) {
	staleAccess := tokenExpiringAt(t, time.Now().Add(time.Hour))
	freshAccess := tokenExpiringAt(t, time.Now().Add(2*time.Hour))

	var refreshCalls, protectedCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)

		body := map[string]string{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh-1", body["refresh"])

		json.NewEncoder(w).Encode(map[string]string{"access": freshAccess})
	})
	mux.HandleFunc("/api/v1/users/me/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&protectedCalls, 1)
		if r.Header.Get("Authorization") != "Bearer "+freshAccess {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"token is invalid or expired"}`))
			return
		}
		w.Write([]byte(`{"email":"pat@example.com"}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := store.NewMemoryStore()
	seedTokens(t, tokens, authclient.TokenPair{Access: staleAccess, Refresh: "refresh-1"})

	client := authclient.NewClient(testConfig(srv.URL), tokens)

	resp, err := client.Do(context.Background(), http.MethodGet, "/users/me/", nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.EqualValues(t, 1, atomic.LoadInt32(&refreshCalls), "exactly one refresh exchange")
	assert.EqualValues(t, 2, atomic.LoadInt32(&protectedCalls), "original call plus one replay")

	pair, err := tokens.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, freshAccess, pair.Access)
	assert.Equal(t, "refresh-1", pair.Refresh, "unrotated refresh token is kept")
}

func TestClientCoalescesConcurrentRefreshes(t *testing.T) {
	expiredAccess := tokenExpiringAt(t, time.Now().Add(-time.Minute))
	freshAccess := tokenExpiringAt(t, time.Now().Add(time.Hour))

	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		// Hold the exchange open long enough for every caller to pile up
		// behind the in-flight refresh.
		time.Sleep(150 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"access": freshAccess})
	})
	mux.HandleFunc("/api/v1/users/me/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+freshAccess {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"token is invalid or expired"}`))
			return
		}
		w.Write([]byte(`{"email":"pat@example.com"}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := store.NewMemoryStore()
	seedTokens(t, tokens, authclient.TokenPair{Access: expiredAccess, Refresh: "refresh-1"})

	client := authclient.NewClient(testConfig(srv.URL), tokens)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Do(context.Background(), http.MethodGet, "/users/me/", nil)
			if err == nil && !resp.OK() {
				err = client.ErrorFromResponse(resp)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&refreshCalls), "concurrent expiries share one exchange")
}

func TestClientRefreshFailureExpiresSession(t *testing.T) {
	staleAccess := tokenExpiringAt(t, time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"token is blacklisted"}`))
	})
	mux.HandleFunc("/api/v1/users/me/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"token is invalid or expired"}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := store.NewMemoryStore()
	seedTokens(t, tokens, authclient.TokenPair{Access: staleAccess, Refresh: "refresh-1"})
	require.NoError(t, tokens.SaveUser(context.Background(), makeUser(authclient.RolePatient, true, false)))

	var expiredSignal int32
	redirector := &recordingRedirector{}

	client := authclient.NewClient(testConfig(srv.URL), tokens).WithRedirector(redirector)
	client.OnSessionExpired(func() { atomic.AddInt32(&expiredSignal, 1) })

	_, err := client.Do(context.Background(), http.MethodGet, "/users/me/", nil)
	require.Error(t, err)
	assert.True(t, authclient.IsSessionExpiredError(err))

	pair, err := tokens.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, pair, "credentials wiped on unrecoverable refresh")

	user, err := tokens.LoadUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user, "cached user wiped too")

	assert.EqualValues(t, 1, atomic.LoadInt32(&expiredSignal))
	assert.Equal(t, []string{"/login"}, redirector.Paths(), "hard redirect is the last resort")
}

func TestClientNoRefreshTokenExpiresSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/me/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"token is invalid or expired"}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := store.NewMemoryStore()
	seedTokens(t, tokens, authclient.TokenPair{Access: tokenExpiringAt(t, time.Now().Add(time.Hour))})

	redirector := &recordingRedirector{}
	client := authclient.NewClient(testConfig(srv.URL), tokens).WithRedirector(redirector)

	_, err := client.Do(context.Background(), http.MethodGet, "/users/me/", nil)
	require.Error(t, err)
	assert.True(t, authclient.IsSessionExpiredError(err))
	assert.Equal(t, []string{"/login"}, redirector.Paths())
}

func TestClientExplicitBearerNeverRefreshed(t *testing.T) {
	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		json.NewEncoder(w).Encode(map[string]string{"access": "new"})
	})
	mux.HandleFunc("/api/v1/users/me/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"nope"}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := store.NewMemoryStore()
	seedTokens(t, tokens, authclient.TokenPair{
		Access:  tokenExpiringAt(t, time.Now().Add(time.Hour)),
		Refresh: "refresh-1",
	})

	client := authclient.NewClient(testConfig(srv.URL), tokens)

	resp, err := client.Do(context.Background(), http.MethodGet, "/users/me/", nil,
		authclient.WithBearerToken("caller-owned-token"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 0, atomic.LoadInt32(&refreshCalls))
}

func TestClientErrorClassification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/validation/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"email":["user with this email already exists"]}`))
	})
	mux.HandleFunc("/api/v1/unauthorized/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
	})
	mux.HandleFunc("/api/v1/broken/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"server exploded"}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := authclient.NewClient(testConfig(srv.URL), store.NewMemoryStore())
	ctx := context.Background()

	err := client.DoJSON(ctx, http.MethodPost, "/validation/", nil, nil, authclient.WithoutAuth())
	require.Error(t, err)
	assert.True(t, authclient.IsValidationError(err))
	assert.Equal(t, "user with this email already exists", authclient.FieldErrors(err)["email"])

	err = client.DoJSON(ctx, http.MethodPost, "/unauthorized/", nil, nil, authclient.WithoutAuth())
	require.Error(t, err)
	assert.True(t, authclient.IsInvalidCredentialsError(err))

	err = client.DoJSON(ctx, http.MethodGet, "/broken/", nil, nil, authclient.WithoutAuth())
	require.Error(t, err)
	assert.False(t, authclient.IsValidationError(err))
	assert.False(t, authclient.IsInvalidCredentialsError(err))
}

func TestClientNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := authclient.NewClient(testConfig(srv.URL), store.NewMemoryStore())

	_, err := client.Do(context.Background(), http.MethodGet, "/users/me/", nil, authclient.WithoutAuth())
	require.Error(t, err)
	assert.True(t, authclient.IsNetworkError(err))
}
