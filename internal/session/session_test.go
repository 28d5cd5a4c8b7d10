package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syauth/syauth-go/internal/cookie"
)

// requestWithCookies builds a request carrying the cookies a recorder's
// response set, simulating the browser following a redirect.
func requestWithCookies(t *testing.T, rec *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return r
}

func TestClientStore_StoreRetrieve(t *testing.T) {
	store := NewClientStore()
	rec := httptest.NewRecorder()

	fragment := store.Store(rec, "verifier-123", "state-abc", "/dashboard")
	assert.NotEmpty(t, fragment)

	r := requestWithCookies(t, rec)
	params := store.Retrieve(r, "")
	assert.Equal(t, "verifier-123", params.Verifier)
	assert.Equal(t, "state-abc", params.State)
	assert.Equal(t, "/dashboard", params.RedirectTo)

	// Idempotent before Clear
	again := store.Retrieve(r, "")
	assert.Equal(t, params, again)
}

func TestClientStore_FragmentFallback(t *testing.T) {
	store := NewClientStore()
	rec := httptest.NewRecorder()

	fragment := store.Store(rec, "verifier-123", "state-abc", "/dashboard")

	// Cookies blocked: request carries no cookies, only the fragment copy
	r := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	params := store.Retrieve(r, fragment)
	assert.Equal(t, "verifier-123", params.Verifier)
	assert.Equal(t, "state-abc", params.State)
	assert.Equal(t, "/dashboard", params.RedirectTo)
}

func TestClientStore_CookiesWinOverFragment(t *testing.T) {
	store := NewClientStore()
	rec := httptest.NewRecorder()
	store.Store(rec, "cookie-verifier", "cookie-state", "")

	staleFragment := EncodeFragment("stale-verifier", "stale-state", "")

	r := requestWithCookies(t, rec)
	params := store.Retrieve(r, staleFragment)
	assert.Equal(t, "cookie-verifier", params.Verifier)
	assert.Equal(t, "cookie-state", params.State)
}

func TestClientStore_MalformedFragment(t *testing.T) {
	store := NewClientStore()
	r := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)

	for _, fragment := range []string{"pkce=!!!not-base64", "pkce=aGVsbG8", "unrelated=1", ""} {
		params := store.Retrieve(r, fragment)
		assert.Empty(t, params.State, "fragment %q", fragment)
		assert.Empty(t, params.Verifier, "fragment %q", fragment)
	}
}

func TestClientStore_Clear(t *testing.T) {
	store := NewClientStore()
	rec := httptest.NewRecorder()
	store.Clear(rec)

	cleared := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	assert.True(t, cleared[cookie.CodeVerifier])
	assert.True(t, cleared[cookie.State])
	assert.True(t, cleared[cookie.RedirectTo])
	assert.True(t, cleared[cookie.PKCESessionID])
}

func TestClientStore_SessionIDVariant(t *testing.T) {
	store := NewClientStore()
	rec := httptest.NewRecorder()

	store.StoreSessionID(rec, "sess-1", "state-abc", "/profile")

	r := requestWithCookies(t, rec)
	params := store.Retrieve(r, "")
	assert.Equal(t, "sess-1", params.SessionID)
	assert.Equal(t, "state-abc", params.State)
	assert.Equal(t, "/profile", params.RedirectTo)
	assert.Empty(t, params.Verifier)
}

func TestServerStore_ValidateSuccess(t *testing.T) {
	store, err := NewServerStore([]byte("test-secret"), 0)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, store.Create(rec, Data{
		State:        "state-abc",
		CodeVerifier: "verifier-123",
		RedirectTo:   "/dashboard",
	}))

	r := requestWithCookies(t, rec)
	rec2 := httptest.NewRecorder()
	data := store.Validate(rec2, r, "state-abc")
	require.NotNil(t, data)
	assert.Equal(t, "verifier-123", data.CodeVerifier)
	assert.Equal(t, "/dashboard", data.RedirectTo)
	assert.WithinDuration(t, time.Now(), data.CreatedAt, 5*time.Second)

	// Session consumed: the validating response cleared the cookie
	r2 := requestWithCookies(t, rec2)
	assert.Nil(t, store.Validate(httptest.NewRecorder(), r2, "state-abc"))
}

func TestServerStore_StateMismatchBurnsSession(t *testing.T) {
	store, err := NewServerStore([]byte("test-secret"), 0)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, store.Create(rec, Data{State: "state-abc", CodeVerifier: "v"}))

	r := requestWithCookies(t, rec)
	rec2 := httptest.NewRecorder()
	assert.Nil(t, store.Validate(rec2, r, "wrong-state"))

	// Burned: even the right state cannot recover it
	r2 := requestWithCookies(t, rec2)
	assert.Nil(t, store.Validate(httptest.NewRecorder(), r2, "state-abc"))
}

func TestServerStore_ConfiguredTTL(t *testing.T) {
	// A negative ttl makes every session already expired, proving the
	// configured value is the one enforced rather than the default
	store, err := NewServerStore([]byte("test-secret"), -time.Second)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, store.Create(rec, Data{State: "state-abc", CodeVerifier: "v"}))

	r := requestWithCookies(t, rec)
	assert.Nil(t, store.Validate(httptest.NewRecorder(), r, "state-abc"))
}

func TestServerStore_FailuresAreIndistinguishable(t *testing.T) {
	store, err := NewServerStore([]byte("test-secret"), 0)
	require.NoError(t, err)

	t.Run("missing cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
		assert.Nil(t, store.Validate(httptest.NewRecorder(), r, "any"))
	})

	t.Run("garbage cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
		r.AddCookie(&http.Cookie{Name: cookie.OAuthSession, Value: "garbage"})
		assert.Nil(t, store.Validate(httptest.NewRecorder(), r, "any"))
	})

	t.Run("wrong key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		require.NoError(t, store.Create(rec, Data{State: "s", CodeVerifier: "v"}))

		other, err := NewServerStore([]byte("different-secret"), 0)
		require.NoError(t, err)
		r := requestWithCookies(t, rec)
		assert.Nil(t, other.Validate(httptest.NewRecorder(), r, "s"))
	})
}
