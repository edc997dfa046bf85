package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcare-vn/medcare-mobile/internal/kvstore"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

func newFileKV(t *testing.T) kvstore.Store {
	t.Helper()
	kv, err := kvstore.NewFileStore(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	return kv
}

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestStore_SaveTokenClear(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFileKV(t), logging.Discard())

	_, err := store.Token(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Save(ctx, "opaque-token"))
	token, err := store.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", token)

	claims, err := store.Claims(ctx)
	require.NoError(t, err)
	assert.Equal(t, Claims{}, claims, "opaque tokens carry no claims")

	require.NoError(t, store.Clear(ctx))
	_, err = store.Token(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStore_RejectsEmptyToken(t *testing.T) {
	store := NewStore(newFileKV(t), logging.Discard())
	assert.ErrorIs(t, store.Save(context.Background(), "  "), ErrEmptyToken)
}

func TestStore_JWTExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	store := NewStore(newFileKV(t), logging.Discard()).WithClock(func() time.Time { return now })

	require.NoError(t, store.Save(ctx, signedToken(t, "7", now.Add(time.Hour))))
	claims, err := store.Claims(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
	assert.True(t, claims.ExpiresAt.Equal(now.Add(time.Hour)))

	now = now.Add(2 * time.Hour)
	_, err = store.Token(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestContext_APIUsesStoredToken(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"maKhachHang":7,"tenKhachHang":"An"}`))
	}))
	t.Cleanup(ts.Close)

	ctx := context.Background()
	sc := NewContext(newFileKV(t), ts.URL, logging.Discard())
	require.NoError(t, sc.Sessions.Save(ctx, "tok"))

	id, err := sc.API.CustomerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "Bearer tok", gotAuth)
}
