package crypto

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverAuth_RoundTrip(t *testing.T) {
	a := &ResolverAuth{Secret: "s3cret-value"}
	now := time.Unix(1_760_000_000, 0)
	body := `{"outcome":"yes"}`

	h := a.HeadersAt("POST", "/api/markets/m1/resolve", body, now.Unix())
	require.NoError(t, a.Verify("POST", "/api/markets/m1/resolve", body, h[HeaderTimestamp], h[HeaderSignature], now))

	t.Run("TamperedBody", func(t *testing.T) {
		err := a.Verify("POST", "/api/markets/m1/resolve", `{"outcome":"no"}`, h[HeaderTimestamp], h[HeaderSignature], now)
		assert.ErrorIs(t, err, ErrBadSignature)
	})
	t.Run("OtherMarket", func(t *testing.T) {
		err := a.Verify("POST", "/api/markets/m2/resolve", body, h[HeaderTimestamp], h[HeaderSignature], now)
		assert.ErrorIs(t, err, ErrBadSignature)
	})
	t.Run("Stale", func(t *testing.T) {
		err := a.Verify("POST", "/api/markets/m1/resolve", body, h[HeaderTimestamp], h[HeaderSignature], now.Add(10*time.Minute))
		assert.ErrorIs(t, err, ErrBadTimestamp)
	})
	t.Run("Missing", func(t *testing.T) {
		err := a.Verify("POST", "/api/markets/m1/resolve", body, "", "", now)
		assert.ErrorIs(t, err, ErrMissingSignature)
	})
	t.Run("WrongSecret", func(t *testing.T) {
		other := &ResolverAuth{Secret: "other"}
		err := other.Verify("POST", "/api/markets/m1/resolve", body, h[HeaderTimestamp], h[HeaderSignature], now)
		assert.ErrorIs(t, err, ErrBadSignature)
	})
}

func TestResolverAuth_String(t *testing.T) {
	for _, secret := range []string{"", "abc", "s3cret", "0123456789abcdef0123456789abcdef"} {
		a := &ResolverAuth{Secret: secret}
		assert.Equal(t, "ResolverAuth{secret=****}", a.String())
		assert.Equal(t, "ResolverAuth{secret=****}", fmt.Sprintf("%v", a))
		assert.Equal(t, "ResolverAuth{secret=****}", fmt.Sprintf("%#v", a))
	}
	assert.NotContains(t, fmt.Sprint(&ResolverAuth{Secret: "s3cret"}), "s3cr")
}
