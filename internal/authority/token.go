package authority

import (
	"context"
	"sync"
	"time"
)

// expirySkew refreshes tokens slightly before the authority-declared expiry
// so a token never dies mid-request.
const expirySkew = 30 * time.Second

// fetchFunc performs the actual credential exchange.
type fetchFunc func(ctx context.Context) (token string, expiry time.Time, err error)

// tokenCache caches one bearer token with its expiry. The authority defines
// the lifetime per token; nothing here assumes a fixed duration.
type tokenCache struct {
	fetch fetchFunc

	mu     sync.Mutex
	token  string
	expiry time.Time

	// now is swappable for tests.
	now func() time.Time
}

func newTokenCache(fetch fetchFunc) *tokenCache {
	return &tokenCache{fetch: fetch, now: time.Now}
}

// get returns the cached token if fresh, otherwise exchanges credentials.
// Concurrent callers during a refresh serialize on the mutex; only one
// exchange happens.
func (tc *tokenCache) get(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.token != "" && tc.now().Add(expirySkew).Before(tc.expiry) {
		return tc.token, nil
	}

	token, expiry, err := tc.fetch(ctx)
	if err != nil {
		return "", err
	}
	tc.token = token
	tc.expiry = expiry
	return token, nil
}

// invalidate drops the cached token after the authority rejected it.
func (tc *tokenCache) invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.token = ""
	tc.expiry = time.Time{}
}
