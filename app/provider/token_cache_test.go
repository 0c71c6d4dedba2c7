package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

type fakeAuthProvider struct {
	MockProvider
	id    string
	calls int32
	authFn func(call int32) (*Token, error)
}

func (p *fakeAuthProvider) ID() string {
	return p.id
}

func (p *fakeAuthProvider) Authenticate(_ context.Context) (*Token, error) {
	call := atomic.AddInt32(&p.calls, 1)
	return p.authFn(call)
}

func newTestTokenCache(providers ...Provider) *TokenCache {
	logger, _ := test.NewNullLogger()
	return NewTokenCache(NewRegistry(providers...), logger, nil)
}

func TestTokenCacheReusesValidToken(t *testing.T) {
	p := &fakeAuthProvider{id: "gw", authFn: func(call int32) (*Token, error) {
		return &Token{Bearer: fmt.Sprintf("tok-%d", call), TTL: time.Hour}, nil
	}}
	cache := newTestTokenCache(p)

	for i := 0; i < 3; i++ {
		bearer, err := cache.GetToken(context.Background(), "gw")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if bearer != "tok-1" {
			t.Fatalf("expected cached token, got %s", bearer)
		}
	}
	if p.calls != 1 {
		t.Fatalf("expected one authenticate call, got %d", p.calls)
	}
}

func TestTokenCacheRefreshesExpiredToken(t *testing.T) {
	p := &fakeAuthProvider{id: "gw", authFn: func(call int32) (*Token, error) {
		return &Token{Bearer: fmt.Sprintf("tok-%d", call), TTL: 5 * time.Minute}, nil
	}}
	cache := newTestTokenCache(p)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	if bearer, _ := cache.GetToken(context.Background(), "gw"); bearer != "tok-1" {
		t.Fatalf("unexpected first token: %s", bearer)
	}

	now = now.Add(5*time.Minute - cache.skew)
	bearer, err := cache.GetToken(context.Background(), "gw")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if bearer != "tok-2" {
		t.Fatalf("expected refreshed token, got %s", bearer)
	}
}

func TestTokenCacheInvalidate(t *testing.T) {
	p := &fakeAuthProvider{id: "gw", authFn: func(call int32) (*Token, error) {
		return &Token{Bearer: fmt.Sprintf("tok-%d", call), TTL: time.Hour}, nil
	}}
	cache := newTestTokenCache(p)

	_, _ = cache.GetToken(context.Background(), "gw")
	cache.Invalidate("gw")
	bearer, _ := cache.GetToken(context.Background(), "gw")
	if bearer != "tok-2" {
		t.Fatalf("expected new token after invalidation, got %s", bearer)
	}
}

func TestTokenCacheCoalescesConcurrentMisses(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p := &fakeAuthProvider{id: "gw", authFn: func(int32) (*Token, error) {
		once.Do(func() { close(started) })
		<-release
		return &Token{Bearer: "shared", TTL: time.Hour}, nil
	}}
	cache := newTestTokenCache(p)

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bearer, err := cache.GetToken(context.Background(), "gw")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results <- bearer
		}()
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for bearer := range results {
		if bearer != "shared" {
			t.Fatalf("unexpected bearer: %s", bearer)
		}
	}
	if got := atomic.LoadInt32(&p.calls); got != 1 {
		t.Fatalf("expected a single authenticate call, got %d", got)
	}
}

func TestTokenCacheRetriesNetworkErrorOnce(t *testing.T) {
	p := &fakeAuthProvider{id: "gw", authFn: func(call int32) (*Token, error) {
		if call == 1 {
			return nil, fmt.Errorf("%w: timeout", ErrNetwork)
		}
		return &Token{Bearer: "tok-ok", TTL: time.Hour}, nil
	}}
	cache := newTestTokenCache(p)

	bearer, err := cache.GetToken(context.Background(), "gw")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if bearer != "tok-ok" || p.calls != 2 {
		t.Fatalf("unexpected result: bearer=%s calls=%d", bearer, p.calls)
	}
}

func TestTokenCacheDoesNotRetryRejectedCredentials(t *testing.T) {
	p := &fakeAuthProvider{id: "gw", authFn: func(int32) (*Token, error) {
		return nil, ErrCredentialsRejected
	}}
	var observed []string
	logger, _ := test.NewNullLogger()
	cache := NewTokenCache(NewRegistry(p), logger, func(providerID, result string) {
		observed = append(observed, providerID+":"+result)
	})

	_, err := cache.GetToken(context.Background(), "gw")
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Provider != "gw" {
		t.Fatalf("expected AuthError for gw, got %v", err)
	}
	if !errors.Is(err, ErrCredentialsRejected) {
		t.Fatalf("expected wrapped ErrCredentialsRejected, got %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("expected no retry, got %d calls", p.calls)
	}
	if len(observed) != 1 || observed[0] != "gw:error" {
		t.Fatalf("unexpected observations: %v", observed)
	}
}

func TestTokenCacheUnknownProvider(t *testing.T) {
	cache := newTestTokenCache()
	_, err := cache.GetToken(context.Background(), "nope")
	if !errors.Is(err, ErrProviderNotSupported) {
		t.Fatalf("expected ErrProviderNotSupported, got %v", err)
	}
}
