package provider

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// defaultExpirySkew renews tokens slightly before the provider would reject them.
const defaultExpirySkew = 30 * time.Second

type TokenObserver func(providerID, result string)

// TokenCache memoises one bearer token per provider. Concurrent misses for the same
// provider share a single Authenticate call.
type TokenCache struct {
	registry *Registry
	logger   logrus.FieldLogger
	observe  TokenObserver

	mu     sync.Mutex
	tokens map[string]*Token
	group  singleflight.Group

	now  func() time.Time
	skew time.Duration
}

func NewTokenCache(registry *Registry, logger logrus.FieldLogger, observe TokenObserver) *TokenCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TokenCache{
		registry: registry,
		logger:   logger,
		observe:  observe,
		tokens:   make(map[string]*Token),
		now:      func() time.Time { return time.Now().UTC() },
		skew:     defaultExpirySkew,
	}
}

// GetToken returns a cached bearer or fetches a new one. Failures are *AuthError.
func (c *TokenCache) GetToken(ctx context.Context, providerID string) (string, error) {
	if bearer, ok := c.cached(providerID); ok {
		return bearer, nil
	}

	result, err, _ := c.group.Do(providerID, func() (interface{}, error) {
		if bearer, ok := c.cached(providerID); ok {
			return bearer, nil
		}
		// the flight outlives any single waiter's cancellation
		token, err := c.fetch(context.WithoutCancel(ctx), providerID)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.tokens[providerID] = token
		c.mu.Unlock()
		return token.Bearer, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops the cached token so the next GetToken re-authenticates.
func (c *TokenCache) Invalidate(providerID string) {
	c.mu.Lock()
	delete(c.tokens, providerID)
	c.mu.Unlock()
}

func (c *TokenCache) cached(providerID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, ok := c.tokens[providerID]
	if !ok {
		return "", false
	}
	if !c.now().Add(c.skew).Before(token.ExpiresAt()) {
		delete(c.tokens, providerID)
		return "", false
	}
	return token.Bearer, true
}

func (c *TokenCache) fetch(ctx context.Context, providerID string) (*Token, error) {
	client, err := c.registry.Get(providerID)
	if err != nil {
		return nil, &AuthError{Provider: providerID, Cause: err}
	}

	token, err := client.Authenticate(ctx)
	if err != nil && IsRetryable(err) {
		c.logger.WithError(err).WithField("provider", providerID).Warn("Token fetch failed, retrying once")
		token, err = client.Authenticate(ctx)
	}
	if err == nil && (token == nil || token.Bearer == "") {
		err = ErrInvalidResponse
	}
	if err != nil {
		c.record(providerID, "error")
		return nil, &AuthError{Provider: providerID, Cause: err}
	}

	if token.AcquiredAt.IsZero() {
		token.AcquiredAt = c.now()
	}
	token.ProviderID = providerID
	c.record(providerID, "ok")
	return token, nil
}

func (c *TokenCache) record(providerID, result string) {
	if c.observe != nil {
		c.observe(providerID, result)
	}
}
