package factory

import (
	"testing"

	"github.com/leonwooster/StockPlatform1-sub001/internal/cache"
	"github.com/leonwooster/StockPlatform1-sub001/internal/config"
	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/leonwooster/StockPlatform1-sub001/internal/provider"
)

type fakeSecrets map[string]string

func (f fakeSecrets) Lookup(name string) (string, bool) {
	v, ok := f[name]
	return v, ok
}

func TestFactory_RegisterAndResolve(t *testing.T) {
	f := New()
	f.Register(provider.NewMock())

	p, err := f.Resolve(provider.TagMock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Tag() != provider.TagMock {
		t.Errorf("expected mock tag, got %s", p.Tag())
	}
}

func TestFactory_ResolveUnknownTag(t *testing.T) {
	f := New()
	_, err := f.Resolve(provider.Tag("nonexistent"))
	if !domain.IsKind(err, domain.ErrUnknownProvider) {
		t.Errorf("expected UnknownProviderKind, got %v", err)
	}
}

func TestFactory_AvailableProvidersPreservesOrder(t *testing.T) {
	f := New()
	f.Register(provider.NewMock())

	tags := f.AvailableProviders()
	if len(tags) != 1 || tags[0] != provider.TagMock {
		t.Errorf("unexpected tags: %v", tags)
	}
}

func TestBuild_SkipsPremiumWithBadKey(t *testing.T) {
	store := cache.New()
	defer cache.Close(store)

	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"premium": {Enabled: true, BaseURL: "http://example.invalid", TimeoutSec: 5},
		},
		Cache: config.CacheConfig{Defaults: config.DefaultCacheTTLs()},
	}
	secretsProvider := fakeSecrets{"PREMIUM_API_KEY": "YOUR_API_KEY_HERE"}

	f := Build(cfg, secretsProvider, store)

	if _, err := f.Resolve(provider.TagPremium); err == nil {
		t.Error("expected premium to be unregistered when its api key is a placeholder")
	}
	if _, err := f.Resolve(provider.TagMock); err != nil {
		t.Error("expected mock to always be registered")
	}
}

func TestBuild_RegistersPremiumWithGoodKey(t *testing.T) {
	store := cache.New()
	defer cache.Close(store)

	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"premium": {Enabled: true, BaseURL: "http://example.invalid", TimeoutSec: 5},
		},
		Cache: config.CacheConfig{Defaults: config.DefaultCacheTTLs()},
	}
	secretsProvider := fakeSecrets{"PREMIUM_API_KEY": "sk_live_abcdefgh12345"}

	f := Build(cfg, secretsProvider, store)

	if _, err := f.Resolve(provider.TagPremium); err != nil {
		t.Errorf("expected premium to register with a valid key, got %v", err)
	}
}

func TestKnownTags(t *testing.T) {
	tags := KnownTags()
	if len(tags) != 3 {
		t.Errorf("expected 3 known tags, got %v", tags)
	}
}

func TestTagFromString(t *testing.T) {
	if _, ok := TagFromString("free"); !ok {
		t.Error("expected free to resolve")
	}
	if _, ok := TagFromString("nonsense"); ok {
		t.Error("expected unknown tag to fail")
	}
}
