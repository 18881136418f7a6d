// Package cache は、外部APIの結果や解析結果をセッション内で再利用するための
// 種別付きインメモリキャッシュを提供します。
// プロセスローカルかつ非永続で、プロセスをまたいだ一貫性は提供しません。
package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const keySeparator = ":"

// APICache は (type, key) の2段キーで値を保持するTTL付きキャッシュです。
// 実体は patrickmn/go-cache で、種別単位のクリアとプレフィックス無効化を足しています。
type APICache struct {
	store      *gocache.Cache
	defaultTTL time.Duration
}

// New は既定TTLと掃除間隔を指定して APICache を生成します。
func New(defaultTTL, cleanupInterval time.Duration) *APICache {
	return &APICache{
		store:      gocache.New(defaultTTL, cleanupInterval),
		defaultTTL: defaultTTL,
	}
}

// Set は (cacheType, key) に値を既定TTLで保存します。
func (c *APICache) Set(cacheType, key string, value any) {
	c.store.Set(compose(cacheType, key), value, gocache.DefaultExpiration)
}

// SetWithTTL は有効期限を個別指定して保存します。
func (c *APICache) SetWithTTL(cacheType, key string, value any, ttl time.Duration) {
	c.store.Set(compose(cacheType, key), value, ttl)
}

// Get は (cacheType, key) の値を返します。存在しない・期限切れの場合は ok=false です。
func (c *APICache) Get(cacheType, key string) (any, bool) {
	return c.store.Get(compose(cacheType, key))
}

// Delete は単一エントリを削除します。
func (c *APICache) Delete(cacheType, key string) {
	c.store.Delete(compose(cacheType, key))
}

// Clear は指定種別のエントリをすべて削除します。他の種別には影響しません。
func (c *APICache) Clear(cacheType string) {
	prefix := cacheType + keySeparator
	for k := range c.store.Items() {
		if strings.HasPrefix(k, prefix) {
			c.store.Delete(k)
		}
	}
}

// InvalidatePattern は指定種別のうち、キーが keyPrefix で始まるエントリを削除します。
func (c *APICache) InvalidatePattern(cacheType, keyPrefix string) {
	prefix := compose(cacheType, keyPrefix)
	for k := range c.store.Items() {
		if strings.HasPrefix(k, prefix) {
			c.store.Delete(k)
		}
	}
}

// Flush はすべてのエントリを破棄します。
func (c *APICache) Flush() {
	c.store.Flush()
}

// ItemCount は期限切れを含む現在の保持件数を返します。
func (c *APICache) ItemCount() int {
	return c.store.ItemCount()
}

func compose(cacheType, key string) string {
	return cacheType + keySeparator + key
}
