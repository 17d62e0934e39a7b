package db

import (
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"github.com/portalcms/portal-backend/log"
)

const renderTTL = 24 * time.Hour

// renderKey ties a cache entry to a specific revision of the post, so a
// content update naturally invalidates the old entry.
func renderKey(p *Post) string {
	return fmt.Sprintf("render:%d:%d", p.ID, p.Updated.UnixNano())
}

// CachedRender returns previously rendered HTML for the post's current
// revision, if redis is configured and holds it.
func (d *DB) CachedRender(p *Post) (string, bool) {
	if d.Redis == nil {
		return "", false
	}
	html, err := d.Redis.Get(renderKey(p)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn.Printf("render cache get: %s", err)
		}
		return "", false
	}
	return html, true
}

// StoreRender caches rendered HTML for the post's current revision. Failures
// only cost a re-render, so they are logged and dropped.
func (d *DB) StoreRender(p *Post, html string) {
	if d.Redis == nil {
		return
	}
	if err := d.Redis.Set(renderKey(p), html, renderTTL).Err(); err != nil {
		log.Warn.Printf("render cache set: %s", err)
	}
}
