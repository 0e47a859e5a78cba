package migrations

import (
	"skiff/internal/core"
)

// Migration001CreateTables creates the reader core tables
var Migration001CreateTables = core.Migration{
	Version:     1,
	Name:        "create_reader_tables",
	Description: "Create folders, feeds, articles, filter rules and sync tables",
	UpSQL: `
		-- Folders for grouping feeds
		CREATE TABLE IF NOT EXISTS folders (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			position INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		-- Subscribed feeds
		CREATE TABLE IF NOT EXISTS feeds (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL UNIQUE,
			site_url TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'rss',
			folder_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
			icon_url TEXT NOT NULL DEFAULT '',
			etag TEXT NOT NULL DEFAULT '',
			last_modified TEXT NOT NULL DEFAULT '',
			last_fetched TIMESTAMP,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			paused BOOLEAN NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		-- Canonical articles; id is the stable hash of (feed url, entry id)
		CREATE TABLE IF NOT EXISTS articles (
			id TEXT PRIMARY KEY,
			feed_id TEXT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
			title TEXT NOT NULL DEFAULT '',
			link TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			reader_content TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMP,
			fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			is_read BOOLEAN NOT NULL DEFAULT 0,
			is_starred BOOLEAN NOT NULL DEFAULT 0,
			media_kind TEXT NOT NULL DEFAULT 'none',
			enclosure_url TEXT NOT NULL DEFAULT '',
			enclosure_type TEXT NOT NULL DEFAULT '',
			thumbnail_url TEXT NOT NULL DEFAULT '',
			playback_position INTEGER NOT NULL DEFAULT 0,
			is_downloaded BOOLEAN NOT NULL DEFAULT 0,
			has_reader_content BOOLEAN NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL DEFAULT '',
			remote_id TEXT NOT NULL DEFAULT ''
		);

		-- Article tags applied by automation rules
		CREATE TABLE IF NOT EXISTS article_tags (
			article_id TEXT REFERENCES articles(id) ON DELETE CASCADE,
			tag TEXT NOT NULL,
			PRIMARY KEY (article_id, tag)
		);

		-- Automation rules run over freshly normalized batches
		CREATE TABLE IF NOT EXISTS filter_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			condition TEXT NOT NULL,
			value TEXT NOT NULL,
			action TEXT NOT NULL,
			tag_value TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		-- Offline queue of pending outbound sync operations
		CREATE TABLE IF NOT EXISTS sync_queue (
			id TEXT PRIMARY KEY,
			op_kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		-- Sync bookkeeping (cursors, device id)
		CREATE TABLE IF NOT EXISTS sync_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feeds_url ON feeds(url);
		CREATE INDEX IF NOT EXISTS idx_feeds_folder_id ON feeds(folder_id);
		CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id);
		CREATE INDEX IF NOT EXISTS idx_articles_link ON articles(link);
		CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at);
		CREATE INDEX IF NOT EXISTS idx_articles_is_read ON articles(is_read);
		CREATE INDEX IF NOT EXISTS idx_articles_is_starred ON articles(is_starred);
		CREATE INDEX IF NOT EXISTS idx_articles_remote_id ON articles(remote_id);
		CREATE INDEX IF NOT EXISTS idx_sync_queue_created_at ON sync_queue(created_at);
	`,
	DownSQL: `
		DROP INDEX IF EXISTS idx_sync_queue_created_at;
		DROP INDEX IF EXISTS idx_articles_remote_id;
		DROP INDEX IF EXISTS idx_articles_is_starred;
		DROP INDEX IF EXISTS idx_articles_is_read;
		DROP INDEX IF EXISTS idx_articles_published_at;
		DROP INDEX IF EXISTS idx_articles_link;
		DROP INDEX IF EXISTS idx_articles_feed_id;
		DROP INDEX IF EXISTS idx_feeds_folder_id;
		DROP INDEX IF EXISTS idx_feeds_url;

		DROP TABLE IF EXISTS sync_meta;
		DROP TABLE IF EXISTS sync_queue;
		DROP TABLE IF EXISTS filter_rules;
		DROP TABLE IF EXISTS article_tags;
		DROP TABLE IF EXISTS articles;
		DROP TABLE IF EXISTS feeds;
		DROP TABLE IF EXISTS folders;
	`,
}

// All returns the reader migrations in order
func All() []core.Migration {
	return []core.Migration{
		Migration001CreateTables,
	}
}
