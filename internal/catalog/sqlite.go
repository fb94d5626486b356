package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dfbr/choose-your-own-adventure-world/internal/review"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

// catalogSchemaVersion is the current schema version.
const catalogSchemaVersion = 1

const catalogSchemaV1 = `
CREATE TABLE IF NOT EXISTS stories (
    story_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    author TEXT,
    created TEXT,
    categories TEXT,   -- JSON array
    start_node TEXT NOT NULL,
    published_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS story_nodes (
    story_id TEXT NOT NULL REFERENCES stories(story_id) ON DELETE CASCADE,
    node_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    content TEXT NOT NULL,
    choices TEXT NOT NULL,  -- JSON array of {text, nextNode}
    image TEXT,
    PRIMARY KEY (story_id, node_id)
);
CREATE INDEX IF NOT EXISTS idx_story_nodes_position ON story_nodes(story_id, position);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// SQLiteCatalog publishes stories into a SQLite database.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

// OpenSQLiteCatalog opens or creates the catalog database at path.
func OpenSQLiteCatalog(ctx context.Context, path string) (*SQLiteCatalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initCatalogSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return &SQLiteCatalog{db: db, path: path}, nil
}

func initCatalogSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, catalogSchemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		catalogSchemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// Path returns the database file location.
func (c *SQLiteCatalog) Path() string { return c.path }

// Close closes the database.
func (c *SQLiteCatalog) Close() error { return c.db.Close() }

// Publish replaces the story row and all of its nodes in one transaction.
func (c *SQLiteCatalog) Publish(ctx context.Context, entry Entry, snap *review.Snapshot) error {
	categories, err := json.Marshal(entry.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stories (story_id, title, description, author, created, categories, start_node, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(story_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			author = excluded.author,
			created = excluded.created,
			categories = excluded.categories,
			start_node = excluded.start_node,
			published_at = excluded.published_at`,
		entry.StoryID, entry.Title, entry.Description, entry.Author, entry.Created,
		string(categories), entry.StartNode, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert story: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM story_nodes WHERE story_id = ?`, entry.StoryID); err != nil {
		return fmt.Errorf("failed to clear story nodes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO story_nodes (story_id, node_id, position, content, choices, image)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer stmt.Close()

	for i, id := range snap.Order {
		n := snap.Nodes[id]
		choices, err := json.Marshal(n.Choices)
		if err != nil {
			return fmt.Errorf("failed to encode choices of %q: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, entry.StoryID, id, i, n.Content, string(choices), n.Image); err != nil {
			return fmt.Errorf("failed to insert node %q: %w", id, err)
		}
	}

	return tx.Commit()
}

// List returns every published story sorted by id.
func (c *SQLiteCatalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT story_id, title, description, author, created, categories, start_node
		FROM stories ORDER BY story_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stories: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                                     Entry
			description, author, created, catJSON sql.NullString
		)
		if err := rows.Scan(&e.StoryID, &e.Title, &description, &author, &created, &catJSON, &e.StartNode); err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		e.Description, e.Author, e.Created = description.String, author.String, created.String
		if catJSON.Valid && catJSON.String != "" {
			if err := json.Unmarshal([]byte(catJSON.String), &e.Categories); err != nil {
				return nil, fmt.Errorf("failed to decode categories of %q: %w", e.StoryID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PublishedNode is a node as stored in the catalog.
type PublishedNode struct {
	ID      string
	Content string
	Choices []story.Choice
	Image   string
}

// Nodes returns a published story's nodes in declaration order.
func (c *SQLiteCatalog) Nodes(ctx context.Context, storyID string) ([]PublishedNode, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT node_id, content, choices, image
		FROM story_nodes WHERE story_id = ? ORDER BY position`, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []PublishedNode
	for rows.Next() {
		var (
			n       PublishedNode
			choices string
			image   sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.Content, &choices, &image); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if err := json.Unmarshal([]byte(choices), &n.Choices); err != nil {
			return nil, fmt.Errorf("failed to decode choices of %q: %w", n.ID, err)
		}
		n.Image = image.String
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
