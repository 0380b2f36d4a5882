package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"microblog/internal/domain"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the database at path. Use ":memory:" for an
// ephemeral database in tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc's driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users(
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			is_admin INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions(
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			expires_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS groups(
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			slug TEXT UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS posts(
			id TEXT PRIMARY KEY,
			author_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			group_id TEXT REFERENCES groups(id) ON DELETE SET NULL,
			text TEXT NOT NULL,
			image_path TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_order ON posts(created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_group ON posts(group_id);`,
		`CREATE TABLE IF NOT EXISTS comments(
			id TEXT PRIMARY KEY,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			author_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS follows(
			follower_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			followed_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY(follower_id, followed_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Repository implements the domain's PostStore, GroupStore, UserStore,
// FollowGraph and CommentStore ports on SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreatePost inserts a new post.
func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, group_id, text, image_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		post.ID, post.AuthorID, nullable(post.GroupID), post.Text, post.ImagePath, post.CreatedAt.UnixNano(),
	)
	return err
}

// GetPost retrieves a post by id.
func (r *Repository) GetPost(ctx context.Context, id string) (domain.Post, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, author_id, group_id, text, image_path, created_at
		FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

// UpdatePost rewrites a post's mutable fields.
func (r *Repository) UpdatePost(ctx context.Context, post *domain.Post) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE posts SET group_id = ?, text = ?, image_path = ? WHERE id = ?`,
		nullable(post.GroupID), post.Text, post.ImagePath, post.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeletePost removes a post by id. Deleting an absent post is a no-op.
func (r *Repository) DeletePost(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	return err
}

// ListPosts returns the full ordered sequence matching the filter,
// newest first with id as the tie-break.
func (r *Repository) ListPosts(ctx context.Context, filter domain.PostFilter) ([]domain.Post, error) {
	var (
		conds []string
		args  []any
	)
	if filter.GroupID != "" {
		conds = append(conds, "group_id = ?")
		args = append(args, filter.GroupID)
	}
	if filter.AuthorID != "" {
		conds = append(conds, "author_id = ?")
		args = append(args, filter.AuthorID)
	}
	if filter.AuthorIn != nil {
		if len(filter.AuthorIn) == 0 {
			return nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.AuthorIn)), ",")
		conds = append(conds, "author_id IN ("+placeholders+")")
		for _, id := range filter.AuthorIn {
			args = append(args, id)
		}
	}
	if filter.TextQuery != "" {
		conds = append(conds, "instr(text, ?) > 0")
		args = append(args, filter.TextQuery)
	}

	query := `SELECT id, author_id, group_id, text, image_path, created_at FROM posts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// CreateGroup inserts a new group.
func (r *Repository) CreateGroup(ctx context.Context, group *domain.Group) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO groups (id, title, slug, description) VALUES (?, ?, ?, ?)`,
		group.ID, group.Title, group.Slug, group.Description,
	)
	return err
}

// GroupBySlug retrieves a group by its unique slug.
func (r *Repository) GroupBySlug(ctx context.Context, slug string) (domain.Group, error) {
	var g domain.Group
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, slug, description FROM groups WHERE slug = ?`, slug,
	).Scan(&g.ID, &g.Title, &g.Slug, &g.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Group{}, domain.ErrNotFound
	}
	return g, err
}

// GroupTitles resolves group ids to titles in one query.
func (r *Repository) GroupTitles(ctx context.Context, ids []string) (map[string]string, error) {
	return r.lookupNames(ctx, `SELECT id, title FROM groups WHERE id IN (%s)`, ids)
}

// CreateUser inserts a new user with its email and password hash.
// Credentials never cross into the domain layer.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User, email, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, email, passwordHash, boolToInt(user.IsAdmin), user.CreatedAt.UnixNano(),
	)
	return err
}

// UserByName retrieves a user by username.
func (r *Repository) UserByName(ctx context.Context, username string) (domain.User, error) {
	return r.userBy(ctx, `username = ?`, username)
}

// UserByID retrieves a user by id.
func (r *Repository) UserByID(ctx context.Context, id string) (domain.User, error) {
	return r.userBy(ctx, `id = ?`, id)
}

func (r *Repository) userBy(ctx context.Context, cond string, arg any) (domain.User, error) {
	var (
		u       domain.User
		isAdmin int
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, is_admin, created_at FROM users WHERE `+cond, arg,
	).Scan(&u.ID, &u.Username, &isAdmin, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	u.IsAdmin = isAdmin == 1
	u.CreatedAt = fromNano(created)
	return u, nil
}

// Credentials retrieves a user and its password hash for login checks.
func (r *Repository) Credentials(ctx context.Context, username string) (domain.User, string, error) {
	var (
		u       domain.User
		isAdmin int
		created int64
		hash    string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, is_admin, created_at, password_hash
		FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &isAdmin, &created, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, "", domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, "", err
	}
	u.IsAdmin = isAdmin == 1
	u.CreatedAt = fromNano(created)
	return u, hash, nil
}

// Usernames resolves user ids to usernames in one query.
func (r *Repository) Usernames(ctx context.Context, ids []string) (map[string]string, error) {
	return r.lookupNames(ctx, `SELECT id, username FROM users WHERE id IN (%s)`, ids)
}

// FollowedBy returns the ids of every author userID follows.
func (r *Repository) FollowedBy(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT followed_id FROM follows WHERE follower_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query follows: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follow: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// IsFollowing reports whether the edge exists.
func (r *Repository) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM follows WHERE follower_id = ? AND followed_id = ?`,
		followerID, followedID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Follow creates the edge; repeating it is a no-op.
func (r *Repository) Follow(ctx context.Context, followerID, followedID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO follows (follower_id, followed_id) VALUES (?, ?)`,
		followerID, followedID,
	)
	return err
}

// Unfollow removes the edge; removing a non-edge is a no-op.
func (r *Repository) Unfollow(ctx context.Context, followerID, followedID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM follows WHERE follower_id = ? AND followed_id = ?`,
		followerID, followedID,
	)
	return err
}

// AddComment inserts a new comment.
func (r *Repository) AddComment(ctx context.Context, comment *domain.Comment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, author_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		comment.ID, comment.PostID, comment.AuthorID, comment.Text, comment.CreatedAt.UnixNano(),
	)
	return err
}

// ListComments returns a post's comments oldest first.
func (r *Repository) ListComments(ctx context.Context, postID string) ([]domain.Comment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, post_id, author_id, text, created_at
		FROM comments WHERE post_id = ?
		ORDER BY created_at ASC, id ASC`, postID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		var (
			c       domain.Comment
			created int64
		)
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Text, &created); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = fromNano(created)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// lookupNames runs an id→name batch query. queryFmt must contain one %s
// for the placeholder list.
func (r *Repository) lookupNames(ctx context.Context, queryFmt string, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(queryFmt, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("batch name lookup: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (domain.Post, error) {
	var (
		p       domain.Post
		groupID sql.NullString
		created int64
	)
	err := row.Scan(&p.ID, &p.AuthorID, &groupID, &p.Text, &p.ImagePath, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Post{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Post{}, err
	}
	p.GroupID = groupID.String
	p.CreatedAt = fromNano(created)
	return p, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Timestamps are stored as integer unix nanoseconds so that ordering
// and equality are exact regardless of driver text formats.
func fromNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
