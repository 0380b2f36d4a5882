// Command seed populates a database with demo users, groups, follow
// edges and posts, for local development and manual testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"microblog/internal/auth"
	"microblog/internal/domain"
	"microblog/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath   string
		users    int
		posts    int
		password string
	)
	flag.StringVar(&dbPath, "db", "microblog.db", "SQLite database path")
	flag.IntVar(&users, "users", 3, "number of demo users")
	flag.IntVar(&posts, "posts", 15, "posts per user")
	flag.StringVar(&password, "password", "password", "password for every demo user")
	flag.Parse()

	ctx := context.Background()

	db, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := sqlite.Migrate(ctx, db); err != nil {
		return err
	}

	repo := sqlite.NewRepository(db)

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	groups := []domain.Group{
		{ID: uuid.New().String(), Title: "General", Slug: "general", Description: "Anything goes"},
		{ID: uuid.New().String(), Title: "Travel", Slug: "travel", Description: "Trip reports"},
	}
	for i := range groups {
		if err := repo.CreateGroup(ctx, &groups[i]); err != nil {
			return fmt.Errorf("create group %s: %w", groups[i].Slug, err)
		}
	}

	var ids []string
	for i := 0; i < users; i++ {
		user := domain.User{
			ID:        uuid.New().String(),
			Username:  fmt.Sprintf("demo%d", i+1),
			CreatedAt: time.Now().UTC(),
		}
		email := fmt.Sprintf("%s@example.com", user.Username)
		if err := repo.CreateUser(ctx, &user, email, hash); err != nil {
			return fmt.Errorf("create user %s: %w", user.Username, err)
		}
		ids = append(ids, user.ID)

		base := time.Now().UTC().Add(-time.Duration(posts) * time.Minute)
		for j := 0; j < posts; j++ {
			post := domain.Post{
				ID:        uuid.New().String(),
				AuthorID:  user.ID,
				GroupID:   groups[j%len(groups)].ID,
				Text:      fmt.Sprintf("%s writes entry %d", user.Username, j+1),
				CreatedAt: base.Add(time.Duration(j) * time.Minute),
			}
			if err := repo.CreatePost(ctx, &post); err != nil {
				return fmt.Errorf("create post: %w", err)
			}
		}
	}

	// Everyone follows the first demo user.
	for _, id := range ids[1:] {
		if err := repo.Follow(ctx, id, ids[0]); err != nil {
			return fmt.Errorf("create follow edge: %w", err)
		}
	}

	fmt.Printf("seeded %d users, %d groups, %d posts into %s\n",
		users, len(groups), users*posts, dbPath)
	return nil
}
