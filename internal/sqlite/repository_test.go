package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"microblog/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return NewRepository(db)
}

func mustCreateUser(t *testing.T, r *Repository, id, name string) domain.User {
	t.Helper()
	u := domain.User{ID: id, Username: name, CreatedAt: time.Now().UTC()}
	if err := r.CreateUser(context.Background(), &u, name+"@example.com", "x"); err != nil {
		t.Fatal(err)
	}
	return u
}

func mustCreatePost(t *testing.T, r *Repository, id, authorID, groupID, text string, at time.Time) domain.Post {
	t.Helper()
	p := domain.Post{ID: id, AuthorID: authorID, GroupID: groupID, Text: text, CreatedAt: at}
	if err := r.CreatePost(context.Background(), &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestListPostsOrdering(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustCreateUser(t, r, "u1", "leo")
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	mustCreatePost(t, r, "a", "u1", "", "oldest", base)
	mustCreatePost(t, r, "b", "u1", "", "newest", base.Add(time.Minute))
	// Two posts at the same instant: higher id first.
	mustCreatePost(t, r, "c", "u1", "", "tie-high", base.Add(30*time.Second))
	mustCreatePost(t, r, "b2", "u1", "", "tie-low", base.Add(30*time.Second))

	posts, err := r.ListPosts(ctx, domain.PostFilter{})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"newest", "tie-high", "tie-low", "oldest"}
	if len(posts) != len(want) {
		t.Fatalf("got %d posts, want %d", len(posts), len(want))
	}
	for i, text := range want {
		if posts[i].Text != text {
			t.Errorf("position %d: got %q, want %q", i, posts[i].Text, text)
		}
	}
}

func TestListPostsFilters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustCreateUser(t, r, "u1", "leo")
	mustCreateUser(t, r, "u2", "mia")
	g := domain.Group{ID: "g1", Title: "Cooking", Slug: "cooking"}
	if err := r.CreateGroup(ctx, &g); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()

	mustCreatePost(t, r, "p1", "u1", "g1", "grouped by leo", now)
	mustCreatePost(t, r, "p2", "u2", "", "plain by mia", now.Add(time.Second))
	mustCreatePost(t, r, "p3", "u1", "", "plain by leo", now.Add(2*time.Second))

	t.Run("by group", func(t *testing.T) {
		posts, err := r.ListPosts(ctx, domain.PostFilter{GroupID: "g1"})
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 1 || posts[0].ID != "p1" {
			t.Errorf("got %v", posts)
		}
	})

	t.Run("by author", func(t *testing.T) {
		posts, err := r.ListPosts(ctx, domain.PostFilter{AuthorID: "u2"})
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 1 || posts[0].ID != "p2" {
			t.Errorf("got %v", posts)
		}
	})

	t.Run("by author set", func(t *testing.T) {
		posts, err := r.ListPosts(ctx, domain.PostFilter{AuthorIn: []string{"u1"}})
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 2 {
			t.Errorf("got %d posts, want 2", len(posts))
		}
	})

	t.Run("empty author set matches nothing", func(t *testing.T) {
		posts, err := r.ListPosts(ctx, domain.PostFilter{AuthorIn: []string{}})
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 0 {
			t.Errorf("got %d posts, want 0", len(posts))
		}
	})

	t.Run("text query", func(t *testing.T) {
		posts, err := r.ListPosts(ctx, domain.PostFilter{TextQuery: "mia"})
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 1 || posts[0].ID != "p2" {
			t.Errorf("got %v", posts)
		}
	})

	t.Run("unknown ids yield empty, not error", func(t *testing.T) {
		posts, err := r.ListPosts(ctx, domain.PostFilter{GroupID: "nope"})
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 0 {
			t.Errorf("got %v", posts)
		}
	})
}

func TestPostLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustCreateUser(t, r, "u1", "leo")
	post := mustCreatePost(t, r, "p1", "u1", "", "draft", time.Now().UTC())

	got, err := r.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "draft" || got.GroupID != "" {
		t.Errorf("got %+v", got)
	}

	got.Text = "revised"
	if err := r.UpdatePost(ctx, &got); err != nil {
		t.Fatal(err)
	}
	got, err = r.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "revised" {
		t.Errorf("after update: %q", got.Text)
	}

	if err := r.DeletePost(ctx, post.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetPost(ctx, post.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("after delete: got %v, want ErrNotFound", err)
	}

	// Deleting again is a no-op.
	if err := r.DeletePost(ctx, post.ID); err != nil {
		t.Errorf("second delete: %v", err)
	}

	missing := domain.Post{ID: "nope", Text: "x"}
	if err := r.UpdatePost(ctx, &missing); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("update of missing post: got %v, want ErrNotFound", err)
	}
}

func TestFollowGraph(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustCreateUser(t, r, "x", "viewer")
	mustCreateUser(t, r, "a", "author")
	mustCreateUser(t, r, "b", "other")

	if err := r.Unfollow(ctx, "x", "a"); err != nil {
		t.Fatalf("unfollow of non-edge: %v", err)
	}

	if err := r.Follow(ctx, "x", "a"); err != nil {
		t.Fatal(err)
	}
	if err := r.Follow(ctx, "x", "a"); err != nil {
		t.Fatalf("repeat follow: %v", err)
	}
	if err := r.Follow(ctx, "x", "b"); err != nil {
		t.Fatal(err)
	}

	following, err := r.IsFollowing(ctx, "x", "a")
	if err != nil || !following {
		t.Fatalf("IsFollowing = %v, %v", following, err)
	}

	followed, err := r.FollowedBy(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(followed) != 2 {
		t.Errorf("FollowedBy = %v, want 2 ids", followed)
	}

	if err := r.Unfollow(ctx, "x", "a"); err != nil {
		t.Fatal(err)
	}
	following, err = r.IsFollowing(ctx, "x", "a")
	if err != nil || following {
		t.Fatalf("after unfollow IsFollowing = %v, %v", following, err)
	}
}

func TestGroupsAndBatchLookups(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustCreateUser(t, r, "u1", "leo")
	mustCreateUser(t, r, "u2", "mia")

	g := domain.Group{ID: "g1", Title: "Cooking", Slug: "cooking", Description: "recipes"}
	if err := r.CreateGroup(ctx, &g); err != nil {
		t.Fatal(err)
	}

	got, err := r.GroupBySlug(ctx, "cooking")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Cooking" {
		t.Errorf("got %+v", got)
	}
	if _, err := r.GroupBySlug(ctx, "absent"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	dup := domain.Group{ID: "g2", Title: "Other", Slug: "cooking"}
	if err := r.CreateGroup(ctx, &dup); err == nil {
		t.Error("duplicate slug accepted")
	}

	titles, err := r.GroupTitles(ctx, []string{"g1", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 1 || titles["g1"] != "Cooking" {
		t.Errorf("titles = %v", titles)
	}

	names, err := r.Usernames(ctx, []string{"u1", "u2", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names["u1"] != "leo" || names["u2"] != "mia" {
		t.Errorf("names = %v", names)
	}

	empty, err := r.Usernames(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("empty lookup = %v", empty)
	}
}

func TestUsersAndCredentials(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	u := domain.User{ID: "u1", Username: "leo", CreatedAt: time.Now().UTC()}
	if err := r.CreateUser(ctx, &u, "leo@example.com", "hash123"); err != nil {
		t.Fatal(err)
	}

	got, err := r.UserByName(ctx, "leo")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "u1" || got.IsAdmin {
		t.Errorf("got %+v", got)
	}

	byID, err := r.UserByID(ctx, "u1")
	if err != nil || byID.Username != "leo" {
		t.Errorf("UserByID = %+v, %v", byID, err)
	}

	_, hash, err := r.Credentials(ctx, "leo")
	if err != nil || hash != "hash123" {
		t.Errorf("Credentials = %q, %v", hash, err)
	}

	if _, err := r.UserByName(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	dup := domain.User{ID: "u2", Username: "leo", CreatedAt: time.Now().UTC()}
	if err := r.CreateUser(ctx, &dup, "other@example.com", "x"); err == nil {
		t.Error("duplicate username accepted")
	}
}

func TestComments(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustCreateUser(t, r, "u1", "leo")
	post := mustCreatePost(t, r, "p1", "u1", "", "discuss", time.Now().UTC())
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		c := domain.Comment{
			ID:        fmt.Sprintf("c%d", i),
			PostID:    post.ID,
			AuthorID:  "u1",
			Text:      fmt.Sprintf("reply %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := r.AddComment(ctx, &c); err != nil {
			t.Fatal(err)
		}
	}

	comments, err := r.ListComments(ctx, post.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 3 {
		t.Fatalf("got %d comments", len(comments))
	}
	for i, c := range comments {
		if c.Text != fmt.Sprintf("reply %d", i) {
			t.Errorf("position %d: %q", i, c.Text)
		}
	}

	// ON DELETE CASCADE: comments go with the post.
	if err := r.DeletePost(ctx, post.ID); err != nil {
		t.Fatal(err)
	}
	comments, err = r.ListComments(ctx, post.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 0 {
		t.Errorf("comments survived post deletion: %v", comments)
	}
}
