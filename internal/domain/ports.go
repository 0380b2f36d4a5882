package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrPermission is returned when a user attempts a write they do not own.
var ErrPermission = errors.New("permission denied")

// PostFilter narrows a post listing. Zero-value fields are ignored.
// AuthorIn selects posts whose author is in the given set; an empty
// non-nil set matches nothing.
type PostFilter struct {
	GroupID  string
	AuthorID string
	AuthorIn []string

	// TextQuery matches posts whose text contains the given substring.
	TextQuery string
}

// PostStore defines persistence operations for posts. Listings are
// always ordered by creation time descending, ties broken by id
// descending.
type PostStore interface {
	// CreatePost inserts a new post.
	CreatePost(ctx context.Context, post *Post) error

	// GetPost retrieves a post by id. Returns ErrNotFound if absent.
	GetPost(ctx context.Context, id string) (Post, error)

	// UpdatePost rewrites a post's mutable fields (text, group, image).
	UpdatePost(ctx context.Context, post *Post) error

	// DeletePost removes a post by id. Deleting an absent post is a no-op.
	DeletePost(ctx context.Context, id string) error

	// ListPosts returns the full ordered sequence matching the filter.
	ListPosts(ctx context.Context, filter PostFilter) ([]Post, error)
}

// FollowGraph defines the directed follower/followed edge set.
type FollowGraph interface {
	// FollowedBy returns the ids of every author userID follows.
	FollowedBy(ctx context.Context, userID string) ([]string, error)

	// IsFollowing reports whether the edge (follower, followed) exists.
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)

	// Follow creates the edge. Following an already-followed author is
	// idempotent.
	Follow(ctx context.Context, followerID, followedID string) error

	// Unfollow removes the edge. Unfollowing a non-edge is a no-op.
	Unfollow(ctx context.Context, followerID, followedID string) error
}

// GroupStore defines persistence operations for groups.
type GroupStore interface {
	CreateGroup(ctx context.Context, group *Group) error

	// GroupBySlug retrieves a group by its unique slug. Returns
	// ErrNotFound if absent.
	GroupBySlug(ctx context.Context, slug string) (Group, error)

	// GroupTitles resolves group ids to display titles in one batch.
	// Unknown ids are simply absent from the result.
	GroupTitles(ctx context.Context, ids []string) (map[string]string, error)
}

// UserStore defines the identity lookups the core needs. Credential
// handling lives in the auth layer.
type UserStore interface {
	// UserByName retrieves a user by username. Returns ErrNotFound if absent.
	UserByName(ctx context.Context, username string) (User, error)

	// Usernames resolves user ids to display names in one batch.
	Usernames(ctx context.Context, ids []string) (map[string]string, error)
}

// CommentStore defines persistence operations for comments.
type CommentStore interface {
	AddComment(ctx context.Context, comment *Comment) error

	// ListComments returns a post's comments ordered oldest first.
	ListComments(ctx context.Context, postID string) ([]Comment, error)
}
