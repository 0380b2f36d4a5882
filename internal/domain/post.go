package domain

import "time"

// Post is a single published entry.
type Post struct {
	// ID is an opaque unique identifier assigned at creation.
	ID string

	// AuthorID references the user who wrote the post.
	AuthorID string

	// GroupID references the topical group the post belongs to.
	// Empty means the post is not grouped.
	GroupID string

	// Text is the post body. Non-empty and length-bounded by the time
	// it reaches this layer.
	Text string

	// ImagePath is an opaque reference to an attached image, if any.
	// Storage and transcoding happen elsewhere.
	ImagePath string

	// CreatedAt is assigned once at creation and never changes. It is
	// the primary ordering key for every feed.
	CreatedAt time.Time
}

// Group is a topical collection of posts.
type Group struct {
	ID          string
	Title       string
	Slug        string
	Description string
}

// Comment is a reply attached to a post.
type Comment struct {
	ID        string
	PostID    string
	AuthorID  string
	Text      string
	CreatedAt time.Time
}

// User is the identity the session layer hands to the core. The core
// never sees credentials.
type User struct {
	ID        string
	Username  string
	IsAdmin   bool
	CreatedAt time.Time
}

// FeedEntry is the per-post view tuple rendered in a timeline. It is
// computed, never persisted.
type FeedEntry struct {
	Post Post

	// Author is the display name of the post's author.
	Author string

	// Group is the display title of the post's group, empty if none.
	Group string
}
