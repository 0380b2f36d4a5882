package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// homeFeedKey is the single cache key in use: the Global scope's first
// page under default parameters. Every other (scope, page) combination
// is recomputed per request.
const homeFeedKey = "feed:global:1"

// Service is the core feed service. It assembles paginated timelines
// from the post store, caches the home timeline, and owns the write
// paths for posts, comments, groups and follow edges.
type Service struct {
	posts    PostStore
	groups   GroupStore
	users    UserStore
	follows  FollowGraph
	comments CommentStore
	cache    *PageCache
	pageSize int
	logger   *slog.Logger
}

// NewService creates a Service. pageSize is the fixed number of posts
// per page shared by every feed scope and must be positive.
func NewService(
	posts PostStore,
	groups GroupStore,
	users UserStore,
	follows FollowGraph,
	comments CommentStore,
	cache *PageCache,
	pageSize int,
	logger *slog.Logger,
) (*Service, error) {
	if pageSize < 1 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	return &Service{
		posts:    posts,
		groups:   groups,
		users:    users,
		follows:  follows,
		comments: comments,
		cache:    cache,
		pageSize: pageSize,
		logger:   logger,
	}, nil
}

// Timeline returns one page of the feed identified by scope. Out-of-range
// page numbers are clamped, never an error. Unknown group or author ids
// yield an empty page; existence checks belong to the caller.
//
// Only the Global scope's first page is served through the cache, so a
// fetch there may be up to the cache TTL stale. Every other scope
// reflects the store as of this call, including follow edges created in
// the same request cycle.
func (s *Service) Timeline(ctx context.Context, scope Scope, page int) (Page, error) {
	if scope.Kind == ScopeGlobal && page <= 1 {
		return s.cache.GetOrCompute(homeFeedKey, func() (Page, error) {
			return s.assemble(ctx, scope, page)
		})
	}
	return s.assemble(ctx, scope, page)
}

// Search returns one page of posts whose text contains query, in feed order.
func (s *Service) Search(ctx context.Context, query string, page int) (Page, error) {
	posts, err := s.posts.ListPosts(ctx, PostFilter{TextQuery: query})
	if err != nil {
		return Page{}, fmt.Errorf("search posts: %w", err)
	}
	return s.buildPage(ctx, posts, page)
}

func (s *Service) assemble(ctx context.Context, scope Scope, page int) (Page, error) {
	var filter PostFilter

	switch scope.Kind {
	case ScopeGlobal:
		// No filter: the store-wide ordered sequence.
	case ScopeGroup:
		filter.GroupID = scope.GroupID
	case ScopeAuthor:
		filter.AuthorID = scope.AuthorID
	case ScopeFollowing:
		authors, err := s.follows.FollowedBy(ctx, scope.UserID)
		if err != nil {
			return Page{}, fmt.Errorf("resolve followed authors: %w", err)
		}
		if len(authors) == 0 {
			return s.buildPage(ctx, nil, page)
		}
		filter.AuthorIn = authors
	default:
		return Page{}, fmt.Errorf("unknown feed scope %d", scope.Kind)
	}

	posts, err := s.posts.ListPosts(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("list posts: %w", err)
	}

	s.logger.Debug("timeline assembled", "scope", scope.Kind, "posts", len(posts), "page", page)

	return s.buildPage(ctx, posts, page)
}

// buildPage slices the ordered sequence and resolves display names for
// the selected window in two batch lookups.
func (s *Service) buildPage(ctx context.Context, posts []Post, page int) (Page, error) {
	desc := Paginate(len(posts), s.pageSize, page)
	window := posts[desc.Start:desc.End]

	authorIDs := make([]string, 0, len(window))
	groupIDs := make([]string, 0, len(window))
	for _, p := range window {
		authorIDs = append(authorIDs, p.AuthorID)
		if p.GroupID != "" {
			groupIDs = append(groupIDs, p.GroupID)
		}
	}

	authors, err := s.users.Usernames(ctx, authorIDs)
	if err != nil {
		return Page{}, fmt.Errorf("resolve author names: %w", err)
	}
	titles, err := s.groups.GroupTitles(ctx, groupIDs)
	if err != nil {
		return Page{}, fmt.Errorf("resolve group titles: %w", err)
	}

	items := make([]FeedEntry, len(window))
	for i, p := range window {
		items[i] = FeedEntry{
			Post:   p,
			Author: authors[p.AuthorID],
			Group:  titles[p.GroupID],
		}
	}

	return Page{
		Items:       items,
		CurrentPage: desc.Page,
		TotalPages:  desc.PageCount,
		HasNext:     desc.Page < desc.PageCount,
		HasPrevious: desc.Page > 1,
	}, nil
}

// CreatePost publishes a new post by authorID. The cached home page is
// not invalidated; the new post becomes visible there once the cache
// entry expires.
func (s *Service) CreatePost(ctx context.Context, authorID, groupID, text, imagePath string) (Post, error) {
	post := Post{
		ID:        uuid.New().String(),
		AuthorID:  authorID,
		GroupID:   groupID,
		Text:      text,
		ImagePath: imagePath,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.posts.CreatePost(ctx, &post); err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// UpdatePost rewrites a post's text, group and image. Only the author
// may edit.
func (s *Service) UpdatePost(ctx context.Context, requester User, postID, groupID, text, imagePath string) (Post, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return Post{}, err
	}
	if post.AuthorID != requester.ID {
		return Post{}, ErrPermission
	}

	post.GroupID = groupID
	post.Text = text
	post.ImagePath = imagePath
	if err := s.posts.UpdatePost(ctx, &post); err != nil {
		return Post{}, fmt.Errorf("update post: %w", err)
	}
	return post, nil
}

// DeletePost removes a post. The author or an administrator may delete.
// The cached home page keeps showing the post until its entry expires.
func (s *Service) DeletePost(ctx context.Context, requester User, postID string) error {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != requester.ID && !requester.IsAdmin {
		return ErrPermission
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// GetPost retrieves a single post with its comments.
func (s *Service) GetPost(ctx context.Context, postID string) (Post, []Comment, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return Post{}, nil, err
	}
	comments, err := s.comments.ListComments(ctx, postID)
	if err != nil {
		return Post{}, nil, fmt.Errorf("list comments: %w", err)
	}
	return post, comments, nil
}

// AddComment attaches a comment to a post.
func (s *Service) AddComment(ctx context.Context, authorID, postID, text string) (Comment, error) {
	if _, err := s.posts.GetPost(ctx, postID); err != nil {
		return Comment{}, err
	}
	comment := Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.comments.AddComment(ctx, &comment); err != nil {
		return Comment{}, fmt.Errorf("add comment: %w", err)
	}
	return comment, nil
}

// CreateGroup registers a new group. Slugs are unique.
func (s *Service) CreateGroup(ctx context.Context, title, slug, description string) (Group, error) {
	group := Group{
		ID:          uuid.New().String(),
		Title:       title,
		Slug:        slug,
		Description: description,
	}
	if err := s.groups.CreateGroup(ctx, &group); err != nil {
		return Group{}, fmt.Errorf("create group: %w", err)
	}
	return group, nil
}

// Follow creates a follow edge. Idempotent.
func (s *Service) Follow(ctx context.Context, followerID, followedID string) error {
	if err := s.follows.Follow(ctx, followerID, followedID); err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	return nil
}

// Unfollow removes a follow edge. Removing a non-edge is a no-op.
func (s *Service) Unfollow(ctx context.Context, followerID, followedID string) error {
	if err := s.follows.Unfollow(ctx, followerID, followedID); err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	return nil
}

// IsFollowing reports whether follower follows followed.
func (s *Service) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	return s.follows.IsFollowing(ctx, followerID, followedID)
}

// GroupBySlug resolves a group for the presentation layer's existence
// checks (404 semantics live there, not in the assembler).
func (s *Service) GroupBySlug(ctx context.Context, slug string) (Group, error) {
	return s.groups.GroupBySlug(ctx, slug)
}

// UserByName resolves a user by username.
func (s *Service) UserByName(ctx context.Context, username string) (User, error) {
	return s.users.UserByName(ctx, username)
}
