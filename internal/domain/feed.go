package domain

// ScopeKind names the filter that selects which posts populate a feed.
type ScopeKind int

const (
	// ScopeGlobal selects every post in the store.
	ScopeGlobal ScopeKind = iota

	// ScopeGroup selects posts belonging to one group.
	ScopeGroup

	// ScopeAuthor selects posts written by one author.
	ScopeAuthor

	// ScopeFollowing selects posts written by the authors a user follows.
	ScopeFollowing
)

// Scope identifies a feed. Construct one with Global, ByGroup, ByAuthor
// or ByFollowing.
type Scope struct {
	Kind ScopeKind

	// GroupID is set for ScopeGroup.
	GroupID string

	// AuthorID is set for ScopeAuthor.
	AuthorID string

	// UserID is the viewer whose follow edges define a ScopeFollowing feed.
	UserID string
}

// Global is the site-wide feed.
func Global() Scope {
	return Scope{Kind: ScopeGlobal}
}

// ByGroup is the feed of a single group.
func ByGroup(groupID string) Scope {
	return Scope{Kind: ScopeGroup, GroupID: groupID}
}

// ByAuthor is the feed of a single author's posts.
func ByAuthor(authorID string) Scope {
	return Scope{Kind: ScopeAuthor, AuthorID: authorID}
}

// ByFollowing is the aggregated feed of every author userID follows.
func ByFollowing(userID string) Scope {
	return Scope{Kind: ScopeFollowing, UserID: userID}
}

// Page is the payload handed to the presentation layer.
type Page struct {
	Items       []FeedEntry
	CurrentPage int
	TotalPages  int
	HasNext     bool
	HasPrevious bool
}
