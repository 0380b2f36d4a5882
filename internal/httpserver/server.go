package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"microblog/internal/auth"
	"microblog/internal/config"
	"microblog/internal/domain"
)

// AccountStore is the credential-side user access the HTTP layer needs.
// The domain core never sees these.
type AccountStore interface {
	CreateUser(ctx context.Context, user *domain.User, email, passwordHash string) error
	Credentials(ctx context.Context, username string) (domain.User, string, error)
	UserByID(ctx context.Context, id string) (domain.User, error)
}

// Server serves the JSON API over the feed service.
type Server struct {
	cfg        *config.Config
	service    *domain.Service
	accounts   AccountStore
	sessions   *auth.Manager
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates an HTTP server wired to the given service.
func NewServer(
	cfg *config.Config,
	service *domain.Service,
	accounts AccountStore,
	sessions *auth.Manager,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		service:  service,
		accounts: accounts,
		sessions: sessions,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.HandleFunc("GET /api/feed", s.handleGlobalFeed)
	mux.HandleFunc("GET /api/feed/following", s.handleFollowingFeed)
	mux.HandleFunc("GET /api/groups/{slug}/feed", s.handleGroupFeed)
	mux.HandleFunc("GET /api/users/{username}/feed", s.handleAuthorFeed)
	mux.HandleFunc("GET /api/search", s.handleSearch)

	mux.HandleFunc("POST /api/posts", s.handleCreatePost)
	mux.HandleFunc("GET /api/posts/{id}", s.handleGetPost)
	mux.HandleFunc("PUT /api/posts/{id}", s.handleUpdatePost)
	mux.HandleFunc("DELETE /api/posts/{id}", s.handleDeletePost)
	mux.HandleFunc("POST /api/posts/{id}/comments", s.handleAddComment)

	mux.HandleFunc("POST /api/groups", s.handleCreateGroup)
	mux.HandleFunc("POST /api/users/{username}/follow", s.handleFollow)
	mux.HandleFunc("DELETE /api/users/{username}/follow", s.handleUnfollow)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server
// is shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "username and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.internalError(w, "hash password", err)
		return
	}

	user := domain.User{
		ID:        uuid.New().String(),
		Username:  req.Username,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.accounts.CreateUser(r.Context(), &user, req.Email, hash); err != nil {
		writeError(w, http.StatusConflict, "Conflict", "username or email already taken")
		return
	}
	if err := s.sessions.Create(r.Context(), w, user.ID); err != nil {
		s.internalError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}

	user, hash, err := s.accounts.Credentials(r.Context(), req.Username)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid username or password")
		return
	}
	if err != nil {
		s.internalError(w, "load credentials", err)
		return
	}
	if err := auth.CheckPassword(hash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid username or password")
		return
	}
	if err := s.sessions.Create(r.Context(), w, user.ID); err != nil {
		s.internalError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Destroy(r.Context(), w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGlobalFeed(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.Timeline(r.Context(), domain.Global(), pageParam(r))
	if err != nil {
		s.internalError(w, "global feed", err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(page))
}

func (s *Server) handleGroupFeed(w http.ResponseWriter, r *http.Request) {
	// Existence check (404 semantics) lives here, not in the assembler.
	group, err := s.service.GroupBySlug(r.Context(), r.PathValue("slug"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "unknown group")
		return
	}
	if err != nil {
		s.internalError(w, "resolve group", err)
		return
	}

	page, err := s.service.Timeline(r.Context(), domain.ByGroup(group.ID), pageParam(r))
	if err != nil {
		s.internalError(w, "group feed", err)
		return
	}
	resp := pageResponse(page)
	resp["group"] = map[string]string{
		"title":       group.Title,
		"slug":        group.Slug,
		"description": group.Description,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuthorFeed(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.UserByName(r.Context(), r.PathValue("username"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "unknown user")
		return
	}
	if err != nil {
		s.internalError(w, "resolve user", err)
		return
	}

	page, err := s.service.Timeline(r.Context(), domain.ByAuthor(user.ID), pageParam(r))
	if err != nil {
		s.internalError(w, "author feed", err)
		return
	}
	resp := pageResponse(page)
	resp["author"] = user.Username
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFollowingFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessions.CurrentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}

	page, err := s.service.Timeline(r.Context(), domain.ByFollowing(userID), pageParam(r))
	if err != nil {
		s.internalError(w, "following feed", err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(page))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "q parameter is required")
		return
	}
	page, err := s.service.Search(r.Context(), query, pageParam(r))
	if err != nil {
		s.internalError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(page))
}

type postRequest struct {
	Text      string `json:"text"`
	GroupSlug string `json:"group_slug"`
	ImagePath string `json:"image_path"`
}

// resolveGroup maps an optional group slug to its id. An empty slug
// means an ungrouped post.
func (s *Server) resolveGroup(ctx context.Context, slug string) (string, error) {
	if slug == "" {
		return "", nil
	}
	group, err := s.service.GroupBySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	return group.ID, nil
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessions.CurrentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "text is required")
		return
	}

	groupID, err := s.resolveGroup(r.Context(), req.GroupSlug)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "unknown group")
		return
	}
	if err != nil {
		s.internalError(w, "resolve group", err)
		return
	}

	post, err := s.service.CreatePost(r.Context(), userID, groupID, req.Text, req.ImagePath)
	if err != nil {
		s.internalError(w, "create post", err)
		return
	}
	writeJSON(w, http.StatusCreated, postResponse(post))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, comments, err := s.service.GetPost(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "unknown post")
		return
	}
	if err != nil {
		s.internalError(w, "get post", err)
		return
	}

	resp := postResponse(post)
	list := make([]map[string]any, len(comments))
	for i, c := range comments {
		list[i] = map[string]any{
			"id":         c.ID,
			"author_id":  c.AuthorID,
			"text":       c.Text,
			"created_at": c.CreatedAt,
		}
	}
	resp["comments"] = list
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	requester, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "text is required")
		return
	}

	groupID, err := s.resolveGroup(r.Context(), req.GroupSlug)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "unknown group")
		return
	}
	if err != nil {
		s.internalError(w, "resolve group", err)
		return
	}

	post, err := s.service.UpdatePost(r.Context(), requester, r.PathValue("id"), groupID, req.Text, req.ImagePath)
	if err != nil {
		s.serviceError(w, "update post", err)
		return
	}
	writeJSON(w, http.StatusOK, postResponse(post))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	requester, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	if err := s.service.DeletePost(r.Context(), requester, r.PathValue("id")); err != nil {
		s.serviceError(w, "delete post", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type commentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessions.CurrentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "text is required")
		return
	}

	comment, err := s.service.AddComment(r.Context(), userID, r.PathValue("id"), req.Text)
	if err != nil {
		s.serviceError(w, "add comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         comment.ID,
		"post_id":    comment.PostID,
		"text":       comment.Text,
		"created_at": comment.CreatedAt,
	})
}

type groupRequest struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessions.CurrentUserID(r); !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.Title == "" || req.Slug == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "title and slug are required")
		return
	}

	group, err := s.service.CreateGroup(r.Context(), req.Title, req.Slug, req.Description)
	if err != nil {
		writeError(w, http.StatusConflict, "Conflict", "slug already taken")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"title": group.Title,
		"slug":  group.Slug,
	})
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	s.changeFollow(w, r, s.service.Follow)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	s.changeFollow(w, r, s.service.Unfollow)
}

func (s *Server) changeFollow(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) error) {
	userID, ok := s.sessions.CurrentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}

	target, err := s.service.UserByName(r.Context(), r.PathValue("username"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "unknown user")
		return
	}
	if err != nil {
		s.internalError(w, "resolve user", err)
		return
	}

	if err := op(r.Context(), userID, target.ID); err != nil {
		s.internalError(w, "change follow", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// currentUser resolves the session to a full user record, writing the
// error response itself when that fails.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	userID, ok := s.sessions.CurrentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return domain.User{}, false
	}
	user, err := s.accounts.UserByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return domain.User{}, false
	}
	return user, true
}

func (s *Server) serviceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "not found")
	case errors.Is(err, domain.ErrPermission):
		writeError(w, http.StatusForbidden, "Forbidden", "not allowed")
	default:
		s.internalError(w, op, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "InternalError", "internal error")
}

// pageParam extracts the requested page number. Anything unparseable
// maps to the first page; out-of-range values are clamped downstream.
func pageParam(r *http.Request) int {
	p := r.URL.Query().Get("page")
	if p == "" {
		return 1
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 1
	}
	return n
}

func pageResponse(page domain.Page) map[string]any {
	items := make([]map[string]any, len(page.Items))
	for i, entry := range page.Items {
		item := postResponse(entry.Post)
		item["author"] = entry.Author
		item["group"] = entry.Group
		items[i] = item
	}
	return map[string]any{
		"items":        items,
		"current_page": page.CurrentPage,
		"total_pages":  page.TotalPages,
		"has_next":     page.HasNext,
		"has_previous": page.HasPrevious,
	}
}

func postResponse(post domain.Post) map[string]any {
	return map[string]any{
		"id":         post.ID,
		"author_id":  post.AuthorID,
		"text":       post.Text,
		"image_path": post.ImagePath,
		"created_at": post.CreatedAt,
	}
}

func userResponse(user domain.User) map[string]any {
	return map[string]any{
		"id":       user.ID,
		"username": user.Username,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
