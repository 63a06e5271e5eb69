package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/user/forum-subscriptions/internal/model"
	"github.com/user/forum-subscriptions/internal/store"
	"github.com/user/forum-subscriptions/internal/subscription"
)

var requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "forum_subscriptions_http_requests_total",
	Help: "HTTP API requests by route and status code",
}, []string{"route", "code"})

func init() {
	prometheus.MustRegister(requestsTotal)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}

// SubscriptionResponse reports an effective subscription state
type SubscriptionResponse struct {
	UserID       uint `json:"user_id"`
	ForumID      uint `json:"forum_id"`
	DiscussionID uint `json:"discussion_id,omitempty"`
	Subscribed   bool `json:"subscribed"`
}

// SubscribeResponse reports the outcome of a forum subscription
type SubscribeResponse struct {
	ID      uint `json:"id,omitempty"`
	Created bool `json:"created"`
}

// ChangeResponse reports whether a mutation changed anything
type ChangeResponse struct {
	Changed bool `json:"changed"`
}

// UsersResponse lists user ids
type UsersResponse struct {
	Users []uint `json:"users"`
}

// ForumResponse describes a forum
type ForumResponse struct {
	ID               uint                   `json:"id"`
	CourseID         uint                   `json:"course_id"`
	Name             string                 `json:"name"`
	SubscriptionMode model.SubscriptionMode `json:"subscription_mode"`
}

// ModeRequest is the body of a subscription mode change
type ModeRequest struct {
	Mode model.SubscriptionMode `json:"mode"`
}

// ErrorResponse carries an error message
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server exposes health, metrics and the subscription API over HTTP
type Server struct {
	store     store.Store
	service   *subscription.Service
	resolver  *subscription.Resolver
	router    *http.ServeMux
	server    *http.Server
	startTime time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(st store.Store, service *subscription.Service) *Server {
	s := &Server{
		store:     st,
		service:   service,
		resolver:  service.Resolver(),
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.Handle("GET /metrics", promhttp.Handler())

	s.handle("GET /forums/{forum}/users/{user}/subscription", s.handleGetSubscription)
	s.handle("PUT /forums/{forum}/users/{user}/subscription", s.handleSubscribeForum)
	s.handle("DELETE /forums/{forum}/users/{user}/subscription", s.handleUnsubscribeForum)
	s.handle("PUT /discussions/{discussion}/users/{user}/subscription", s.handleSubscribeDiscussion)
	s.handle("DELETE /discussions/{discussion}/users/{user}/subscription", s.handleUnsubscribeDiscussion)
	s.handle("PUT /forums/{forum}/mode", s.handleSetMode)
	s.handle("GET /forums/{forum}/subscribers", s.handleForumSubscribers)
	s.handle("GET /forums/{forum}/discussions/{discussion}/subscribers", s.handleDiscussionSubscribers)
	s.handle("GET /users/{user}/unsubscribable-forums", s.handleUnsubscribableForums)
}

// handle registers an API handler that counts responses by route
func (s *Server) handle(pattern string, h func(w http.ResponseWriter, r *http.Request) int) {
	s.router.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		code := h(w, r)
		requestsTotal.WithLabelValues(pattern, strconv.Itoa(code)).Inc()
	})
}

// Handler returns the server's request router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the specified port
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Int("port", port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Info().Msg("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth returns JSON with status, database connectivity, and uptime
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbStatus := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		dbStatus = fmt.Sprintf("unhealthy: %v", err)
	}

	uptime := time.Since(s.startTime).Round(time.Second).String()

	status := "healthy"
	code := http.StatusOK
	if dbStatus != "healthy" {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:   status,
		Database: dbStatus,
		Uptime:   uptime,
	})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) int {
	ctx := r.Context()
	forum, userID, code := s.forumAndUser(w, r)
	if forum == nil {
		return code
	}
	canForce := queryBool(r, "force")

	resp := SubscriptionResponse{UserID: userID, ForumID: forum.ID}
	var err error
	if raw := r.URL.Query().Get("discussion"); raw != "" {
		discussionID, perr := parseID(raw)
		if perr != nil {
			return writeError(w, http.StatusBadRequest, "invalid discussion id")
		}
		resp.DiscussionID = discussionID
		resp.Subscribed, err = s.resolver.IsSubscribedToDiscussion(ctx, userID, forum, discussionID, canForce)
	} else {
		resp.Subscribed, err = s.resolver.IsSubscribed(ctx, userID, forum, canForce)
	}
	if err != nil {
		return s.internalError(w, err, "Failed to resolve subscription")
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubscribeForum(w http.ResponseWriter, r *http.Request) int {
	forum, userID, code := s.forumAndUser(w, r)
	if forum == nil {
		return code
	}

	id, created, err := s.service.SubscribeUserToForum(r.Context(), userID, forum, queryBool(r, "user_initiated"))
	if err != nil {
		return s.internalError(w, err, "Failed to subscribe user to forum")
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return writeJSON(w, status, SubscribeResponse{ID: id, Created: created})
}

func (s *Server) handleUnsubscribeForum(w http.ResponseWriter, r *http.Request) int {
	forum, userID, code := s.forumAndUser(w, r)
	if forum == nil {
		return code
	}

	ok, err := s.service.UnsubscribeUserFromForum(r.Context(), userID, forum, queryBool(r, "user_initiated"))
	if err != nil {
		return s.internalError(w, err, "Failed to unsubscribe user from forum")
	}
	return writeJSON(w, http.StatusOK, ChangeResponse{Changed: ok})
}

func (s *Server) handleSubscribeDiscussion(w http.ResponseWriter, r *http.Request) int {
	discussion, userID, code := s.discussionAndUser(w, r)
	if discussion == nil {
		return code
	}

	changed, err := s.service.SubscribeUserToDiscussion(r.Context(), userID, discussion)
	if err != nil {
		return s.internalError(w, err, "Failed to subscribe user to discussion")
	}
	return writeJSON(w, http.StatusOK, ChangeResponse{Changed: changed})
}

func (s *Server) handleUnsubscribeDiscussion(w http.ResponseWriter, r *http.Request) int {
	discussion, userID, code := s.discussionAndUser(w, r)
	if discussion == nil {
		return code
	}

	changed, err := s.service.UnsubscribeUserFromDiscussion(r.Context(), userID, discussion)
	if err != nil {
		return s.internalError(w, err, "Failed to unsubscribe user from discussion")
	}
	return writeJSON(w, http.StatusOK, ChangeResponse{Changed: changed})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) int {
	forum, code := s.forum(w, r)
	if forum == nil {
		return code
	}

	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return writeError(w, http.StatusBadRequest, "invalid request body")
	}
	if !req.Mode.Valid() {
		return writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid subscription mode %q", req.Mode))
	}

	changed, err := s.service.SetSubscriptionMode(r.Context(), forum, req.Mode)
	if err != nil {
		return s.internalError(w, err, "Failed to set subscription mode")
	}
	return writeJSON(w, http.StatusOK, ChangeResponse{Changed: changed})
}

func (s *Server) handleForumSubscribers(w http.ResponseWriter, r *http.Request) int {
	forum, code := s.forum(w, r)
	if forum == nil {
		return code
	}

	users, err := s.resolver.SubscribedUsers(r.Context(), forum)
	if err != nil {
		return s.internalError(w, err, "Failed to list forum subscribers")
	}
	return writeJSON(w, http.StatusOK, UsersResponse{Users: users})
}

func (s *Server) handleDiscussionSubscribers(w http.ResponseWriter, r *http.Request) int {
	forum, code := s.forum(w, r)
	if forum == nil {
		return code
	}
	discussionID, err := parseID(r.PathValue("discussion"))
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid discussion id")
	}

	users, err := s.resolver.DiscussionSubscribers(r.Context(), forum, discussionID)
	if err != nil {
		return s.internalError(w, err, "Failed to list discussion subscribers")
	}
	return writeJSON(w, http.StatusOK, UsersResponse{Users: users})
}

func (s *Server) handleUnsubscribableForums(w http.ResponseWriter, r *http.Request) int {
	userID, err := parseID(r.PathValue("user"))
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid user id")
	}

	forums, err := s.resolver.UnsubscribableForums(r.Context(), userID)
	if err != nil {
		return s.internalError(w, err, "Failed to list unsubscribable forums")
	}
	resp := make([]ForumResponse, 0, len(forums))
	for _, f := range forums {
		resp = append(resp, ForumResponse{
			ID:               f.ID,
			CourseID:         f.CourseID,
			Name:             f.Name,
			SubscriptionMode: f.SubscriptionMode,
		})
	}
	return writeJSON(w, http.StatusOK, resp)
}

// forum loads the forum named by the path, writing an error response and
// returning nil when it cannot
func (s *Server) forum(w http.ResponseWriter, r *http.Request) (*model.Forum, int) {
	forumID, err := parseID(r.PathValue("forum"))
	if err != nil {
		return nil, writeError(w, http.StatusBadRequest, "invalid forum id")
	}
	forum, err := s.store.GetForum(r.Context(), forumID)
	if err != nil {
		return nil, s.internalError(w, err, "Failed to load forum")
	}
	if forum == nil {
		return nil, writeError(w, http.StatusNotFound, "forum not found")
	}
	return forum, http.StatusOK
}

func (s *Server) forumAndUser(w http.ResponseWriter, r *http.Request) (*model.Forum, uint, int) {
	userID, err := parseID(r.PathValue("user"))
	if err != nil {
		return nil, 0, writeError(w, http.StatusBadRequest, "invalid user id")
	}
	forum, code := s.forum(w, r)
	return forum, userID, code
}

func (s *Server) discussionAndUser(w http.ResponseWriter, r *http.Request) (*model.Discussion, uint, int) {
	userID, err := parseID(r.PathValue("user"))
	if err != nil {
		return nil, 0, writeError(w, http.StatusBadRequest, "invalid user id")
	}
	discussionID, err := parseID(r.PathValue("discussion"))
	if err != nil {
		return nil, 0, writeError(w, http.StatusBadRequest, "invalid discussion id")
	}
	discussion, err := s.store.GetDiscussion(r.Context(), discussionID)
	if err != nil {
		return nil, 0, s.internalError(w, err, "Failed to load discussion")
	}
	if discussion == nil {
		return nil, 0, writeError(w, http.StatusNotFound, "discussion not found")
	}
	return discussion, userID, http.StatusOK
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) int {
	log.Error().Err(err).Msg(msg)
	return writeError(w, http.StatusInternalServerError, "internal server error")
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
	return code
}

func writeError(w http.ResponseWriter, code int, msg string) int {
	return writeJSON(w, code, ErrorResponse{Error: msg})
}
