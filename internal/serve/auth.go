package serve

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joshlzx/starswap/internal/orch"
)

// credStore holds portal credentials in memory, keyed by opaque session
// tokens. Credentials never touch the ledger or any other durable store.
type credStore struct {
	mu    sync.Mutex
	creds map[string]orch.Credentials
	// swaps maps a swap ID back to the token that launched it so stopping
	// a swap can also evict its credentials.
	swaps map[string]string
}

func newCredStore() *credStore {
	return &credStore{
		creds: make(map[string]orch.Credentials),
		swaps: make(map[string]string),
	}
}

func (c *credStore) put(creds orch.Credentials) string {
	token := uuid.NewString()
	c.mu.Lock()
	c.creds[token] = creds
	c.mu.Unlock()
	return token
}

func (c *credStore) get(token string) (orch.Credentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	creds, ok := c.creds[token]
	return creds, ok
}

func (c *credStore) bind(swapID, token string) {
	c.mu.Lock()
	c.swaps[swapID] = token
	c.mu.Unlock()
}

// evict removes the credentials associated with a swap, if any remain.
func (c *credStore) evict(swapID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, ok := c.swaps[swapID]
	if !ok {
		return
	}
	delete(c.swaps, swapID)
	delete(c.creds, token)
}

func (s *Server) registerAuthRoutes(r chi.Router) {
	r.Post("/login", s.handleLoginV1)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLoginV1 caches portal credentials and returns a session token.
// POST /api/v1/login
func (s *Server) handleLoginV1(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body", nil, reqID)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeErrorResponse(w, http.StatusBadRequest, ErrCodeBadRequest, "username and password are required", nil, reqID)
		return
	}

	token := s.creds.put(orch.Credentials{Username: req.Username, Password: req.Password})
	writeSuccessResponse(w, http.StatusOK, map[string]any{"token": token}, reqID)
}
