package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"labreserve-client/internal/api"
	"labreserve-client/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSession = errors.New("no stored session")

type persisted struct {
	Token string `json:"token"`
}

// Store holds the authenticated identity and its bearer token. The token is
// written to a file so a restarted client resumes the session.
type Store struct {
	path   string
	client *api.Client
	now    func() time.Time

	mu        sync.RWMutex
	token     string
	identity  *models.Identity
	listeners map[int]func(*models.Identity)
	nextID    int
}

func NewStore(path string, client *api.Client) *Store {
	s := &Store{
		path:      path,
		client:    client,
		now:       time.Now,
		listeners: map[int]func(*models.Identity){},
	}
	client.SetTokenSource(s)
	client.OnUnauthorized(func() {
		s.Reset("credential rejected by server")
	})
	return s
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) Identity() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return models.Identity{}, false
	}
	return *s.identity, true
}

// OnChange registers fn to run after every login, logout or reset. fn gets
// nil when the session became anonymous.
func (s *Store) OnChange(fn func(*models.Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Restore loads the stored token and validates it against the profile
// endpoint. Any failure clears the stored token.
func (s *Store) Restore(ctx context.Context) (models.Identity, error) {
	token, err := s.readToken()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Identity{}, ErrNoSession
		}
		return models.Identity{}, err
	}
	if token == "" {
		return models.Identity{}, ErrNoSession
	}
	if TokenExpired(token, s.now()) {
		s.clear("stored token expired")
		return models.Identity{}, ErrNoSession
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	identity, err := s.client.Profile(ctx)
	if err != nil {
		s.clear("profile check failed")
		return models.Identity{}, fmt.Errorf("validate session: %w", err)
	}
	s.set(token, identity)
	return identity, nil
}

func (s *Store) Login(ctx context.Context, email, password string) (models.Identity, error) {
	result, err := s.client.Login(ctx, api.LoginInput{Email: email, Password: password})
	if err != nil {
		return models.Identity{}, err
	}
	if result.Token == "" {
		return models.Identity{}, &api.Error{Kind: api.KindServer, Message: "login response without token"}
	}
	if err := s.writeToken(result.Token); err != nil {
		log.Printf("session: persist token: %v", err)
	}
	s.set(result.Token, result.User)
	return result.User, nil
}

// Register creates a student account and logs it in.
func (s *Store) Register(ctx context.Context, input api.RegisterInput) (models.Identity, error) {
	if err := s.client.Register(ctx, input); err != nil {
		return models.Identity{}, err
	}
	return s.Login(ctx, input.Email, input.Password)
}

func (s *Store) Logout() {
	s.clear("logout")
}

// Reset drops the session after the server rejected the credential.
func (s *Store) Reset(reason string) {
	s.mu.RLock()
	active := s.token != ""
	s.mu.RUnlock()
	if active {
		s.clear(reason)
	}
}

func (s *Store) set(token string, identity models.Identity) {
	s.mu.Lock()
	s.token = token
	s.identity = &identity
	s.mu.Unlock()
	s.notify(&identity)
}

func (s *Store) clear(reason string) {
	s.mu.Lock()
	hadIdentity := s.identity != nil
	s.token = ""
	s.identity = nil
	s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("session: remove %s: %v", s.path, err)
	}
	log.Printf("session: cleared (%s)", reason)
	if hadIdentity {
		s.notify(nil)
	}
}

func (s *Store) notify(identity *models.Identity) {
	s.mu.RLock()
	fns := make([]func(*models.Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(identity)
	}
}

func (s *Store) readToken() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", err
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("decode session file: %w", err)
	}
	return p.Token, nil
}

func (s *Store) writeToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(persisted{Token: token})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// TokenExpired reports whether a JWT's exp claim is in the past. Tokens that
// are not JWTs, or carry no exp, are left for the server to judge.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
