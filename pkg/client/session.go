package client

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Session holds the authenticated state of one user for the lifetime of an
// application run. It is created at start with a store and torn down by
// Logout, or automatically when the session expires.
type Session struct {
	client *Client

	mu       sync.Mutex
	onLogout []func()
}

func NewSession(baseURL string, store CredentialStore, opts ...Option) *Session {
	s := &Session{}
	opts = append(opts, WithStore(store), WithExpiryHook(s.teardown))
	s.client = New(baseURL, opts...)
	return s
}

func (s *Session) Client() *Client {
	return s.client
}

func (s *Session) Login(ctx context.Context, username, password string) error {
	return s.client.Login(ctx, username, password)
}

// Authenticated reports whether credentials are present. It does not check
// them against the server.
func (s *Session) Authenticated() bool {
	creds, err := s.client.store.Load()
	return err == nil && !creds.Empty()
}

func (s *Session) Username() string {
	creds, _ := s.client.store.Load()
	return creds.Username
}

// OnLogout registers fn to run when the session ends, whether by Logout or
// by expiry.
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// Logout revokes the refresh token, clears the store and runs the logout
// hooks. Local teardown happens even when the server cannot be reached.
func (s *Session) Logout(ctx context.Context) error {
	var result *multierror.Error
	if err := s.client.Logout(ctx); err != nil {
		result = multierror.Append(result, err)
		if err := s.client.store.Clear(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.teardown()
	return result.ErrorOrNil()
}

func (s *Session) teardown() {
	s.mu.Lock()
	hooks := s.onLogout
	s.onLogout = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
