package auth

import (
	"context"
	"sync"
)

// RequestState carries the identity attached to a single request. A new state is
// installed for every request and discarded when the request ends.
type RequestState struct {
	mu   sync.RWMutex
	user Authenticatable
	via  string
}

// User returns the attached user or nil.
func (s *RequestState) User() Authenticatable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Via names the authenticator that attached the user ("api", "session").
func (s *RequestState) Via() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.via
}

// SetUser attaches a verified user.
func (s *RequestState) SetUser(user Authenticatable, via string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.via = via
}

// Clear detaches the user.
func (s *RequestState) Clear() {
	s.SetUser(nil, "")
}

type requestStateContextKey struct{}

// WithRequestState installs a fresh RequestState on the context.
func WithRequestState(ctx context.Context) (context.Context, *RequestState) {
	state := &RequestState{}
	return context.WithValue(ctx, requestStateContextKey{}, state), state
}

// RequestStateFromContext retrieves the request state installed by WithRequestState.
func RequestStateFromContext(ctx context.Context) (*RequestState, bool) {
	state, ok := ctx.Value(requestStateContextKey{}).(*RequestState)
	return state, ok && state != nil
}

// UserFromContext returns the user attached to the request, if any.
func UserFromContext(ctx context.Context) (Authenticatable, bool) {
	state, ok := RequestStateFromContext(ctx)
	if !ok {
		return nil, false
	}
	user := state.User()
	return user, user != nil
}
