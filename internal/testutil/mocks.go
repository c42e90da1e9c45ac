package testutil

import (
	"context"

	"github.com/dgellow/stylefront/internal/sessionapi"
	"github.com/stretchr/testify/mock"
)

// MockSessionClient is a testify mock of sessionapi.SessionClient.
type MockSessionClient struct {
	mock.Mock
}

var _ sessionapi.SessionClient = (*MockSessionClient)(nil)

func (m *MockSessionClient) VerifySession(ctx context.Context) sessionapi.VerifyResult {
	args := m.Called(ctx)
	return args.Get(0).(sessionapi.VerifyResult)
}

func (m *MockSessionClient) ExchangeSession(ctx context.Context, token string) sessionapi.ExchangeResult {
	args := m.Called(ctx, token)
	return args.Get(0).(sessionapi.ExchangeResult)
}

func (m *MockSessionClient) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockUserCache is a testify mock of usercache.Cache.
type MockUserCache struct {
	mock.Mock
}

func (m *MockUserCache) Get(ctx context.Context, key string) (*sessionapi.User, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sessionapi.User), args.Error(1)
}

func (m *MockUserCache) Put(ctx context.Context, key string, user *sessionapi.User) error {
	args := m.Called(ctx, key, user)
	return args.Error(0)
}

func (m *MockUserCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// Ada is a ready-made user for tests.
func Ada() *sessionapi.User {
	return &sessionapi.User{ID: "user-ada", Name: "Ada Lovelace", Email: "ada@example.com"}
}

// Valid returns a successful verify result for user.
func Valid(user *sessionapi.User) sessionapi.VerifyResult {
	return sessionapi.VerifyResult{Valid: true, User: user}
}

// Exchanged returns a successful exchange result for user.
func Exchanged(user *sessionapi.User) sessionapi.ExchangeResult {
	return sessionapi.ExchangeResult{Success: true, User: user}
}

// Rejected returns a failed exchange result.
func Rejected(reason sessionapi.FailureReason, message string) sessionapi.ExchangeResult {
	return sessionapi.ExchangeResult{Reason: reason, Message: message}
}
