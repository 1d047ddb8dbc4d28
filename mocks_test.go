package eventhive_test

import (
	"context"

	eventhive "github.com/eventhive/eventhive-go"
	"github.com/stretchr/testify/mock"
)

// MockAuthAPI implements eventhive.AuthAPI
type MockAuthAPI struct {
	mock.Mock
}

func (m *MockAuthAPI) Login(ctx context.Context, creds eventhive.Credentials) (*eventhive.AuthResponse, error) {
	args := m.Called(ctx, creds)
	resp, _ := args.Get(0).(*eventhive.AuthResponse)
	return resp, args.Error(1)
}

func (m *MockAuthAPI) RegisterUser(ctx context.Context, form eventhive.RegistrationForm) (*eventhive.RegistrationReceipt, error) {
	args := m.Called(ctx, form)
	receipt, _ := args.Get(0).(*eventhive.RegistrationReceipt)
	return receipt, args.Error(1)
}

func (m *MockAuthAPI) RegisterOrganization(ctx context.Context, form eventhive.RegistrationForm) (*eventhive.RegistrationReceipt, error) {
	args := m.Called(ctx, form)
	receipt, _ := args.Get(0).(*eventhive.RegistrationReceipt)
	return receipt, args.Error(1)
}

func (m *MockAuthAPI) RegisterAdmin(ctx context.Context, form eventhive.RegistrationForm) (*eventhive.RegistrationReceipt, error) {
	args := m.Called(ctx, form)
	receipt, _ := args.Get(0).(*eventhive.RegistrationReceipt)
	return receipt, args.Error(1)
}

func (m *MockAuthAPI) VerifyOTP(ctx context.Context, req eventhive.OTPRequest) (*eventhive.AuthResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*eventhive.AuthResponse)
	return resp, args.Error(1)
}

func (m *MockAuthAPI) ForgotPassword(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockAuthAPI) ResetPassword(ctx context.Context, req eventhive.ResetPasswordRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockAuthAPI) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTokenStore implements eventhive.TokenStore
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Save(tokens eventhive.TokenPair, user *eventhive.UserProfile) error {
	args := m.Called(tokens, user)
	return args.Error(0)
}

func (m *MockTokenStore) Load() (*eventhive.TokenPair, *eventhive.UserProfile) {
	args := m.Called()
	tokens, _ := args.Get(0).(*eventhive.TokenPair)
	user, _ := args.Get(1).(*eventhive.UserProfile)
	return tokens, user
}

func (m *MockTokenStore) Clear() error {
	args := m.Called()
	return args.Error(0)
}

func testProfile(userType eventhive.UserType) *eventhive.UserProfile {
	return &eventhive.UserProfile{
		ID:            "b3b4a1c2-8c1f-4e2a-9a3d-0f1e2d3c4b5a",
		DisplayName:   "Pepe Rone",
		Email:         "pepe.rone@example.com",
		UserType:      userType,
		Permissions:   []string{"events.view"},
		EmailVerified: true,
	}
}

func testTokens() eventhive.TokenPair {
	return eventhive.TokenPair{
		AccessToken:  "access-token-1",
		RefreshToken: "refresh-token-1",
	}
}
