package eventhive

import (
	"slices"

	"github.com/google/uuid"
)

// TokenPair holds the credentials issued on login or OTP verification.
// The access token accompanies every privileged request; the refresh token
// is exchanged only at the refresh endpoint and must never be sent as a
// bearer credential.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// UserProfile is the client-side copy of the signed-in account. The
// authoritative record lives server side; this copy exists so the UI can
// render without an extra round trip after boot.
type UserProfile struct {
	ID             string         `json:"id,omitempty"`
	DisplayName    string         `json:"displayName,omitempty"`
	Email          string         `json:"email,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	UserType       UserType       `json:"userType,omitempty"`
	Permissions    []string       `json:"permissions,omitempty"`
	ProfilePicture string         `json:"profilePicture,omitempty"`
	EmailVerified  bool           `json:"isEmailVerified,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// GetUserUUID parses the profile ID as a UUID
func (u *UserProfile) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(u.ID)
}

// HasPermission reports whether the cached permission set contains p.
// It is false whenever the set is empty.
func (u *UserProfile) HasPermission(p string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Permissions, p)
}

// Clone returns a deep copy so callers can hand profiles across goroutines
// without sharing the permission slice or metadata map.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}

	out := *u
	if len(u.Permissions) > 0 {
		out.Permissions = slices.Clone(u.Permissions)
	}
	if len(u.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// ProfilePatch is a partial profile update. Nil fields are left untouched;
// metadata entries are merged key by key.
type ProfilePatch struct {
	DisplayName    *string        `json:"displayName,omitempty"`
	Phone          *string        `json:"phone,omitempty"`
	ProfilePicture *string        `json:"profilePicture,omitempty"`
	Permissions    []string       `json:"permissions,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Apply merges the patch into a copy of the profile and returns it.
func (p ProfilePatch) Apply(u *UserProfile) *UserProfile {
	out := u.Clone()
	if out == nil {
		return nil
	}

	if p.DisplayName != nil {
		out.DisplayName = *p.DisplayName
	}
	if p.Phone != nil {
		out.Phone = *p.Phone
	}
	if p.ProfilePicture != nil {
		out.ProfilePicture = *p.ProfilePicture
	}
	if p.Permissions != nil {
		out.Permissions = slices.Clone(p.Permissions)
	}
	if len(p.Metadata) > 0 {
		if out.Metadata == nil {
			out.Metadata = make(map[string]any, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// AuthResponse is the wire shape of a successful login or OTP verification.
type AuthResponse struct {
	User   *UserProfile `json:"user"`
	Tokens TokenPair    `json:"tokens"`
}

// RegistrationReceipt is returned by the register endpoints. Registration
// never authenticates; verification happens through the OTP exchange.
type RegistrationReceipt struct {
	ID       string   `json:"id,omitempty"`
	Email    string   `json:"email,omitempty"`
	UserType UserType `json:"userType,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// RefreshResponse is the wire shape of the refresh endpoint. Backends may
// rotate the refresh token; when they do not, the stored one is kept.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
