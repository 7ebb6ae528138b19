package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DegradedUserName is the display name given to profiles rebuilt from a bare
// token.
const DegradedUserName = "Local User"

// ID is an opaque identifier. The backend may send it as a JSON number or a
// JSON string; it is always carried as a string.
type ID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id must be a string or number: %w", err)
		}
		*id = ID(n.String())
		return nil
	}
}

func (id ID) String() string {
	return string(id)
}

// UserProfile is the local-provider view of the signed-in user.
type UserProfile struct {
	ID             ID       `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email,omitempty"`
	Provider       Provider `json:"provider"`
	OrganizationID ID       `json:"organization_id,omitempty"`
}

// DegradedProfile rebuilds a minimal profile when only the token is known.
// This is the expected fallback for a token without a snapshot, not an error.
func DegradedProfile(token string) UserProfile {
	return UserProfile{
		ID:       ID(token),
		Name:     DegradedUserName,
		Provider: ProviderLocal,
	}
}

// Normalize fills fields the backend may omit: the provider is always local
// for profiles coming through the local flow, and the name falls back to the
// email address.
func (u UserProfile) Normalize() UserProfile {
	if u.Provider == "" {
		u.Provider = ProviderLocal
	}
	if u.Name == "" {
		u.Name = u.Email
	}
	return u
}

// HostedUser is the hosted-provider view of the signed-in user, built from
// verified ID token claims.
type HostedUser struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name,omitempty"`
	PrimaryEmail   string `json:"primary_email,omitempty"`
	SelectedTeamID string `json:"selected_team_id,omitempty"`
}

// Identity is the resolved caller: exactly one of Local or Hosted is set,
// matching Provider.
type Identity struct {
	Provider Provider
	Local    *UserProfile
	Hosted   *HostedUser
}

// LocalIdentity wraps a local profile.
func LocalIdentity(u UserProfile) *Identity {
	return &Identity{Provider: ProviderLocal, Local: &u}
}

// HostedIdentity wraps a hosted user.
func HostedIdentity(u HostedUser) *Identity {
	return &Identity{Provider: ProviderHosted, Hosted: &u}
}

// SubjectID returns the provider-specific user id.
func (i *Identity) SubjectID() string {
	switch {
	case i == nil:
		return ""
	case i.Local != nil:
		return i.Local.ID.String()
	case i.Hosted != nil:
		return i.Hosted.ID
	default:
		return ""
	}
}

// DisplayName returns the best human-readable name.
func (i *Identity) DisplayName() string {
	switch {
	case i == nil:
		return ""
	case i.Local != nil:
		return i.Local.Name
	case i.Hosted != nil:
		if i.Hosted.DisplayName != "" {
			return i.Hosted.DisplayName
		}
		return i.Hosted.PrimaryEmail
	default:
		return ""
	}
}

// Email returns the user's email when known.
func (i *Identity) Email() string {
	switch {
	case i == nil:
		return ""
	case i.Local != nil:
		return i.Local.Email
	case i.Hosted != nil:
		return i.Hosted.PrimaryEmail
	default:
		return ""
	}
}

// OrganizationID returns the opaque organization or team id when known.
func (i *Identity) OrganizationID() string {
	switch {
	case i == nil:
		return ""
	case i.Local != nil:
		return i.Local.OrganizationID.String()
	case i.Hosted != nil:
		return i.Hosted.SelectedTeamID
	default:
		return ""
	}
}

// Session is the wire shape shared by the backend login/register responses,
// the hydration endpoint and the session endpoint.
type Session struct {
	Token string       `json:"token"`
	User  *UserProfile `json:"user,omitempty"`
}
