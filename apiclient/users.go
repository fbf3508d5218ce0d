package apiclient

import (
	"context"
	"time"

	"github.com/jrsteele09/hourstracker-client/internal/utils"
)

const currentUserPath = "/auth/me"

// AppUser is the backend's record of the signed-in user
type AppUser struct {
	ID          int        `json:"id"`
	AzureOID    string     `json:"azure_oid"`
	Email       *string    `json:"email"`
	DisplayName *string    `json:"display_name"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Name returns the display name, falling back to the email address and
// then the directory object id
func (u AppUser) Name() string {
	if u.DisplayName != nil {
		return *u.DisplayName
	}
	return utils.ValueOr(u.Email, u.AzureOID)
}

// FetchCurrentUser returns the user the backend resolves from the attached credential
func (c *Client) FetchCurrentUser(ctx context.Context) (*AppUser, error) {
	var user AppUser
	if err := c.Get(ctx, currentUserPath, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
