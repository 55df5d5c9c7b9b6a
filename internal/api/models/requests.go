// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"net/url"
	"strings"

	"github.com/nkkko/telecast/internal/api/errors"
	"github.com/nkkko/telecast/pkg/model"
)

// CreateAccountRequest is the request to register a provider account
type CreateAccountRequest struct {
	Name     string `json:"name"`
	BaseURL  string `json:"baseUrl"`
	Username string `json:"username"`
	Password string `json:"password"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

// Validate validates the request
func (r *CreateAccountRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.ValidationError("missing_name", "Name is required")
	}

	if err := validateBaseURL(r.BaseURL); err != nil {
		return err
	}

	if r.Username == "" {
		return errors.ValidationError("missing_username", "Username is required")
	}

	if r.Password == "" {
		return errors.ValidationError("missing_password", "Password is required")
	}

	return nil
}

// ToModel converts the request to an account record. Accounts are
// enabled unless the request says otherwise.
func (r *CreateAccountRequest) ToModel() *model.Account {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	return &model.Account{
		Name:     strings.TrimSpace(r.Name),
		BaseURL:  strings.TrimRight(r.BaseURL, "/"),
		Username: r.Username,
		Password: r.Password,
		Enabled:  enabled,
	}
}

// UpdateAccountRequest is a partial account update. Nil fields are left
// unchanged.
type UpdateAccountRequest struct {
	Name     *string `json:"name,omitempty"`
	BaseURL  *string `json:"baseUrl,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

// Validate validates the request
func (r *UpdateAccountRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return errors.ValidationError("missing_name", "Name cannot be empty")
	}

	if r.BaseURL != nil {
		if err := validateBaseURL(*r.BaseURL); err != nil {
			return err
		}
	}

	if r.Username != nil && *r.Username == "" {
		return errors.ValidationError("missing_username", "Username cannot be empty")
	}

	if r.Password != nil && *r.Password == "" {
		return errors.ValidationError("missing_password", "Password cannot be empty")
	}

	return nil
}

// Apply writes the set fields onto an existing account record
func (r *UpdateAccountRequest) Apply(account *model.Account) {
	if r.Name != nil {
		account.Name = strings.TrimSpace(*r.Name)
	}
	if r.BaseURL != nil {
		account.BaseURL = strings.TrimRight(*r.BaseURL, "/")
	}
	if r.Username != nil {
		account.Username = *r.Username
	}
	if r.Password != nil {
		account.Password = *r.Password
	}
	if r.Enabled != nil {
		account.Enabled = *r.Enabled
	}
}

// SyncRequest selects the accounts a sync run targets. An empty list
// means every enabled account.
type SyncRequest struct {
	AccountIDs []string `json:"accountIds,omitempty"`
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.ValidationError("missing_base_url", "Base URL is required")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.ValidationError("invalid_base_url", "Base URL must be an absolute http(s) URL")
	}

	return nil
}
