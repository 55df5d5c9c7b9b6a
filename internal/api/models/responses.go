package models

import (
	"github.com/nkkko/telecast/pkg/model"
)

// SanitizeAccount strips credentials before an account goes on the wire
func SanitizeAccount(account model.Account) model.Account {
	account.Password = ""
	return account
}

// SanitizeAccounts strips credentials from a list of accounts
func SanitizeAccounts(accounts []model.Account) []model.Account {
	out := make([]model.Account, len(accounts))
	for i, account := range accounts {
		out[i] = SanitizeAccount(account)
	}
	return out
}

// AccountListResponse is the response for listing accounts
type AccountListResponse struct {
	Accounts []model.Account `json:"accounts"`
}

// ChannelListResponse is the response for listing channels
type ChannelListResponse struct {
	Channels []model.Channel `json:"channels"`
}

// GroupListResponse is the response for listing channel groups
type GroupListResponse struct {
	Groups []string `json:"groups"`
}

// GuideResponse is the response for a guide window query
type GuideResponse struct {
	EpgChannelID string             `json:"epgChannelId"`
	Entries      []model.GuideEntry `json:"entries"`
}

// NowNextResponse is the response for a now/next guide query
type NowNextResponse struct {
	EpgChannelID string            `json:"epgChannelId"`
	Now          *model.GuideEntry `json:"now,omitempty"`
	Next         *model.GuideEntry `json:"next,omitempty"`
}

// SyncResponse is the aggregate outcome of a sync run. Success reflects
// the run itself; individual target failures live in Results.
type SyncResponse struct {
	Success bool                        `json:"success"`
	Results map[string]model.SyncResult `json:"results,omitempty"`
	Error   string                      `json:"error,omitempty"`
}

// LibraryResponse is the response for a library directory listing
type LibraryResponse struct {
	Path    string               `json:"path"`
	Entries []model.LibraryEntry `json:"entries"`
}

// LibraryInfoResponse describes one library file plus any metadata
// looked up for it
type LibraryInfoResponse struct {
	Entry *model.LibraryEntry `json:"entry"`
	Title string              `json:"title,omitempty"`
	Year  int                 `json:"year,omitempty"`
	Media *model.MediaInfo    `json:"media,omitempty"`
}

// IndexerListResponse is the response for listing indexer definitions
type IndexerListResponse struct {
	Indexers []model.IndexerDefinition `json:"indexers"`
}
