// Package channels syncs and serves live-TV channel lineups.
package channels

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/maruel/natural"
	"github.com/nkkko/telecast/internal/provider"
	"github.com/nkkko/telecast/internal/store"
	"github.com/nkkko/telecast/pkg/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service refreshes channel lineups from provider panels and answers lineup
// queries
type Service struct {
	store  store.Store
	source provider.Source
	logger zerolog.Logger
}

// NewService creates a channels service
func NewService(s store.Store, source provider.Source) *Service {
	return &Service{
		store:  s,
		source: source,
		logger: log.With().Str("component", "channels").Logger(),
	}
}

// SyncAccount replaces the stored lineup of one account with the panel's
// current lineup and stamps the account's last sync time.
func (s *Service) SyncAccount(ctx context.Context, accountID string) (*model.SyncStats, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	fetched, err := s.source.FetchChannels(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("fetching channels for %q: %w", account.Name, err)
	}

	removed, err := s.store.ReplaceChannels(ctx, accountID, fetched)
	if err != nil {
		return nil, fmt.Errorf("storing channels for %q: %w", account.Name, err)
	}

	if err := s.store.TouchAccountSync(ctx, accountID, time.Now().UTC()); err != nil {
		s.logger.Warn().Err(err).Str("account_id", accountID).Msg("Failed to stamp sync time")
	}

	s.logger.Info().
		Str("account_id", accountID).
		Int("fetched", len(fetched)).
		Int("removed", removed).
		Msg("Lineup refreshed")

	return &model.SyncStats{
		Fetched: len(fetched),
		Stored:  len(fetched),
		Removed: removed,
	}, nil
}

// List returns one account's lineup. The account must exist.
func (s *Service) List(ctx context.Context, accountID string) ([]model.Channel, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListChannels(ctx, accountID)
}

// ListAll returns channels across all accounts, optionally filtered by group
func (s *Service) ListAll(ctx context.Context, group string) ([]model.Channel, error) {
	return s.store.ListAllChannels(ctx, group)
}

// Groups returns the distinct group titles across all accounts in natural
// order
func (s *Service) Groups(ctx context.Context) ([]string, error) {
	channels, err := s.store.ListAllChannels(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var groups []string
	for _, channel := range channels {
		if channel.Group == "" {
			continue
		}
		if _, ok := seen[channel.Group]; ok {
			continue
		}
		seen[channel.Group] = struct{}{}
		groups = append(groups, channel.Group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return natural.Less(groups[i], groups[j])
	})
	return groups, nil
}
