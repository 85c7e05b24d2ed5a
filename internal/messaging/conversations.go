package messaging

import (
	"context"
	"fmt"
	"sort"

	"inbox/internal/db"
	"inbox/internal/models"
)

// ListConversations builds the viewer's conversation list from stored
// messages and accepted connections. It is recomputed on every call.
func (s *Service) ListConversations(ctx context.Context, viewerID string) ([]models.Conversation, error) {
	summaries, err := s.db.Queries().Messages.ListThreadSummaries(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	connected, err := s.connections.ListConnections(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	ids := make([]string, 0, len(summaries)+len(connected))
	for _, summary := range summaries {
		ids = append(ids, summary.CounterpartID)
	}
	ids = append(ids, connected...)

	profiles, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving profiles: %w", err)
	}

	return buildConversations(viewerID, summaries, connected, profiles), nil
}

// buildConversations merges thread summaries with connections into one entry
// per counterpart, most recent first. Counterparts without messages follow,
// and ties are broken by counterpart ID.
func buildConversations(viewerID string, summaries []db.ThreadSummary, connected []string, profiles map[string]*models.User) []models.Conversation {
	byID := make(map[string]*models.Conversation, len(summaries)+len(connected))

	profile := func(id string) *models.User {
		if u, ok := profiles[id]; ok && u != nil {
			return u
		}
		return models.Placeholder(id)
	}

	for _, summary := range summaries {
		if summary.CounterpartID == viewerID {
			continue
		}
		byID[summary.CounterpartID] = &models.Conversation{
			User:        profile(summary.CounterpartID),
			LastMessage: summary.LastMessage,
			UnreadCount: summary.UnreadCount,
		}
	}

	for _, id := range connected {
		if id == viewerID {
			continue
		}
		if _, ok := byID[id]; ok {
			continue
		}
		byID[id] = &models.Conversation{User: profile(id)}
	}

	conversations := make([]models.Conversation, 0, len(byID))
	for _, c := range byID {
		conversations = append(conversations, *c)
	}

	sort.Slice(conversations, func(i, j int) bool {
		a, b := conversations[i], conversations[j]
		switch {
		case a.LastMessage != nil && b.LastMessage != nil:
			if !a.LastMessage.CreatedAt.Equal(b.LastMessage.CreatedAt) {
				return a.LastMessage.CreatedAt.After(b.LastMessage.CreatedAt)
			}
		case a.LastMessage != nil:
			return true
		case b.LastMessage != nil:
			return false
		}
		return a.User.ID < b.User.ID
	})

	return conversations
}
