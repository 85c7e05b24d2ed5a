// Command seed fills a database with demo users, connections, posts and
// messages, then prints an access token for every user.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"inbox/internal/auth"
	"inbox/internal/config"
	"inbox/internal/db"
	"inbox/internal/messaging"
	"inbox/internal/models"
)

type seedUser struct {
	Username string
	Name     string
	Headline string
}

var demoUsers = []seedUser{
	{Username: "ada", Name: "Ada Lovelace", Headline: "Analytical engines"},
	{Username: "grace", Name: "Grace Hopper", Headline: "Compilers and COBOL"},
	{Username: "alan", Name: "Alan Turing", Headline: "Computability"},
	{Username: "edsger", Name: "Edsger Dijkstra", Headline: "Shortest paths"},
}

type tokenEntry struct {
	UserID    string    `yaml:"user_id"`
	Username  string    `yaml:"username"`
	Token     string    `yaml:"token"`
	ExpiresAt time.Time `yaml:"expires_at"`
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	configPath := flag.String("config", "config.yaml", "path to config file")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed access tokens")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	ctx := context.Background()
	users, err := seed(ctx, database)
	if err != nil {
		slog.Error("failed to seed database", "error", err)
		os.Exit(1)
	}

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *tokenTTL)
	entries := make([]tokenEntry, 0, len(users))
	for _, u := range users {
		token, expiresAt, err := jwtService.GenerateAccessToken(u.ID)
		if err != nil {
			slog.Error("failed to mint token", "error", err, "user_id", u.ID)
			os.Exit(1)
		}
		entries = append(entries, tokenEntry{UserID: u.ID, Username: u.Username, Token: token, ExpiresAt: expiresAt})
	}

	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	if err := enc.Encode(map[string]any{"users": entries}); err != nil {
		slog.Error("failed to write tokens", "error", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, database *db.DB) ([]*models.User, error) {
	q := database.Queries()

	users := make([]*models.User, 0, len(demoUsers))
	for _, su := range demoUsers {
		u, err := q.Users.Create(ctx, db.CreateUserParams{Username: su.Username, Name: su.Name, Headline: su.Headline})
		if errors.Is(err, db.ErrDuplicate) {
			u, err = q.Users.FindByUsername(ctx, su.Username)
		}
		if err != nil {
			return nil, fmt.Errorf("creating user %s: %w", su.Username, err)
		}
		users = append(users, u)
	}
	ada, grace, alan, edsger := users[0], users[1], users[2], users[3]

	if err := q.Connections.Upsert(ctx, ada.ID, grace.ID, db.ConnectionAccepted); err != nil {
		return nil, fmt.Errorf("connecting users: %w", err)
	}
	if err := q.Connections.Upsert(ctx, ada.ID, edsger.ID, db.ConnectionAccepted); err != nil {
		return nil, fmt.Errorf("connecting users: %w", err)
	}
	if err := q.Connections.Upsert(ctx, alan.ID, grace.ID, db.ConnectionPending); err != nil {
		return nil, fmt.Errorf("connecting users: %w", err)
	}

	postID, err := q.Posts.Create(ctx, db.CreatePostParams{
		AuthorID:     grace.ID,
		Content:      "Found the first actual bug today. Taped it into the logbook.",
		LikeCount:    42,
		CommentCount: 7,
	})
	if err != nil {
		return nil, fmt.Errorf("creating post: %w", err)
	}

	service := messaging.NewService(database, messaging.Deps{}, messaging.Config{})
	sends := []messaging.SendInput{
		{SenderID: grace.ID, RecipientID: ada.ID, Content: "Have you seen the new compiler draft?"},
		{SenderID: ada.ID, RecipientID: grace.ID, Content: "Reading it now. The loop notes are lovely."},
		{SenderID: grace.ID, RecipientID: ada.ID, SharedPostID: postID},
		// alan and ada are not connected, so this opens a message request.
		{SenderID: alan.ID, RecipientID: ada.ID, Content: "Could a machine think, do you suppose?"},
	}
	for _, in := range sends {
		if _, err := service.SendMessage(ctx, in); err != nil {
			if errors.Is(err, messaging.ErrPermission) {
				slog.Info("skipping message blocked by request gate", "sender_id", in.SenderID, "recipient_id", in.RecipientID)
				continue
			}
			return nil, fmt.Errorf("sending %q: %w", strings.TrimSpace(in.Content), err)
		}
	}

	return users, nil
}
