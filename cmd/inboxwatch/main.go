// Command inboxwatch polls an inbox server as one user and prints the
// conversation list and the open thread whenever they change.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"inbox/internal/models"
	"inbox/internal/syncclient"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	server := flag.String("server", "http://localhost:8080", "inbox server base URL")
	token := flag.String("token", os.Getenv("INBOX_TOKEN"), "access token (defaults to $INBOX_TOKEN)")
	open := flag.String("open", "", "counterpart user ID to open on start")
	filter := flag.String("filter", "", "only show conversations matching this text")
	conversationInterval := flag.Duration("conversation-interval", 10*time.Second, "conversation poll interval")
	threadInterval := flag.Duration("thread-interval", 5*time.Second, "thread poll interval")
	hints := flag.Bool("hints", true, "subscribe to websocket change hints")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "inboxwatch: -token or INBOX_TOKEN is required")
		os.Exit(2)
	}

	viewerID, err := subjectOf(*token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inboxwatch: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	changed := make(chan struct{}, 1)
	client := syncclient.New(syncclient.NewHTTPAPI(*server, *token, nil), syncclient.Config{
		ViewerID:             viewerID,
		ConversationInterval: *conversationInterval,
		ThreadInterval:       *threadInterval,
		OnChange: func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(ctx)
	})
	if *hints {
		g.Go(func() error {
			return client.Nudges(ctx, websocketURL(*server), *token)
		})
	}
	if *open != "" {
		g.Go(func() error {
			if err := client.Select(ctx, *open); err != nil && ctx.Err() == nil {
				slog.Warn("opening thread failed", "error", err, "counterpart_id", *open)
			}
			return nil
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
				render(client, viewerID, *filter)
			}
		}
	})

	if err := g.Wait(); err != nil {
		slog.Error("inboxwatch stopped", "error", err)
		os.Exit(1)
	}
}

// subjectOf reads the user ID from the token. The server verifies the
// signature; the client only needs to know who it is.
func subjectOf(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	if id, ok := claims["userId"].(string); ok && id != "" {
		return id, nil
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

func websocketURL(server string) string {
	server = strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(server, "https://"):
		return "wss://" + strings.TrimPrefix(server, "https://") + "/ws"
	case strings.HasPrefix(server, "http://"):
		return "ws://" + strings.TrimPrefix(server, "http://") + "/ws"
	}
	return server + "/ws"
}

func render(client *syncclient.Client, viewerID, filter string) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n== conversations (%d unread) ==\n", client.UnreadTotal())
	for _, conv := range syncclient.Filter(client.Conversations(), filter) {
		marker := " "
		if conv.CounterpartID() == client.Active() {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %-24s %3d  %s\n", marker, displayName(conv.User), conv.UnreadCount, preview(conv.LastMessage))
	}

	if active := client.Active(); active != "" {
		fmt.Fprintf(&b, "== thread with %s ==\n", active)
		for _, m := range client.Thread() {
			who := "them"
			if m.SenderID == viewerID {
				who = "me"
			}
			fmt.Fprintf(&b, "[%s] %-4s %s\n", m.CreatedAt.Local().Format("15:04"), who, preview(m))
		}
		if req := client.RequestStatus(); req != nil && !req.CanMessage {
			if req.IsSender {
				b.WriteString("-- waiting for them to accept your message request --\n")
			} else {
				b.WriteString("-- message request pending your reply --\n")
			}
		}
	}

	fmt.Print(b.String())
}

func displayName(u *models.User) string {
	switch {
	case u == nil:
		return "?"
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return "@" + u.Username
	}
	return u.ID
}

func preview(m *models.Message) string {
	switch {
	case m == nil:
		return ""
	case m.Content != "":
		return m.Content
	case m.FileName != "":
		return "[file] " + m.FileName
	case m.SharedPost != nil:
		return "[post] " + m.SharedPost.Author.Name
	}
	return ""
}
