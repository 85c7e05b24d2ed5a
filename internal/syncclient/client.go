// Package syncclient keeps a local view of the viewer's conversations and
// active thread in step with the server by polling.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"inbox/internal/constants"
	"inbox/internal/models"
)

var (
	// ErrUserNotFound is returned by Select when the counterpart does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoPendingRequest is returned by Accept and Reject when the active
	// thread has no request waiting on the viewer.
	ErrNoPendingRequest = errors.New("no pending message request")
)

type Config struct {
	// ViewerID identifies the authenticated user; it decides which unread
	// messages are addressed to us.
	ViewerID             string
	ConversationInterval time.Duration
	ThreadInterval       time.Duration
	// OnChange is called after local state changes. It must not block.
	OnChange func()
	Clock    clock.Clock
	Logger   *slog.Logger
}

type Client struct {
	api   API
	cfg   Config
	clock clock.Clock
	log   *slog.Logger

	// convTask and threadTask serialize each refresh task; ticks skip
	// instead of queueing behind an in-flight call.
	convTask   sync.Mutex
	threadTask sync.Mutex

	mu            sync.RWMutex
	conversations []models.Conversation
	placeholder   *models.Conversation
	active        string
	generation    uint64
	threadCtx     context.Context
	cancelThread  context.CancelFunc
	thread        []*models.Message
	request       *models.RequestStatusView
}

func New(api API, cfg Config) *Client {
	if cfg.ConversationInterval <= 0 {
		cfg.ConversationInterval = constants.DefaultConversationPollInterval
	}
	if cfg.ThreadInterval <= 0 {
		cfg.ThreadInterval = constants.DefaultThreadPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		api:   api,
		cfg:   cfg,
		clock: cfg.Clock,
		log:   cfg.Logger.With("component", "syncclient"),
	}
}

// Run polls conversations and the active thread until ctx is done. Tick
// errors are logged, never returned.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.loop(ctx, c.cfg.ConversationInterval, c.tickConversations)
	})
	g.Go(func() error {
		return c.loop(ctx, c.cfg.ThreadInterval, c.tickThread)
	})

	return g.Wait()
}

func (c *Client) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) error {
	ticker := c.clock.Ticker(interval)
	defer ticker.Stop()

	tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (c *Client) tickConversations(ctx context.Context) {
	if !c.convTask.TryLock() {
		return
	}
	defer c.convTask.Unlock()

	if _, err := c.refreshConversations(ctx); err != nil && ctx.Err() == nil {
		c.log.Warn("conversation poll failed", "error", err)
	}
}

func (c *Client) tickThread(ctx context.Context) {
	if !c.threadTask.TryLock() {
		return
	}
	defer c.threadTask.Unlock()

	if err := c.refreshThread(ctx); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		c.log.Warn("thread poll failed", "error", err)
	}
}

// RefreshConversations fetches the aggregate and replaces the local list
// when it differs by value.
func (c *Client) RefreshConversations(ctx context.Context) (bool, error) {
	c.convTask.Lock()
	defer c.convTask.Unlock()
	return c.refreshConversations(ctx)
}

func (c *Client) refreshConversations(ctx context.Context) (bool, error) {
	fetched, err := c.api.ListConversations(ctx)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	next := c.withPlaceholderLocked(fetched)
	changed := !equalConversations(c.conversations, next)
	if changed {
		c.conversations = next
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
	return changed, nil
}

// withPlaceholderLocked keeps the deep-link placeholder at the head of the
// list until the server aggregate contains that counterpart.
func (c *Client) withPlaceholderLocked(fetched []models.Conversation) []models.Conversation {
	if c.placeholder == nil {
		return fetched
	}

	id := c.placeholder.CounterpartID()
	if indexOf(fetched, id) >= 0 {
		c.placeholder = nil
		return fetched
	}

	out := make([]models.Conversation, 0, len(fetched)+1)
	out = append(out, *c.placeholder)
	return append(out, fetched...)
}

// Select opens the thread with counterpartID. Any in-flight thread fetch is
// cancelled and late responses for the previous selection are discarded.
func (c *Client) Select(ctx context.Context, counterpartID string) error {
	c.mu.Lock()
	if c.cancelThread != nil {
		c.cancelThread()
	}
	c.generation++
	gen := c.generation
	c.active = counterpartID
	c.thread = nil
	c.request = nil
	if c.placeholder != nil && c.placeholder.CounterpartID() != counterpartID {
		if i := indexOf(c.conversations, c.placeholder.CounterpartID()); i >= 0 {
			next := append([]models.Conversation(nil), c.conversations[:i]...)
			c.conversations = append(next, c.conversations[i+1:]...)
		}
		c.placeholder = nil
	}
	c.threadCtx, c.cancelThread = context.WithCancel(context.Background())
	threadCtx := c.threadCtx
	known := indexOf(c.conversations, counterpartID) >= 0
	c.mu.Unlock()
	c.notify()

	c.threadTask.Lock()
	defer c.threadTask.Unlock()

	ctx, stop := mergeCancel(ctx, threadCtx)
	defer stop()

	if !known {
		if err := c.addPlaceholder(ctx, gen, counterpartID); err != nil {
			return err
		}
	}

	if err := c.loadThread(ctx, gen, counterpartID, true); err != nil {
		return err
	}
	if c.stale(gen) {
		return nil
	}
	return c.loadRequestStatus(ctx, gen, counterpartID)
}

// addPlaceholder synthesizes a conversation for a counterpart the aggregate
// does not know yet. An unknown user ends the selection; any other lookup
// failure falls back to a bare profile.
func (c *Client) addPlaceholder(ctx context.Context, gen uint64, counterpartID string) error {
	user, err := c.api.GetUser(ctx, counterpartID)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case IsNotFound(err):
		c.mu.Lock()
		if c.generation == gen {
			c.active = ""
			if c.cancelThread != nil {
				c.cancelThread()
			}
		}
		c.mu.Unlock()
		c.notify()
		return fmt.Errorf("%w: %s", ErrUserNotFound, counterpartID)
	default:
		c.log.Warn("profile lookup failed", "error", err, "user_id", counterpartID)
		user = models.Placeholder(counterpartID)
	}

	c.mu.Lock()
	if c.generation != gen || indexOf(c.conversations, counterpartID) >= 0 {
		c.mu.Unlock()
		return nil
	}
	c.placeholder = &models.Conversation{User: user}
	c.conversations = append([]models.Conversation{*c.placeholder}, c.conversations...)
	c.mu.Unlock()

	c.notify()
	return nil
}

// RefreshThread refetches the active thread, marking it read first when it
// holds unread messages addressed to the viewer.
func (c *Client) RefreshThread(ctx context.Context) error {
	c.threadTask.Lock()
	defer c.threadTask.Unlock()
	return c.refreshThread(ctx)
}

func (c *Client) refreshThread(ctx context.Context) error {
	c.mu.RLock()
	active, gen, threadCtx := c.active, c.generation, c.threadCtx
	c.mu.RUnlock()
	if active == "" {
		return nil
	}

	ctx, stop := mergeCancel(ctx, threadCtx)
	defer stop()
	return c.loadThread(ctx, gen, active, false)
}

// loadThread fetches the thread and, when there is something to mark,
// marks it read before fetching the authoritative list. On Select any
// non-empty thread is marked; on refresh only unread incoming ones are.
func (c *Client) loadThread(ctx context.Context, gen uint64, counterpartID string, selecting bool) error {
	messages, err := c.api.ListMessages(ctx, counterpartID)
	if err != nil {
		return err
	}
	if c.stale(gen) {
		return nil
	}

	if (selecting && len(messages) > 0) || (!selecting && c.hasUnreadIncoming(messages)) {
		if err := c.api.MarkThreadRead(ctx, counterpartID); err != nil {
			return err
		}
		messages, err = c.api.ListMessages(ctx, counterpartID)
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil
	}
	changed := !equalMessages(c.thread, messages)
	if changed {
		c.thread = messages
	}
	if i := indexOf(c.conversations, counterpartID); i >= 0 && c.conversations[i].UnreadCount != 0 {
		next := append([]models.Conversation(nil), c.conversations...)
		next[i].UnreadCount = 0
		c.conversations = next
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
	return nil
}

// loadRequestStatus fetches the message-request state of the thread with
// counterpartID and keeps it if the selection has not moved on.
func (c *Client) loadRequestStatus(ctx context.Context, gen uint64, counterpartID string) error {
	status, err := c.api.RequestStatus(ctx, counterpartID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil
	}
	c.request = status
	c.mu.Unlock()

	c.notify()
	return nil
}

func (c *Client) stale(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation != gen
}

func (c *Client) hasUnreadIncoming(messages []*models.Message) bool {
	for _, m := range messages {
		if !m.Read && m.RecipientID == c.cfg.ViewerID {
			return true
		}
	}
	return false
}

// Send posts a text message to counterpartID. Failures are returned as-is
// so the caller can offer a retry; nothing is queued.
func (c *Client) Send(ctx context.Context, counterpartID, content string) (*models.Message, error) {
	return c.deliver(ctx, counterpartID, func(ctx context.Context) (*models.Message, error) {
		return c.api.SendMessage(ctx, Outgoing{RecipientID: counterpartID, Content: content})
	})
}

// SharePost sends a snapshot of postID with an optional note.
func (c *Client) SharePost(ctx context.Context, counterpartID, postID, note string) (*models.Message, error) {
	return c.deliver(ctx, counterpartID, func(ctx context.Context) (*models.Message, error) {
		return c.api.SendMessage(ctx, Outgoing{RecipientID: counterpartID, Content: note, SharedPostID: postID})
	})
}

// SendFile uploads file as an attachment with optional text.
func (c *Client) SendFile(ctx context.Context, counterpartID, content string, file Attachment) (*models.Message, error) {
	return c.deliver(ctx, counterpartID, func(ctx context.Context) (*models.Message, error) {
		return c.api.SendFile(ctx, counterpartID, content, file)
	})
}

// deliver runs one send and folds the result into local state. A send the
// gate refuses refreshes the request status of the active thread.
func (c *Client) deliver(ctx context.Context, counterpartID string, send func(context.Context) (*models.Message, error)) (*models.Message, error) {
	msg, err := send(ctx)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == constants.ErrCodeMessageRequestPending {
			c.mu.RLock()
			active, gen := c.active, c.generation
			c.mu.RUnlock()
			if active == counterpartID {
				if statusErr := c.loadRequestStatus(ctx, gen, counterpartID); statusErr != nil {
					c.log.Warn("request status refresh failed", "error", statusErr, "user_id", counterpartID)
				}
			}
		}
		return nil, err
	}

	c.mu.Lock()
	if c.active == counterpartID && !containsMessage(c.thread, msg.ID) {
		c.thread = append(append([]*models.Message(nil), c.thread...), msg)
	}
	if i := indexOf(c.conversations, counterpartID); i >= 0 {
		next := append([]models.Conversation(nil), c.conversations...)
		next[i].LastMessage = msg
		sortConversations(next)
		c.conversations = next
	}
	c.mu.Unlock()

	c.notify()
	return msg, nil
}

// Accept accepts the message request the active counterpart sent.
func (c *Client) Accept(ctx context.Context) error {
	return c.respond(ctx, c.api.AcceptRequest)
}

// Reject rejects the message request the active counterpart sent.
func (c *Client) Reject(ctx context.Context) error {
	return c.respond(ctx, c.api.RejectRequest)
}

func (c *Client) respond(ctx context.Context, call func(context.Context, string) (*models.MessageRequest, error)) error {
	c.mu.RLock()
	active, gen, req := c.active, c.generation, c.request
	c.mu.RUnlock()

	if req == nil || !req.HasRequest || req.IsSender || req.Status != models.RequestPending {
		return ErrNoPendingRequest
	}
	if _, err := call(ctx, req.RequestID); err != nil {
		return err
	}
	return c.loadRequestStatus(ctx, gen, active)
}

// Conversations returns a snapshot of the local conversation list.
func (c *Client) Conversations() []models.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Conversation(nil), c.conversations...)
}

// Thread returns a snapshot of the active thread.
func (c *Client) Thread() []*models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*models.Message(nil), c.thread...)
}

// RequestStatus returns the message-request state of the active thread, or
// nil before it has been fetched.
func (c *Client) RequestStatus() *models.RequestStatusView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.request == nil {
		return nil
	}
	status := *c.request
	return &status
}

func (c *Client) Active() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// UnreadTotal sums the unread badges of the local list.
func (c *Client) UnreadTotal() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, conv := range c.conversations {
		total += conv.UnreadCount
	}
	return total
}

func (c *Client) notify() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}

// mergeCancel returns a context that ends when either parent ends.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	if other == nil {
		return merged, cancel
	}
	stop := context.AfterFunc(other, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

func indexOf(conversations []models.Conversation, counterpartID string) int {
	for i, conv := range conversations {
		if conv.CounterpartID() == counterpartID {
			return i
		}
	}
	return -1
}

func containsMessage(messages []*models.Message, id string) bool {
	for _, m := range messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// sortConversations orders by last message time, newest first, with
// never-messaged counterparts last.
func sortConversations(list []models.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].LastMessage, list[j].LastMessage
		switch {
		case a == nil && b == nil:
			return list[i].CounterpartID() < list[j].CounterpartID()
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		default:
			return list[i].CounterpartID() < list[j].CounterpartID()
		}
	})
}
