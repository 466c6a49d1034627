// Package feed polls Discord channels over the REST API. Signals arrive as
// ordinary channel messages (or embeds), so the client only needs message
// history reads, paced by a rate limiter.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"botdeck/internal/jsonutil"
)

// DefaultBaseURL is the Discord REST endpoint.
const DefaultBaseURL = "https://discord.com/api/v10"

// discordEpoch is the Discord snowflake epoch in unix milliseconds.
const discordEpoch = 1420070400000

// Message is one channel message. Embeds carry the structured signal formats.
type Message struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channel_id"`
	Content   string  `json:"content"`
	EditedAt  string  `json:"edited_timestamp"`
	Author    Author  `json:"author"`
	Embeds    []Embed `json:"embeds"`
}

// Author is the message sender.
type Author struct {
	Username string `json:"username"`
}

// Embed is the subset of a Discord embed that signal parsing needs.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Fields      []EmbedField `json:"fields"`
}

// EmbedField is a name/value pair inside an embed.
type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Client reads message history from Discord channels.
type Client struct {
	// BaseURL can be pointed at a test server.
	BaseURL string

	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient builds a client for the given auth token. Bot tokens should
// already carry their "Bot " prefix. Requests are paced at one per second
// with a small burst, conservative against Discord's per-route limits.
func NewClient(token string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		BaseURL: DefaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		log:     log,
	}
}

// FetchAfter returns up to limit messages newer than afterID, oldest first.
// An empty afterID fetches the most recent messages.
func (c *Client) FetchAfter(ctx context.Context, channelID, afterID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if afterID != "" {
		q.Set("after", afterID)
	}
	reqURL := fmt.Sprintf("%s/channels/%s/messages?%s", c.BaseURL, channelID, q.Encode())

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}

	msgs, err := jsonutil.UnmarshalArrayAllowEmpty[Message](body, "decode messages")
	if err != nil {
		return nil, err
	}

	// Discord pages newest first; callers process in arrival order. Sort by
	// snowflake rather than reversing, since `after` queries come back
	// oldest first.
	sort.Slice(msgs, func(i, j int) bool {
		a, _ := strconv.ParseUint(msgs[i].ID, 10, 64)
		b, _ := strconv.ParseUint(msgs[j].ID, 10, 64)
		return a < b
	})
	return msgs, nil
}

// FetchMessage re-reads a single message, used to pick up edits on tracked
// trades.
func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (Message, error) {
	reqURL := fmt.Sprintf("%s/channels/%s/messages/%s", c.BaseURL, channelID, messageID)
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return Message{}, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	var msg Message
	if err := jsonutil.UnmarshalWithContext(body, &msg, "decode message"); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		c.log.Warn("discord rate limited", "retry_after", resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("discord status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Text flattens a message into the text the signal parsers consume: content
// first, then each embed's title, description and fields.
func Text(msg Message) string {
	parts := []string{msg.Content}
	for _, e := range msg.Embeds {
		parts = append(parts, e.Title, e.Description)
		for _, f := range e.Fields {
			parts = append(parts, f.Name, f.Value)
		}
	}
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}

// SnowflakeTime extracts the creation time encoded in a Discord ID. Returns
// the zero time for malformed IDs or IDs without a timestamp component.
func SnowflakeTime(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n>>22 == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(n>>22) + discordEpoch).UTC()
}
