package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/domain"
)

const defaultBaseURL = "https://discord.com/api/v10"

// Client wraps the Discord REST API for message delivery. Implements
// repo.Messenger.
type Client struct {
	botToken   string
	baseURL    string
	httpClient *http.Client

	// Resolved fallback channels per guild; a guild's system channel
	// rarely changes, so one lookup per process is enough
	mu               sync.Mutex
	fallbackChannels map[string]string
}

// NewClient creates a new Discord API client
func NewClient(botToken string) *Client {
	return &Client{
		botToken: botToken,
		baseURL:  defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		fallbackChannels: make(map[string]string),
	}
}

// SetBaseURL overrides the API endpoint (used in tests)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type messagePayload struct {
	Embeds []embed `json:"embeds"`
}

// trelloBlue matches Trello's brand color for notification embeds
const trelloBlue = 0x0079BF

// SendMessage posts a notification embed to channelID
func (c *Client) SendMessage(ctx context.Context, channelID string, n *domain.Notification) error {
	payload := messagePayload{Embeds: []embed{buildEmbed(n)}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/channels/"+channelID+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("message send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError("send message", resp)
	}
	return nil
}

// SendToFallbackChannel posts a notification to the guild's system
// channel, resolving and caching it on first use
func (c *Client) SendToFallbackChannel(ctx context.Context, guildID string, n *domain.Notification) error {
	channelID, err := c.fallbackChannel(ctx, guildID)
	if err != nil {
		return err
	}
	return c.SendMessage(ctx, channelID, n)
}

func (c *Client) fallbackChannel(ctx context.Context, guildID string) (string, error) {
	c.mu.Lock()
	if cached, ok := c.fallbackChannels[guildID]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	channelID, err := c.lookupFallbackChannel(ctx, guildID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.fallbackChannels[guildID] = channelID
	c.mu.Unlock()
	return channelID, nil
}

// lookupFallbackChannel prefers the guild's system channel and falls
// back to its first text channel
func (c *Client) lookupFallbackChannel(ctx context.Context, guildID string) (string, error) {
	var guild struct {
		SystemChannelID string `json:"system_channel_id"`
	}
	if err := c.getJSON(ctx, "/guilds/"+guildID, &guild); err != nil {
		return "", err
	}
	if guild.SystemChannelID != "" {
		return guild.SystemChannelID, nil
	}

	var channels []struct {
		ID   string `json:"id"`
		Type int    `json:"type"`
	}
	if err := c.getJSON(ctx, "/guilds/"+guildID+"/channels", &channels); err != nil {
		return "", err
	}
	for _, ch := range channels {
		// Type 0 is a guild text channel
		if ch.Type == 0 {
			return ch.ID, nil
		}
	}
	return "", fmt.Errorf("guild %s has no usable fallback channel", guildID)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError("get "+path, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bot "+c.botToken)
}

func (c *Client) apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
}

func buildEmbed(n *domain.Notification) embed {
	e := embed{
		Title: n.Title(),
		Color: trelloBlue,
	}
	if n.CardName != "" {
		e.Fields = append(e.Fields, embedField{Name: "Card", Value: n.CardName, Inline: true})
	}
	if n.ListName != "" {
		e.Fields = append(e.Fields, embedField{Name: "List", Value: n.ListName, Inline: true})
	}
	if n.Actor != "" {
		e.Footer = &embedFooter{Text: "by " + n.Actor}
	}
	return e
}
