package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Directory supplies participant records for a room: the source of truth for
// moderation gating and the username resolution fallback. Refreshed by the
// REST layer, not owned by the engine.
type Directory interface {
	Participant(roomID, userID string) (*Participant, bool)
}

// RoomConfig is the externally supplied room configuration.
type RoomConfig struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Slug             string            `json:"slug"`
	Capacity         int               `json:"capacity"`
	RetentionDays    int               `json:"retentionDays"`
	TypingIndicators bool              `json:"typingIndicators"`
	Theme            map[string]string `json:"theme,omitempty"`
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message"`
}

// APIClient consumes the chat service's REST surface: room configuration,
// participant lists, message history and moderation commands. The engine
// treats these as plain request/response calls.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

// NewAPIClient creates a REST client rooted at baseURL, authenticating with
// the bearer token.
func NewAPIClient(baseURL, token string, logger zerolog.Logger) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     logger.With().Str("component", "api_client").Logger(),
	}
}

// Room fetches a room's configuration.
func (a *APIClient) Room(ctx context.Context, roomID string) (RoomConfig, error) {
	var cfg RoomConfig
	err := a.do(ctx, http.MethodGet, fmt.Sprintf("/api/rooms/%s", url.PathEscape(roomID)), nil, &cfg)
	return cfg, err
}

// Participants fetches the participant records with roles and statuses.
func (a *APIClient) Participants(ctx context.Context, roomID string) ([]Participant, error) {
	var out []Participant
	err := a.do(ctx, http.MethodGet, fmt.Sprintf("/api/rooms/%s/participants", url.PathEscape(roomID)), nil, &out)
	return out, err
}

// History fetches room messages older than before, oldest first. A zero
// before means newest page.
func (a *APIClient) History(ctx context.Context, roomID string, before time.Time, limit int) ([]Message, error) {
	path := fmt.Sprintf("/api/rooms/%s/messages", url.PathEscape(roomID))
	query := url.Values{}
	if !before.IsZero() {
		query.Set("before", before.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out []Message
	err := a.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Mute requests the server mute a participant.
func (a *APIClient) Mute(ctx context.Context, roomID, userID string) error {
	return a.moderate(ctx, roomID, userID, "mute")
}

// Unmute requests the server unmute a participant.
func (a *APIClient) Unmute(ctx context.Context, roomID, userID string) error {
	return a.moderate(ctx, roomID, userID, "unmute")
}

// Ban requests the server ban a participant.
func (a *APIClient) Ban(ctx context.Context, roomID, userID string) error {
	return a.moderate(ctx, roomID, userID, "ban")
}

// Unban requests the server unban a participant.
func (a *APIClient) Unban(ctx context.Context, roomID, userID string) error {
	return a.moderate(ctx, roomID, userID, "unban")
}

// SetModerator grants or revokes the moderator role. Owner only; the server
// enforces the same gate the engine computes locally.
func (a *APIClient) SetModerator(ctx context.Context, roomID, userID string, moderator bool) error {
	body := map[string]any{"userId": userID, "isModerator": moderator}
	return a.do(ctx, http.MethodPatch, fmt.Sprintf("/api/rooms/%s/moderator", url.PathEscape(roomID)), body, nil)
}

func (a *APIClient) moderate(ctx context.Context, roomID, userID, action string) error {
	path := fmt.Sprintf("/api/rooms/%s/participants/%s/%s", url.PathEscape(roomID), url.PathEscape(userID), action)
	return a.do(ctx, http.MethodPatch, path, nil, nil)
}

func (a *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 400 || !envelope.Success {
		return fmt.Errorf("%s %s: %s (status %d)", method, path, envelope.Message, resp.StatusCode)
	}
	if out != nil && envelope.Data != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

// CachedDirectory is a Directory backed by the REST participant list, layered
// with authoritative pushes. Safe for concurrent use.
type CachedDirectory struct {
	api *APIClient

	mu      sync.RWMutex
	records map[string]map[string]Participant // roomID -> userID -> record
}

// NewCachedDirectory creates an empty directory over the given REST client.
func NewCachedDirectory(api *APIClient) *CachedDirectory {
	return &CachedDirectory{
		api:     api,
		records: make(map[string]map[string]Participant),
	}
}

// Refresh replaces the cached participant list for a room from the REST
// surface.
func (d *CachedDirectory) Refresh(ctx context.Context, roomID string) error {
	participants, err := d.api.Participants(ctx, roomID)
	if err != nil {
		return err
	}
	byUser := make(map[string]Participant, len(participants))
	for _, p := range participants {
		byUser[p.UserID] = p
	}
	d.mu.Lock()
	d.records[roomID] = byUser
	d.mu.Unlock()
	return nil
}

// ApplyUpdate folds an authoritative participant push into the cache.
func (d *CachedDirectory) ApplyUpdate(update ParticipantUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byUser, ok := d.records[update.RoomID]
	if !ok {
		byUser = make(map[string]Participant)
		d.records[update.RoomID] = byUser
	}
	record := byUser[update.UserID]
	record.UserID = update.UserID
	if update.Username != "" {
		record.Username = update.Username
	}
	record.Role = update.Role
	record.Status = update.Status
	byUser[update.UserID] = record
}

// Participant implements Directory.
func (d *CachedDirectory) Participant(roomID, userID string) (*Participant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if byUser, ok := d.records[roomID]; ok {
		if p, ok := byUser[userID]; ok {
			return &p, true
		}
	}
	return nil, false
}
