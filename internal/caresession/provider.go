package caresession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// ErrProviderUnavailable marks a transient session-token provider
// failure. Safe to retry with the same consultation id without
// duplicating state.
var ErrProviderUnavailable = errors.New("session provider unavailable")

type Room struct {
	RoomID  string `json:"room_id"`
	JoinURL string `json:"join_url"`
}

// RoomProvider issues a video room and join URL for a consultation.
// Fallible and retryable; callers never block a state transition on it.
type RoomProvider interface {
	CreateRoom(ctx context.Context, consultationID uuid.UUID) (Room, error)
}

// HTTPRoomProvider talks to the external session-token service. Calls
// run through a circuit breaker so a struggling provider fails fast
// instead of holding booking-path goroutines on timeouts.
type HTTPRoomProvider struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[Room]
}

func NewHTTPRoomProvider(baseURL string, timeout time.Duration) *HTTPRoomProvider {
	settings := gobreaker.Settings{
		Name:    "session-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &HTTPRoomProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[Room](settings),
	}
}

func (p *HTTPRoomProvider) CreateRoom(ctx context.Context, consultationID uuid.UUID) (Room, error) {
	room, err := p.breaker.Execute(func() (Room, error) {
		return p.createRoom(ctx, consultationID)
	})
	if err != nil {
		return Room{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return room, nil
}

func (p *HTTPRoomProvider) createRoom(ctx context.Context, consultationID uuid.UUID) (Room, error) {
	body, err := json.Marshal(map[string]string{"consultation_id": consultationID.String()})
	if err != nil {
		return Room{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return Room{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Room{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Room{}, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var room Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return Room{}, err
	}
	if room.RoomID == "" || room.JoinURL == "" {
		return Room{}, errors.New("provider returned empty room")
	}

	return room, nil
}

// LocalRoomProvider generates rooms in-process. Dev and test fallback
// when no external provider is configured.
type LocalRoomProvider struct {
	BaseURL string
}

func (p *LocalRoomProvider) CreateRoom(_ context.Context, consultationID uuid.UUID) (Room, error) {
	roomID := uuid.New().String()
	base := p.BaseURL
	if base == "" {
		base = "https://meet.local"
	}
	return Room{
		RoomID:  roomID,
		JoinURL: fmt.Sprintf("%s/%s?c=%s", base, roomID, consultationID.String()),
	}, nil
}
