package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// API is a thin client for the server's REST surface.
type API struct {
	base string
	http *http.Client
}

func NewAPI(base string) *API {
	return &API{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 10 * time.Second}}
}

// SignalURL turns http(s)://host into ws(s)://host/api/ws/signal.
func (a *API) SignalURL() (string, error) {
	u, err := url.Parse(a.base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/signal"
	return u.String(), nil
}

func (a *API) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (a *API) Exists(ctx context.Context, room domain.RoomID) (exists, full bool, err error) {
	var body struct {
		Exists bool `json:"exists"`
		Full   bool `json:"full"`
	}
	if err := a.get(ctx, "/api/rooms/"+url.PathEscape(string(room))+"/exists", &body); err != nil {
		return false, false, err
	}
	return body.Exists, body.Full, nil
}

func (a *API) Participants(ctx context.Context, room domain.RoomID) ([]domain.ParticipantView, error) {
	var body struct {
		Participants []domain.ParticipantView `json:"participants"`
	}
	if err := a.get(ctx, "/api/rooms/"+url.PathEscape(string(room))+"/participants", &body); err != nil {
		return nil, err
	}
	return body.Participants, nil
}

func (a *API) AllParticipants(ctx context.Context) (map[domain.RoomID][]domain.ParticipantView, error) {
	out := map[domain.RoomID][]domain.ParticipantView{}
	err := a.get(ctx, "/api/participants", &out)
	return out, err
}

func (a *API) Rooms(ctx context.Context) ([]core.RoomInfo, error) {
	var body struct {
		Rooms []core.RoomInfo `json:"rooms"`
	}
	err := a.get(ctx, "/api/rooms", &body)
	return body.Rooms, err
}

func (a *API) ICEServers(ctx context.Context) ([]config.ICEServer, error) {
	var body struct {
		ICEServers []config.ICEServer `json:"iceServers"`
	}
	err := a.get(ctx, "/api/ice-servers", &body)
	return body.ICEServers, err
}
