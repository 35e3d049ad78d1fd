// Package publish keeps every peer link sending the current local media.
package publish

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Sender is one outgoing track slot on a link.
//
//go:generate mockgen -destination=mock_publish_test.go -package=publish . Sender,Target
type Sender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
	ApplyLimits(limits media.EncodingLimits) error
}

// Target is the publication view of a peer link.
type Target interface {
	RemoteID() domain.ConnID
	Sender(kind media.Kind) (Sender, bool)
	AddSender(kind media.Kind, track webrtc.TrackLocal) (Sender, error)
	RemoveSender(kind media.Kind) error
	// MarkDirty requests a renegotiation tagged with ctx.
	MarkDirty(ctx protocol.MediaContext)
}

type LinkSource interface {
	Targets() []Target
}

// Manager tracks what is published and applies changes to all links.
type Manager struct {
	links LinkSource

	mu        sync.Mutex
	published map[media.Kind]webrtc.TrackLocal
}

func NewManager(links LinkSource) *Manager {
	return &Manager{links: links, published: make(map[media.Kind]webrtc.TrackLocal)}
}

// Publish sends track as kind on every link. An existing sender has its
// track replaced in place; otherwise a sender is added and the link is
// marked for renegotiation. Returns once every link has been updated.
func (m *Manager) Publish(ctx context.Context, kind media.Kind, track webrtc.TrackLocal) error {
	if !kind.Valid() {
		return fmt.Errorf("publish: unknown kind %q", kind)
	}
	if h, ok := track.(media.ContentHinter); ok {
		h.SetContentHint(media.HintFor(kind))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[kind] = track

	err := m.each(ctx, func(t Target) error { return apply(t, kind, track) })
	log.Debug().Str("module", "publish").Str("kind", string(kind)).Str("track", track.ID()).Err(err).Msg("published")
	return err
}

// Unpublish removes kind from every link and marks each for renegotiation.
func (m *Manager) Unpublish(ctx context.Context, kind media.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.published[kind]; !ok {
		return nil
	}
	delete(m.published, kind)

	err := m.each(ctx, func(t Target) error {
		if _, ok := t.Sender(kind); !ok {
			return nil
		}
		if err := t.RemoveSender(kind); err != nil {
			return fmt.Errorf("unpublish %s from %s: %w", kind, t.RemoteID(), err)
		}
		t.MarkDirty(kind.Context())
		return nil
	})
	log.Debug().Str("module", "publish").Str("kind", string(kind)).Err(err).Msg("unpublished")
	return err
}

// Attach gives a new link every currently published track.
func (m *Manager) Attach(t Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kind := range media.Kinds {
		track, ok := m.published[kind]
		if !ok {
			continue
		}
		if err := apply(t, kind, track); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) Published() map[media.Kind]webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[media.Kind]webrtc.TrackLocal, len(m.published))
	for k, v := range m.published {
		out[k] = v
	}
	return out
}

func (m *Manager) IsPublished(kind media.Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.published[kind]
	return ok
}

// each runs fn on all links concurrently. A failing link does not stop the others.
func (m *Manager) each(ctx context.Context, fn func(Target) error) error {
	var g errgroup.Group
	for _, t := range m.links.Targets() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(t)
		})
	}
	return g.Wait()
}

func apply(t Target, kind media.Kind, track webrtc.TrackLocal) error {
	limits := media.LimitsFor(kind)
	if s, ok := t.Sender(kind); ok {
		if err := s.ReplaceTrack(track); err != nil {
			return fmt.Errorf("replace %s on %s: %w", kind, t.RemoteID(), err)
		}
		return s.ApplyLimits(limits)
	}
	s, err := t.AddSender(kind, track)
	if err != nil {
		return fmt.Errorf("add %s on %s: %w", kind, t.RemoteID(), err)
	}
	if err := s.ApplyLimits(limits); err != nil {
		log.Warn().Err(err).Str("module", "publish").Str("kind", string(kind)).Msg("apply limits")
	}
	t.MarkDirty(kind.Context())
	return nil
}
