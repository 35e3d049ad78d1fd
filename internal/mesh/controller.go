package mesh

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/dkeye/Huddle/internal/publish"
	"github.com/rs/zerolog/log"
)

// Controller keeps one PeerLink per remote participant in the room.
// The newcomer answers; participants already present make the offers.
type Controller struct {
	factory Factory
	sig     Signaler
	hooks   Hooks
	opts    Options
	pub     *publish.Manager

	mu    sync.Mutex
	self  domain.ConnID
	links map[domain.ConnID]*PeerLink
}

func NewController(factory Factory, sig Signaler, hooks Hooks, opts Options) *Controller {
	c := &Controller{
		factory: factory,
		sig:     sig,
		hooks:   hooks,
		opts:    opts.withDefaults(),
		links:   make(map[domain.ConnID]*PeerLink),
	}
	c.pub = publish.NewManager(c)
	return c
}

// Publisher applies local media changes to every link.
func (c *Controller) Publisher() *publish.Manager { return c.pub }

func (c *Controller) Self() domain.ConnID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// Targets implements publish.LinkSource.
func (c *Controller) Targets() []publish.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]publish.Target, 0, len(c.links))
	for _, l := range c.links {
		out = append(out, l)
	}
	return out
}

func (c *Controller) Link(remote domain.ConnID) (*PeerLink, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.links[remote]
	return l, ok
}

// Remotes lists the connection IDs with an open link, sorted.
func (c *Controller) Remotes() []domain.ConnID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ConnID, 0, len(c.links))
	for id := range c.links {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Join sets up answering links toward everyone already in the room.
// Each of them sends the first offer.
func (c *Controller) Join(self domain.ConnID, existing []domain.ParticipantView) error {
	c.mu.Lock()
	c.self = self
	c.mu.Unlock()

	var firstErr error
	for _, p := range existing {
		if p.ConnID == self {
			continue
		}
		if _, err := c.open(p.ConnID, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Rebind replaces every link after this client was admitted under a new
// connection ID. Old links are useless: peers addressed the old ID.
func (c *Controller) Rebind(self domain.ConnID, existing []domain.ParticipantView) error {
	c.closeAll(CloseLocalLeave)
	return c.Join(self, existing)
}

// PeerJoined opens an offering link toward a newcomer.
func (c *Controller) PeerJoined(remote domain.ConnID) error {
	if remote == c.Self() {
		return nil
	}
	l, err := c.open(remote, true)
	if err != nil {
		return err
	}
	l.start()
	return nil
}

// PeerLeft closes the link to remote, if any.
func (c *Controller) PeerLeft(remote domain.ConnID, reason CloseReason) {
	if l, ok := c.Link(remote); ok {
		l.Close(reason)
	}
}

// PeerRebound drops the link to old. The peer is a fresh client under new
// and is expected to be offered to as a newcomer.
func (c *Controller) PeerRebound(old, new domain.ConnID) error {
	c.PeerLeft(old, ClosePeerRebound)
	if _, ok := c.Link(new); ok {
		return nil
	}
	return c.PeerJoined(new)
}

// HandleNegotiation routes an offer, answer or candidate to its link.
// An offer from an unknown sender opens an answering link for it.
func (c *Controller) HandleNegotiation(msg protocol.Message) error {
	if !msg.Type.IsNegotiation() {
		return fmt.Errorf("mesh: %s is not a negotiation message", msg.Type)
	}
	if msg.Sender == "" {
		return fmt.Errorf("mesh: %s without sender", msg.Type)
	}
	l, ok := c.Link(msg.Sender)
	if !ok {
		if msg.Type != protocol.TypeOffer {
			log.Debug().Str("module", "mesh").Str("type", string(msg.Type)).Str("sender", string(msg.Sender)).Msg("no link; dropped")
			return nil
		}
		var err error
		if l, err = c.open(msg.Sender, false); err != nil {
			return err
		}
	}
	switch msg.Type {
	case protocol.TypeOffer:
		l.handleOffer(msg)
	case protocol.TypeAnswer:
		l.handleAnswer(msg)
	case protocol.TypeICECandidate:
		l.handleCandidate(msg)
	}
	return nil
}

// Leave closes every link. Calling it again is harmless.
func (c *Controller) Leave() {
	c.closeAll(CloseLocalLeave)
	c.mu.Lock()
	c.self = ""
	c.mu.Unlock()
}

func (c *Controller) closeAll(reason CloseReason) {
	c.mu.Lock()
	links := make([]*PeerLink, 0, len(c.links))
	for _, l := range c.links {
		links = append(links, l)
	}
	c.mu.Unlock()
	for _, l := range links {
		l.Close(reason)
	}
}

func (c *Controller) open(remote domain.ConnID, offerer bool) (*PeerLink, error) {
	c.mu.Lock()
	if l, ok := c.links[remote]; ok {
		c.mu.Unlock()
		return l, nil
	}
	pc, err := c.factory(remote)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("mesh: peer connection for %s: %w", remote, err)
	}
	l := newPeerLink(remote, pc, c.sig, c.hooks, c.opts, offerer)
	l.onClosed = c.forget
	c.links[remote] = l
	c.mu.Unlock()

	log.Info().Str("module", "mesh").Str("remote", string(remote)).Bool("offerer", offerer).Msg("link opened")
	if err := c.pub.Attach(l); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("remote", string(remote)).Msg("attach local media")
	}
	return l, nil
}

func (c *Controller) forget(l *PeerLink, _ CloseReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.links[l.remote]; ok && cur == l {
		delete(c.links, l.remote)
	}
}
