package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("orchestrator stopped")

// Orchestrator owns the Directory. Every mutation and every read of room
// state runs on the single Run goroutine, in submission order.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *core.Directory
	Relay    *app.Relay
	Policy   app.Policy
	// Grace is how long a dropped connection keeps its seat.
	Grace time.Duration

	cmds chan func()
	done chan struct{}
}

func New(reg *app.Registry, rooms *core.Directory, policy app.Policy) *Orchestrator {
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Relay:    app.NewRelay(reg, rooms),
		Policy:   policy,
		cmds:     make(chan func()),
		done:     make(chan struct{}),
	}
}

// Run processes submitted commands until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	log.Info().Str("module", "orch").Msg("event loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "orch").Msg("event loop stopped")
			return nil
		case fn := <-o.cmds:
			fn()
		}
	}
}

// Exec runs fn on the loop and waits for it to finish.
func (o *Orchestrator) Exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}
	select {
	case o.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrStopped
	}
	<-finished
	return nil
}

// deliver fans out events and applies the back-pressure policy.
func (o *Orchestrator) deliver(events []core.Event) {
	o.handleSlow(o.Relay.Deliver(events))
}

func (o *Orchestrator) handleSlow(slow []domain.ConnID) {
	for _, conn := range slow {
		room, _ := o.Rooms.RoomOf(conn)
		switch o.Policy.OnBackPressure(room, conn) {
		case app.Disconnect:
			log.Warn().Str("module", "orch").Str("conn", string(conn)).Msg("slow consumer, disconnecting")
			// The read pump observes the cancel and submits Disconnect.
			o.Registry.Cancel(conn)
		case app.DropFrame, app.NoAction:
		}
	}
}
