package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/dkeye/Huddle/internal/meeting"
	"github.com/dkeye/Huddle/internal/signalclient"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a room and stay in it as host",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return meet(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), "")
	},
}

var joinCmd = &cobra.Command{
	Use:   "join ROOM_ID",
	Short: "Join an existing room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return meet(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), domain.RoomID(args[0]))
	},
}

func parseKinds(names []string) ([]media.Kind, error) {
	var out []media.Kind
	for _, n := range names {
		k := media.Kind(n)
		if !k.Valid() {
			return nil, fmt.Errorf("unknown media %q (want mic, camera or screen)", n)
		}
		out = append(out, k)
	}
	return out, nil
}

// meet runs one meeting: create (room == "") or join, publish, then serve
// console commands until interrupted, kicked, or told to leave.
func meet(ctx context.Context, in io.Reader, out io.Writer, room domain.RoomID) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	identity, err := domain.NormalizeIdentity(s.Identity)
	if err != nil {
		return fmt.Errorf("--identity: %w", err)
	}
	kinds, err := parseKinds(s.Media)
	if err != nil {
		return err
	}

	api := NewAPI(s.Server)
	ice, err := api.ICEServers(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "cli").Msg("no ICE servers from server; host candidates only")
	}
	factory, err := rtc.NewFactory(ice)
	if err != nil {
		return err
	}
	wsURL, err := api.SignalURL()
	if err != nil {
		return err
	}
	client := signalclient.New(wsURL, nil)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() { client.Close() }()

	src, err := media.NewSyntheticSource(identity, media.Kinds...)
	if err != nil {
		return err
	}
	mediaCtx, stopMedia := context.WithCancel(context.Background())
	defer stopMedia()
	src.Start(mediaCtx)

	view := newMeshView()
	closed := make(chan string, 1)
	sess := meeting.New(client, meeting.Config{
		Factory: factory.New,
		Mesh:    view.hooks(mediaCtx),
		Hooks: meeting.Hooks{
			OnHostChanged: func(host domain.ConnID) {
				fmt.Fprintf(out, "host is now %s\n", host)
			},
			OnRoomClosed: func(reason string) {
				select {
				case closed <- reason:
				default:
				}
			},
		},
	})
	defer sess.Mesh().Leave()
	r := newRunner(sess)
	defer r.stop()
	r.start()

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if room == "" {
		if room, err = sess.Create(reqCtx, identity); err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		fmt.Fprintf(out, "Room created: %s\n", room)
	} else {
		if _, err := sess.Join(reqCtx, room, identity); err != nil {
			var adm *domain.AdmissionError
			if errors.As(err, &adm) {
				return fmt.Errorf("join %s: %w", room, adm.Err)
			}
			return fmt.Errorf("join %s: %w", room, err)
		}
		fmt.Fprintf(out, "Joined %s as %s\n", room, identity)
	}

	for _, k := range kinds {
		track, _ := src.Track(k)
		if err := sess.Publish(ctx, k, track); err != nil {
			log.Warn().Err(err).Str("module", "cli").Str("kind", string(k)).Msg("publish")
		}
	}

	c := &console{sess: sess, src: src, view: view, out: out, quit: make(chan struct{})}
	go c.serve(in)

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-c.quit:
			break wait
		case reason := <-closed:
			fmt.Fprintf(out, "Removed from room: %s\n", reason)
			return nil
		case err := <-r.done:
			r.live = false
			if !errors.Is(err, meeting.ErrDisconnected) {
				return fmt.Errorf("signaling: %w", errOrClosed(err))
			}
			fmt.Fprintln(out, "Connection lost, rejoining...")
			next, err := rejoin(ctx, r, wsURL, room)
			if err != nil {
				return fmt.Errorf("rejoin %s: %w", room, err)
			}
			client.Close()
			client = next
			fmt.Fprintf(out, "Rejoined %s\n", room)
		}
	}

	leaveCtx, cancelLeave := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelLeave()
	if err := sess.Leave(leaveCtx); err != nil {
		log.Warn().Err(err).Str("module", "cli").Msg("leave")
	}
	fmt.Fprintln(out, "Left the room")
	return nil
}

// runner keeps one Session.Run goroutine alive across reconnects.
type runner struct {
	sess *meeting.Session
	ctx  context.Context
	halt context.CancelFunc
	done chan error
	live bool
}

func newRunner(sess *meeting.Session) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &runner{sess: sess, ctx: ctx, halt: cancel, done: make(chan error, 1)}
}

func (r *runner) start() {
	r.live = true
	go func() {
		err := r.sess.Run(r.ctx)
		r.done <- err
	}()
}

// stop ends Run and waits for it unless it already returned.
func (r *runner) stop() {
	r.halt()
	if r.live {
		<-r.done
	}
}

const (
	rejoinAttempts = 5
	rejoinBackoff  = time.Second
)

// rejoin dials the server again and takes the seat back. Inside the
// server's grace window the seat is rebound; the peers renegotiate with
// the new connection and published media is re-attached.
func rejoin(ctx context.Context, r *runner, wsURL string, room domain.RoomID) (*signalclient.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= rejoinAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt-1) * rejoinBackoff):
		}
		client := signalclient.New(wsURL, nil)
		if err := client.Connect(ctx); err != nil {
			lastErr = err
			log.Warn().Err(err).Str("module", "cli").Int("attempt", attempt).Msg("reconnect")
			continue
		}
		if err := r.sess.Reconnect(client); err != nil {
			client.Close()
			return nil, err
		}
		r.start()
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := r.sess.Rejoin(reqCtx, room)
		cancel()
		if err == nil {
			return client, nil
		}
		var adm *domain.AdmissionError
		if errors.As(err, &adm) {
			client.Close()
			<-r.done
			r.live = false
			return nil, adm.Err
		}
		lastErr = err
		client.Close()
		<-r.done
		r.live = false
	}
	return nil, lastErr
}

func errOrClosed(err error) error {
	if err == nil {
		return signalclient.ErrClosed
	}
	return err
}
