package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/dkeye/Huddle/internal/meeting"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
)

// meshView keeps per-link state and inbound packet counts for display.
type meshView struct {
	mu    sync.Mutex
	state map[domain.ConnID]mesh.State
	recv  map[domain.ConnID]*atomic.Uint64
}

func newMeshView() *meshView {
	return &meshView{
		state: make(map[domain.ConnID]mesh.State),
		recv:  make(map[domain.ConnID]*atomic.Uint64),
	}
}

type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

func (v *meshView) hooks(ctx context.Context) mesh.Hooks {
	return mesh.Hooks{
		OnStateChange: func(remote domain.ConnID, s mesh.State) {
			v.mu.Lock()
			defer v.mu.Unlock()
			if s == mesh.StateClosed {
				delete(v.state, remote)
				delete(v.recv, remote)
				return
			}
			v.state[remote] = s
		},
		OnRemoteTrack: func(remote domain.ConnID, mc protocol.MediaContext, track mesh.RemoteTrack) {
			r, ok := track.(rtpReader)
			if !ok {
				return
			}
			go v.drain(ctx, remote, mc, r)
		},
		OnPeerClosed: func(remote domain.ConnID, reason mesh.CloseReason) {
			log.Info().Str("module", "cli").Str("remote", string(remote)).Str("reason", string(reason)).Msg("link closed")
		},
	}
}

// drain reads a remote track until it ends; unread tracks stall the receiver.
func (v *meshView) drain(ctx context.Context, remote domain.ConnID, mc protocol.MediaContext, r rtpReader) {
	v.mu.Lock()
	n, ok := v.recv[remote]
	if !ok {
		n = &atomic.Uint64{}
		v.recv[remote] = n
	}
	v.mu.Unlock()

	log.Debug().Str("module", "cli").Str("remote", string(remote)).Str("ctx", string(mc)).Msg("receiving")
	for ctx.Err() == nil {
		if _, _, err := r.ReadRTP(); err != nil {
			return
		}
		n.Add(1)
	}
}

func (v *meshView) stats() map[domain.ConnID]LinkStat {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[domain.ConnID]LinkStat, len(v.state))
	for id, s := range v.state {
		st := LinkStat{State: s.String()}
		if n, ok := v.recv[id]; ok {
			st.Packets = n.Load()
		}
		out[id] = st
	}
	return out
}

type console struct {
	sess *meeting.Session
	src  media.Source
	view *meshView
	out  io.Writer
	quit chan struct{}
	once sync.Once
}

const consoleHelp = `commands:
  who                    list participants and link state
  mute | unmute          stop or resume the microphone
  camera on|off          stop or resume the camera
  screen on|off          start or stop screen share
  kick <connection-id>   remove a participant (host only)
  leave                  leave the room`

func (c *console) serve(in io.Reader) {
	fmt.Fprintln(c.out, `type "help" for commands`)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if c.exec(strings.Fields(sc.Text())) {
			break
		}
	}
	// EOF on stdin keeps the meeting running; only "leave" ends it here.
}

func (c *console) leave() {
	c.once.Do(func() { close(c.quit) })
}

// exec runs one command and reports whether the console should stop.
func (c *console) exec(args []string) bool {
	if len(args) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch args[0] {
	case "help":
		fmt.Fprintln(c.out, consoleHelp)
	case "who":
		RenderParticipants(c.out, c.sess.RoomID(), c.sess.Participants(), c.sess.Self(), c.view.stats())
	case "mute":
		c.report(c.sess.Unpublish(ctx, media.Mic))
	case "unmute":
		c.toggle(ctx, media.Mic, true)
	case "camera", "screen":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			fmt.Fprintf(c.out, "usage: %s on|off\n", args[0])
			return false
		}
		c.toggle(ctx, media.Kind(args[0]), args[1] == "on")
	case "kick":
		if len(args) != 2 {
			fmt.Fprintln(c.out, "usage: kick <connection-id>")
			return false
		}
		if !c.sess.IsHost() {
			fmt.Fprintln(c.out, "only the host can kick")
			return false
		}
		c.report(c.sess.Kick(ctx, domain.ConnID(args[1])))
	case "leave", "quit", "exit":
		c.leave()
		return true
	default:
		fmt.Fprintf(c.out, "unknown command %q\n", args[0])
	}
	return false
}

func (c *console) toggle(ctx context.Context, kind media.Kind, on bool) {
	if !on {
		c.report(c.sess.Unpublish(ctx, kind))
		return
	}
	track, ok := c.src.Track(kind)
	if !ok {
		fmt.Fprintf(c.out, "no %s source\n", kind)
		return
	}
	c.report(c.sess.Publish(ctx, kind, track))
}

func (c *console) report(err error) {
	if err != nil {
		fmt.Fprintln(c.out, "error:", err)
		return
	}
	fmt.Fprintln(c.out, "ok")
}
