package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/jedib0t/go-pretty/v6/table"
)

// LinkStat is one row of the live mesh view.
type LinkStat struct {
	State   string
	Packets uint64
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// RenderParticipants prints a room's participants in join order. stats,
// when given, adds the local link state and received packet count.
func RenderParticipants(w io.Writer, room domain.RoomID, ps []domain.ParticipantView, self domain.ConnID, stats map[domain.ConnID]LinkStat) {
	t := newTable(w, fmt.Sprintf("Room %s", room))
	header := table.Row{"#", "Identity", "Connection", "Host"}
	if stats != nil {
		header = append(header, "Link", "Packets")
	}
	t.AppendHeader(header)
	for _, p := range ps {
		name := p.Identity
		if p.ConnID == self {
			name += " (you)"
		}
		host := ""
		if p.Host {
			host = "*"
		}
		row := table.Row{p.JoinOrder, name, p.ConnID, host}
		if stats != nil {
			st, ok := stats[p.ConnID]
			switch {
			case p.ConnID == self:
				row = append(row, "", "")
			case ok:
				row = append(row, st.State, st.Packets)
			default:
				row = append(row, "none", "")
			}
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d", len(ps), domain.MaxRoomSize)})
	t.Render()
}

func RenderRooms(w io.Writer, rooms []core.RoomInfo) {
	t := newTable(w, "Rooms")
	t.AppendHeader(table.Row{"Room", "Size", "Full", "Host"})
	for _, r := range rooms {
		t.AppendRow(table.Row{r.ID, r.Size, r.Full, r.Host})
	}
	t.Render()
}

// RenderAll prints every room's participants, rooms sorted by ID.
func RenderAll(w io.Writer, all map[domain.RoomID][]domain.ParticipantView) {
	ids := make([]domain.RoomID, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		RenderParticipants(w, id, all[id], "", nil)
	}
}
