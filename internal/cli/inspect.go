package cli

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/spf13/cobra"
)

var existsCmd = &cobra.Command{
	Use:   "exists ROOM_ID",
	Short: "Check whether a room exists and has a free seat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		room := domain.RoomID(args[0])
		exists, full, err := NewAPI(s.Server).Exists(cmd.Context(), room)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case !exists:
			fmt.Fprintf(out, "%s: no such room\n", room)
		case full:
			fmt.Fprintf(out, "%s: full\n", room)
		default:
			fmt.Fprintf(out, "%s: open\n", room)
		}
		return nil
	},
}

var participantsCmd = &cobra.Command{
	Use:   "participants [ROOM_ID]",
	Short: "List participants of one room, or of every room",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		api := NewAPI(s.Server)
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			room := domain.RoomID(args[0])
			ps, err := api.Participants(cmd.Context(), room)
			if err != nil {
				return err
			}
			RenderParticipants(out, room, ps, "", nil)
			return nil
		}

		rooms, err := api.Rooms(cmd.Context())
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			fmt.Fprintln(out, "no rooms")
			return nil
		}
		RenderRooms(out, rooms)
		all, err := api.AllParticipants(cmd.Context())
		if err != nil {
			return err
		}
		RenderAll(out, all)
		return nil
	},
}
