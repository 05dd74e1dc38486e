package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dkeye/calla/internal/conference"
	"github.com/dkeye/calla/internal/devices"
	"github.com/dkeye/calla/internal/domain"
)

var (
	Primary = lipgloss.Color("#7D56F4")
	Muted   = lipgloss.Color("#767676")
	Danger  = lipgloss.Color("#FF5F87")

	TitleStyle       = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	MutedStyle       = lipgloss.NewStyle().Foreground(Muted)
	ErrorStyle       = lipgloss.NewStyle().Bold(true).Foreground(Danger)
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary).Padding(0, 1)
	TableRowStyle    = lipgloss.NewStyle().Padding(0, 1)
	TableRowAltStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#A8A8A8"))
)

func PrintError(w io.Writer, msg string) {
	fmt.Fprintln(w, ErrorStyle.Render("✗ "+msg))
}

// DevicesView renders devs as a table, marking the one chosen for each kind.
func DevicesView(devs []devices.Device, chosen map[domain.DeviceKind]string) string {
	if len(devs) == 0 {
		return MutedStyle.Render("No devices")
	}
	rows := make([][]string, 0, len(devs))
	for _, d := range devs {
		mark := ""
		if chosen[d.Kind] == d.ID {
			mark = "✓"
		}
		label := d.Label
		if label == "" {
			label = MutedStyle.Render("(no permission)")
		}
		rows = append(rows, []string{string(d.Kind), d.ID, label, mark})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Kind", "ID", "Label", "Use").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
	return tbl.Render()
}

// eventPrinter writes one status line per conference event.
type eventPrinter struct {
	w   io.Writer
	now func() time.Time
}

func (p *eventPrinter) print(ev conference.Event) {
	ts := MutedStyle.Render(p.now().Format("15:04:05"))
	fmt.Fprintf(p.w, "%s %s %s\n", ts, TitleStyle.Render(string(ev.Name())), describe(ev))
}

func describe(ev conference.Event) string {
	switch e := ev.(type) {
	case conference.UserMoved:
		return fmt.Sprintf("%s → (%.2f, %.2f, %.2f)", e.ID, e.Pose.X, e.Pose.Y, e.Pose.Z)
	case conference.UserInitResponse:
		return fmt.Sprintf("%s at (%.2f, %.2f, %.2f)", e.ID, e.Pose.X, e.Pose.Y, e.Pose.Z)
	case conference.UserInitRequest:
		return string(e.ID)
	case conference.Emote:
		return fmt.Sprintf("%s %s", e.ID, e.Emoji)
	case conference.SetAvatarEmoji:
		return fmt.Sprintf("%s %s", e.ID, e.Emoji)
	case conference.AvatarChanged:
		return fmt.Sprintf("%s %s", e.ID, e.URL)
	case conference.MuteStatusChanged:
		state := "unmuted"
		if e.Muted {
			state = "muted"
		}
		return fmt.Sprintf("%s %s %s", e.ID, e.Kind, state)
	case conference.ConferenceJoined:
		return fmt.Sprintf("as %s (%s)", e.DisplayName, e.ID)
	case conference.ParticipantJoined:
		return fmt.Sprintf("%s (%s)", e.DisplayName, e.ID)
	case conference.ParticipantLeft:
		return string(e.ID)
	case conference.DisplayNameChanged:
		return fmt.Sprintf("%s is now %s", e.ID, e.DisplayName)
	case conference.AudioActivity:
		return fmt.Sprintf("%s active=%t", e.ID, e.Active)
	case conference.ParticipantRoleChanged:
		return fmt.Sprintf("%s %s", e.ID, e.Role)
	case conference.DeviceListChanged:
		return fmt.Sprintf("%d devices", len(e.Devices))
	case conference.TrackAdded:
		return fmt.Sprintf("%s %s", e.ID, e.Kind)
	case conference.TrackRemoved:
		return fmt.Sprintf("%s %s", e.ID, e.Kind)
	case conference.TrackChanged:
		return fmt.Sprintf("%s %s", e.ID, e.Kind)
	}
	return ""
}
