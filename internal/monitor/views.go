package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/hive/internal/admin"
	"github.com/rivo/tview"
)

// StatsView renders the daemon counters.
type StatsView struct {
	*tview.TextView
}

// NewStatsView creates an empty stats panel.
func NewStatsView() *StatsView {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBorder(true).SetTitle(" hived ").SetBorderColor(tcell.ColorDodgerBlue)
	return &StatsView{TextView: tv}
}

// Update redraws the panel from st.
func (v *StatsView) Update(st *admin.Status) {
	v.Clear()
	_, _ = fmt.Fprint(v, renderStats(st))
}

func renderStats(st *admin.Status) string {
	if st == nil {
		return " [gray]waiting for daemon...[-]"
	}
	var b strings.Builder
	row := func(label string, value any) {
		fmt.Fprintf(&b, " [fuchsia]%-14s[-] %v\n", label, value)
	}
	row("node", st.Node)
	row("uptime", (time.Duration(st.UptimeMs) * time.Millisecond).Truncate(time.Second))
	row("connections", st.Connections)
	row("away", st.Away)
	row("rooms", st.Rooms)
	row("users", st.Users)
	row("conversations", st.Conversations)
	row("messages", st.Messages)
	row("notifications", st.Notifications)
	row("bus dropped", st.BusDropped)

	statuses := make([]string, 0, len(st.Outbox))
	for s := range st.Outbox {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		row("outbox "+s, st.Outbox[s])
	}
	return b.String()
}

// OnlineTable lists connected users.
type OnlineTable struct {
	*tview.Table
}

// NewOnlineTable creates the table with its header row.
func NewOnlineTable() *OnlineTable {
	t := tview.NewTable().SetSelectable(true, false).SetFixed(1, 0)
	t.SetBorder(true).SetTitle(" online ").SetBorderColor(tcell.ColorDodgerBlue)
	t.SetSelectedStyle(tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorAqua))
	ot := &OnlineTable{Table: t}
	ot.header()
	return ot
}

func (t *OnlineTable) header() {
	for col, title := range []string{"USER", "PRESENCE"} {
		t.SetCell(0, col, tview.NewTableCell(title).
			SetTextColor(tcell.ColorWhite).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false).
			SetExpansion(1))
	}
}

// Update replaces the rows, keeping the selection on the same user when it
// is still online.
func (t *OnlineTable) Update(users []admin.OnlineUser) {
	selected := t.Selected()
	t.Clear()
	t.header()
	row := 1
	for i, u := range users {
		color := tcell.ColorGreen
		if u.Presence == "away" {
			color = tcell.ColorOrange
		}
		t.SetCell(i+1, 0, tview.NewTableCell(u.UserID).SetExpansion(1))
		t.SetCell(i+1, 1, tview.NewTableCell(u.Presence).SetTextColor(color).SetExpansion(1))
		if u.UserID == selected {
			row = i + 1
		}
	}
	if len(users) > 0 {
		t.Select(row, 0)
	}
	t.SetTitle(fmt.Sprintf(" online [%d] ", len(users)))
}

// Selected returns the highlighted user id, or "".
func (t *OnlineTable) Selected() string {
	row, _ := t.GetSelection()
	if row < 1 || row >= t.GetRowCount() {
		return ""
	}
	return t.GetCell(row, 0).Text
}

// StatusBar shows the socket, refresh time, key hints and flash messages.
type StatusBar struct {
	*tview.TextView
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv}
}

// Render redraws the bar.
func (sb *StatusBar) Render(socket string, refreshed time.Time, err error, hints []string, flash string) {
	sb.Clear()
	_, _ = fmt.Fprint(sb, statusLine(socket, refreshed, err, hints, flash))
}

func statusLine(socket string, refreshed time.Time, err error, hints []string, flash string) string {
	state := "[green]connected[-]"
	if err != nil {
		state = "[red]" + tview.Escape(err.Error()) + "[-]"
	}
	at := "--:--:--"
	if !refreshed.IsZero() {
		at = refreshed.Format("15:04:05")
	}
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s | %s", socket, state, at, strings.Join(hints, " "))
	if flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", tview.Escape(flash))
	}
	return line
}
