package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mdouchement/rfboard"
)

type model struct {
	table table.Model
}

func newTUI() *model {
	columns := []table.Column{
		{Title: "Measure", Width: 20},
		{Title: "Value", Width: 40},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		Foreground(lipgloss.Color("#00afff")).
		BorderForeground(lipgloss.Color("#00afff")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#ffffff")).
		Bold(false)
	t.SetStyles(s)

	return &model{
		table: t,
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(msg.Height)
	case rfboard.Status:
		m.table.SetRows(rows(msg))
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	return m.table.View()
}

func rows(status rfboard.Status) []table.Row {
	rows := make([]table.Row, 0, len(status.Channels)+len(status.Activities)+5)

	for _, c := range status.Channels {
		value := fmt.Sprintf("%7.3f%s (raw %7.3f%s)", c.Debounced, c.Unit, c.Raw, c.Unit)
		if !c.Primed {
			value += " warming up"
		}
		rows = append(rows, table.Row{c.ID, value})
	}

	soc := fmt.Sprintf("%3d%%", status.StateOfCharge)
	if status.BatteryCritical {
		soc += " CRITICAL"
	}
	rows = append(rows, table.Row{"state_of_charge", soc})

	limit := fmt.Sprintf("%.3fA / %.3fA", status.CurrentLimit, status.CurrentCeiling)
	if len(status.Overcurrent) > 0 {
		limit += " EXCEEDED by " + strings.Join(status.Overcurrent, ", ")
	}
	rows = append(rows, table.Row{"current_limit", limit})

	if status.Frequency != "" {
		rows = append(rows, table.Row{"frequency", status.Frequency})
	}
	rows = append(rows, table.Row{"watchdog", fmt.Sprintf("%s (uptime %s)", status.Watchdog, status.Uptime)})

	for _, a := range status.Activities {
		value := fmt.Sprintf("%d cycles every %s on core %d, last %s", a.Cycles, a.Period, a.Core, a.LastRun)
		if a.LastError != "" {
			value += " - " + a.LastError
		}
		rows = append(rows, table.Row{"activity." + a.Name, value})
	}

	return rows
}
