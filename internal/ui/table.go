package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ernestchu/christmas-tree/internal/protocol"
)

func styledTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
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
}

// RosterView renders the members of a session in join order. The
// controller is crowned and the local user tagged.
func RosterView(users []protocol.User, controllerID, selfID string) string {
	if len(users) == 0 {
		return MutedStyle.Render("Nobody here")
	}
	rows := make([][]string, 0, len(users))
	for i, u := range users {
		name := Truncate(u.Name, 32)
		if u.ID == selfID {
			name += " (you)"
		}
		role := ""
		if u.ID == controllerID {
			role = IconController + " controller"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), name, role, u.ID})
	}
	return styledTable([]string{"#", "Name", "Role", "ID"}, rows).Render()
}

// SessionsView renders the live sessions reported by the server.
func SessionsView(sessions []protocol.SessionSummary, now time.Time) string {
	if len(sessions) == 0 {
		return MutedStyle.Render("No live sessions")
	}
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		controller := "-"
		names := make([]string, 0, len(s.Users))
		for _, u := range s.Users {
			names = append(names, u.Name)
			if u.ID == protocol.ID(s.ControllerID) {
				controller = u.Name
			}
		}
		rows = append(rows, []string{
			s.ID,
			fmt.Sprintf("%d", len(s.Users)),
			Truncate(controller, 20),
			Truncate(strings.Join(names, ", "), 40),
			now.Sub(s.CreatedAt).Truncate(time.Second).String(),
		})
	}
	return styledTable([]string{"Session", "Users", "Controller", "Members", "Age"}, rows).Render()
}

// SessionInfoView is the box printed after a fresh session id is minted.
func SessionInfoView(sessionID, joinHint string) string {
	content := fmt.Sprintf("%s Session ready!\n\n%s Session ID:  %s\n%s Join with:   %s",
		IconTree,
		IconGift, BoldStyle.Foreground(Primary).Render(sessionID),
		IconStar, MutedStyle.Render(joinHint),
	)
	return SessionBoxStyle.Render(content)
}

// SceneView summarizes the local render state.
func SceneView(mode protocol.Mode, speed float64, photos int) string {
	return fmt.Sprintf("%s mode %s  %s speed %.2f  %s photos %d",
		IconTree, BoldStyle.Render(string(mode)),
		IconSpeed, speed,
		IconPhoto, photos,
	)
}
