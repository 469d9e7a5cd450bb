package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hotter6163/taskctl/internal/types"
)

var (
	grayStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	blueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	purpleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

func renderTaskStatus(s types.TaskStatus) string {
	switch s {
	case types.TaskPending:
		return grayStyle.Render(s.String())
	case types.TaskReady:
		return blueStyle.Render(s.String())
	case types.TaskAssigned, types.TaskInProgress:
		return yellowStyle.Render(s.String())
	case types.TaskPRCreated, types.TaskInReview:
		return purpleStyle.Render(s.String())
	case types.TaskCompleted:
		return greenStyle.Render(s.String())
	case types.TaskBlocked:
		return redStyle.Render(s.String())
	}
	return s.String()
}

func renderPlanStatus(s types.PlanStatus) string {
	switch s {
	case types.PlanDraft:
		return grayStyle.Render(s.String())
	case types.PlanPlanning:
		return yellowStyle.Render(s.String())
	case types.PlanReady:
		return blueStyle.Render(s.String())
	case types.PlanInProgress:
		return yellowStyle.Render(s.String())
	case types.PlanCompleted:
		return greenStyle.Render(s.String())
	case types.PlanArchived:
		return grayStyle.Render(s.String())
	}
	return s.String()
}

func renderSlotStatus(s types.SlotStatus) string {
	switch s {
	case types.SlotAvailable:
		return greenStyle.Render(s.String())
	case types.SlotAssigned, types.SlotInProgress, types.SlotPRPending:
		return yellowStyle.Render(s.String())
	case types.SlotCompleted:
		return blueStyle.Render(s.String())
	case types.SlotError:
		return redStyle.Render(s.String())
	}
	return s.String()
}

// renderProgressBar renders a fixed-width bar like [=====>    ] 3/6.
func renderProgressBar(p types.Progress, width int) string {
	if width < 4 {
		width = 4
	}
	filled := 0
	if p.Total > 0 {
		filled = width * p.Completed / p.Total
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
	return fmt.Sprintf("[%s] %d/%d (%.0f%%)", greenStyle.Render(bar), p.Completed, p.Total, p.Percent)
}
