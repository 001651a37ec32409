package format

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"vizflow/internal/display"
	"vizflow/internal/viz"
	"vizflow/internal/workflow"
)

var (
	bannerBase = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	bannerWarn  = bannerBase.BorderForeground(lipgloss.Color("11"))
	bannerError = bannerBase.BorderForeground(lipgloss.Color("9"))
	bannerTitle = lipgloss.NewStyle().Bold(true)
)

// NoticeBanner renders a notice as a bordered terminal banner. Validation
// and busy notices use a warning color; everything else an error color.
func NoticeBanner(n workflow.Notice) string {
	style := bannerError
	if n.Kind == viz.KindValidation || n.Kind == viz.KindBusy {
		style = bannerWarn
	}
	head := bannerTitle.Render(fmt.Sprintf("[%d] %s", n.ID, display.Kind(string(n.Kind))))
	return style.Render(head + "\n" + n.Message)
}
