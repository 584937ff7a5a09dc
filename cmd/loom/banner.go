package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/untoldecay/loom/internal/session"
)

var (
	bannerTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	bannerLabel = lipgloss.NewStyle().Faint(true)
	bannerValue = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// printBanner renders the session header shown when serve starts.
func printBanner(s *session.Session) {
	name := s.Project.Name
	if name == "" {
		name = s.Project.Folder()
	}
	fmt.Println(bannerTitle.Render("loom " + Version))
	fmt.Printf("%s %s\n", bannerLabel.Render("project:"), bannerValue.Render(name))
	fmt.Printf("%s %s\n", bannerLabel.Render("address:"), bannerValue.Render("http://"+s.Address()))
	fmt.Printf("%s %s\n", bannerLabel.Render("session:"), bannerValue.Render(s.ID))
}
