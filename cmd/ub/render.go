package main

import (
	"fmt"
	"strings"
	"time"

	"UB-Client/internal/bulletin"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00D4AA"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Width(20)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D4AA")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00D4AA")).
			Padding(0, 1)

	restrictedStyle = boxStyle.BorderForeground(lipgloss.Color("#666666"))
)

type field struct {
	label string
	value string
}

func renderFields(fields []field) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(f.label), f.value))
	}
	return strings.Join(lines, "\n")
}

func renderPost(post *bulletin.Post) string {
	if post.Deleted() {
		return restrictedStyle.Render(mutedStyle.Render(fmt.Sprintf("#%d  removed by its author", post.Index)))
	}
	header := titleStyle.Render(fmt.Sprintf("#%d  %s", post.Index, post.Title))
	meta := mutedStyle.Render(fmt.Sprintf("%s · %s · %s",
		post.Author, post.Time().Format(time.RFC3339), post.Type.String()))

	parts := []string{header, meta}
	if post.Summary != "" {
		parts = append(parts, "", post.Summary)
	}
	content := post.Content
	if c, err := post.CID(); err == nil {
		content = "ipfs://" + c.String()
	}
	if content != "" {
		parts = append(parts, "", content)
	}
	return boxStyle.Render(strings.Join(parts, "\n"))
}

func renderRestricted(index uint64) string {
	return restrictedStyle.Render(mutedStyle.Render(fmt.Sprintf("#%d  %s", index, bulletin.SubscriptionRequiredReason)))
}

func renderError(err error) string {
	return errorStyle.Render("error: ") + err.Error()
}

func renderSuccess(msg string) string {
	return successStyle.Render(msg)
}
