// styles.go: terminal styles
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/charmbracelet/lipgloss"

var (
	TitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	SubtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	HeaderStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	ErrorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	SuccessStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	MutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// stateStyle colors a lifecycle state name.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "enabled":
		return SuccessStyle
	case "unloaded":
		return MutedStyle
	case "enabling", "disabling":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	default:
		return lipgloss.NewStyle()
	}
}
