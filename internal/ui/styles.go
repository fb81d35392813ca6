package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("33")  // Blue
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("214") // Amber
	colorSuccess   = lipgloss.Color("78")  // Green
	colorError     = lipgloss.Color("196") // Red
)

// Header style for the top bar.
var Header = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// SelectedVisit style for the highlighted visit row.
var SelectedVisit = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalVisit style for unselected visit rows.
var NormalVisit = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// NewVisitBadge marks visits that arrived in the latest refresh.
var NewVisitBadge = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// PanelTitle style for per-spectrograph panel headers.
var PanelTitle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	MarginTop(1).
	Padding(0, 1)

// PanelBody style for panel content.
var PanelBody = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 2)

// MissingNote style for absent arms: informational, not alarming.
var MissingNote = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(0, 2)

// ErrorNote style for real per-arm faults.
var ErrorNote = lipgloss.NewStyle().
	Foreground(colorError).
	Padding(0, 2)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// ErrorStyle for displaying request-level errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true).
	Padding(0, 1)

// WidgetLabel style for the code/fiber selector labels.
var WidgetLabel = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

// WidgetFocused style for the selector that owns keyboard focus.
var WidgetFocused = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)
