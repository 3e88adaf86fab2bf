package styles

import "github.com/charmbracelet/lipgloss"

// Color palette - default dark theme
var (
	Primary = lipgloss.Color("#7C3AED") // Purple
	Accent  = lipgloss.Color("#F59E0B") // Amber

	Success = lipgloss.Color("#10B981") // Green
	Error   = lipgloss.Color("#EF4444") // Red

	TextPrimary   = lipgloss.Color("#F9FAFB")
	TextSecondary = lipgloss.Color("#9CA3AF")
	TextMuted     = lipgloss.Color("#6B7280")

	BgPrimary   = lipgloss.Color("#111827")
	BgSecondary = lipgloss.Color("#1F2937")
	BgTertiary  = lipgloss.Color("#374151")

	BorderNormal = lipgloss.Color("#374151")
	BorderActive = lipgloss.Color("#7C3AED")
)

// Panel styles
var (
	PanelActive   lipgloss.Style
	PanelInactive lipgloss.Style
	PanelHeader   lipgloss.Style
)

// Text styles
var (
	Title   lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	KeyHint lipgloss.Style
)

// Tab bar styles
var (
	TabActive   lipgloss.Style
	TabInactive lipgloss.Style
	TabPinned   lipgloss.Style
)

// List styles
var (
	ListSelected lipgloss.Style
	ListNormal   lipgloss.Style
	ListLocked   lipgloss.Style
)

// Status and toast styles
var (
	StatusBar    lipgloss.Style
	ToastSuccess lipgloss.Style
	ToastError   lipgloss.Style
)

func init() {
	rebuild()
}

// rebuild derives every style from the current palette.
func rebuild() {
	PanelActive = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderActive).
		Padding(0, 1)

	PanelInactive = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderNormal).
		Padding(0, 1)

	PanelHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary).
		MarginBottom(1)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary)

	Body = lipgloss.NewStyle().
		Foreground(TextPrimary)

	Muted = lipgloss.NewStyle().
		Foreground(TextMuted)

	KeyHint = lipgloss.NewStyle().
		Foreground(TextMuted).
		Background(BgTertiary).
		Padding(0, 1)

	TabActive = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary).
		Background(Primary).
		Padding(0, 1)

	TabInactive = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(BgSecondary).
		Padding(0, 1)

	TabPinned = lipgloss.NewStyle().
		Foreground(Accent).
		Background(BgSecondary).
		Padding(0, 1)

	ListSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary).
		Background(BgTertiary)

	ListNormal = lipgloss.NewStyle().
		Foreground(TextSecondary)

	ListLocked = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(BgSecondary).
		Padding(0, 1)

	ToastSuccess = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#000000")).
		Background(Success).
		Padding(0, 1)

	ToastError = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(Error).
		Padding(0, 1)
}

// ApplyTheme switches the palette by name and rebuilds every style.
// Unknown names keep the default dark palette.
func ApplyTheme(name string) {
	if name != "light" {
		return
	}
	TextPrimary = lipgloss.Color("#111827")
	TextSecondary = lipgloss.Color("#4B5563")
	TextMuted = lipgloss.Color("#9CA3AF")
	BgPrimary = lipgloss.Color("#F9FAFB")
	BgSecondary = lipgloss.Color("#E5E7EB")
	BgTertiary = lipgloss.Color("#D1D5DB")
	BorderNormal = lipgloss.Color("#D1D5DB")
	rebuild()
}
