package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"iris/internal/logger"
	"iris/internal/tv"
)

// Remote button types
type remoteButton int

const (
	buttonPowerOn remoteButton = iota
	buttonPowerOff
	buttonVolumeUp
	buttonVolumeDown
	buttonMute
	buttonChannelUp
	buttonChannelDown
	buttonUp
	buttonDown
	buttonLeft
	buttonRight
	buttonOK
	buttonHome
	buttonBack
	buttonExit
	buttonInfo
	buttonPlay
	buttonPause
	buttonStop
	buttonNum0
	buttonNum1
	buttonNum2
	buttonNum3
	buttonNum4
	buttonNum5
	buttonNum6
	buttonNum7
	buttonNum8
	buttonNum9
)

// buttonNames maps TUI buttons to the names the controller accepts.
var buttonNames = map[remoteButton]string{
	buttonVolumeUp:    "volumeup",
	buttonVolumeDown:  "volumedown",
	buttonMute:        "mute",
	buttonChannelUp:   "channelup",
	buttonChannelDown: "channeldown",
	buttonUp:          "up",
	buttonDown:        "down",
	buttonLeft:        "left",
	buttonRight:       "right",
	buttonOK:          "enter",
	buttonHome:        "home",
	buttonBack:        "back",
	buttonExit:        "exit",
	buttonInfo:        "info",
	buttonPlay:        "play",
	buttonPause:       "pause",
	buttonStop:        "stop",
	buttonNum0:        "0",
	buttonNum1:        "1",
	buttonNum2:        "2",
	buttonNum3:        "3",
	buttonNum4:        "4",
	buttonNum5:        "5",
	buttonNum6:        "6",
	buttonNum7:        "7",
	buttonNum8:        "8",
	buttonNum9:        "9",
}

// LogEntry represents a log entry for display
type LogEntry struct {
	Timestamp time.Time
	Level     string // INF, ERR
	Message   string
	Action    string
}

// actionResultMsg carries the outcome of an async remote action.
type actionResultMsg struct {
	action string
	err    error
}

// RemoteModel handles the remote control screen
type RemoteModel struct {
	// Connected controller
	controller *tv.Controller

	// Remote control state
	selectedButton  remoteButton
	lastButtonPress time.Time
	busy            bool

	// Response and history
	lastAction    string
	lastError     string
	actionHistory []actionHistoryEntry

	// Flags
	debugMode bool

	// Screen dimensions for responsive layout
	width  int
	height int

	// Log display
	logBuffer   []LogEntry
	maxLogLines int
}

// NewRemoteModel creates a new remote control screen model
func NewRemoteModel(controller *tv.Controller, debug bool) RemoteModel {
	return RemoteModel{
		controller:    controller,
		actionHistory: []actionHistoryEntry{},
		debugMode:     debug,
		logBuffer:     []LogEntry{},
		maxLogLines:   6,
	}
}

// Update handles remote control screen messages
func (m RemoteModel) Update(msg tea.Msg) (RemoteModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case actionResultMsg:
		return m.handleActionResult(msg), nil

	case tea.KeyMsg:
		switch msg.String() {
		// Navigation keys
		case "up":
			return m.handleRemoteButton(buttonUp)
		case "down":
			return m.handleRemoteButton(buttonDown)
		case "left":
			return m.handleRemoteButton(buttonLeft)
		case "right":
			return m.handleRemoteButton(buttonRight)
		case "enter":
			return m.handleRemoteButton(buttonOK)

		// Power and volume
		case "p":
			return m.handleRemoteButton(buttonPowerOn)
		case "o":
			return m.handleRemoteButton(buttonPowerOff)
		case "+", "=":
			return m.handleRemoteButton(buttonVolumeUp)
		case "-":
			return m.handleRemoteButton(buttonVolumeDown)
		case "m":
			return m.handleRemoteButton(buttonMute)

		// Channel controls
		case "ctrl+up":
			return m.handleRemoteButton(buttonChannelUp)
		case "ctrl+down":
			return m.handleRemoteButton(buttonChannelDown)

		// Number keys
		case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
			return m.handleNumberKey(msg.String())

		// Function keys
		case "h":
			return m.handleRemoteButton(buttonHome)
		case "backspace":
			return m.handleRemoteButton(buttonBack)
		case "x":
			return m.handleRemoteButton(buttonExit)
		case "i":
			return m.handleRemoteButton(buttonInfo)

		// Playback
		case " ":
			return m.handleRemoteButton(buttonPlay)
		case "ctrl+p":
			return m.handleRemoteButton(buttonPause)
		case "s":
			return m.handleRemoteButton(buttonStop)
		}
	}

	return m, nil
}

// View renders the remote control screen
func (m RemoteModel) View() string {
	var sections []string

	// Header
	sections = append(sections, titleStyle.Render("Iris - TV Remote Control"))

	// Session info (compact single line)
	info := successStyle.Render("📺 " + m.controller.SessionState())
	if m.busy {
		info += " " + lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Render("(sending...)")
	}
	sections = append(sections, info)

	// Remote control layout
	sections = append(sections, m.renderHorizontalRemoteLayout())

	// Status (if recent action)
	if m.lastAction != "" {
		sections = append(sections, m.renderStatusBar())
	}

	// Log display (if debug mode)
	if m.debugMode {
		logDisplay := m.renderLogDisplay()
		if logDisplay != "" {
			sections = append(sections, logDisplay)
		}
	}

	// Help text
	sections = append(sections, m.renderHelpText())

	return strings.Join(sections, "\n\n")
}

// renderHorizontalRemoteLayout creates a horizontal remote control layout
func (m RemoteModel) renderHorizontalRemoteLayout() string {
	getButtonStyle := func(btn remoteButton) lipgloss.Style {
		base := remoteButtonStyle
		if m.selectedButton == btn && time.Since(m.lastButtonPress) < 200*time.Millisecond {
			base = remoteButtonActiveStyle
		}
		return base
	}

	// Left column: Power & Navigation
	navColumn := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.JoinHorizontal(lipgloss.Center,
			getButtonStyle(buttonPowerOn).Render(" ON   "),
			getButtonStyle(buttonPowerOff).Render(" OFF  ")),
		"",
		getButtonStyle(buttonUp).Render("  ↑   "),
		lipgloss.JoinHorizontal(lipgloss.Center,
			getButtonStyle(buttonLeft).Render("  ←   "),
			getButtonStyle(buttonOK).Render(" OK   "),
			getButtonStyle(buttonRight).Render("  →   ")),
		getButtonStyle(buttonDown).Render("  ↓   "),
	)

	// Middle column: Volume & Channel
	volumeColumn := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")).Render("Volume & Channel:"),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonVolumeUp).Render("VOL + "),
			"  ",
			getButtonStyle(buttonChannelUp).Render("CH +  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonVolumeDown).Render("VOL - "),
			"  ",
			getButtonStyle(buttonChannelDown).Render("CH -  ")),
		getButtonStyle(buttonMute).Render("MUTE  "),
	)

	// Right column: Functions & Playback
	functionColumn := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Render("Functions:"),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonHome).Render("HOME  "),
			" ",
			getButtonStyle(buttonBack).Render("BACK  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonExit).Render("EXIT  "),
			" ",
			getButtonStyle(buttonInfo).Render("INFO  ")),
		"",
		lipgloss.NewStyle().Foreground(lipgloss.Color("#BD93F9")).Render("Playback:"),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonPlay).Render("PLAY  "),
			" ",
			getButtonStyle(buttonPause).Render("PAUSE "),
			" ",
			getButtonStyle(buttonStop).Render("STOP  ")),
	)

	navHeader := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#50FA7B")).
		Render("Power & Navigation:")

	navColumnWithHeader := lipgloss.JoinVertical(lipgloss.Center,
		navHeader,
		navColumn,
	)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		navColumnWithHeader,
		strings.Repeat(" ", 6),
		volumeColumn,
		strings.Repeat(" ", 6),
		functionColumn,
	)
}

// renderStatusBar creates the status bar with last action result
func (m RemoteModel) renderStatusBar() string {
	if m.lastError != "" {
		return errorStyle.Render("✗ " + m.lastAction + ": " + m.lastError)
	}
	return successStyle.Render("✓ " + m.lastAction)
}

// renderLogDisplay creates a simple 3-line log display area
func (m RemoteModel) renderLogDisplay() string {
	if len(m.logBuffer) == 0 {
		return ""
	}

	maxLines := 3

	start := 0
	if len(m.logBuffer) > maxLines {
		start = len(m.logBuffer) - maxLines
	}

	var logLines []string

	hasMoreLogs := len(m.logBuffer) > maxLines
	autoScrollIcon := ""
	if hasMoreLogs {
		autoScrollIcon = " ↓"
	}

	header := fmt.Sprintf("─── LOGS%s ───", autoScrollIcon)
	logLines = append(logLines, lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6272A4")).
		Render(header))

	for i := 0; i < maxLines; i++ {
		if start+i < len(m.logBuffer) {
			entry := m.logBuffer[start+i]
			timestamp := entry.Timestamp.Format("15:04:05")

			var levelStyle lipgloss.Style
			switch entry.Level {
			case "ERR":
				levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
			default: // INF
				levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
			}

			logLine := fmt.Sprintf("%s [%s] %s",
				timestamp,
				levelStyle.Render(entry.Level),
				entry.Message)

			if len(logLine) > 70 {
				logLine = logLine[:67] + "..."
			}

			logLines = append(logLines, logLine)
		} else {
			logLines = append(logLines, "")
		}
	}

	return strings.Join(logLines, "\n")
}

// addLogEntry adds a new log entry to the buffer
func (m *RemoteModel) addLogEntry(level, message, action string) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Action:    action,
	}

	m.logBuffer = append(m.logBuffer, entry)

	if len(m.logBuffer) > 20 {
		m.logBuffer = m.logBuffer[1:]
	}
}

// renderHelpText creates the help text at the bottom
func (m RemoteModel) renderHelpText() string {
	help := "Arrows: Navigate • Enter: OK • P: Power On • O: Power Off • +/-: Volume • M: Mute • 0-9: Numbers"
	if m.width > 100 {
		help += " • H: Home • X: Exit • I: Info • Space: Play • q: Disconnect"
	} else {
		help += " • q: Disconnect"
	}

	return "\n" + helpStyle.Render(help)
}

// handleRemoteButton starts a remote control action in the background
func (m RemoteModel) handleRemoteButton(button remoteButton) (RemoteModel, tea.Cmd) {
	if m.controller == nil || m.busy {
		return m, nil
	}

	m.selectedButton = button
	m.lastButtonPress = time.Now()
	m.busy = true

	controller := m.controller

	switch button {
	case buttonPowerOn:
		return m, func() tea.Msg {
			return actionResultMsg{action: "power on", err: controller.PowerOnViaNetwork()}
		}
	case buttonPowerOff:
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return actionResultMsg{action: "power off", err: controller.PowerOff(ctx)}
		}
	}

	name, ok := buttonNames[button]
	if !ok {
		m.busy = false
		return m, nil
	}

	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return actionResultMsg{action: name, err: controller.SendButton(ctx, name)}
	}
}

// handleActionResult records an async action outcome
func (m RemoteModel) handleActionResult(msg actionResultMsg) RemoteModel {
	m.busy = false
	m.lastAction = msg.action
	m.lastError = ""

	entry := actionHistoryEntry{
		Timestamp: time.Now(),
		Action:    msg.action,
		Success:   msg.err == nil,
	}

	if msg.err != nil {
		m.lastError = msg.err.Error()
		entry.Error = msg.err.Error()
		if m.debugMode {
			m.addLogEntry("ERR", fmt.Sprintf("%s failed: %s", msg.action, msg.err), msg.action)
		}
	} else if m.debugMode {
		m.addLogEntry("INF", fmt.Sprintf("%s completed successfully", msg.action), msg.action)
	}

	m.actionHistory = append([]actionHistoryEntry{entry}, m.actionHistory...)
	if len(m.actionHistory) > 50 {
		m.actionHistory = m.actionHistory[:50]
	}

	log := logger.New()
	log.Info().
		Str("action", msg.action).
		Bool("success", msg.err == nil).
		Msg("Remote button pressed")

	return m
}

// handleNumberKey handles number key presses
func (m RemoteModel) handleNumberKey(key string) (RemoteModel, tea.Cmd) {
	var button remoteButton
	switch key {
	case "0":
		button = buttonNum0
	case "1":
		button = buttonNum1
	case "2":
		button = buttonNum2
	case "3":
		button = buttonNum3
	case "4":
		button = buttonNum4
	case "5":
		button = buttonNum5
	case "6":
		button = buttonNum6
	case "7":
		button = buttonNum7
	case "8":
		button = buttonNum8
	case "9":
		button = buttonNum9
	default:
		return m, nil
	}

	return m.handleRemoteButton(button)
}
