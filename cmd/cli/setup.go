package cli

import (
	"context"
	"net"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"iris/internal/credstore"
	"iris/internal/logger"
	"iris/internal/tv"
)

// Setup screen input fields
type setupField int

const (
	setupFieldHostAddress setupField = iota
	setupFieldMACAddress
	setupFieldStorePath
	setupFieldConnect
)

// pairResultMsg carries the outcome of an async pairing attempt.
type pairResultMsg struct {
	controller *tv.Controller
	err        error
}

// SetupModel handles the TV setup screen
type SetupModel struct {
	// Navigation
	focusedField setupField

	// Input fields
	hostAddress string
	macAddress  string
	storePath   string

	// Cursor positions
	hostAddressCursor int
	macAddressCursor  int
	storePathCursor   int

	// Connection state
	connecting      bool
	connectionError string

	// Connected controller (when setup complete)
	controller *tv.Controller

	// Flags
	debugMode bool
}

// NewSetupModel creates a new setup screen model with prefilled fields.
func NewSetupModel(host, mac, store string, debug bool) SetupModel {
	if store == "" {
		store = "store.json"
	}
	return SetupModel{
		focusedField: setupFieldHostAddress,
		hostAddress:  host,
		macAddress:   mac,
		storePath:    store,
		debugMode:    debug,
	}
}

// IsConnected reports whether pairing completed.
func (m SetupModel) IsConnected() bool {
	return m.controller != nil
}

// GetController returns the paired controller.
func (m SetupModel) GetController() *tv.Controller {
	return m.controller
}

// Update handles setup screen messages
func (m SetupModel) Update(msg tea.Msg) (SetupModel, tea.Cmd) {
	switch msg := msg.(type) {
	case pairResultMsg:
		m.connecting = false
		if msg.err != nil {
			m.connectionError = msg.err.Error()
			if msg.controller != nil {
				msg.controller.Close()
			}
			return m, nil
		}
		m.controller = msg.controller
		m.connectionError = ""
		return m, nil

	case tea.KeyMsg:
		if m.connecting {
			return m, nil
		}

		switch msg.String() {
		case "tab", "shift+tab", "down", "up":
			return m.handleFieldNavigation(msg.String() == "shift+tab" || msg.String() == "up"), nil

		case "enter":
			if m.focusedField == setupFieldConnect {
				return m.handleConnect()
			}
			return m.handleFieldNavigation(false), nil

		case "left":
			return m.moveCursor(-1), nil

		case "right":
			return m.moveCursor(1), nil

		case "backspace":
			return m.handleBackspace(), nil

		case "home":
			return m.setCursor(0), nil

		case "end":
			return m.setCursor(len(m.focusedText())), nil

		default:
			return m.handleTextInput(msg.String()), nil
		}
	}

	return m, nil
}

// View renders the setup screen
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Iris - TV Setup"))
	b.WriteString("\n\n")

	b.WriteString(subtitleStyle.Render("TV Host Address (IP or IP:Port):"))
	b.WriteString("\n")
	b.WriteString(m.renderInput(setupFieldHostAddress, m.hostAddress, m.hostAddressCursor))
	b.WriteString("\n\n")

	b.WriteString(subtitleStyle.Render("MAC Address (for Wake-on-LAN, optional):"))
	b.WriteString("\n")
	b.WriteString(m.renderInput(setupFieldMACAddress, m.macAddress, m.macAddressCursor))
	b.WriteString("\n\n")

	b.WriteString(subtitleStyle.Render("Credential Store Path:"))
	b.WriteString("\n")
	b.WriteString(m.renderInput(setupFieldStorePath, m.storePath, m.storePathCursor))
	b.WriteString("\n\n")

	connectStyle := buttonStyle
	if m.focusedField == setupFieldConnect {
		connectStyle = buttonActiveStyle
	}

	connectText := "Connect"
	if m.connecting {
		connectText = "Connecting... accept the pairing prompt on the TV"
	}
	b.WriteString(connectStyle.Render(connectText))
	b.WriteString("\n\n")

	if m.connectionError != "" {
		b.WriteString(errorStyle.Render("Error: " + m.connectionError))
		b.WriteString("\n\n")
	}

	b.WriteString(helpStyle.Render("Tab/↑/↓: Navigate • Enter: Action • ←/→: Move cursor • q: Quit"))

	return b.String()
}

func (m SetupModel) renderInput(field setupField, text string, cursor int) string {
	style := inputStyle
	focused := m.focusedField == field
	if focused {
		style = inputFocusedStyle
	}
	return style.Render(renderTextWithCursor(text, cursor, focused))
}

// handleFieldNavigation moves between input fields
func (m SetupModel) handleFieldNavigation(reverse bool) SetupModel {
	fields := []setupField{setupFieldHostAddress, setupFieldMACAddress, setupFieldStorePath, setupFieldConnect}

	currentIndex := 0
	for i, field := range fields {
		if field == m.focusedField {
			currentIndex = i
			break
		}
	}

	if reverse {
		currentIndex--
		if currentIndex < 0 {
			currentIndex = len(fields) - 1
		}
	} else {
		currentIndex++
		if currentIndex >= len(fields) {
			currentIndex = 0
		}
	}

	m.focusedField = fields[currentIndex]
	m = m.setCursor(len(m.focusedText()))
	return m
}

func (m SetupModel) focusedText() string {
	switch m.focusedField {
	case setupFieldHostAddress:
		return m.hostAddress
	case setupFieldMACAddress:
		return m.macAddress
	case setupFieldStorePath:
		return m.storePath
	}
	return ""
}

func (m SetupModel) setFocusedText(text string) SetupModel {
	switch m.focusedField {
	case setupFieldHostAddress:
		m.hostAddress = text
	case setupFieldMACAddress:
		m.macAddress = text
	case setupFieldStorePath:
		m.storePath = text
	}
	return m
}

func (m SetupModel) cursorPos() int {
	switch m.focusedField {
	case setupFieldHostAddress:
		return m.hostAddressCursor
	case setupFieldMACAddress:
		return m.macAddressCursor
	case setupFieldStorePath:
		return m.storePathCursor
	}
	return 0
}

func (m SetupModel) setCursor(pos int) SetupModel {
	if pos < 0 {
		pos = 0
	}
	if max := len(m.focusedText()); pos > max {
		pos = max
	}
	switch m.focusedField {
	case setupFieldHostAddress:
		m.hostAddressCursor = pos
	case setupFieldMACAddress:
		m.macAddressCursor = pos
	case setupFieldStorePath:
		m.storePathCursor = pos
	}
	return m
}

func (m SetupModel) moveCursor(delta int) SetupModel {
	return m.setCursor(m.cursorPos() + delta)
}

func (m SetupModel) handleBackspace() SetupModel {
	pos := m.cursorPos()
	if pos == 0 {
		return m
	}
	m = m.setFocusedText(deleteCharAt(m.focusedText(), pos-1))
	return m.setCursor(pos - 1)
}

func (m SetupModel) handleTextInput(key string) SetupModel {
	// Only accept single printable characters
	if len(key) != 1 || key[0] < 32 || key[0] > 126 {
		return m
	}
	pos := m.cursorPos()
	m = m.setFocusedText(insertText(m.focusedText(), pos, key))
	return m.setCursor(pos + 1)
}

// handleConnect validates the inputs and starts an async pairing attempt.
func (m SetupModel) handleConnect() (SetupModel, tea.Cmd) {
	host := strings.TrimSpace(m.hostAddress)
	mac := strings.TrimSpace(m.macAddress)
	store := strings.TrimSpace(m.storePath)

	if host == "" {
		m.connectionError = "host address is required"
		return m, nil
	}
	if mac != "" {
		if _, err := net.ParseMAC(mac); err != nil {
			m.connectionError = "invalid MAC address: " + mac
			return m, nil
		}
	}
	if store == "" {
		store = "store.json"
	}

	m.connecting = true
	m.connectionError = ""

	log := logger.New()
	log.Info().
		Str("host", host).
		Msg("Starting pairing attempt")

	return m, func() tea.Msg {
		controller := tv.NewController(credstore.NewStore(store), tv.Config{
			Host: host,
			MAC:  mac,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		if err := controller.BeginPairing(ctx); err != nil {
			return pairResultMsg{controller: controller, err: err}
		}
		return pairResultMsg{controller: controller}
	}
}
