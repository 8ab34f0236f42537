package cli

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Main TUI model that routes between screens
type model struct {
	currentScreen screen
	width         int
	height        int
	quitting      bool

	// Screen models
	setupModel  SetupModel
	remoteModel RemoteModel
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.currentScreen == screenRemote {
			var cmd tea.Cmd
			m.remoteModel, cmd = m.remoteModel.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		// Global quit handling
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			m.closeController()
			return m, tea.Quit

		case "q":
			if m.currentScreen == screenSetup {
				m.quitting = true
				m.closeController()
				return m, tea.Quit
			}
			// In remote screen, 'q' disconnects and goes back to setup
			m.closeController()
			m.currentScreen = screenSetup
			m.setupModel = NewSetupModel(
				m.setupModel.hostAddress,
				m.setupModel.macAddress,
				m.setupModel.storePath,
				m.setupModel.debugMode,
			)
			return m, nil
		}
	}

	// Route messages to the appropriate screen
	switch m.currentScreen {
	case screenSetup:
		var cmd tea.Cmd
		m.setupModel, cmd = m.setupModel.Update(msg)

		// Check if pairing completed
		if m.setupModel.IsConnected() {
			m.remoteModel = NewRemoteModel(m.setupModel.GetController(), m.setupModel.debugMode)
			m.currentScreen = screenRemote
		}

		return m, cmd

	case screenRemote:
		var cmd tea.Cmd
		m.remoteModel, cmd = m.remoteModel.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return successStyle.Render("Thanks for using Iris!") + "\n"
	}

	switch m.currentScreen {
	case screenSetup:
		return m.setupModel.View()
	case screenRemote:
		return m.remoteModel.View()
	default:
		return "Unknown screen"
	}
}

func (m *model) closeController() {
	if c := m.setupModel.GetController(); c != nil {
		c.Close()
	}
}

// StartTUI launches the interactive remote with prefilled setup fields.
func StartTUI(host, mac, store string, debug bool) error {
	p := tea.NewProgram(
		model{
			currentScreen: screenSetup,
			setupModel:    NewSetupModel(host, mac, store, debug),
		},
		tea.WithAltScreen(),
	)

	// Ensure proper cleanup on panic or interrupt
	defer func() {
		if r := recover(); r != nil {
			p.Kill()
		}
	}()

	_, err := p.Run()
	return err
}
