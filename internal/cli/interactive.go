package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/apresai/papercast/internal/script"
	"github.com/apresai/papercast/internal/tts"
)

// menuItem represents a single configurable option in the TUI.
type menuItem struct {
	label    string
	value    string
	options  []menuOption
	required bool
	editing  bool
	cursor   int // cursor within options when editing
}

type menuOption struct {
	label string
	value string
}

type menuState int

const (
	stateMenu menuState = iota
	stateEditing
)

// tuiModel is the Bubble Tea model for the setup wizard.
type tuiModel struct {
	items     []menuItem
	cursor    int
	state     menuState
	width     int
	err       error
	confirmed bool
	cancelled bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	menuLabelStyle = lipgloss.NewStyle().
			Width(16).
			Align(lipgloss.Right).
			MarginRight(2)

	menuValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	menuValueDimStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#555555")).
				Italic(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	requiredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	optionStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	selectedOptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575")).
				Bold(true).
				PaddingLeft(2)

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 3)

	buttonDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 3)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4")).
			MarginBottom(1).
			PaddingBottom(0)
)

const (
	idxInput = iota
	idxOutputDir
	idxTopics
	idxLevel
	idxHostPersona
	idxExpertPersona
	idxModel
	idxTTS
	idxPreset
	idxTargetWords
	idxGenerate
)

func levelOptions() []menuOption {
	opts := make([]menuOption, 0, 3)
	for _, l := range script.LevelNames() {
		opts = append(opts, menuOption{label: fmt.Sprintf("%s (%s)", l, script.LevelLabel(l)), value: l})
	}
	return opts
}

func personaOptions(role string) []menuOption {
	var opts []menuOption
	for _, key := range script.PersonaNames(role) {
		p := script.HostPersona(key)
		if role == "expert" {
			p = script.ExpertPersona(key)
		}
		opts = append(opts, menuOption{label: fmt.Sprintf("%s - %s", key, p.FullName), value: key})
	}
	return opts
}

func modelOptions() []menuOption {
	var opts []menuOption
	for _, m := range script.ModelNames() {
		opts = append(opts, menuOption{label: m, value: m})
	}
	return opts
}

func providerOptions() []menuOption {
	labels := map[string]string{
		"elevenlabs": "ElevenLabs (expressive, per-utterance styles)",
		"google":     "Google Cloud TTS",
		"polly":      "Amazon Polly",
	}
	var opts []menuOption
	for _, name := range tts.ProviderNames() {
		label := labels[name]
		if label == "" {
			label = name
		}
		opts = append(opts, menuOption{label: label, value: name})
	}
	return opts
}

// presetOptions lists the provider's presets; the empty value means the
// directory default.
func presetOptions(provider string) []menuOption {
	dir, err := tts.DefaultDirectory(provider)
	if err != nil {
		return []menuOption{{label: "default", value: ""}}
	}
	opts := []menuOption{{label: fmt.Sprintf("default (%s)", dir.DefaultPreset()), value: ""}}
	for _, p := range dir.Presets() {
		opts = append(opts, menuOption{
			label: fmt.Sprintf("%s - %s / %s", p.Key, p.Host, p.Expert),
			value: p.Key,
		})
	}
	return opts
}

var targetWordOptions = []menuOption{
	{label: "No limit (default)", value: ""},
	{label: "~600 words (~4 min)", value: "600"},
	{label: "~1500 words (~10 min)", value: "1500"},
	{label: "~2500 words (~17 min)", value: "2500"},
	{label: "~4000 words (~27 min)", value: "4000"},
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func buildMenuItems() []menuItem {
	provider := orDefault(flagTTS, "elevenlabs")
	target := ""
	if flagTargetWords > 0 {
		target = strconv.Itoa(flagTargetWords)
	}

	items := []menuItem{
		{label: "Input", value: flagInput, required: true},
		{label: "Output Dir", value: flagOutputDir},
		{label: "Topics", value: flagTopics},
		{label: "Level", value: orDefault(flagLevel, script.LevelIntermediate), options: levelOptions()},
		{label: "Host", value: orDefault(flagHostPersona, script.DefaultHostPersona), options: personaOptions("host")},
		{label: "Expert", value: orDefault(flagExpertPersona, script.DefaultExpertPersona), options: personaOptions("expert")},
		{label: "Script Model", value: orDefault(flagModel, "haiku"), options: modelOptions()},
		{label: "Voices From", value: provider, options: providerOptions()},
		{label: "Preset", value: flagPreset, options: presetOptions(provider)},
		{label: "Length", value: target, options: targetWordOptions},
		{label: ">>> Generate <<<"},
	}
	for i := range items {
		selectCurrent(&items[i])
	}
	return items
}

// selectCurrent points the option cursor at the item's value.
func selectCurrent(item *menuItem) {
	item.cursor = 0
	for j, opt := range item.options {
		if opt.value == item.value {
			item.cursor = j
			return
		}
	}
}

func initialTUIModel() tuiModel {
	return tuiModel{items: buildMenuItems(), cursor: idxInput, state: stateMenu}
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) isTextInput(idx int) bool {
	return idx == idxInput || idx == idxOutputDir || idx == idxTopics
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateMenu:
			return m.updateMenu(msg)
		case stateEditing:
			return m.updateEditing(msg)
		}
	}
	return m, nil
}

func (m tuiModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.cancelled = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "enter", " ":
		if m.cursor == idxGenerate {
			if strings.TrimSpace(m.items[idxInput].value) == "" {
				m.err = errors.New("Input is required")
				return m, nil
			}
			m.confirmed = true
			return m, tea.Quit
		}
		if m.isTextInput(m.cursor) || len(m.items[m.cursor].options) > 0 {
			m.state = stateEditing
			m.items[m.cursor].editing = true
			m.err = nil
		}
	}
	return m, nil
}

func (m tuiModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	idx := m.cursor
	item := &m.items[idx]

	if m.isTextInput(idx) {
		switch msg.String() {
		case "enter":
			item.editing = false
			m.state = stateMenu
			m.cursor++
		case "esc":
			item.editing = false
			m.state = stateMenu
		case "backspace":
			if r := []rune(item.value); len(r) > 0 {
				item.value = string(r[:len(r)-1])
			}
		case "ctrl+u":
			item.value = ""
		default:
			if msg.Type == tea.KeyRunes {
				item.value += string(msg.Runes)
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "enter", " ":
		if item.cursor >= 0 && item.cursor < len(item.options) {
			item.value = item.options[item.cursor].value
		}
		item.editing = false
		m.state = stateMenu

		// Presets belong to a provider's directory.
		if idx == idxTTS {
			preset := &m.items[idxPreset]
			preset.options = presetOptions(item.value)
			preset.value = ""
			selectCurrent(preset)
		}
		m.cursor++
		return m, nil

	case "esc":
		item.editing = false
		m.state = stateMenu

	case "up", "k":
		if item.cursor > 0 {
			item.cursor--
		}

	case "down", "j":
		if item.cursor < len(item.options)-1 {
			item.cursor++
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder

	b.WriteString(headerBorder.Render(titleStyle.Render("Papercast")))
	b.WriteString("\n")

	for i, item := range m.items {
		isActive := m.cursor == i

		if i == idxGenerate {
			b.WriteString("\n  ")
			if isActive {
				b.WriteString(buttonStyle.Render(" Generate "))
			} else {
				b.WriteString(buttonDimStyle.Render(" Generate "))
			}
			b.WriteString("\n")
			continue
		}

		cursor := "  "
		if isActive {
			cursor = cursorStyle.Render("> ")
		}
		label := item.label
		if item.required {
			label += requiredStyle.Render("*")
		}

		var value string
		switch {
		case item.editing && m.isTextInput(i):
			value = menuValueStyle.Render(item.value + "_")
		case item.value == "" && len(item.options) > 0:
			value = menuValueDimStyle.Render(item.options[0].label)
		case item.value == "":
			placeholder := "(not set)"
			if i == idxTopics {
				placeholder = "(optional, comma-separated)"
			}
			value = menuValueDimStyle.Render(placeholder)
		default:
			display := item.value
			for _, opt := range item.options {
				if opt.value == item.value {
					display = opt.label
					break
				}
			}
			value = menuValueStyle.Render(display)
		}
		b.WriteString(cursor + menuLabelStyle.Render(label) + " " + value + "\n")

		if item.editing && !m.isTextInput(i) {
			for j, opt := range item.options {
				if j == item.cursor {
					b.WriteString(selectedOptionStyle.Render("> "+opt.label) + "\n")
				} else {
					b.WriteString(optionStyle.Render("  "+opt.label) + "\n")
				}
			}
		}
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}

	switch {
	case m.state == stateMenu:
		b.WriteString(helpStyle.Render("  j/k or arrows to navigate | enter to edit | q to quit"))
	case m.isTextInput(m.cursor):
		b.WriteString(helpStyle.Render("  type value | enter to confirm | esc to cancel | ctrl+u to clear"))
	default:
		b.WriteString(helpStyle.Render("  j/k or arrows to pick | enter to select | esc to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

// apply copies the wizard's selections into the generate flags.
func (m tuiModel) apply() {
	flagInput = strings.TrimSpace(m.items[idxInput].value)
	flagOutputDir = orDefault(strings.TrimSpace(m.items[idxOutputDir].value), flagOutputDir)
	flagTopics = m.items[idxTopics].value
	flagLevel = m.items[idxLevel].value
	flagHostPersona = m.items[idxHostPersona].value
	flagExpertPersona = m.items[idxExpertPersona].value
	flagModel = m.items[idxModel].value
	flagTTS = m.items[idxTTS].value
	flagPreset = m.items[idxPreset].value
	flagTargetWords, _ = strconv.Atoi(m.items[idxTargetWords].value)
}

func runInteractiveSetup() error {
	p := tea.NewProgram(initialTUIModel(), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tuiModel)
	if final.cancelled || !final.confirmed {
		return errors.New("generation cancelled")
	}
	final.apply()
	return nil
}
