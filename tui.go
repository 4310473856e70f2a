package main

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"voxkey/dictation"
	"voxkey/hotkey"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI message types
type recordingMsg struct{ Active bool }
type partialMsg struct{ Text string }
type finalMsg struct{ Text string }
type failedMsg struct{ Text string }
type keySavedMsg struct{ Err error }
type tickMsg time.Time

// tuiActions are the inbound triggers the TUI can fire.
type tuiActions interface {
	toggle(reason string)
	cancel(reason string)
	setKey(key string) error
}

type tuiModel struct {
	actions tuiActions

	recording     bool
	startedAt     time.Time
	frame         int
	pulse         float64 // bumped by transcript updates, decays every tick
	width, height int

	live    string // display text of the running cycle
	last    string // last final transcript
	lastErr string
	count   int

	keyEntry bool
	keyBuf   []rune
	notice   string

	modeLine   string
	deviceLine string
}

// tuiNotifier forwards cycle events into the Bubble Tea program. p is set
// before the first cycle can start.
type tuiNotifier struct {
	p *tea.Program
}

var _ dictation.Notifier = (*tuiNotifier)(nil)

func (n *tuiNotifier) RecordingStateChanged(active bool) { n.p.Send(recordingMsg{active}) }
func (n *tuiNotifier) TranscriptionUpdated(text string)  { n.p.Send(partialMsg{text}) }
func (n *tuiNotifier) TranscriptionFinished(text string) { n.p.Send(finalMsg{text}) }
func (n *tuiNotifier) TranscriptionFailed(msg string)    { n.p.Send(failedMsg{msg}) }

// Pre-computed pixel styles to avoid allocations in render loop
var (
	pixelColorsRec  = []string{"", "226", "220", "214", "208", "196", "160", "124", "88", "52", "236", "236", "236", "236", "255", "249"}
	pixelColorsIdle = []string{"", "231", "224", "217", "210", "160", "124", "88", "52", "236", "236", "236", "236", "236", "255", "249"}
	pixelStylesRec  [16]lipgloss.Style
	pixelStylesIdle [16]lipgloss.Style
	pixelBgRec      [16][16]lipgloss.Style
	pixelBgIdle     [16][16]lipgloss.Style
)

func init() {
	for i, c := range pixelColorsRec {
		if c != "" {
			pixelStylesRec[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
		}
	}
	for i, c := range pixelColorsIdle {
		if c != "" {
			pixelStylesIdle[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
		}
	}
	for i, fg := range pixelColorsRec {
		for j, bg := range pixelColorsRec {
			if fg != "" && bg != "" {
				pixelBgRec[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bg))
			}
		}
	}
	for i, fg := range pixelColorsIdle {
		for j, bg := range pixelColorsIdle {
			if fg != "" && bg != "" {
				pixelBgIdle[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bg))
			}
		}
	}
}

func newTUIModel(actions tuiActions, modeLine, deviceLine string) tuiModel {
	return tuiModel{actions: actions, modeLine: modeLine, deviceLine: deviceLine}
}

func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

// act runs a trigger off the event loop: triggers notify back through
// Program.Send, which would block inside Update.
func act(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.keyEntry {
			return m.updateKeyEntry(msg)
		}
		switch msg.String() {
		case "esc", "x":
			m.live = ""
			return m, act(func() { m.actions.cancel("tui") })
		case "enter", " ":
			return m, act(func() { m.actions.toggle("tui") })
		case "k":
			m.keyEntry = true
			m.keyBuf = m.keyBuf[:0]
			m.notice = ""
		}

	case tickMsg:
		m.frame++
		m.pulse *= 0.85
		return m, tuiTick()

	case recordingMsg:
		m.recording = msg.Active
		if msg.Active {
			m.startedAt = time.Now()
			m.live = ""
			m.lastErr = ""
		}

	case partialMsg:
		m.live = msg.Text
		m.pulse = 0.05

	case finalMsg:
		// an empty final is a cancel or failure: the live text is discarded
		m.live = ""
		if msg.Text != "" {
			m.last = msg.Text
			m.count++
		}

	case failedMsg:
		m.lastErr = msg.Text

	case keySavedMsg:
		if msg.Err != nil {
			m.notice = "could not save API key: " + msg.Err.Error()
		} else {
			m.notice = "API key saved"
			m.lastErr = ""
		}
	}
	return m, nil
}

func (m tuiModel) updateKeyEntry(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.keyEntry = false
		m.keyBuf = nil
	case tea.KeyEnter:
		key := string(m.keyBuf)
		m.keyEntry = false
		m.keyBuf = nil
		return m, func() tea.Msg {
			return keySavedMsg{Err: m.actions.setKey(key)}
		}
	case tea.KeyBackspace:
		if len(m.keyBuf) > 0 {
			m.keyBuf = m.keyBuf[:len(m.keyBuf)-1]
		}
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			if !unicode.IsSpace(r) {
				m.keyBuf = append(m.keyBuf, r)
			}
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const eyeWidth = 45
	eye := renderHALEye(m.frame, m.pulse, m.recording)

	var infoLines []string

	if m.recording {
		status := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Render(fmt.Sprintf("● REC %.1fs", time.Since(m.startedAt).Seconds()))
		infoLines = append(infoLines, status)
	} else {
		status := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render("○ STANDBY")
		infoLines = append(infoLines, status)
	}

	if m.modeLine != "" {
		infoLines = append(infoLines, lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render(m.modeLine))
	}
	if m.deviceLine != "" {
		infoLines = append(infoLines, lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(m.deviceLine))
	}

	infoLines = append(infoLines, "")

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	infoLines = append(infoLines,
		boldStyle.Render(hotkey.Label)+helpStyle.Render(" or enter to record"),
		boldStyle.Render("esc")+helpStyle.Render(" cancel  ")+boldStyle.Render("k")+helpStyle.Render(" API key"),
		helpStyle.Render("voxkey "+version),
	)

	for _, line := range infoLines {
		eye += line + "\n"
	}
	eyeLines := strings.Split(eye, "\n")

	logWidth := max(m.width-eyeWidth-1, 20)
	wrapWidth := max(logWidth-2, 10)

	var panel strings.Builder
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	switch {
	case m.keyEntry:
		panel.WriteString(titleStyle.Render("Soniox API key (enter to save, esc to abort)") + "\n\n")
		panel.WriteString(strings.Repeat("•", len(m.keyBuf)) + "█\n")
	case m.recording || m.live != "":
		panel.WriteString(titleStyle.Render("Listening") + "\n\n")
		liveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
		for _, line := range wrapText(m.live, wrapWidth) {
			panel.WriteString(liveStyle.Render(line) + "\n")
		}
	case m.last != "":
		panel.WriteString(titleStyle.Render(fmt.Sprintf("Last transcription (#%d)", m.count)) + "\n\n")
		textStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
		for _, line := range wrapText(m.last, wrapWidth) {
			panel.WriteString(textStyle.Render(line) + "\n")
		}
	default:
		panel.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("No transcriptions yet"))
		panel.WriteString("\n")
	}

	if m.lastErr != "" {
		panel.WriteString("\n")
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
		for _, line := range wrapText("error: "+m.lastErr, wrapWidth) {
			panel.WriteString(errStyle.Render(line) + "\n")
		}
	}
	if m.notice != "" {
		panel.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render(m.notice) + "\n")
	}

	logPanel := lipgloss.NewStyle().
		Width(logWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(panel.String())

	// Pad eye panel to full height (eye at top)
	eyePadded := make([]string, m.height)
	for i := range eyePadded {
		if i < len(eyeLines) {
			eyePadded[i] = eyeLines[i]
		} else {
			eyePadded[i] = strings.Repeat(" ", eyeWidth-1)
		}
	}

	eyePanel := lipgloss.NewStyle().
		Width(eyeWidth - 1).
		Height(m.height).
		Render(strings.Join(eyePadded, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, eyePanel, logPanel)
}

func renderHALEye(frame int, level float64, recording bool) string {
	const charsW = 44
	const charsH = 15
	const pixW = charsW
	const pixH = charsH * 2

	centerX := float64(pixW) / 2
	centerY := float64(pixH) / 2

	// Voice-reactive breathing
	var breathe float64
	if recording {
		breathe = math.Sin(float64(frame)*0.10)*0.03 + level*10.0 - 0.05
	} else {
		breathe = math.Sin(float64(frame)*0.08)*0.02 - 0.05
	}

	pixels := make([][]int, pixH)
	for i := range pixels {
		pixels[i] = make([]int, pixW)
	}

	type ring struct {
		radius     float64
		breatheAmt float64
		colorIdx   int
	}

	rings := []ring{
		{0.6, 0.10, 1},
		{1.3, 0.12, 2},
		{2.0, 0.15, 3},
		{2.8, 0.35, 4},  // red rings: high reactivity
		{3.5, 0.40, 5},
		{4.2, 0.38, 6},
		{5.0, 0.30, 7},
		{5.8, 0.15, 8},
		{6.5, 0.03, 9},
		{7.2, 0.0, 10},
		{8.0, 0.0, 11},
		{10.0, 0.0, 12},
		{12.0, 0.0, 13},
	}

	for y := 0; y < pixH; y++ {
		for x := 0; x < pixW; x++ {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			dist := math.Sqrt(dx*dx + dy*dy)
			for _, r := range rings {
				radius := r.radius + breathe*r.breatheAmt*20
				if radius > 10.0 {
					radius = 10.0
				}
				if dist < radius {
					pixels[y][x] = r.colorIdx
					break
				}
			}
		}
	}

	// Glass reflections
	type spot struct {
		ox, oy float64
		radius float64
		color  int
	}
	dSide := 9.0
	dSide2 := 7.2
	dTop := 10.0
	dTop2 := 8.2
	spots := []spot{
		{-dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{-dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -dTop, 0.8, 14},
		{0, -dTop2, 0.6, 15},
		{dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -2.0, 0.6, 14},
	}
	for y := 0; y < pixH; y++ {
		for x := 0; x < pixW; x++ {
			px := float64(x) - centerX
			py := float64(y) - centerY
			for _, s := range spots {
				dx := px - s.ox
				dy := py - s.oy
				rLen := math.Sqrt(s.ox*s.ox + s.oy*s.oy)
				if rLen < 0.001 {
					rLen = 1
				}
				tx, ty := -s.oy/rLen, s.ox/rLen
				dt := dx*tx + dy*ty
				dn := dx*(-ty) + dy*tx
				if (dt*dt)/9.0+dn*dn < s.radius*s.radius {
					pixels[y][x] = s.color
				}
			}
		}
	}

	// Use pre-computed styles based on recording state
	var styles *[16]lipgloss.Style
	var bgStyles *[16][16]lipgloss.Style
	if recording {
		styles = &pixelStylesRec
		bgStyles = &pixelBgRec
	} else {
		styles = &pixelStylesIdle
		bgStyles = &pixelBgIdle
	}

	var result strings.Builder
	for cy := 0; cy < charsH; cy++ {
		for cx := 0; cx < charsW; cx++ {
			topY := cy * 2
			botY := cy*2 + 1
			top := 0
			bot := 0
			if topY < pixH {
				top = pixels[topY][cx]
			}
			if botY < pixH {
				bot = pixels[botY][cx]
			}
			if top == 0 && bot == 0 {
				result.WriteString(" ")
			} else if top == bot {
				result.WriteString(styles[top].Render("█"))
			} else if top != 0 && bot == 0 {
				result.WriteString(styles[top].Render("▀"))
			} else if top == 0 && bot != 0 {
				result.WriteString(styles[bot].Render("▄"))
			} else {
				result.WriteString(bgStyles[top][bot].Render("▀"))
			}
		}
		result.WriteString("\n")
	}
	return result.String()
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
