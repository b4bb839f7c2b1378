// Package tui provides the Bubble Tea split-pane view for a live lesson
// session: a scrollback viewport fed by the sentinel Parser's display
// callback, an XP/hint sidebar, and a rendered lesson pane.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	xpBarFillStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	xpBarVoidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	lessonHeadingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	lessonBoldStyle     = lipgloss.NewStyle().Bold(true)
	lessonCodeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	lessonBulletStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	paneBorderStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("238"))
)

// OutputMsg is serial display text to append to the scrollback pane.
type OutputMsg string

// StatusMsg carries the driver's current progress summary for the sidebar.
// It replaces the sidebar wholesale, including clearing any revealed hint —
// appropriate since it is sent on exercise advance. Use HintMsg to surface a
// hint for the exercise already shown.
type StatusMsg struct {
	LessonTitle   string
	ExerciseTitle string
	ExerciseIndex int
	ExerciseCount int
	TotalXP       int
	Level         int
	LevelTitle    string
	LevelProgress float64 // 0..1
}

// HintMsg sets the currently revealed hint without disturbing the rest of
// the sidebar.
type HintMsg string

// sidebarState holds the latest StatusMsg fields shown in the sidebar.
type sidebarState struct {
	lessonTitle   string
	exerciseTitle string
	exerciseIndex int
	exerciseCount int
	totalXP       int
	level         int
	levelTitle    string
	levelProgress float64
	currentHint   string
}

// Model is the split-pane lesson session view.
type Model struct {
	scrollback        viewport.Model
	scrollbackContent string
	lessonPane        viewport.Model
	lessonContent     string

	sidebar sidebarState

	inputBuffer string
	onLine      func(string)

	width, height int
	ready         bool
}

// New constructs a Model for lessonTitle with lessonMarkdown rendered into
// the lesson pane. onLine is called with each line the student submits
// (slash commands and raw shell input alike); it is never called with the
// trailing newline.
func New(lessonTitle, lessonMarkdown string, onLine func(string)) Model {
	return Model{
		lessonContent: renderMarkdown(lessonMarkdown),
		sidebar:       sidebarState{lessonTitle: lessonTitle},
		onLine:        onLine,
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.inputBuffer
			m.inputBuffer = ""
			if m.onLine != nil && line != "" {
				m.onLine(line)
			}
			return m, nil
		case tea.KeyBackspace:
			if len(m.inputBuffer) > 0 {
				r := []rune(m.inputBuffer)
				m.inputBuffer = string(r[:len(r)-1])
			}
			return m, nil
		case tea.KeyRunes, tea.KeySpace:
			m.inputBuffer += string(msg.Runes)
			if msg.Type == tea.KeySpace {
				m.inputBuffer += " "
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.scrollback, cmd = m.scrollback.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil

	case OutputMsg:
		m.scrollbackContent += string(msg)
		m.scrollback.SetContent(m.scrollbackContent)
		m.scrollback.GotoBottom()
		return m, nil

	case StatusMsg:
		m.sidebar = sidebarState{
			lessonTitle:   msg.LessonTitle,
			exerciseTitle: msg.ExerciseTitle,
			exerciseIndex: msg.ExerciseIndex,
			exerciseCount: msg.ExerciseCount,
			totalXP:       msg.TotalXP,
			level:         msg.Level,
			levelTitle:    msg.LevelTitle,
			levelProgress: msg.LevelProgress,
		}
		return m, nil

	case HintMsg:
		m.sidebar.currentHint = string(msg)
		return m, nil
	}
	return m, nil
}

const sidebarWidth = 26

func (m *Model) initViewports() {
	leftWidth := m.width*2/3 - 2
	rightWidth := m.width - leftWidth - sidebarWidth - 6
	bodyHeight := m.height - 5

	m.scrollback = viewport.New(leftWidth, bodyHeight)
	m.scrollback.SetContent(m.scrollbackContent)
	m.scrollback.GotoBottom()
	m.lessonPane = viewport.New(rightWidth, bodyHeight)
	m.lessonPane.SetContent(m.lessonContent)
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  clitutor  " + m.sidebar.lessonTitle)

	left := paneBorderStyle.Render(m.scrollback.View())
	right := paneBorderStyle.Render(m.lessonPane.View())
	sidebar := paneBorderStyle.Width(sidebarWidth).Render(m.renderSidebar())

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right, sidebar)

	inputLine := lipgloss.NewStyle().Width(m.width).Render("> " + m.inputBuffer + "█")
	status := statusBarStyle.Width(m.width).Render("ctrl+c quit  ·  /hint  /skip  /reset")

	return lipgloss.JoinVertical(lipgloss.Left, title, body, inputLine, status)
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	fmt.Fprintln(&b, sectionHeader.Render("Progress"))
	fmt.Fprintf(&b, "%s %d/%d\n", labelStyle.Render("Exercise"), m.sidebar.exerciseIndex+1, m.sidebar.exerciseCount)
	fmt.Fprintln(&b, dimStyle.Render(m.sidebar.exerciseTitle))
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Level"), m.sidebar.levelTitle)
	fmt.Fprintln(&b, renderXPBar(m.sidebar.levelProgress, 20))
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Total XP"), m.sidebar.totalXP)
	if m.sidebar.currentHint != "" {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, sectionHeader.Render("Hint"))
		fmt.Fprintln(&b, hintStyle.Render(m.sidebar.currentHint))
	}
	return b.String()
}

// renderXPBar draws a fixed-width bracketed progress bar for frac ∈ [0, 1].
func renderXPBar(frac float64, width int) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(width))
	return "[" + xpBarFillStyle.Render(strings.Repeat("=", filled)) +
		xpBarVoidStyle.Render(strings.Repeat("-", width-filled)) + "]"
}

// renderMarkdown walks a goldmark AST and renders lesson prose to styled
// plain text suitable for a lipgloss viewport; it intentionally supports
// only the small subset of markdown lessons actually use (headings,
// paragraphs, lists, code blocks, inline code, bold).
func renderMarkdown(source string) string {
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var b strings.Builder
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		switch node := n.(type) {
		case *ast.Heading:
			b.WriteString(lessonHeadingStyle.Render(strings.Repeat("#", node.Level) + " " + nodeText(node, src)))
			b.WriteString("\n\n")
			return
		case *ast.Paragraph:
			b.WriteString(inlineText(node, src))
			b.WriteString("\n\n")
			return
		case *ast.ListItem:
			b.WriteString(lessonBulletStyle.Render("  • ") + inlineText(node, src) + "\n")
			return
		case *ast.CodeBlock:
			b.WriteString(lessonCodeStyle.Render(string(node.Text(src))))
			b.WriteString("\n")
			return
		case *ast.FencedCodeBlock:
			b.WriteString(lessonCodeStyle.Render(string(node.Text(src))))
			b.WriteString("\n")
			return
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(b.String())
}

// nodeText extracts a heading's plain text content.
func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
		}
	}
	return b.String()
}

// inlineText renders a block's inline children, applying bold/code styling.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
		case *ast.CodeSpan:
			b.WriteString(lessonCodeStyle.Render(string(node.Text(src))))
		case *ast.Emphasis:
			if node.Level >= 2 {
				b.WriteString(lessonBoldStyle.Render(string(node.Text(src))))
			} else {
				b.WriteString(string(node.Text(src)))
			}
		default:
			b.WriteString(inlineText(node, src))
		}
	}
	return b.String()
}
