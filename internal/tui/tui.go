// Package tui provides the BubbleTea interactive console for exploring the
// hybrid keyword+semantic search engine (bsearchctl explore).
//
// Layout:
//
//	┌─────────────────────────────────────┐
//	│  bsearch  hybrid document search     │  ← header
//	│  ❯ <query input>                    │  ← search bar
//	│  ─────────────────────────────────  │  ← divider
//	│  0.94  Graph Theory Basics  H12      │  ← results
//	│        http://example.com/graph      │
//	│  ...                                │
//	│  ─────────────────────────────────  │  ← divider
//	│  [3 results]  ↑↓ enter  ^I  ^Q      │  ← status bar
//	└─────────────────────────────────────┘
//
// Grounded on internal/tui/tui.go: kept structurally (header/input/results/
// status-bar layout, debounced query input, spinner, stats overlay, styles)
// but retargeted from ranked file chunks to ranked documents — result rows
// render a class icon, title and URL instead of a file path and line, the
// stats overlay surfaces engine.Stats instead of chunk/file counts, and
// "open in editor" becomes "open in browser" since a search hit is a URL,
// not a local file position.
package tui

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/screenager/bsearch/internal/doc"
	"github.com/screenager/bsearch/internal/engine"
	"github.com/screenager/bsearch/internal/neural"
)

// ── Palette ──────────────────────────────────────────────────────────────────

var (
	colorAccent  = lipgloss.Color("#7C6AF7") // purple
	colorDim     = lipgloss.Color("#555555") // dark grey
	colorMuted   = lipgloss.Color("#888888") // mid grey
	colorText    = lipgloss.Color("#DDDDDD") // near-white
	colorSubdued = lipgloss.Color("#444444") // for dividers
	colorScore   = lipgloss.Color("#5ECEF5") // cyan for scores
	colorErr     = lipgloss.Color("#FF6B6B") // red
	colorGreen   = lipgloss.Color("#5AF078") // for "indexed"

	sTitle  = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	sAccent = lipgloss.NewStyle().Foreground(colorAccent)
	sDim    = lipgloss.NewStyle().Foreground(colorDim)
	sMuted  = lipgloss.NewStyle().Foreground(colorMuted)
	sScore  = lipgloss.NewStyle().Foreground(colorScore).Bold(true)
	sPath   = lipgloss.NewStyle().Foreground(colorText)
	sDir    = lipgloss.NewStyle().Foreground(colorMuted)
	sSnip   = lipgloss.NewStyle().Foreground(colorMuted)
	sErr    = lipgloss.NewStyle().Foreground(colorErr)
	sGreen  = lipgloss.NewStyle().Foreground(colorGreen)
	sSel    = lipgloss.NewStyle().
		Background(lipgloss.Color("#1E1A3A")).
		Foreground(colorText)
	sHint = lipgloss.NewStyle().
		Foreground(colorDim).
		Background(lipgloss.Color("#111111"))
	sDivider = lipgloss.NewStyle().Foreground(colorSubdued)
	sBadge   = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)
)

// ── Class → icon map ─────────────────────────────────────────────────────────

var classIcon = map[doc.Class]string{
	doc.ClassHTML:  "󰖟 ",
	doc.ClassPaper: "󰈙 ",
}

func docIcon(id doc.ID) string {
	if icon, ok := classIcon[id.Class()]; ok {
		return icon
	}
	return " "
}

// ── Spinner frames ────────────────────────────────────────────────────────────

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type spinTickMsg struct{}

func spinTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg { return spinTickMsg{} })
}

// ── Messages ─────────────────────────────────────────────────────────────────

type mode int

const (
	modeSearch mode = iota
	modeStats
)

type (
	searchResultMsg []engine.Result
	errMsg          struct{ err error }
	debounceMsg     struct {
		query string
		id    int
	}
)

// ── Model ─────────────────────────────────────────────────────────────────────

// Model is the BubbleTea application model.
type Model struct {
	eng        *engine.Engine
	reranker   *neural.Reranker
	input      textinput.Model
	results    []engine.Result
	cursor     int
	mode       mode
	err        error
	width      int
	height     int
	searching  bool
	spinFrame  int
	stats      *engine.Stats
	debounceID int
	lastQuery  string
	rerank     bool
}

// New creates a new TUI model backed by the given engine. reranker may be
// nil — reranking then stays off and ctrl+r does not turn it on.
func New(eng *engine.Engine, reranker *neural.Reranker, rerank bool) Model {
	ti := textinput.New()
	ti.Placeholder = "search papers and pages…"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 60
	ti.PromptStyle = sAccent
	ti.Prompt = "❯ "
	ti.TextStyle = lipgloss.NewStyle().Foreground(colorText)

	return Model{
		eng:      eng,
		reranker: reranker,
		input:    ti,
		mode:     modeSearch,
		rerank:   rerank && reranker != nil,
	}
}

// Init is the BubbleTea init hook.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, spinTick())
}

// Update processes messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = m.width - 8
		return m, nil

	case spinTickMsg:
		m.spinFrame = (m.spinFrame + 1) % len(spinnerFrames)
		return m, spinTick()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			return m, tea.Quit

		case "ctrl+i":
			if m.mode != modeStats {
				m.mode = modeStats
				s := m.eng.State()
				m.stats = &s
				m.input.Blur()
			} else {
				m.mode = modeSearch
				m.input.Focus()
				m.stats = nil
			}
			return m, nil

		case "ctrl+r":
			if m.reranker != nil {
				m.rerank = !m.rerank
			}
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m.searching = true
				return m, searchCmd(m.eng, m.reranker, q, m.rerank)
			}
			return m, nil

		case "esc":
			m.mode = modeSearch
			m.input.Focus()
			m.stats = nil
			m.err = nil
			return m, nil

		case "up", "ctrl+p":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case "down", "ctrl+n":
			if m.cursor < len(m.results)-1 {
				m.cursor++
			}
			return m, nil

		case "enter":
			if m.mode == modeSearch && len(m.results) > 0 {
				return m, openInBrowser(m.results[m.cursor].URL)
			}
			return m, nil
		}

	case debounceMsg:
		if msg.id == m.debounceID && msg.query == m.input.Value() {
			if strings.TrimSpace(msg.query) == "" {
				m.searching = false
				m.results = nil
				return m, nil
			}
			m.searching = true
			m.lastQuery = msg.query
			return m, searchCmd(m.eng, m.reranker, msg.query, m.rerank)
		}
		return m, nil

	case searchResultMsg:
		m.searching = false
		m.results = []engine.Result(msg)
		m.cursor = 0
		m.err = nil
		return m, nil

	case errMsg:
		m.searching = false
		m.err = msg.err
		return m, nil
	}

	// Delegate to text input in search mode.
	if m.mode == modeSearch {
		prevVal := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != prevVal {
			m.debounceID++
			id := m.debounceID
			q := m.input.Value()
			return m, tea.Batch(cmd, debounceCmd(q, id, 280*time.Millisecond))
		}
		return m, cmd
	}

	return m, nil
}

// ── Views ─────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	if m.mode == modeStats {
		return m.statsView()
	}
	return m.searchView()
}

func (m Model) searchView() string {
	var b strings.Builder
	w := m.width
	divider := sDivider.Render(strings.Repeat("─", clamp(w-2, 10, 200)))

	// ── Header ───────────────────────────────────────────────────────────────
	left := "  " + sTitle.Render("bsearch") + "  " + sMuted.Render("hybrid document search")
	s := m.eng.State()
	right := sDim.Render(fmt.Sprintf("%d docs · %d cached words", s.TotalDocuments, s.CachedWords))
	header := padBetween(left, right, w)
	fmt.Fprintln(&b, header)

	// ── Search bar ───────────────────────────────────────────────────────────
	fmt.Fprintln(&b, "  "+m.input.View())
	fmt.Fprintln(&b, "  "+divider)

	// ── Body ──────────────────────────────────────────────────────────────────
	if m.err != nil {
		fmt.Fprintln(&b, sErr.Render("  error: "+m.err.Error()))
	} else if m.searching {
		frame := spinnerFrames[m.spinFrame]
		fmt.Fprintln(&b, "  "+sAccent.Render(frame)+"  "+sMuted.Render("searching…"))
	} else if len(m.results) == 0 && m.input.Value() == "" {
		fmt.Fprintln(&b, "")
		fmt.Fprintln(&b, sMuted.Render("  Start typing to search the index."))
		fmt.Fprintln(&b, sDim.Render("  Queries blend zone-weighted keyword matches with ")+sMuted.Render("semantic similarity"))
	} else if len(m.results) == 0 {
		fmt.Fprintln(&b, "")
		fmt.Fprintln(&b, sMuted.Render("  no results for ")+sAccent.Render("\""+m.lastQuery+"\""))
		fmt.Fprintln(&b, sDim.Render("  try rephrasing or broadening the query"))
	} else {
		bodyHeight := m.height - 7 // header+input+div+statusbar+padding
		m.renderResults(&b, bodyHeight)
	}

	// ── Status bar ───────────────────────────────────────────────────────────
	b.WriteString("\n  " + divider + "\n")
	m.renderStatusBar(&b)

	return b.String()
}

func (m *Model) renderResults(b *strings.Builder, maxRows int) {
	// Each result occupies 2 lines: title + url
	maxResults := maxRows / 2
	if maxResults < 1 {
		maxResults = 1
	}

	for i, r := range m.results {
		if i >= maxResults {
			remaining := len(m.results) - i
			fmt.Fprintf(b, "  %s\n", sDim.Render(fmt.Sprintf("  … %d more results", remaining)))
			break
		}

		icon := docIcon(r.DocID)
		score := fmt.Sprintf("%.2f", r.FinalScore)

		title := r.Title
		if title == "" {
			title = string(r.DocID)
		}
		maxTitle := clamp(m.width-8, 20, 120)
		if len(title) > maxTitle {
			title = title[:maxTitle-1] + "…"
		}

		badge := sBadge.Render(string(r.DocID))
		line1 := fmt.Sprintf("  %s  %s%s  %s", sScore.Render(score), icon, sPath.Render(title), badge)
		line2 := fmt.Sprintf("  %s  %s", sDim.Render("    "), sSnip.Render(r.URL))

		if i == m.cursor {
			raw1 := stripStyle(score) + "  " + icon + title + "  " + string(r.DocID)
			raw2 := "       " + r.URL
			pad1 := clamp(m.width-len(raw1)-3, 0, m.width)
			pad2 := clamp(m.width-len(raw2)-3, 0, m.width)
			line1 = sSel.Render("  " + sScore.Render(score) + "  " + icon + sPath.Render(title) + "  " + badge + strings.Repeat(" ", pad1))
			line2 = sSel.Render("  " + "       " + sSnip.Render(r.URL) + strings.Repeat(" ", pad2))
		}

		fmt.Fprintln(b, line1)
		fmt.Fprintln(b, line2)
	}
}

func (m *Model) renderStatusBar(b *strings.Builder) {
	var left string
	if len(m.results) > 0 {
		left = sGreen.Render(fmt.Sprintf("  %d result", len(m.results)))
		if len(m.results) != 1 {
			left += sGreen.Render("s")
		}
	} else if m.err != nil {
		left = "  " + sErr.Render(m.err.Error())
	} else {
		left = sDim.Render("  no results")
	}

	rerankStatus := sDim.Render("rerank:off")
	if m.rerank {
		if m.reranker != nil {
			rerankStatus = sAccent.Render("rerank:on")
		} else {
			rerankStatus = sErr.Render("rerank:missing model")
		}
	}

	right := sHint.Render(rerankStatus + "  ^r toggle  ^i info  esc clear  ↑↓ nav  enter open  ^q quit  ")
	fmt.Fprint(b, padBetween(left, right, m.width))
}

func (m Model) statsView() string {
	var b strings.Builder
	w := clamp(m.width, 10, 200)
	divider := sDivider.Render(strings.Repeat("─", w-2))

	fmt.Fprintln(&b, "  "+sTitle.Render("bsearch")+" "+sMuted.Render("— engine state"))
	fmt.Fprintln(&b, "  "+divider)

	if m.stats != nil {
		s := m.stats
		fmt.Fprintln(&b, "")
		row := func(label, value string) {
			fmt.Fprintf(&b, "  %-22s %s\n", sDim.Render(label), value)
		}
		row("total documents", sAccent.Render(fmt.Sprintf("%d", s.TotalDocuments)))
		row("last html id", sAccent.Render(fmt.Sprintf("H%d", s.LastHTMLID)))
		row("last paper id", sAccent.Render(fmt.Sprintf("P%d", s.LastJSONID)))
		row("cached words", sAccent.Render(fmt.Sprintf("%d", s.CachedWords)))
		row("semantic layer", semanticStatus(s.SemanticAvailable))
		row("neural reranker", rerankerStatus(m.reranker))
		row("hnsw parameters", sMuted.Render("M=16  ef_build=200  ef_search=50"))
	}

	fmt.Fprintln(&b, "")
	fmt.Fprintln(&b, "  "+divider)
	fmt.Fprint(&b, sHint.Render("  esc back to search  ctrl+q quit"+strings.Repeat(" ", clamp(w-35, 0, 200))))
	return b.String()
}

func semanticStatus(available bool) string {
	if available {
		return sGreen.Render("available")
	}
	return sErr.Render("unavailable")
}

func rerankerStatus(r *neural.Reranker) string {
	if r != nil {
		return sGreen.Render("loaded")
	}
	return sMuted.Render("not loaded")
}

// ── Commands ──────────────────────────────────────────────────────────────────

func debounceCmd(query string, id int, delay time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(delay)
		return debounceMsg{query: query, id: id}
	}
}

func searchCmd(eng *engine.Engine, reranker *neural.Reranker, query string, rerank bool) tea.Cmd {
	return func() tea.Msg {
		results, err := eng.Search(context.Background(), query, engine.SearchOptions{Limit: 10})
		if err != nil {
			return errMsg{err}
		}
		if rerank && reranker != nil && len(results) > 0 {
			texts := make([]string, len(results))
			for i, r := range results {
				if r.Title != "" {
					texts[i] = r.Title
				} else {
					texts[i] = r.URL
				}
			}
			if scores, err := reranker.Score(query, texts); err == nil {
				for i := range results {
					results[i].FinalScore = float64(scores[i])
				}
				sortResultsByScore(results)
			}
		}
		return searchResultMsg(results)
	}
}

func sortResultsByScore(results []engine.Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].FinalScore > results[j-1].FinalScore; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// openInBrowser launches the OS's default handler for a search hit's URL,
// the same tea.ExecProcess-wrapped external-process pattern the teacher
// uses to hand a result off to $EDITOR, generalized from "open a file at a
// line" to "open a URL".
func openInBrowser(url string) tea.Cmd {
	if url == "" {
		return nil
	}

	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", url)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.Command("xdg-open", url)
	}

	return tea.ExecProcess(c, func(err error) tea.Msg {
		if err != nil {
			return errMsg{err}
		}
		return nil
	})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// padBetween pads left and right strings to fill width.
func padBetween(left, right string, width int) string {
	lv := visibleLen(left)
	rv := visibleLen(right)
	gap := width - lv - rv - 2
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// visibleLen estimates printable character count (strips common ANSI sequences).
func visibleLen(s string) int {
	n := 0
	inEsc := false
	for _, c := range s {
		if c == '\x1b' {
			inEsc = true
		}
		if inEsc {
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				inEsc = false
			}
			continue
		}
		n++
	}
	return n
}

// stripStyle returns the raw string without Lipgloss ANSI styling.
func stripStyle(s string) string { return s }
