package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/pkg/browser"

	"github.com/h0rv/opsdash/internal/board"
	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/gateway"
)

// Layout constants
const (
	minColumnWidth = 20
	maxColumnWidth = 35
	pageJumpSize   = 10 // Number of items to jump with Ctrl+D/U
)

var (
	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorAccent)

	cardStyle = lipgloss.NewStyle().
			Foreground(colorText)

	selectedCardStyle = lipgloss.NewStyle().
				Foreground(colorAccent).
				Bold(true)
)

// inputMode is what the single-line input at the top of the board is collecting.
type inputMode int

const (
	inputNone inputMode = iota
	inputFilter
	inputAdd
	inputRename
)

// BoardModel is the kanban view of one board controller.
type BoardModel struct {
	ctrl *board.Controller
	ctx  context.Context

	keymap  KeyMap
	help    HelpModel
	spinner spinner.Model
	input   textinput.Model

	// Snapshot of the controller, refreshed by sync
	columns  []board.Column
	filtered [][]domain.Entity
	status   board.Status

	selectedColumn int
	columnOffset   int   // First visible column index
	selectedCard   []int // Per column
	scrollOffset   []int // Per column

	width         int
	height        int
	showHelp      bool
	mode          inputMode
	filterText    string
	moveMode      bool
	confirmDelete bool
	adding        bool
	toast         string
}

// NewBoardModel creates a board view over ctrl.
func NewBoardModel(ctrl *board.Controller, ctx context.Context) BoardModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	km := DefaultKeyMap()
	m := BoardModel{
		ctrl:    ctrl,
		ctx:     ctx,
		keymap:  km,
		help:    NewHelpModel("Board keys", boardHelp{km}),
		spinner: sp,
		input:   textinput.New(),
	}
	m.sync()
	return m
}

// Init starts the spinner and the first load unless the controller already holds a board.
func (m BoardModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, tea.WindowSize()}
	if !m.ctrl.Status().Loaded {
		cmds = append(cmds, m.load())
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.adjustColumnScroll()
		return m, nil

	case boardEventMsg:
		if msg.event.Board == m.ctrl.Def().Name {
			m.sync()
		}
		return m, nil

	case boardLoadedMsg:
		m.sync()
		return m, nil

	case entityAddedMsg:
		m.adding = false
		if msg.err != nil {
			m.toast = fmt.Sprintf("Add failed: %v", msg.err)
		} else {
			m.toast = ""
		}
		m.sync()
		m.selectEntity(msg.id)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	return m, nil
}

func (m BoardModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keymap.ForceQuit) {
		return m, tea.Quit
	}

	if m.showHelp {
		if msg.String() == "?" || msg.String() == "q" || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	if m.mode != inputNone {
		return m.handleInput(msg)
	}

	if m.confirmDelete {
		m.confirmDelete = false
		if key.Matches(msg, m.keymap.Confirm) {
			if e, ok := m.selectedEntity(); ok {
				m.report(m.ctrl.DeleteEntity(e.ID))
			}
		}
		return m, nil
	}

	if m.moveMode {
		return m.handleMoveMode(msg)
	}

	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Back):
		return m, func() tea.Msg { return BackMsg{} }
	case key.Matches(msg, m.keymap.Help):
		m.showHelp = true
	case key.Matches(msg, m.keymap.Filter):
		m.startInput(inputFilter, "/ ", "Filter...", m.filterText)
	case key.Matches(msg, m.keymap.Left):
		if m.selectedColumn > 0 {
			m.selectedColumn--
			m.adjustColumnScroll()
		}
	case key.Matches(msg, m.keymap.Right):
		if m.selectedColumn < len(m.columns)-1 {
			m.selectedColumn++
			m.adjustColumnScroll()
		}
	case key.Matches(msg, m.keymap.Down):
		m.moveCardSelection(1)
	case key.Matches(msg, m.keymap.Up):
		m.moveCardSelection(-1)
	case key.Matches(msg, m.keymap.Top):
		m.jumpToCard(0)
	case key.Matches(msg, m.keymap.Bot):
		m.jumpToCard(-1)
	case msg.String() == "ctrl+d":
		m.moveCardSelection(pageJumpSize)
	case msg.String() == "ctrl+u":
		m.moveCardSelection(-pageJumpSize)
	case key.Matches(msg, m.keymap.MovePrev):
		m.moveSelected(board.Prev)
	case key.Matches(msg, m.keymap.MoveNext):
		m.moveSelected(board.Next)
	case key.Matches(msg, m.keymap.Move):
		if _, ok := m.selectedEntity(); ok {
			m.moveMode = true
		}
	case key.Matches(msg, m.keymap.Open):
		if e, ok := m.selectedEntity(); ok {
			if url := m.entityURL(e); url != "" {
				_ = browser.OpenURL(url)
			}
		}
	case key.Matches(msg, m.keymap.Add):
		m.startInput(inputAdd, "+ ", "New "+m.ctrl.Def().TitleField+"...", "")
	case key.Matches(msg, m.keymap.Edit):
		if e, ok := m.selectedEntity(); ok {
			m.startInput(inputRename, "✎ ", "", e.Title)
		}
	case key.Matches(msg, m.keymap.Delete):
		if _, ok := m.selectedEntity(); ok {
			m.confirmDelete = true
		}
	case key.Matches(msg, m.keymap.Refresh):
		return m, m.load()
	case key.Matches(msg, m.keymap.Dismiss):
		m.ctrl.ClearError()
		m.toast = ""
		m.sync()
	case key.Matches(msg, m.keymap.Detail):
		if e, ok := m.selectedEntity(); ok {
			detail := NewEntityDetail(m.ctrl, e)
			return m, func() tea.Msg { return openDetailMsg{detail: detail} }
		}
	}

	return m, nil
}

func (m *BoardModel) startInput(mode inputMode, prompt, placeholder, value string) {
	m.mode = mode
	m.input.Prompt = prompt
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

func (m BoardModel) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = inputNone
		m.input.Blur()
		return m, nil
	case "enter":
		mode, value := m.mode, m.input.Value()
		m.mode = inputNone
		m.input.Blur()
		switch mode {
		case inputFilter:
			m.filterText = value
			m.applyFilter()
		case inputAdd:
			if strings.TrimSpace(value) == "" {
				return m, nil
			}
			m.adding = true
			return m, m.addEntity(value)
		case inputRename:
			if e, ok := m.selectedEntity(); ok {
				m.report(m.ctrl.Edit(e.ID, map[string]any{m.ctrl.Def().TitleField: value}))
			}
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m BoardModel) handleMoveMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.moveMode = false
		return m, nil
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		idx := int(msg.Runes[0] - '1')
		stages := m.ctrl.Def().Stages
		if idx < len(stages) {
			m.moveMode = false
			if e, ok := m.selectedEntity(); ok {
				m.report(m.ctrl.MoveStage(e.ID, stages[idx].ID))
				m.selectEntity(e.ID)
			}
		}
	}
	return m, nil
}

// moveSelected moves the selected entity one stage and keeps it selected in its new column.
func (m *BoardModel) moveSelected(dir board.Direction) {
	e, ok := m.selectedEntity()
	if !ok {
		return
	}
	m.report(m.ctrl.MoveRelative(e.ID, dir))
	m.selectEntity(e.ID)
}

// report shows a synchronous controller error and resyncs the snapshot.
func (m *BoardModel) report(err error) {
	switch {
	case err == nil:
		m.toast = ""
	case errors.Is(err, domain.ErrValidation):
		m.toast = err.Error()
	default:
		m.toast = fmt.Sprintf("Failed: %v", err)
	}
	m.sync()
}

func (m BoardModel) entityURL(e domain.Entity) string {
	if f := m.ctrl.Def().URLField; f != "" {
		return e.Text(f)
	}
	return ""
}

func (m BoardModel) load() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return boardLoadedMsg{board: ctrl.Def().Name, err: ctrl.Load(ctx)}
	}
}

func (m BoardModel) addEntity(title string) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		id, err := ctrl.AddEntity(ctx, map[string]any{ctrl.Def().TitleField: title})
		return entityAddedMsg{board: ctrl.Def().Name, id: id, err: err}
	}
}

// sync takes a fresh snapshot of the controller and reapplies the local filter.
func (m *BoardModel) sync() {
	m.columns = m.ctrl.Columns()
	m.status = m.ctrl.Status()
	if len(m.selectedCard) != len(m.columns) {
		m.selectedCard = make([]int, len(m.columns))
		m.scrollOffset = make([]int, len(m.columns))
	}
	if m.selectedColumn >= len(m.columns) {
		m.selectedColumn = 0
	}
	m.applyFilter()
}

// applyFilter narrows each column to titles containing the filter text.
func (m *BoardModel) applyFilter() {
	needle := strings.ToLower(m.filterText)
	m.filtered = make([][]domain.Entity, len(m.columns))
	for i, col := range m.columns {
		out := make([]domain.Entity, 0, len(col.Entities))
		for _, e := range col.Entities {
			if needle == "" || strings.Contains(strings.ToLower(e.Title), needle) {
				out = append(out, e)
			}
		}
		m.filtered[i] = out
		if m.selectedCard[i] >= len(out) {
			m.selectedCard[i] = max(len(out)-1, 0)
		}
		if m.scrollOffset[i] > m.selectedCard[i] {
			m.scrollOffset[i] = m.selectedCard[i]
		}
	}
}

// selectEntity moves the cursor onto entity id, wherever it now is.
func (m *BoardModel) selectEntity(id string) {
	for ci, col := range m.filtered {
		for ei, e := range col {
			if e.ID == id {
				m.selectedColumn = ci
				m.selectedCard[ci] = ei
				m.adjustScroll(ci)
				m.adjustColumnScroll()
				return
			}
		}
	}
}

func (m BoardModel) selectedEntity() (domain.Entity, bool) {
	if m.selectedColumn >= len(m.filtered) {
		return domain.Entity{}, false
	}
	cards := m.filtered[m.selectedColumn]
	idx := m.selectedCard[m.selectedColumn]
	if idx >= len(cards) {
		return domain.Entity{}, false
	}
	return cards[idx], true
}

func (m *BoardModel) moveCardSelection(delta int) {
	if len(m.filtered) == 0 {
		return
	}
	col := m.selectedColumn
	n := len(m.filtered[col])
	if n == 0 {
		return
	}
	m.selectedCard[col] = max(0, min(m.selectedCard[col]+delta, n-1))
	m.adjustScroll(col)
}

// jumpToCard jumps to a specific card index. Use -1 to jump to the last card.
func (m *BoardModel) jumpToCard(idx int) {
	if len(m.filtered) == 0 {
		return
	}
	col := m.selectedColumn
	n := len(m.filtered[col])
	if n == 0 {
		return
	}
	if idx < 0 || idx >= n {
		idx = n - 1
	}
	m.selectedCard[col] = idx
	m.adjustScroll(col)
}

// visibleCards is how many cards fit in a column at the current height.
func (m BoardModel) visibleCards() int {
	return max(m.boardHeight()-2-3, 3) // Borders, header and scroll indicators
}

// adjustScroll ensures the selected card of column col is visible.
func (m *BoardModel) adjustScroll(col int) {
	selected, visible := m.selectedCard[col], m.visibleCards()
	if selected < m.scrollOffset[col] {
		m.scrollOffset[col] = selected
	}
	if selected >= m.scrollOffset[col]+visible {
		m.scrollOffset[col] = selected - visible + 1
	}
}

// adjustColumnScroll ensures the selected column is visible.
func (m *BoardModel) adjustColumnScroll() {
	if len(m.columns) == 0 || m.width == 0 {
		return
	}
	visibleCols := max(1, min(m.width/minColumnWidth, len(m.columns)))
	if m.selectedColumn < m.columnOffset {
		m.columnOffset = m.selectedColumn
	}
	if m.selectedColumn >= m.columnOffset+visibleCols {
		m.columnOffset = m.selectedColumn - visibleCols + 1
	}
}

func (m BoardModel) size() (int, int) {
	width, height := m.width, m.height
	if width == 0 {
		width = 80
	}
	if height == 0 {
		height = 24
	}
	return width, height
}

// boardHeight is the number of lines left for the columns under the header lines.
func (m BoardModel) boardHeight() int {
	_, height := m.size()
	h := height - 2
	if m.mode != inputNone || m.moveMode || m.confirmDelete {
		h--
	}
	return max(h, 5)
}

// View renders the board.
func (m BoardModel) View() string {
	width, _ := m.size()
	sections := []string{m.renderHeader(width), m.renderSecondHeader(width)}

	switch {
	case m.mode != inputNone:
		sections = append(sections, m.input.View())
	case m.moveMode:
		var targets []string
		for i, s := range m.ctrl.Def().Stages {
			targets = append(targets, fmt.Sprintf("%d:%s", i+1, s.Label))
		}
		sections = append(sections, modeBadgeStyle.Render("MOVE")+" "+strings.Join(targets, "  ")+"  esc:cancel")
	case m.confirmDelete:
		e, _ := m.selectedEntity()
		sections = append(sections, warningStyle.Render(fmt.Sprintf("Delete %q? [y]es / any key to cancel", e.Title)))
	}

	boardHeight := m.boardHeight()
	var main string
	switch {
	case m.showHelp:
		lines := strings.Split(m.help.View(width), "\n")
		if len(lines) > boardHeight {
			lines = lines[:boardHeight]
		}
		main = strings.Join(lines, "\n")
	case m.status.Loading && !m.status.Loaded:
		main = lipgloss.Place(width, boardHeight, lipgloss.Center, lipgloss.Center, m.spinner.View()+" Loading...")
	default:
		main = m.renderBoard(width, boardHeight)
	}
	sections = append(sections, main)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderHeader renders the board title on the left and status on the right.
func (m BoardModel) renderHeader(width int) string {
	title := m.ctrl.Def().Title

	var parts []string
	if m.status.Loading || m.adding {
		parts = append(parts, m.spinner.View()+"loading")
	}
	if m.status.Saving > 0 {
		parts = append(parts, fmt.Sprintf("saving %d", m.status.Saving))
	}
	total := 0
	for _, cards := range m.filtered {
		total += len(cards)
	}
	parts = append(parts, fmt.Sprintf("%d items", total))
	if m.filterText != "" {
		parts = append(parts, "/"+m.filterText)
	}
	parts = append(parts, "[?]help")
	status := strings.Join(parts, " | ")

	padding := max(width-lipgloss.Width(title)-lipgloss.Width(status)-2, 1)
	return boldStyle.Render(title) + strings.Repeat(" ", padding) + dimStyle.Render(status)
}

// renderSecondHeader renders navigation hints and either the failure banner or position info.
func (m BoardModel) renderSecondHeader(width int) string {
	left := "h/l:col j/k:card [/]:move a:add e:rename d:del enter:view"

	right := ""
	switch {
	case m.toast != "":
		right = ErrorStyle.Render(m.toast)
	case m.status.Err != nil:
		right = ErrorStyle.Render(truncate.StringWithTail(m.status.Err.Error(), uint(max(width/2, 10)), "…") + " [x]")
	case len(m.columns) > 0:
		right = fmt.Sprintf("col %d/%d", m.selectedColumn+1, len(m.columns))
		if n := len(m.filtered[m.selectedColumn]); n > 0 {
			right += fmt.Sprintf(" | card %d/%d", m.selectedCard[m.selectedColumn]+1, n)
		}
	}

	padding := max(width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return dimStyle.Render(left) + strings.Repeat(" ", padding) + right
}

// renderBoard renders the visible columns, scrolling horizontally when they overflow.
func (m BoardModel) renderBoard(totalWidth, totalHeight int) string {
	numCols := len(m.columns)
	if numCols == 0 {
		return ""
	}

	// lipgloss borders add two lines to the content height
	colContentHeight := max(totalHeight-2, 3)
	visibleCols := max(1, min(totalWidth/minColumnWidth, numCols))
	colWidth := max(minColumnWidth, min(totalWidth/visibleCols, maxColumnWidth))
	innerWidth := max(colWidth-4, 10) // Border and padding
	cardSlots := max(colContentHeight-2, 1)

	startCol := m.columnOffset
	endCol := startCol + visibleCols
	if endCol > numCols {
		endCol = numCols
		startCol = max(endCol-visibleCols, 0)
	}

	views := make([]string, 0, visibleCols+2)
	indicator := lipgloss.NewStyle().
		Width(2).
		Height(colContentHeight+2).
		Foreground(colorAccent).
		Align(lipgloss.Center, lipgloss.Center)
	if startCol > 0 {
		views = append(views, indicator.Render("◀"))
	}
	for i := startCol; i < endCol; i++ {
		views = append(views, m.renderColumn(i, colWidth, colContentHeight, innerWidth, cardSlots))
	}
	if endCol < numCols {
		views = append(views, indicator.Render("▶"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

// renderColumn renders column i. innerHeight excludes the border.
func (m BoardModel) renderColumn(i, width, innerHeight, innerWidth, cardSlots int) string {
	col := m.columns[i]
	cards := m.filtered[i]
	selected := i == m.selectedColumn

	header := fmt.Sprintf("[%d] %s (%d)", i+1, col.Stage.Label, len(cards))
	lines := []string{columnHeaderStyle.Render(truncate.StringWithTail(header, uint(innerWidth), "…"))}

	offset := m.scrollOffset[i]
	slots := cardSlots
	if offset > 0 {
		slots--
	}
	end := min(offset+slots, len(cards))
	if end < len(cards) {
		end = min(offset+slots-1, len(cards))
	}

	if offset > 0 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("↑ %d more", offset)))
	}
	for ci := offset; ci < end; ci++ {
		text := m.formatCardText(cards[ci], innerWidth-2)
		if selected && ci == m.selectedCard[i] {
			lines = append(lines, selectedCardStyle.Render("> "+text))
		} else {
			lines = append(lines, cardStyle.Render("  "+text))
		}
	}
	if remaining := len(cards) - end; remaining > 0 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("↓ %d more", remaining)))
	}
	if len(cards) == 0 {
		lines = append(lines, dimStyle.Render("(empty)"))
	}

	border := lipgloss.Color("240")
	if selected {
		border = colorAccent
	}
	// Height sets the content height; do not use MaxHeight, it truncates the border.
	return lipgloss.NewStyle().
		Width(width - 2).
		Height(innerHeight).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Render(strings.Join(lines, "\n"))
}

// formatCardText truncates the title to maxWidth, right-aligning a short badge when the
// entity carries one.
func (m BoardModel) formatCardText(e domain.Entity, maxWidth int) string {
	badge := cardBadge(e)
	if badge == "" {
		return truncate.StringWithTail(e.Title, uint(maxWidth), "…")
	}
	title := truncate.StringWithTail(e.Title, uint(max(maxWidth-len(badge)-1, 5)), "…")
	padding := max(maxWidth-lipgloss.Width(title)-lipgloss.Width(badge), 1)
	return title + strings.Repeat(" ", padding) + dimStyle.Render(badge)
}

// cardBadge picks the most useful payload field to show next to a title.
func cardBadge(e domain.Entity) string {
	switch {
	case e.Text("avatar") != "":
		return e.Text("avatar")
	case e.Text("priority") == "high":
		return "!"
	case e.Text("platform") != "":
		return e.Text("platform")
	case e.Text("start_time") != "":
		if t, err := gateway.Time(e.Text("start_time")); err == nil {
			return t.Local().Format("Jan 2 15:04")
		}
	}
	return ""
}
