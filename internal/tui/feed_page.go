package tui

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/storefeed/internal/feed"
	"github.com/tinytelemetry/storefeed/internal/model"
	"github.com/tinytelemetry/storefeed/internal/recent"
)

// FeedPageID identifies the storefront page.
const FeedPageID = "feed"

// Header, footer and status line around the product list.
const chromeLines = 3

// FeedConfig configures the storefront page.
type FeedConfig struct {
	Session            feed.SessionConfig
	FetchTimeout       time.Duration
	TickInterval       time.Duration
	CarouselLimit      int
	ReverseScrollWheel bool
}

type pageLoadedMsg struct {
	update feed.Update
	added  int
}

// engagementTickMsg samples session dwell time.
type engagementTickMsg time.Time

// FeedPage is the infinitely scrolling storefront. It owns one feed.Session:
// the paginator fills the list, the planner places carousels between
// products and the tracker decides when a guest sees the sign-in prompt.
type FeedPage struct {
	session *feed.Session[model.Product]
	catalog model.CatalogReader
	recents recent.Store
	keys    KeyMap
	cfg     FeedConfig

	spinner   spinner.Model
	modals    modalStack
	carousels carousels

	rows      []feed.Row[model.Product]
	rowByPos  []int // item position -> index in rows
	cursor    int   // selected item position
	offset    int   // first rendered row
	loading   bool
	pageSizes []int
	status    string

	width  int
	height int
}

// NewFeedPage builds the storefront over catalog. recents may be nil.
func NewFeedPage(catalog model.CatalogReader, recents recent.Store, cfg FeedConfig) *FeedPage {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = model.DefaultFetchTimeout
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = model.DefaultTickInterval
	}
	if cfg.CarouselLimit <= 0 {
		cfg.CarouselLimit = model.DefaultCarouselLimit
	}
	if cfg.Session.PageSize <= 0 {
		cfg.Session.PageSize = model.DefaultPageSize
	}

	src := feed.WithTimeout(CatalogSource(catalog), cfg.FetchTimeout)
	// New listings shift offset pages, so a product can arrive twice.
	byID := feed.WithDedupe(func(p model.Product) string { return p.ID })
	return &FeedPage{
		session:   feed.NewSession(src, cfg.Session, byID),
		catalog:   catalog,
		recents:   recents,
		keys:      DefaultKeyMap(),
		cfg:       cfg,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(mutedStyle())),
		carousels: newCarousels(),
		width:     80,
		height:    24,
	}
}

func (p *FeedPage) ID() string { return FeedPageID }

// Session exposes the engine state, mainly for the stats modal and tests.
func (p *FeedPage) Session() *feed.Session[model.Product] { return p.session }

func (p *FeedPage) Init() tea.Cmd {
	cmds := []tea.Cmd{p.loadCmd(false)}
	for _, kind := range []feed.SlotKind{feed.SlotSellers, feed.SlotTrending, feed.SlotRecentlyViewed} {
		cmds = append(cmds, p.carouselCmd(kind))
	}
	if !p.session.Tracker().Latched() {
		cmds = append(cmds, p.engagementTick())
	}
	return tea.Batch(cmds...)
}

func (p *FeedPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
		p.ensureCursorVisible()
		return p.maybeLoad(), nil

	case pageLoadedMsg:
		p.loading = false
		u := msg.update
		p.status = ""
		switch {
		case u.Err != nil:
			log.Printf("tui: page load failed: %v", u.Err)
		case u.Fetched:
			p.pageSizes = append(p.pageSizes, msg.added)
			p.refreshRows()
		}
		if u.Prompt {
			p.modals.Push(NewPromptModal())
		}
		p.ensureCursorVisible()
		return p.maybeLoad(), nil

	case carouselLoadedMsg:
		p.carousels.apply(msg)
		return nil, nil

	case engagementTickMsg:
		if p.session.Tick() {
			p.modals.Push(NewPromptModal())
		}
		if p.session.Tracker().Latched() {
			return nil, nil
		}
		return p.engagementTick(), nil

	case promptClosedMsg:
		if msg.signIn {
			p.signIn()
		} else {
			p.session.Tracker().Dismiss()
		}
		return nil, nil

	case spinner.TickMsg:
		if !p.loading {
			return nil, nil
		}
		var cmd tea.Cmd
		p.spinner, cmd = p.spinner.Update(msg)
		return cmd, nil

	case tea.KeyMsg:
		return p.handleKey(msg), nil

	case tea.MouseMsg:
		return p.handleMouse(msg), nil
	}
	return nil, nil
}

func (p *FeedPage) handleKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, p.keys.ForceQuit) {
		p.session.Close()
		return tea.Quit
	}

	if modal := p.modals.Top(); modal != nil {
		pop, cmd := modal.Update(msg)
		if pop {
			p.modals.Pop()
		}
		return cmd
	}

	n := p.session.State().Len()
	switch {
	case key.Matches(msg, p.keys.Quit):
		p.session.Close()
		return tea.Quit
	case key.Matches(msg, p.keys.Up):
		p.moveCursor(-1)
	case key.Matches(msg, p.keys.Down):
		p.moveCursor(1)
	case key.Matches(msg, p.keys.PageUp):
		p.moveCursor(-p.listHeight())
	case key.Matches(msg, p.keys.PageDown):
		p.moveCursor(p.listHeight())
	case key.Matches(msg, p.keys.Home):
		p.moveCursor(-n)
	case key.Matches(msg, p.keys.End):
		p.moveCursor(n)
	case key.Matches(msg, p.keys.Open):
		return p.openSelected()
	case key.Matches(msg, p.keys.Retry):
		if p.session.State().Err != nil {
			p.status = "Retrying…"
			return p.loadCmd(true)
		}
		return nil
	case key.Matches(msg, p.keys.Stats):
		p.modals.Push(NewStatsModal(p.Stats, p.cfg.ReverseScrollWheel))
		return nil
	case key.Matches(msg, p.keys.Help):
		p.modals.Push(NewHelpModal(p.keys, p.cfg.ReverseScrollWheel))
		return nil
	case key.Matches(msg, p.keys.SignIn):
		p.signIn()
		return nil
	default:
		return nil
	}
	return p.maybeLoad()
}

func (p *FeedPage) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if modal := p.modals.Top(); modal != nil {
		pop, cmd := modal.Update(msg)
		if pop {
			p.modals.Pop()
		}
		return cmd
	}
	if msg.Action != tea.MouseActionPress {
		return nil
	}
	step := 0
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		step = -1
	case tea.MouseButtonWheelDown:
		step = 1
	}
	if step == 0 {
		return nil
	}
	if p.cfg.ReverseScrollWheel {
		step = -step
	}
	p.moveCursor(step)
	return p.maybeLoad()
}

func (p *FeedPage) signIn() {
	if !p.session.Guest() {
		return
	}
	p.session.SignIn()
	p.modals.Remove(promptModalID)
	p.status = "Signed in"
}

func (p *FeedPage) openSelected() tea.Cmd {
	items := p.session.State().Items
	if p.cursor < 0 || p.cursor >= len(items) {
		return nil
	}
	product := items[p.cursor].Payload
	p.modals.Push(NewProductModal(product, p.cfg.ReverseScrollWheel))
	if p.recents == nil {
		return nil
	}
	if err := p.recents.Add(product.ID); err != nil {
		log.Printf("tui: record recently viewed %s: %v", product.ID, err)
		return nil
	}
	return p.carouselCmd(feed.SlotRecentlyViewed)
}

// loadCmd starts a page fetch unless one is already running.
func (p *FeedPage) loadCmd(retry bool) tea.Cmd {
	if p.loading {
		return nil
	}
	p.loading = true
	session := p.session
	load := func() tea.Msg {
		before := session.State().Len()
		var u feed.Update
		if retry {
			u = session.Retry(context.Background())
		} else {
			u = session.LoadNext(context.Background())
		}
		return pageLoadedMsg{update: u, added: session.State().Len() - before}
	}
	return tea.Batch(p.spinner.Tick, load)
}

// maybeLoad starts a fetch once the sentinel item is on screen.
func (p *FeedPage) maybeLoad() tea.Cmd {
	last := p.lastVisiblePosition()
	if last < 0 || !p.session.Paginator().Reached(last) {
		return nil
	}
	return p.loadCmd(false)
}

func (p *FeedPage) carouselCmd(kind feed.SlotKind) tea.Cmd {
	return loadCarouselCmd(p.catalog, p.recents, kind, p.cfg.CarouselLimit, p.cfg.FetchTimeout)
}

func (p *FeedPage) engagementTick() tea.Cmd {
	return tea.Tick(p.cfg.TickInterval, func(t time.Time) tea.Msg {
		return engagementTickMsg(t)
	})
}

// Stats snapshots the session for the stats modal.
func (p *FeedPage) Stats() SessionStats {
	st := p.session.State()
	return SessionStats{
		Elapsed:     p.session.Elapsed(),
		ItemsSeen:   p.session.ItemsSeen(),
		PageSizes:   append([]int(nil), p.pageSizes...),
		Guest:       p.session.Guest(),
		PromptShown: p.session.Tracker().State().PromptShown,
		HasMore:     st.HasMore,
		LastError:   st.Err,
	}
}

func (p *FeedPage) refreshRows() {
	p.rows = p.session.Rows()
	p.rowByPos = p.rowByPos[:0]
	for i, r := range p.rows {
		if !r.IsSlot {
			p.rowByPos = append(p.rowByPos, i)
		}
	}
}

func (p *FeedPage) listHeight() int {
	return max(p.height-chromeLines, 1)
}

func rowHeight(r feed.Row[model.Product]) int {
	if r.IsSlot {
		return carouselHeight
	}
	return 1
}

// visibleEnd returns the exclusive index of the last row that fits from
// offset.
func (p *FeedPage) visibleEnd() int {
	used, h := 0, p.listHeight()
	i := p.offset
	for ; i < len(p.rows); i++ {
		rh := rowHeight(p.rows[i])
		if used+rh > h {
			break
		}
		used += rh
	}
	return i
}

// lastVisiblePosition returns the position of the last product on screen,
// or -1 when none is.
func (p *FeedPage) lastVisiblePosition() int {
	for i := p.visibleEnd() - 1; i >= p.offset; i-- {
		if !p.rows[i].IsSlot {
			return p.rows[i].Item.Position
		}
	}
	return -1
}

func (p *FeedPage) moveCursor(delta int) {
	n := len(p.rowByPos)
	if n == 0 {
		return
	}
	p.cursor = min(max(p.cursor+delta, 0), n-1)
	p.ensureCursorVisible()
}

func (p *FeedPage) ensureCursorVisible() {
	if len(p.rowByPos) == 0 {
		p.offset = 0
		return
	}
	p.cursor = min(p.cursor, len(p.rowByPos)-1)
	row := p.rowByPos[p.cursor]
	if row < p.offset {
		p.offset = row
		return
	}
	for p.offset < row && p.visibleEnd() <= row {
		p.offset++
	}
}

func (p *FeedPage) View(width, height int) string {
	p.width, p.height = width, height
	if modal := p.modals.Top(); modal != nil {
		if r, ok := modal.(Refreshable); ok {
			r.Refresh()
		}
		return modal.View(width, height)
	}

	st := p.session.State()
	lines := make([]string, 0, height)
	lines = append(lines, p.renderHeader(st, width))
	lines = append(lines, p.renderList(width)...)
	for len(lines) < height-2 {
		lines = append(lines, "")
	}
	lines = append(lines, p.renderFooter(st, width), p.renderStatusLine(width))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (p *FeedPage) renderList(width int) []string {
	var lines []string
	end := p.visibleEnd()
	for i := p.offset; i < end; i++ {
		r := p.rows[i]
		if r.IsSlot {
			lines = append(lines, p.carousels.render(r.Slot.Kind, width)...)
			continue
		}
		lines = append(lines, p.renderProduct(r.Item, width, r.Item.Position == p.cursor))
	}
	return lines
}

func (p *FeedPage) renderProduct(it feed.Item[model.Product], width int, selected bool) string {
	prod := it.Payload
	price := prod.Price()
	seller := truncate(prod.SellerName, 18)
	titleWidth := max(width-len(price)-lipgloss.Width(seller)-12, 8)

	line := fmt.Sprintf(" %4d  %-*s %s  %s", it.Position+1, titleWidth, truncate(prod.Title, titleWidth), price, seller)
	style := lipgloss.NewStyle().Width(width)
	if selected {
		style = style.Background(ColorNavy).Foreground(ColorWhite).Bold(true)
	}
	return style.Render(truncate(line, width))
}

func (p *FeedPage) renderHeader(st feed.State[model.Product], width int) string {
	brand := lipgloss.NewStyle().Background(ColorNavy).Foreground(ColorGreen).Bold(true).Render(" storefeed ")
	account := "signed in"
	if p.session.Guest() {
		account = "guest"
	}
	right := mutedStyle().Render(fmt.Sprintf("%d products · %s ", st.Len(), account))
	gap := max(width-lipgloss.Width(brand)-lipgloss.Width(right), 1)
	return brand + lipgloss.NewStyle().Width(gap).Render("") + right
}

func (p *FeedPage) renderFooter(st feed.State[model.Product], width int) string {
	switch {
	case st.Err != nil:
		return errorStyle().Render(truncate("Couldn't load more products: "+st.Err.Error()+". Press r to retry.", width))
	case p.loading:
		return p.spinner.View() + mutedStyle().Render(" Loading more products…")
	case !st.HasMore && st.Len() == 0:
		return mutedStyle().Render("No products yet.")
	case !st.HasMore:
		return mutedStyle().Render("You've reached the end of the catalog.")
	}
	return ""
}

func (p *FeedPage) renderStatusLine(width int) string {
	left := "↑↓: Browse • Enter: View • i: Stats • ?: Help • q: Quit"
	if p.session.Guest() {
		left = "↑↓: Browse • Enter: View • s: Sign in • ?: Help • q: Quit"
	}
	if width < 70 {
		left = "↑↓ • Enter • ? • q"
	}
	right := fmt.Sprintf("viewed %d products · %s", p.session.ItemsSeen(), p.session.Elapsed().Truncate(time.Second))
	if p.status != "" {
		right = p.status + " · " + right
	}
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return lipgloss.NewStyle().Background(ColorNavy).Foreground(ColorWhite).Width(width).
		Render(truncate(left+lipgloss.NewStyle().Width(gap).Render("")+right, width))
}
