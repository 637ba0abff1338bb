package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/storefeed/internal/feed"
	"github.com/tinytelemetry/storefeed/internal/model"
	"github.com/tinytelemetry/storefeed/internal/recent"
)

// carouselHeight is the number of lines a slot row occupies.
const carouselHeight = 2

type carouselLoadedMsg struct {
	kind     feed.SlotKind
	sellers  []model.Seller
	products []model.Product
	err      error
}

// carousels caches the content rendered into interruption slots. Every slot
// of a kind shows the same content.
type carousels struct {
	sellers  []model.Seller
	trending []model.Product
	recent   []model.Product
	loaded   map[feed.SlotKind]bool
	errs     map[feed.SlotKind]error
}

func newCarousels() carousels {
	return carousels{
		loaded: make(map[feed.SlotKind]bool),
		errs:   make(map[feed.SlotKind]error),
	}
}

// loadCarouselCmd fetches the content for one slot kind.
func loadCarouselCmd(catalog model.CatalogReader, recents recent.Store, kind feed.SlotKind, limit int, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		msg := carouselLoadedMsg{kind: kind}
		switch kind {
		case feed.SlotSellers:
			msg.sellers, msg.err = catalog.TopSellers(ctx, limit)
		case feed.SlotTrending:
			msg.products, msg.err = catalog.TrendingProducts(ctx, limit)
		case feed.SlotRecentlyViewed:
			if recents == nil {
				return msg
			}
			ids, err := recents.Get()
			if err != nil {
				msg.err = err
				return msg
			}
			if len(ids) > limit {
				ids = ids[:limit]
			}
			if len(ids) > 0 {
				msg.products, msg.err = catalog.ProductsByIDs(ctx, ids)
			}
		}
		return msg
	}
}

func (c *carousels) apply(msg carouselLoadedMsg) {
	c.loaded[msg.kind] = true
	c.errs[msg.kind] = msg.err
	if msg.err != nil {
		return
	}
	switch msg.kind {
	case feed.SlotSellers:
		c.sellers = msg.sellers
	case feed.SlotTrending:
		c.trending = msg.products
	case feed.SlotRecentlyViewed:
		c.recent = msg.products
	}
}

func carouselTitle(kind feed.SlotKind) string {
	switch kind {
	case feed.SlotSellers:
		return "Top sellers"
	case feed.SlotTrending:
		return "Trending now"
	case feed.SlotRecentlyViewed:
		return "Recently viewed"
	}
	return ""
}

// render returns the carouselHeight lines for a slot of kind.
func (c *carousels) render(kind feed.SlotKind, width int) []string {
	header := lipgloss.NewStyle().Foreground(ColorOrange).Bold(true).
		Render(truncate("── "+carouselTitle(kind)+" ", width))

	var cards []string
	switch kind {
	case feed.SlotSellers:
		for _, s := range c.sellers {
			cards = append(cards, fmt.Sprintf("%s (%d)", s.Name, s.ListingCount))
		}
	case feed.SlotTrending:
		for _, p := range c.trending {
			cards = append(cards, fmt.Sprintf("%s · %d sold", p.Title, p.SalesCount))
		}
	case feed.SlotRecentlyViewed:
		for _, p := range c.recent {
			cards = append(cards, p.Title)
		}
	}

	var body string
	switch {
	case c.errs[kind] != nil:
		body = errorStyle().Render(truncate("  unavailable: "+c.errs[kind].Error(), width))
	case !c.loaded[kind]:
		body = mutedStyle().Render("  loading…")
	case len(cards) == 0 && kind == feed.SlotRecentlyViewed:
		body = mutedStyle().Render(truncate("  Products you open show up here", width))
	case len(cards) == 0:
		body = mutedStyle().Render("  nothing here yet")
	default:
		body = "  " + truncate(strings.Join(cards, "  │  "), width-2)
	}
	return []string{header, body}
}
