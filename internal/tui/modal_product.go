package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/storefeed/internal/model"
)

// ProductModal shows one product's details.
type ProductModal struct {
	scrollModal
	product model.Product
}

func NewProductModal(p model.Product, reverseScrollWheel bool) *ProductModal {
	return &ProductModal{scrollModal: newScrollModal(reverseScrollWheel), product: p}
}

func (d *ProductModal) ID() string { return "product" }

func (d *ProductModal) Update(msg tea.Msg) (bool, tea.Cmd) { return d.update(msg) }

func (d *ProductModal) View(width, height int) string {
	return renderModalFrame(&d.viewport, d.product.Title, formatProductDetails(d.product, width-16), "", width, height)
}

func formatProductDetails(p model.Product, maxWidth int) string {
	label := lipgloss.NewStyle().Foreground(ColorGray).Width(10)
	var b strings.Builder
	line := func(k, v string) {
		if v == "" {
			return
		}
		fmt.Fprintf(&b, "%s %s\n", label.Render(k), v)
	}

	line("Price", lipgloss.NewStyle().Foreground(ColorGreen).Bold(true).Render(p.Price()))
	line("Seller", p.SellerName)
	line("Sold", fmt.Sprintf("%d", p.SalesCount))
	line("Listed", p.CreatedAt.Local().Format("2006-01-02 15:04"))
	if !p.ExpiresAt.IsZero() {
		line("Expires", p.ExpiresAt.Local().Format("2006-01-02"))
	}
	line("Image", p.ImageURL)
	line("ID", p.ID)

	if p.Description != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(max(maxWidth, 20)).Render(p.Description))
		b.WriteString("\n")
	}
	return b.String()
}
