package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/utafrali/EcommerceGo/pkg/cartsync"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
)

type cartView struct {
	State    string          `json:"state"`
	User     string          `json:"user,omitempty"`
	Lines    domain.Snapshot `json:"lines"`
	Count    int             `json:"count"`
	Subtotal int64           `json:"subtotal"`

	// Unavailable lists the lines whose last known stock is zero.
	Unavailable []string `json:"unavailable,omitempty"`
}

func printCart(w io.Writer, m *cartsync.Manager, asJSON bool) error {
	v := cartView{
		State:    m.State().String(),
		User:     m.Identity().UserID,
		Lines:    m.Lines(),
		Count:    m.Count(),
		Subtotal: m.Subtotal(),
	}
	for _, l := range v.Lines {
		if !l.Purchasable() {
			v.Unavailable = append(v.Unavailable, l.LineID)
		}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	who := "guest"
	if v.User != "" {
		who = v.User
	}
	fmt.Fprintf(w, "cart (%s, %s)\n", who, v.State)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tPRODUCT\tSIZE\tCOLOR\tQTY\tSTOCK\tUNIT\tTOTAL\t")
	for _, l := range v.Lines {
		note := ""
		if !l.Purchasable() {
			note = "out of stock"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			l.LineID, l.ProductID, l.Size, l.Color, l.Quantity, l.Stock, money(l.UnitPrice()), money(l.Total()), note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "items: %d  subtotal: %s\n", v.Count, money(v.Subtotal))
	return err
}

func money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
