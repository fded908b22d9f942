package processors

import (
	"context"
	"fmt"
	"strconv"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/domain"
)

const stockResource = "stock"

func init() {
	core.Register(core.Definition{
		Kind:        core.KindCSV,
		Class:       "Stock/Standard",
		Description: "Stock levels per stock type, sets the in-stock flag",
		New:         newStock,
	})
}

// stock reconciles the stock records of a product, one record per stock
// type, and flags the product as in stock.
type stock struct {
	core.Base
	stocks domain.Manager
}

func newStock(d core.Deps) (any, error) {
	b := core.NewBase(d)
	stocks, err := b.Manager(stockResource)
	if err != nil {
		return nil, err
	}
	return &stock{Base: b, stocks: stocks}, nil
}

func (p *stock) Process(ctx context.Context, item *domain.Item, row []string) error {
	// A row without stock entries removes all stock records of the item.
	entries := core.FilterEntries(p.Chunks(row), p.Required(nil))
	if err := p.sync(ctx, item, entries); err != nil {
		return &core.ReconcileError{Kind: stockResource, Code: item.Code(), Err: err}
	}
	return p.Next.Process(ctx, item, row)
}

// sync runs the reconciliation in a transaction of the stock manager.
func (p *stock) sync(ctx context.Context, item *domain.Item, entries []core.Entry) (err error) {
	if item.ID() == "" {
		return fmt.Errorf("%w: product has no id", domain.ErrInvalidInput)
	}
	if err := p.stocks.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := p.stocks.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				p.Logger().Error("stock rollback failed", "item", item.Code(), "error", rbErr)
			}
		}
	}()

	existing, err := p.stocks.Search(ctx, domain.NewFilter().Eq("stock.productid", item.ID()))
	if err != nil {
		return err
	}

	out, err := core.Keyed(existing, entries,
		(*domain.Item).Type,
		func(e core.Entry) string { return e.Val("stock.type", "default") },
		p.stocks.Create,
		func(rec *domain.Item, e core.Entry, _ int) error {
			level := e.Val("stock.stocklevel", "")
			if level != "" {
				if _, err := strconv.ParseFloat(level, 64); err != nil {
					return fmt.Errorf("%w: stock level %q", domain.ErrInvalidInput, level)
				}
			}
			rec.FromMap(e)
			rec.Set("productid", item.ID())
			rec.Set("stocklevel", level)
			rec.SetType(p.AddType("stock/type", item.Resource(), e.Val("stock.type", "")))
			return nil
		})
	if err != nil {
		return err
	}

	if err := p.stocks.Save(ctx, out.Kept...); err != nil {
		return err
	}
	if len(out.Removed) > 0 {
		ids := make([]string, len(out.Removed))
		for i, rec := range out.Removed {
			ids[i] = rec.ID()
		}
		if err := p.stocks.Delete(ctx, ids...); err != nil {
			return err
		}
	}
	if err := p.stocks.Commit(ctx); err != nil {
		return err
	}

	item.Set("instock", boolFlag(inStock(out.Kept)))
	p.RecordOutcome(out.Reused, out.Created, len(out.Removed))
	return nil
}

// inStock reports whether any record has an unlimited (empty) or positive
// stock level.
func inStock(records []*domain.Item) bool {
	for _, rec := range records {
		level := rec.Get("stocklevel")
		if level == "" {
			return true
		}
		if v, err := strconv.ParseFloat(level, 64); err == nil && v > 0 {
			return true
		}
	}
	return false
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
