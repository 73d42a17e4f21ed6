// Package interpret renders a raw query result into the natural-language
// answer returned to the merchant, with a confidence label derived from
// how complete the result was.
package interpret

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/shop-agent/backend/internal/intent"
	"github.com/shop-agent/backend/internal/llm"
	"github.com/shop-agent/backend/internal/shopify"
	"github.com/shop-agent/backend/internal/shopifyql"
	"github.com/shop-agent/backend/pkg/logger"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// maxSummaryItems bounds every list in the data summary so the answer
// payload stays predictable in size.
const maxSummaryItems = 10

type Summary map[string]interface{}

type Result struct {
	Text       string
	Confidence Confidence
	Summary    Summary
}

// Completer is the slice of the LLM client the interpreter needs. A nil
// completer means heuristic answers only.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type Interpreter struct {
	completer Completer
}

func NewInterpreter(completer Completer) *Interpreter {
	return &Interpreter{completer: completer}
}

// Interpret summarizes the result in the vocabulary of the original
// question. Confidence is high only when the result is non-empty, nothing
// was clamped, and every intended association resolved.
func (i *Interpreter) Interpret(ctx context.Context, result *shopify.QueryResult, question string, query *shopifyql.Query) *Result {
	if result.IsEmpty() {
		return &Result{
			Text:       fmt.Sprintf("I ran the %s query for your store but it returned no data. Your store may not have matching records yet, or the question may need a wider time range.", intentNoun(query.Intent)),
			Confidence: ConfidenceLow,
			Summary:    Summary{"items": []interface{}{}},
		}
	}

	var (
		text    string
		summary Summary
		partial bool
	)

	switch query.Intent {
	case intent.SalesTrend:
		text, summary, partial = i.salesTrend(result, query)
	case intent.InventoryProjection:
		text, summary, partial = i.inventoryProjection(result, query)
	case intent.ReorderRecommendation:
		text, summary, partial = i.reorder(result, query)
	case intent.CustomerSegmentation:
		text, summary, partial = i.customers(result)
	case intent.StockRisk:
		text, summary, partial = i.stockRisk(result, query)
	default:
		text = "I could not map the result to the question."
		summary = Summary{}
		partial = true
	}

	confidence := ConfidenceHigh
	if partial {
		confidence = ConfidenceMedium
	}
	if query.Clamped {
		confidence = ConfidenceLow
	}

	text = i.polish(ctx, question, text, summary)

	return &Result{Text: text, Confidence: confidence, Summary: summary}
}

type productSales struct {
	Title string `json:"title"`
	Units int    `json:"units_sold"`
}

func (i *Interpreter) salesTrend(result *shopify.QueryResult, query *shopifyql.Query) (string, Summary, bool) {
	limit := paramInt(query, intent.ParamLimit, 5)
	window := paramInt(query, intent.ParamTimeWindowDays, 7)

	units := make(map[string]int)
	revenue := 0.0
	partial := false

	for _, edge := range ordersOf(result) {
		order := edge.Node
		if order.TotalPriceSet != nil {
			if amount, err := strconv.ParseFloat(order.TotalPriceSet.ShopMoney.Amount, 64); err == nil {
				revenue += amount
			}
		}
		if order.Customer == nil {
			partial = true
		}
		if order.LineItems == nil {
			partial = true
			continue
		}
		for _, itemEdge := range order.LineItems.Edges {
			item := itemEdge.Node
			title := item.Title
			if item.Variant != nil && item.Variant.Product != nil {
				title = item.Variant.Product.Title
			} else {
				partial = true
			}
			units[title] += item.Quantity
		}
	}

	ranked := make([]productSales, 0, len(units))
	for title, sold := range units {
		ranked = append(ranked, productSales{Title: title, Units: sold})
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].Units != ranked[b].Units {
			return ranked[a].Units > ranked[b].Units
		}
		return ranked[a].Title < ranked[b].Title
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your top %d selling products over the last %d days:", len(ranked), window)
	for idx, p := range ranked {
		fmt.Fprintf(&b, " %d. %s (%d units sold)", idx+1, p.Title, p.Units)
		if idx < len(ranked)-1 {
			b.WriteString(";")
		} else {
			b.WriteString(".")
		}
	}
	if revenue > 0 {
		fmt.Fprintf(&b, " Total order revenue in that window was %.2f.", revenue)
	}

	return b.String(), Summary{
		"products":          capProducts(ranked),
		"time_window_days":  window,
		"total_revenue":     revenue,
		"orders_considered": len(ordersOf(result)),
	}, partial
}

func (i *Interpreter) inventoryProjection(result *shopify.QueryResult, query *shopifyql.Query) (string, Summary, bool) {
	window := paramInt(query, intent.ParamTimeWindowDays, 7)
	partial := false

	soldBySKU := make(map[string]int)
	for _, edge := range ordersOf(result) {
		if edge.Node.LineItems == nil {
			partial = true
			continue
		}
		for _, itemEdge := range edge.Node.LineItems.Edges {
			item := itemEdge.Node
			if item.Variant == nil || item.Variant.SKU == "" {
				partial = true
				continue
			}
			soldBySKU[item.Variant.SKU] += item.Quantity
		}
	}

	type projection struct {
		SKU         string  `json:"sku"`
		Name        string  `json:"name"`
		Available   int     `json:"available"`
		DailySales  float64 `json:"daily_sales"`
		DaysOfCover float64 `json:"days_of_cover"`
	}

	atRisk := []projection{}
	if result.Data.InventoryItems != nil {
		for _, edge := range result.Data.InventoryItems.Edges {
			item := edge.Node
			if item.Variant == nil {
				partial = true
				continue
			}
			sold := soldBySKU[item.SKU]
			if sold == 0 {
				continue
			}
			daily := float64(sold) / float64(window)
			cover := float64(item.Variant.InventoryQuantity) / daily
			if cover <= float64(window) {
				name := item.Variant.DisplayName
				if name == "" && item.Variant.Product != nil {
					name = item.Variant.Product.Title
				}
				atRisk = append(atRisk, projection{
					SKU:         item.SKU,
					Name:        name,
					Available:   item.Variant.InventoryQuantity,
					DailySales:  daily,
					DaysOfCover: cover,
				})
			}
		}
	}

	sort.Slice(atRisk, func(a, b int) bool { return atRisk[a].DaysOfCover < atRisk[b].DaysOfCover })
	if len(atRisk) > maxSummaryItems {
		atRisk = atRisk[:maxSummaryItems]
	}

	var text string
	if len(atRisk) == 0 {
		text = fmt.Sprintf("At the current sales pace, none of your tracked inventory is projected to run out within the next %d days.", window)
	} else {
		names := make([]string, 0, len(atRisk))
		for _, p := range atRisk {
			names = append(names, fmt.Sprintf("%s (about %.0f days of stock left)", displayOr(p.Name, p.SKU), p.DaysOfCover))
		}
		text = fmt.Sprintf("At the current sales pace, %d products are projected to run out within %d days: %s.", len(atRisk), window, strings.Join(names, "; "))
	}

	return text, Summary{
		"projections":      atRisk,
		"time_window_days": window,
	}, partial
}

func (i *Interpreter) reorder(result *shopify.QueryResult, query *shopifyql.Query) (string, Summary, bool) {
	threshold := paramInt(query, intent.ParamThreshold, 10)
	partial := false

	type candidate struct {
		Title     string `json:"title"`
		Available int    `json:"available"`
	}

	candidates := []candidate{}
	for _, edge := range productsOf(result) {
		product := edge.Node
		if product.Variants == nil {
			partial = true
		}
		if product.TotalInventory <= threshold {
			candidates = append(candidates, candidate{Title: product.Title, Available: product.TotalInventory})
		}
	}
	if len(candidates) > maxSummaryItems {
		candidates = candidates[:maxSummaryItems]
	}

	var text string
	if len(candidates) == 0 {
		text = fmt.Sprintf("No products are at or below %d units, so nothing needs reordering right now.", threshold)
	} else {
		names := make([]string, 0, len(candidates))
		for _, c := range candidates {
			names = append(names, fmt.Sprintf("%s (%d left)", c.Title, c.Available))
		}
		text = fmt.Sprintf("%d products are at or below %d units and are worth reordering: %s.", len(candidates), threshold, strings.Join(names, "; "))
	}

	return text, Summary{
		"reorder_candidates": candidates,
		"threshold":          threshold,
	}, partial
}

func (i *Interpreter) customers(result *shopify.QueryResult) (string, Summary, bool) {
	partial := false

	type customerSummary struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		OrdersCount int    `json:"orders_count"`
		TotalSpent  string `json:"total_spent,omitempty"`
	}

	repeat := []customerSummary{}
	total := 0
	if result.Data.Customers != nil {
		total = len(result.Data.Customers.Edges)
		for _, edge := range result.Data.Customers.Edges {
			c := edge.Node
			if c.TotalSpent == nil {
				partial = true
			}
			if c.OrdersCount > 1 {
				cs := customerSummary{
					Name:        strings.TrimSpace(c.FirstName + " " + c.LastName),
					Email:       c.Email,
					OrdersCount: c.OrdersCount,
				}
				if c.TotalSpent != nil {
					cs.TotalSpent = c.TotalSpent.Amount + " " + c.TotalSpent.CurrencyCode
				}
				repeat = append(repeat, cs)
			}
		}
	}

	sort.Slice(repeat, func(a, b int) bool { return repeat[a].OrdersCount > repeat[b].OrdersCount })
	if len(repeat) > maxSummaryItems {
		repeat = repeat[:maxSummaryItems]
	}

	var text string
	if len(repeat) == 0 {
		text = fmt.Sprintf("Among your %d most recent customers, none has ordered more than once yet.", total)
	} else {
		top := repeat[0]
		text = fmt.Sprintf("%d of your %d most recent customers are repeat buyers. Your most frequent is %s with %d orders.",
			len(repeat), total, displayOr(top.Name, top.Email), top.OrdersCount)
	}

	return text, Summary{
		"repeat_customers":     repeat,
		"customers_considered": total,
	}, partial
}

func (i *Interpreter) stockRisk(result *shopify.QueryResult, query *shopifyql.Query) (string, Summary, bool) {
	threshold := paramInt(query, intent.ParamThreshold, 10)
	partial := false

	type riskItem struct {
		Title     string `json:"title"`
		SKU       string `json:"sku,omitempty"`
		Available int    `json:"available"`
	}

	risks := []riskItem{}
	for _, edge := range productsOf(result) {
		product := edge.Node
		if product.Variants == nil {
			partial = true
			if product.TotalInventory < threshold {
				risks = append(risks, riskItem{Title: product.Title, Available: product.TotalInventory})
			}
			continue
		}
		for _, variantEdge := range product.Variants.Edges {
			v := variantEdge.Node
			if v.InventoryQuantity < threshold {
				risks = append(risks, riskItem{Title: product.Title, SKU: v.SKU, Available: v.InventoryQuantity})
			}
		}
	}

	sort.Slice(risks, func(a, b int) bool { return risks[a].Available < risks[b].Available })
	if len(risks) > maxSummaryItems {
		risks = risks[:maxSummaryItems]
	}

	var text string
	if len(risks) == 0 {
		text = fmt.Sprintf("Your stock looks healthy: nothing is below %d units.", threshold)
	} else {
		names := make([]string, 0, len(risks))
		for _, r := range risks {
			names = append(names, fmt.Sprintf("%s (%d units)", r.Title, r.Available))
		}
		text = fmt.Sprintf("%d items are running low (below %d units): %s. Consider restocking these soon.", len(risks), threshold, strings.Join(names, "; "))
	}

	return text, Summary{
		"at_risk":   risks,
		"threshold": threshold,
	}, partial
}

// polish rewrites the heuristic answer through the LLM when one is
// configured. Any LLM failure falls back to the heuristic text; it never
// fails the request or changes the confidence label.
func (i *Interpreter) polish(ctx context.Context, question, text string, summary Summary) string {
	if i.completer == nil {
		return text
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return text
	}

	systemPrompt := "You are an assistant that helps store owners understand their analytics data. " +
		"Provide clear, business-friendly explanations with actionable insights. " +
		"Use only the data provided; do not invent numbers."

	userPrompt := fmt.Sprintf("The merchant asked: %q\n\nData from their store:\n%s\n\nDraft answer to improve:\n%s\n\nRewrite the draft as a clear, friendly answer. Keep every number exactly as given.",
		question, data, text)

	resp, err := i.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		logger.Warn("LLM polish failed, using heuristic answer", zap.Error(err))
		return text
	}

	polished := strings.TrimSpace(resp.Content)
	if polished == "" {
		return text
	}
	return polished
}

func ordersOf(result *shopify.QueryResult) []shopify.OrderEdge {
	if result.Data.Orders == nil {
		return nil
	}
	return result.Data.Orders.Edges
}

func productsOf(result *shopify.QueryResult) []shopify.ProductEdge {
	if result.Data.Products == nil {
		return nil
	}
	return result.Data.Products.Edges
}

func paramInt(query *shopifyql.Query, key string, fallback int) int {
	raw, ok := query.Parameters[key]
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func capProducts(ranked []productSales) []productSales {
	if len(ranked) > maxSummaryItems {
		return ranked[:maxSummaryItems]
	}
	return ranked
}

func displayOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

func intentNoun(t intent.Type) string {
	switch t {
	case intent.SalesTrend:
		return "sales trend"
	case intent.InventoryProjection:
		return "inventory projection"
	case intent.ReorderRecommendation:
		return "reorder recommendation"
	case intent.CustomerSegmentation:
		return "customer"
	case intent.StockRisk:
		return "stock risk"
	default:
		return "analytics"
	}
}
