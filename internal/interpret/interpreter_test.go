package interpret

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shop-agent/backend/internal/intent"
	"github.com/shop-agent/backend/internal/llm"
	"github.com/shop-agent/backend/internal/shopify"
	"github.com/shop-agent/backend/internal/shopifyql"
)

func queryFor(t intent.Type, params map[string]string) *shopifyql.Query {
	if params == nil {
		params = map[string]string{}
	}
	return &shopifyql.Query{Intent: t, GraphQL: "{ }", Parameters: params}
}

func orderWith(title string, quantity int) shopify.OrderEdge {
	return shopify.OrderEdge{Node: shopify.Order{
		ID:            "gid://shopify/Order/1",
		TotalPriceSet: &shopify.MoneyBag{ShopMoney: shopify.Money{Amount: "100.00", CurrencyCode: "USD"}},
		Customer:      &shopify.CustomerRef{ID: "gid://shopify/Customer/1"},
		LineItems: &shopify.LineItemConnection{Edges: []shopify.LineItemEdge{
			{Node: shopify.LineItem{
				Title:    title,
				Quantity: quantity,
				Variant: &shopify.Variant{
					SKU:     "SKU-" + title,
					Product: &shopify.ProductRef{ID: "gid://shopify/Product/1", Title: title},
				},
			}},
		}},
	}}
}

func TestInterpretEmptyResultIsLowConfidence(t *testing.T) {
	i := NewInterpreter(nil)

	for _, intentType := range []intent.Type{
		intent.SalesTrend,
		intent.InventoryProjection,
		intent.ReorderRecommendation,
		intent.CustomerSegmentation,
		intent.StockRisk,
	} {
		result := i.Interpret(context.Background(), &shopify.QueryResult{}, "question", queryFor(intentType, nil))

		assert.Equal(t, ConfidenceLow, result.Confidence, "intent: %s", intentType)
		assert.Contains(t, result.Text, "returned no data", "intent: %s", intentType)
	}
}

func TestInterpretSalesTrendRanksProducts(t *testing.T) {
	i := NewInterpreter(nil)

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{Orders: &shopify.OrderConnection{Edges: []shopify.OrderEdge{
			orderWith("Blue Hoodie", 12),
			orderWith("Red Scarf", 30),
			orderWith("Green Cap", 5),
		}}}},
		"What were my top selling products last week?",
		queryFor(intent.SalesTrend, map[string]string{"limit": "2", "time_window_days": "7"}),
	)

	assert.Equal(t, ConfidenceHigh, result.Confidence)
	assert.Contains(t, result.Text, "1. Red Scarf (30 units sold)")
	assert.Contains(t, result.Text, "2. Blue Hoodie (12 units sold)")
	assert.NotContains(t, result.Text, "Green Cap")

	products, ok := result.Summary["products"].([]productSales)
	require.True(t, ok)
	assert.Len(t, products, 2)
	assert.Equal(t, 300.0, result.Summary["total_revenue"])
}

func TestInterpretSalesTrendMissingAssociationsIsMedium(t *testing.T) {
	i := NewInterpreter(nil)

	// Line item with no variant link; only the bare title survives.
	edge := shopify.OrderEdge{Node: shopify.Order{
		ID:       "gid://shopify/Order/2",
		Customer: &shopify.CustomerRef{ID: "gid://shopify/Customer/2"},
		LineItems: &shopify.LineItemConnection{Edges: []shopify.LineItemEdge{
			{Node: shopify.LineItem{Title: "Blue Hoodie", Quantity: 3}},
		}},
	}}

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{Orders: &shopify.OrderConnection{Edges: []shopify.OrderEdge{edge}}}},
		"top products",
		queryFor(intent.SalesTrend, nil),
	)

	assert.Equal(t, ConfidenceMedium, result.Confidence)
	assert.Contains(t, result.Text, "Blue Hoodie")
}

func TestInterpretClampedQueryCapsConfidenceLow(t *testing.T) {
	i := NewInterpreter(nil)

	query := queryFor(intent.SalesTrend, map[string]string{"limit": "250"})
	query.Clamped = true

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{Orders: &shopify.OrderConnection{Edges: []shopify.OrderEdge{
			orderWith("Blue Hoodie", 12),
		}}}},
		"top products",
		query,
	)

	assert.Equal(t, ConfidenceLow, result.Confidence)
}

func TestInterpretInventoryProjectionFlagsShortCover(t *testing.T) {
	i := NewInterpreter(nil)

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{
			Orders: &shopify.OrderConnection{Edges: []shopify.OrderEdge{
				orderWith("Blue Hoodie", 70),
			}},
			InventoryItems: &shopify.InventoryItemConnection{Edges: []shopify.InventoryItemEdge{
				{Node: shopify.InventoryItem{
					ID:  "gid://shopify/InventoryItem/1",
					SKU: "SKU-Blue Hoodie",
					Variant: &shopify.Variant{
						SKU:               "SKU-Blue Hoodie",
						DisplayName:       "Blue Hoodie",
						InventoryQuantity: 20,
					},
				}},
			}},
		}},
		"Will I run out of anything in the next 7 days?",
		queryFor(intent.InventoryProjection, map[string]string{"time_window_days": "7"}),
	)

	// 70 sold over 7 days is 10/day; 20 on hand is 2 days of cover.
	assert.Equal(t, ConfidenceHigh, result.Confidence)
	assert.Contains(t, result.Text, "Blue Hoodie")
	assert.Contains(t, result.Text, "2 days of stock left")
}

func TestInterpretInventoryProjectionHealthyStock(t *testing.T) {
	i := NewInterpreter(nil)

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{
			Orders: &shopify.OrderConnection{Edges: []shopify.OrderEdge{
				orderWith("Blue Hoodie", 7),
			}},
			InventoryItems: &shopify.InventoryItemConnection{Edges: []shopify.InventoryItemEdge{
				{Node: shopify.InventoryItem{
					SKU:     "SKU-Blue Hoodie",
					Variant: &shopify.Variant{SKU: "SKU-Blue Hoodie", InventoryQuantity: 500},
				}},
			}},
		}},
		"Will I run out of anything in the next 7 days?",
		queryFor(intent.InventoryProjection, map[string]string{"time_window_days": "7"}),
	)

	assert.Contains(t, result.Text, "none of your tracked inventory")
}

func TestInterpretReorderCandidates(t *testing.T) {
	i := NewInterpreter(nil)

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{Products: &shopify.ProductConnection{Edges: []shopify.ProductEdge{
			{Node: shopify.Product{Title: "Blue Hoodie", TotalInventory: 3, Variants: &shopify.VariantConnection{}}},
			{Node: shopify.Product{Title: "Red Scarf", TotalInventory: 80, Variants: &shopify.VariantConnection{}}},
		}}}},
		"What should I reorder?",
		queryFor(intent.ReorderRecommendation, map[string]string{"threshold": "10"}),
	)

	assert.Equal(t, ConfidenceHigh, result.Confidence)
	assert.Contains(t, result.Text, "Blue Hoodie (3 left)")
	assert.NotContains(t, result.Text, "Red Scarf")
}

func TestInterpretCustomersFindsRepeatBuyers(t *testing.T) {
	i := NewInterpreter(nil)

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{Customers: &shopify.CustomerConnection{Edges: []shopify.CustomerEdge{
			{Node: shopify.Customer{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", OrdersCount: 6,
				TotalSpent: &shopify.Money{Amount: "420.00", CurrencyCode: "USD"}}},
			{Node: shopify.Customer{FirstName: "Sam", LastName: "One", Email: "sam@example.com", OrdersCount: 1,
				TotalSpent: &shopify.Money{Amount: "10.00", CurrencyCode: "USD"}}},
		}}}},
		"Which customers ordered more than once?",
		queryFor(intent.CustomerSegmentation, nil),
	)

	assert.Equal(t, ConfidenceHigh, result.Confidence)
	assert.Contains(t, result.Text, "Ada Lovelace")
	assert.Contains(t, result.Text, "6 orders")
}

func TestInterpretCustomersMissingSpendIsMedium(t *testing.T) {
	i := NewInterpreter(nil)

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{Customers: &shopify.CustomerConnection{Edges: []shopify.CustomerEdge{
			{Node: shopify.Customer{FirstName: "Ada", Email: "ada@example.com", OrdersCount: 6}},
		}}}},
		"repeat customers",
		queryFor(intent.CustomerSegmentation, nil),
	)

	assert.Equal(t, ConfidenceMedium, result.Confidence)
}

func TestInterpretStockRiskSortsByAvailability(t *testing.T) {
	i := NewInterpreter(nil)

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{Products: &shopify.ProductConnection{Edges: []shopify.ProductEdge{
			{Node: shopify.Product{Title: "Blue Hoodie", TotalInventory: 4, Variants: &shopify.VariantConnection{
				Edges: []shopify.VariantEdge{{Node: shopify.Variant{SKU: "BH-1", InventoryQuantity: 4}}},
			}}},
			{Node: shopify.Product{Title: "Red Scarf", TotalInventory: 1, Variants: &shopify.VariantConnection{
				Edges: []shopify.VariantEdge{{Node: shopify.Variant{SKU: "RS-1", InventoryQuantity: 1}}},
			}}},
		}}}},
		"What is about to run out?",
		queryFor(intent.StockRisk, map[string]string{"threshold": "10"}),
	)

	assert.Equal(t, ConfidenceHigh, result.Confidence)
	assert.Contains(t, result.Text, "Red Scarf (1 units); Blue Hoodie (4 units)")
}

type fakeCompleter struct {
	response string
	err      error
	called   bool
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.response}, nil
}

func TestInterpretPolishesWithCompleter(t *testing.T) {
	completer := &fakeCompleter{response: "Red Scarf led the week with 30 units."}
	i := NewInterpreter(completer)

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{Orders: &shopify.OrderConnection{Edges: []shopify.OrderEdge{
			orderWith("Red Scarf", 30),
		}}}},
		"top products",
		queryFor(intent.SalesTrend, nil),
	)

	assert.True(t, completer.called)
	assert.Equal(t, "Red Scarf led the week with 30 units.", result.Text)
	assert.Equal(t, ConfidenceHigh, result.Confidence)
}

func TestInterpretFallsBackWhenCompleterFails(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("llm unavailable")}
	i := NewInterpreter(completer)

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{Orders: &shopify.OrderConnection{Edges: []shopify.OrderEdge{
			orderWith("Red Scarf", 30),
		}}}},
		"top products",
		queryFor(intent.SalesTrend, nil),
	)

	assert.Contains(t, result.Text, "Red Scarf (30 units sold)")
	assert.Equal(t, ConfidenceHigh, result.Confidence)
}

func TestInterpretSummaryListsAreBounded(t *testing.T) {
	i := NewInterpreter(nil)

	edges := make([]shopify.OrderEdge, 0, 30)
	for n := 0; n < 30; n++ {
		edges = append(edges, orderWith(fmt.Sprintf("Product %02d", n), n+1))
	}

	result := i.Interpret(context.Background(),
		&shopify.QueryResult{Data: shopify.ResultData{Orders: &shopify.OrderConnection{Edges: edges}}},
		"top products",
		queryFor(intent.SalesTrend, map[string]string{"limit": "30"}),
	)

	products, ok := result.Summary["products"].([]productSales)
	require.True(t, ok)
	assert.LessOrEqual(t, len(products), maxSummaryItems)
}
