// Package shopifyql turns a classified intent into a Shopify Admin
// GraphQL document. Every template is read-only; mutations are never
// produced here.
package shopifyql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shop-agent/backend/internal/intent"
	"github.com/shop-agent/backend/pkg/logger"
)

// API bounds for the Admin API connection arguments.
const (
	MaxPageSize      = 250
	defaultLimit     = 5
	defaultThreshold = 10
	defaultWindow    = 7
	orderPageSize    = 100
	lineItemPageSize = 50
)

type Query struct {
	Intent     intent.Type
	GraphQL    string
	Parameters map[string]string
	// Clamped is set when a numeric parameter had to be reduced to an
	// API bound; the interpreter caps confidence when it is true.
	Clamped bool
}

type SynthesisError struct {
	Intent  intent.Type
	Missing []string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("intent %s requires parameters: %s", e.Intent, strings.Join(e.Missing, ", "))
}

type Synthesizer struct {
	now func() time.Time
}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{now: time.Now}
}

// Synthesize maps the classification onto the intent's query template.
// Missing required parameters yield a *SynthesisError, which callers
// surface as "need more detail" rather than a system failure.
func (s *Synthesizer) Synthesize(c intent.Classification) (*Query, error) {
	switch c.Type {
	case intent.SalesTrend:
		return s.salesTrendQuery(c)
	case intent.InventoryProjection:
		return s.inventoryProjectionQuery(c)
	case intent.ReorderRecommendation:
		return s.reorderQuery(c)
	case intent.CustomerSegmentation:
		return s.customerQuery(c)
	case intent.StockRisk:
		return s.stockRiskQuery(c)
	default:
		return nil, &SynthesisError{Intent: c.Type, Missing: []string{"recognizable intent"}}
	}
}

func (s *Synthesizer) salesTrendQuery(c intent.Classification) (*Query, error) {
	limit, clamped := clampInt(c.Parameters, intent.ParamLimit, defaultLimit, 1, MaxPageSize)
	window, windowClamped := clampInt(c.Parameters, intent.ParamTimeWindowDays, defaultWindow, 1, 365)
	clamped = clamped || windowClamped

	filter := fmt.Sprintf("created_at:>=%s", s.since(window))
	if product, ok := c.Parameters[intent.ParamProductFilter]; ok {
		filter += fmt.Sprintf(" AND sku:%s", escapeFilter(product))
	}

	graphql := fmt.Sprintf(`{
  orders(first: %d, query: %q, sortKey: CREATED_AT, reverse: true) {
    edges {
      node {
        id
        name
        createdAt
        totalPriceSet { shopMoney { amount currencyCode } }
        customer { id email }
        lineItems(first: %d) {
          edges {
            node {
              title
              quantity
              variant { id sku product { id title } }
            }
          }
        }
      }
    }
  }
}`, orderPageSize, filter, lineItemPageSize)

	return s.build(c, graphql, clamped, map[string]string{
		intent.ParamLimit:          strconv.Itoa(limit),
		intent.ParamTimeWindowDays: strconv.Itoa(window),
	}), nil
}

func (s *Synthesizer) inventoryProjectionQuery(c intent.Classification) (*Query, error) {
	// A projection without a horizon is unanswerable; this is the one
	// intent where the time window is required.
	if _, ok := c.Parameters[intent.ParamTimeWindowDays]; !ok {
		return nil, &SynthesisError{Intent: c.Type, Missing: []string{intent.ParamTimeWindowDays}}
	}

	window, clamped := clampInt(c.Parameters, intent.ParamTimeWindowDays, defaultWindow, 1, 365)

	graphql := fmt.Sprintf(`{
  inventoryItems(first: %d) {
    edges {
      node {
        id
        sku
        tracked
        variant { displayName inventoryQuantity product { id title } }
      }
    }
  }
  orders(first: %d, query: "created_at:>=%s") {
    edges {
      node {
        id
        createdAt
        lineItems(first: %d) {
          edges { node { title quantity variant { sku } } }
        }
      }
    }
  }
}`, MaxPageSize, orderPageSize, s.since(window), lineItemPageSize)

	return s.build(c, graphql, clamped, map[string]string{
		intent.ParamTimeWindowDays: strconv.Itoa(window),
	}), nil
}

func (s *Synthesizer) reorderQuery(c intent.Classification) (*Query, error) {
	limit, clamped := clampInt(c.Parameters, intent.ParamLimit, 20, 1, MaxPageSize)
	threshold, thresholdClamped := clampInt(c.Parameters, intent.ParamThreshold, defaultThreshold, 0, 100000)
	clamped = clamped || thresholdClamped

	graphql := fmt.Sprintf(`{
  products(first: %d, sortKey: INVENTORY_TOTAL%s) {
    edges {
      node {
        id
        title
        vendor
        totalInventory
        variants(first: 10) {
          edges { node { id sku inventoryQuantity } }
        }
      }
    }
  }
}`, limit, productFilterArg(c.Parameters))

	return s.build(c, graphql, clamped, map[string]string{
		intent.ParamLimit:     strconv.Itoa(limit),
		intent.ParamThreshold: strconv.Itoa(threshold),
	}), nil
}

func (s *Synthesizer) customerQuery(c intent.Classification) (*Query, error) {
	limit, clamped := clampInt(c.Parameters, intent.ParamLimit, 50, 1, MaxPageSize)

	graphql := fmt.Sprintf(`{
  customers(first: %d, sortKey: CREATED_AT, reverse: true) {
    edges {
      node {
        id
        firstName
        lastName
        email
        ordersCount
        totalSpent { amount currencyCode }
        lastOrderDate
      }
    }
  }
}`, limit)

	return s.build(c, graphql, clamped, map[string]string{
		intent.ParamLimit: strconv.Itoa(limit),
	}), nil
}

func (s *Synthesizer) stockRiskQuery(c intent.Classification) (*Query, error) {
	limit, clamped := clampInt(c.Parameters, intent.ParamLimit, 25, 1, MaxPageSize)
	threshold, thresholdClamped := clampInt(c.Parameters, intent.ParamThreshold, defaultThreshold, 0, 100000)
	clamped = clamped || thresholdClamped

	// Ascending inventory order surfaces the at-risk products first.
	graphql := fmt.Sprintf(`{
  products(first: %d, sortKey: INVENTORY_TOTAL, reverse: false%s) {
    edges {
      node {
        id
        title
        totalInventory
        variants(first: 10) {
          edges { node { id sku inventoryQuantity } }
        }
      }
    }
  }
}`, limit, productFilterArg(c.Parameters))

	return s.build(c, graphql, clamped, map[string]string{
		intent.ParamLimit:     strconv.Itoa(limit),
		intent.ParamThreshold: strconv.Itoa(threshold),
	}), nil
}

func (s *Synthesizer) build(c intent.Classification, graphql string, clamped bool, resolved map[string]string) *Query {
	params := make(map[string]string, len(c.Parameters)+len(resolved))
	for k, v := range c.Parameters {
		params[k] = v
	}
	for k, v := range resolved {
		params[k] = v
	}

	logger.Debug("Query synthesized",
		zap.String("intent", string(c.Type)),
		zap.Bool("clamped", clamped),
	)

	return &Query{
		Intent:     c.Type,
		GraphQL:    graphql,
		Parameters: params,
		Clamped:    clamped,
	}
}

func (s *Synthesizer) since(windowDays int) string {
	return s.now().UTC().AddDate(0, 0, -windowDays).Format("2006-01-02")
}

// clampInt resolves a numeric parameter against [min, max], reporting
// whether the stated value had to be adjusted. Out-of-range values are
// clamped, never dropped.
func clampInt(params map[string]string, key string, fallback, min, max int) (int, bool) {
	raw, ok := params[key]
	if !ok {
		return fallback, false
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, false
	}

	if value < min {
		return min, true
	}
	if value > max {
		return max, true
	}
	return value, false
}

func productFilterArg(params map[string]string) string {
	product, ok := params[intent.ParamProductFilter]
	if !ok || product == "" {
		return ""
	}
	return fmt.Sprintf(", query: %q", fmt.Sprintf("title:*%s* OR sku:%s", escapeFilter(product), escapeFilter(product)))
}

func escapeFilter(value string) string {
	value = strings.ReplaceAll(value, `"`, ``)
	return strings.ReplaceAll(value, `\`, ``)
}
