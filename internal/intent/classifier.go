package intent

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/shop-agent/backend/pkg/logger"
)

type Type string

const (
	SalesTrend            Type = "sales_trend"
	InventoryProjection   Type = "inventory_projection"
	ReorderRecommendation Type = "reorder_recommendation"
	CustomerSegmentation  Type = "customer_segmentation"
	StockRisk             Type = "stock_risk"
	Unknown               Type = "unknown"
)

// Parameter keys extracted from question text.
const (
	ParamTimeWindowDays = "time_window_days"
	ParamLimit          = "limit"
	ParamThreshold      = "threshold"
	ParamProductFilter  = "product_filter"
)

// minConfidence is the floor below which a best-scoring intent is still
// reported as Unknown. A wrong intent produces a syntactically valid but
// semantically wrong query downstream, so the classifier never guesses.
const minConfidence = 0.25

type Classification struct {
	Type       Type
	Confidence float64
	Parameters map[string]string
}

type Classifier struct {
	keywords    map[Type][]string
	phrases     map[Type][]string
	specificity map[Type]int
}

// NewClassifier builds the fixed keyword ruleset. Single-word keywords are
// matched against tokens; multi-word phrases against the normalized text.
func NewClassifier() *Classifier {
	return &Classifier{
		keywords: map[Type][]string{
			SalesTrend: {
				"sales", "revenue", "selling", "sold", "orders", "top",
				"best", "popular", "performance", "growth", "decline", "profit",
			},
			InventoryProjection: {
				"inventory", "supply", "projection", "project", "forecast",
				"predict", "demand", "deplete",
			},
			ReorderRecommendation: {
				"reorder", "restock", "replenish", "reordering",
			},
			CustomerSegmentation: {
				"customer", "customers", "repeat", "returning", "loyal",
				"buyer", "buyers", "segment", "churn",
			},
			StockRisk: {
				"stockout", "shortage", "risk", "stock",
			},
		},
		phrases: map[Type][]string{
			SalesTrend: {
				"best seller", "top selling", "best selling",
			},
			InventoryProjection: {
				"run out", "how long", "sell through", "weeks of cover",
				"stock last", "will last",
			},
			ReorderRecommendation: {
				"order again", "buy more", "order more", "need more",
				"purchase again",
			},
			CustomerSegmentation: {
				"come back", "ordered more than once",
			},
			StockRisk: {
				"out of stock", "low stock", "running low", "almost gone",
				"going to sell out",
			},
		},
		// Lower value = narrower declared parameter set. Ties between
		// equally scored intents resolve toward the more specific one.
		specificity: map[Type]int{
			StockRisk:             1,
			ReorderRecommendation: 2,
			InventoryProjection:   2,
			CustomerSegmentation:  2,
			SalesTrend:            3,
		},
	}
}

// Classify is a pure function of the question text. The caller has already
// validated the length.
func (c *Classifier) Classify(text string) Classification {
	normalized := normalize(text)
	tokens := tokenize(normalized)

	scores := make(map[Type]int)
	total := 0

	for intentType, words := range c.keywords {
		score := 0
		for _, word := range words {
			score += tokens[word]
		}
		for _, phrase := range c.phrases[intentType] {
			score += strings.Count(normalized, phrase)
		}
		scores[intentType] = score
		total += score
	}

	best, bestScore := c.pickBest(scores)
	if bestScore == 0 {
		return Classification{Type: Unknown, Parameters: map[string]string{}}
	}

	confidence := float64(bestScore) / float64(total)
	if confidence < minConfidence {
		logger.Debug("Intent score below confidence floor",
			zap.String("intent", string(best)),
			zap.Float64("confidence", confidence),
		)
		return Classification{Type: Unknown, Confidence: confidence, Parameters: map[string]string{}}
	}

	return Classification{
		Type:       best,
		Confidence: confidence,
		Parameters: extractParameters(text),
	}
}

func (c *Classifier) pickBest(scores map[Type]int) (Type, int) {
	candidates := make([]Type, 0, len(scores))
	for intentType := range scores {
		candidates = append(candidates, intentType)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		if c.specificity[a] != c.specificity[b] {
			return c.specificity[a] < c.specificity[b]
		}
		return a < b
	})

	best := candidates[0]
	return best, scores[best]
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// tokenize returns token occurrence counts. prose handles punctuation and
// clitics better than a whitespace split; if it fails on degenerate input
// we fall back to strings.Fields.
func tokenize(normalized string) map[string]int {
	counts := make(map[string]int)

	doc, err := prose.NewDocument(normalized,
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		for _, field := range strings.Fields(normalized) {
			counts[strings.Trim(field, ".,!?")]++
		}
		return counts
	}

	for _, tok := range doc.Tokens() {
		counts[tok.Text]++
	}
	return counts
}

var (
	timeWindowRe  = regexp.MustCompile(`(?i)(?:last|past|next|previous|coming)?\s*(\d+)\s*(day|days|week|weeks|month|months|year|years)`)
	bareWindowRe  = regexp.MustCompile(`(?i)(?:last|past|next|previous|this|coming)\s+(day|week|month|year)`)
	limitRe       = regexp.MustCompile(`(?i)(?:top|best|first)\s+(\d+)|(\d+)\s+(?:best|top)`)
	thresholdRe   = regexp.MustCompile(`(?i)(?:below|under|less than|fewer than|at most)\s+(\d+)`)
	quotedNameRe  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	productNameRe = regexp.MustCompile(`(?i)(?:product|item|sku)\s+([A-Za-z0-9][A-Za-z0-9\-_ ]{0,40}?)(?:\s+(?:sell|sold|selling|stock|inventory|order|last|over|in)\b|[.,?!]|$)`)
)

var unitDays = map[string]int{
	"day": 1, "days": 1,
	"week": 7, "weeks": 7,
	"month": 30, "months": 30,
	"year": 365, "years": 365,
}

func extractParameters(text string) map[string]string {
	params := make(map[string]string)

	if m := timeWindowRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			params[ParamTimeWindowDays] = strconv.Itoa(n * unitDays[strings.ToLower(m[2])])
		}
	} else if m := bareWindowRe.FindStringSubmatch(text); m != nil {
		params[ParamTimeWindowDays] = strconv.Itoa(unitDays[strings.ToLower(m[1])])
	}

	if m := limitRe.FindStringSubmatch(text); m != nil {
		value := m[1]
		if value == "" {
			value = m[2]
		}
		params[ParamLimit] = value
	}

	if m := thresholdRe.FindStringSubmatch(text); m != nil {
		params[ParamThreshold] = m[1]
	}

	if m := quotedNameRe.FindStringSubmatch(text); m != nil {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		params[ParamProductFilter] = strings.TrimSpace(name)
	} else if m := productNameRe.FindStringSubmatch(text); m != nil {
		params[ParamProductFilter] = strings.TrimSpace(m[1])
	}

	return params
}
