package shopify

// QueryResult is the raw tree returned by the Admin GraphQL API. Nothing
// is projected away here; the interpreter decides what to surface.
type QueryResult struct {
	Data   ResultData     `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

type GraphQLError struct {
	Message string `json:"message"`
}

type ResultData struct {
	Orders         *OrderConnection         `json:"orders,omitempty"`
	Products       *ProductConnection       `json:"products,omitempty"`
	InventoryItems *InventoryItemConnection `json:"inventoryItems,omitempty"`
	Customers      *CustomerConnection      `json:"customers,omitempty"`
}

type OrderConnection struct {
	Edges []OrderEdge `json:"edges"`
}

type OrderEdge struct {
	Node Order `json:"node"`
}

type Order struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	CreatedAt     string              `json:"createdAt"`
	TotalPriceSet *MoneyBag           `json:"totalPriceSet,omitempty"`
	Customer      *CustomerRef        `json:"customer,omitempty"`
	LineItems     *LineItemConnection `json:"lineItems,omitempty"`
}

type LineItemConnection struct {
	Edges []LineItemEdge `json:"edges"`
}

type LineItemEdge struct {
	Node LineItem `json:"node"`
}

type LineItem struct {
	Title    string   `json:"title"`
	Quantity int      `json:"quantity"`
	Variant  *Variant `json:"variant,omitempty"`
}

type Variant struct {
	ID                string      `json:"id"`
	SKU               string      `json:"sku"`
	DisplayName       string      `json:"displayName,omitempty"`
	InventoryQuantity int         `json:"inventoryQuantity"`
	Product           *ProductRef `json:"product,omitempty"`
}

type ProductRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ProductConnection struct {
	Edges []ProductEdge `json:"edges"`
}

type ProductEdge struct {
	Node Product `json:"node"`
}

type Product struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	ProductType    string             `json:"productType,omitempty"`
	Vendor         string             `json:"vendor,omitempty"`
	TotalInventory int                `json:"totalInventory"`
	Variants       *VariantConnection `json:"variants,omitempty"`
}

type VariantConnection struct {
	Edges []VariantEdge `json:"edges"`
}

type VariantEdge struct {
	Node Variant `json:"node"`
}

type InventoryItemConnection struct {
	Edges []InventoryItemEdge `json:"edges"`
}

type InventoryItemEdge struct {
	Node InventoryItem `json:"node"`
}

type InventoryItem struct {
	ID      string   `json:"id"`
	SKU     string   `json:"sku"`
	Tracked bool     `json:"tracked"`
	Variant *Variant `json:"variant,omitempty"`
}

type CustomerConnection struct {
	Edges []CustomerEdge `json:"edges"`
}

type CustomerEdge struct {
	Node Customer `json:"node"`
}

type Customer struct {
	ID            string `json:"id"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Email         string `json:"email"`
	OrdersCount   int    `json:"ordersCount"`
	TotalSpent    *Money `json:"totalSpent,omitempty"`
	LastOrderDate string `json:"lastOrderDate,omitempty"`
}

type CustomerRef struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

type MoneyBag struct {
	ShopMoney Money `json:"shopMoney"`
}

type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// IsEmpty reports whether no connection in the result carries any edge.
func (r *QueryResult) IsEmpty() bool {
	if r == nil {
		return true
	}
	d := r.Data
	if d.Orders != nil && len(d.Orders.Edges) > 0 {
		return false
	}
	if d.Products != nil && len(d.Products.Edges) > 0 {
		return false
	}
	if d.InventoryItems != nil && len(d.InventoryItems.Edges) > 0 {
		return false
	}
	if d.Customers != nil && len(d.Customers.Edges) > 0 {
		return false
	}
	return true
}
