package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shelfdesk/shelfdesk/internal/audit"
	"github.com/shelfdesk/shelfdesk/internal/bookstore"
)

// NewBookstoreRegistry builds the registry with the six desk
// capabilities wired to the given store.
func NewBookstoreRegistry(logger *slog.Logger, store *bookstore.Store, auditStore *audit.Store) (*Registry, error) {
	r := NewRegistry(logger, auditStore)

	builtins := []*Tool{
		searchCatalogTool(store),
		placeOrderTool(store),
		restockBookTool(store),
		updatePriceTool(store),
		orderStatusTool(store),
		inventorySummaryTool(store),
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func searchCatalogTool(store *bookstore.Store) *Tool {
	return &Tool{
		Name:        "search_catalog",
		Description: "Search the book catalog by title or author. Returns matching books with their ISBN, stock, and price. Always use this to find a book's ISBN before ordering, restocking, or repricing it.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"q": map[string]any{
					"type":        "string",
					"description": "Search text, matched case-insensitively as a substring",
				},
				"by": map[string]any{
					"type":        "string",
					"enum":        []any{"title", "author"},
					"description": "Field to search. Defaults to title.",
				},
			},
			"required": []any{"q"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			q := stringArg(args, "q")
			by := stringArg(args, "by")
			if by == "" {
				by = bookstore.ByTitle
			}
			books, err := store.FindBooks(ctx, q, by)
			if err != nil {
				return "", err
			}
			if len(books) == 0 {
				return toJSON(map[string]any{
					"message": fmt.Sprintf("No books found matching %q", q),
				})
			}
			return toJSON(books)
		},
	}
}

func placeOrderTool(store *bookstore.Store) *Tool {
	return &Tool{
		Name:        "place_order",
		Description: "Place an order for a customer. Decrements stock for each item. Fails without any change if the customer is unknown, a book is unknown, or stock is insufficient.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id": map[string]any{
					"type":        "integer",
					"description": "Numeric ID of the ordering customer",
				},
				"items": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"isbn": map[string]any{
								"type":        "string",
								"description": "ISBN of the book to order",
							},
							"qty": map[string]any{
								"type":        "integer",
								"minimum":     1,
								"description": "Number of copies",
							},
						},
						"required": []any{"isbn", "qty"},
					},
					"description": "Order lines",
				},
			},
			"required": []any{"customer_id", "items"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			customerID := intArg(args, "customer_id")
			rawItems, _ := args["items"].([]any)
			items := make([]bookstore.OrderLine, 0, len(rawItems))
			for _, raw := range rawItems {
				line, _ := raw.(map[string]any)
				items = append(items, bookstore.OrderLine{
					ISBN: stringArg(line, "isbn"),
					Qty:  int(intArg(line, "qty")),
				})
			}
			orderID, err := store.CreateOrder(ctx, customerID, items)
			if err != nil {
				return "", err
			}
			return toJSON(map[string]any{
				"order_id":    orderID,
				"items_count": len(items),
				"message":     fmt.Sprintf("Order %d created successfully for customer %d", orderID, customerID),
			})
		},
	}
}

func restockBookTool(store *bookstore.Store) *Tool {
	return &Tool{
		Name:        "restock_book",
		Description: "Increase a book's stock by a quantity. Requires the book's ISBN; search the catalog first if you only know the title.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"isbn": map[string]any{
					"type":        "string",
					"description": "ISBN of the book to restock",
				},
				"qty": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"description": "Copies to add",
				},
			},
			"required": []any{"isbn", "qty"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			result, err := store.Restock(ctx, stringArg(args, "isbn"), int(intArg(args, "qty")))
			if err != nil {
				return "", err
			}
			return toJSON(result)
		},
	}
}

func updatePriceTool(store *bookstore.Store) *Tool {
	return &Tool{
		Name:        "update_price",
		Description: "Set a book's price. Requires the book's ISBN; search the catalog first if you only know the title.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"isbn": map[string]any{
					"type":        "string",
					"description": "ISBN of the book to reprice",
				},
				"price": map[string]any{
					"type":             "number",
					"exclusiveMinimum": 0,
					"description":      "New price",
				},
			},
			"required": []any{"isbn", "price"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			result, err := store.UpdatePrice(ctx, stringArg(args, "isbn"), floatArg(args, "price"))
			if err != nil {
				return "", err
			}
			return toJSON(result)
		},
	}
}

func orderStatusTool(store *bookstore.Store) *Tool {
	return &Tool{
		Name:        "order_status",
		Description: "Look up an order by its ID and return its status and line items.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"order_id": map[string]any{
					"type":        "integer",
					"description": "Numeric order ID",
				},
			},
			"required": []any{"order_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			orderID := intArg(args, "order_id")
			detail, err := store.OrderStatus(ctx, orderID)
			if err != nil {
				return "", err
			}
			if detail == nil {
				return toJSON(map[string]any{
					"message": fmt.Sprintf("Order %d not found", orderID),
				})
			}
			return toJSON(detail)
		},
	}
}

func inventorySummaryTool(store *bookstore.Store) *Tool {
	return &Tool{
		Name:        "inventory_summary",
		Description: "List books whose stock is at or below a threshold, lowest stock first. Useful for spotting what needs reordering.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"low_stock_threshold": map[string]any{
					"type":        "integer",
					"minimum":     0,
					"description": "Stock cutoff. Defaults to 3.",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			threshold := bookstore.DefaultLowStockThreshold
			if _, ok := args["low_stock_threshold"]; ok {
				threshold = int(intArg(args, "low_stock_threshold"))
			}
			books, err := store.InventorySummary(ctx, threshold)
			if err != nil {
				return "", err
			}
			// Every entry is at or under the threshold; the marker is
			// still emitted per book so the oracle can quote rows
			// without carrying the threshold around.
			type lowStockBook struct {
				bookstore.Book
				LowStock bool `json:"low_stock"`
			}
			flagged := make([]lowStockBook, 0, len(books))
			for _, b := range books {
				flagged = append(flagged, lowStockBook{Book: b, LowStock: true})
			}
			return toJSON(map[string]any{
				"threshold": threshold,
				"books":     flagged,
			})
		},
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg reads a numeric argument. JSON numbers decode as float64;
// the schema has already rejected anything non-numeric.
func intArg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		n, _ := v.Float64()
		return n
	}
	return 0
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return string(b), nil
}
