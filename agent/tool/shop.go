package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cartx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/cart"
	catalogx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/catalog"
	contractx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/contract"
	searchx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/search"
)

const (
	sessionErrorText = "Session error: no conversation ID set."
	emptyCartText    = "Your cart is currently empty."
	noResultsText    = "No products found matching your search."
)

type searchArgs struct {
	Query string `json:"query"`
}

func (g *Gateway) runSearch(ctx context.Context, _ contractx.Scope, args string) (any, error) {
	var in searchArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	query, err := requireString("query", in.Query)
	if err != nil {
		return nil, err
	}
	if g.deps.Searcher == nil {
		return nil, fmt.Errorf("%w: search backend is not configured", contractx.ErrToolFault)
	}

	hits, err := g.deps.Searcher.SimilaritySearch(ctx, searchx.QueryPrompt(query), g.deps.SearchTopK)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", contractx.ErrToolFault, err)
	}
	if len(hits) == 0 {
		return noResultsText, nil
	}

	blocks := make([]string, 0, len(hits))
	for _, hit := range hits {
		blocks = append(blocks, fmt.Sprintf("- %s (ID: %d)\n  Aisle: %s\n  Department: %s\n  Details: %s",
			hit.Name, hit.ProductID, hit.Aisle, hit.Department, hit.Text))
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (g *Gateway) runStructuredSearch(ctx context.Context, scope contractx.Scope, args string) (any, error) {
	var q catalogx.Query
	if err := decodeArgs(args, &q); err != nil {
		return nil, err
	}
	res, err := g.deps.Catalog.Search(q, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}
	return res, nil
}

type cartArgs struct {
	Operation string `json:"operation"`
	ProductID *int   `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

func (g *Gateway) runCart(ctx context.Context, scope contractx.Scope, args string) (any, error) {
	var in cartArgs
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	op, err := requireString("operation", in.Operation)
	if err != nil {
		return nil, err
	}
	quantity := 1
	if in.Quantity != nil {
		quantity = *in.Quantity
	}

	text, err := g.applyCart(scope.ConversationID, strings.ToLower(op), in.ProductID, quantity)
	switch {
	case errors.Is(err, cartx.ErrNoSession):
		return sessionErrorText, nil
	case errors.Is(err, cartx.ErrInvalidQuantity):
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	case err != nil:
		return nil, err
	}
	return text, nil
}

func (g *Gateway) applyCart(conversationID, op string, productID *int, quantity int) (string, error) {
	carts := g.deps.Carts

	switch op {
	case "add", "update", "remove":
		if productID == nil {
			return fmt.Sprintf("No product ID provided to %s.", op), nil
		}
	}

	switch op {
	case "add":
		pid := *productID
		total, existed, err := carts.Add(conversationID, pid, quantity)
		if err != nil {
			return "", err
		}
		if existed {
			return fmt.Sprintf("Added %d more of product %d to your cart. New quantity: %d.", quantity, pid, total), nil
		}
		return fmt.Sprintf("Added %d of %s (ID: %d) to your cart.", quantity, g.deps.Catalog.ProductName(pid), pid), nil

	case "update":
		pid := *productID
		if err := carts.Update(conversationID, pid, quantity); err != nil {
			if errors.Is(err, cartx.ErrItemNotFound) {
				return fmt.Sprintf("Product %d not found in your cart.", pid), nil
			}
			return "", err
		}
		return fmt.Sprintf("Updated quantity of %s (ID: %d) to %d.", g.deps.Catalog.ProductName(pid), pid, quantity), nil

	case "remove":
		pid := *productID
		remaining, err := carts.Remove(conversationID, pid, quantity)
		if err != nil {
			if errors.Is(err, cartx.ErrItemNotFound) {
				return fmt.Sprintf("Product %d not found in your cart.", pid), nil
			}
			return "", err
		}
		name := g.deps.Catalog.ProductName(pid)
		if remaining > 0 {
			return fmt.Sprintf("Removed %d of %s (ID: %d) from your cart. New quantity: %d.", quantity, name, pid, remaining), nil
		}
		return fmt.Sprintf("Removed %s (ID: %d) from your cart.", name, pid), nil

	case "remove_all":
		cleared, err := carts.Clear(conversationID)
		if err != nil {
			return "", err
		}
		if len(cleared) == 0 {
			return "Your cart is already empty.", nil
		}
		return "Removed all items from your cart.", nil

	case "buy":
		lines, err := carts.View(conversationID)
		if err != nil {
			return "", err
		}
		if len(lines) == 0 {
			return "Your cart is empty. Nothing to purchase.", nil
		}
		if _, err := carts.Clear(conversationID); err != nil {
			return "", err
		}
		return "Thank you for your purchase! Your cart is now empty.", nil
	}

	return fmt.Sprintf("Unknown cart operation: %s", op), nil
}

func (g *Gateway) runViewCart(ctx context.Context, scope contractx.Scope, args string) (any, error) {
	var in struct{}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	lines, err := g.deps.Carts.View(scope.ConversationID)
	if errors.Is(err, cartx.ErrNoSession) {
		return sessionErrorText, nil
	}
	if err != nil {
		return nil, err
	}
	return FormatCart(g.deps.Catalog, lines), nil
}

// FormatCart renders cart lines the way view_cart reports them.
func FormatCart(c *catalogx.Catalog, lines []cartx.Line) string {
	if len(lines) == 0 {
		return emptyCartText
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, "Your cart contains:")
	for _, line := range lines {
		out = append(out, fmt.Sprintf("- %s (ID: %d) × %d", c.ProductName(line.ProductID), line.ProductID, line.Quantity))
	}
	return strings.Join(out, "\n")
}
