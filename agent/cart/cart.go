package cart

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrNoSession       = errors.New("no conversation id set")
	ErrItemNotFound    = errors.New("product not in cart")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Line is one product held in a cart.
type Line struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

type cart struct {
	order []int
	qty   map[int]int
}

func newCart() *cart {
	return &cart{qty: make(map[int]int, 4)}
}

func (c *cart) lines() []Line {
	out := make([]Line, 0, len(c.order))
	for _, pid := range c.order {
		out = append(out, Line{ProductID: pid, Quantity: c.qty[pid]})
	}
	return out
}

func (c *cart) drop(pid int) {
	delete(c.qty, pid)
	for i, id := range c.order {
		if id == pid {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Store holds one cart per conversation. Quantities are always > 0; a line
// that would reach zero is deleted instead.
type Store struct {
	mu    sync.Mutex
	carts map[string]*cart
}

func NewStore() *Store {
	return &Store{carts: make(map[string]*cart)}
}

func (s *Store) get(conversationID string, create bool) (*cart, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return nil, ErrNoSession
	}
	c, ok := s.carts[id]
	if !ok && create {
		c = newCart()
		s.carts[id] = c
	}
	return c, nil
}

// Add increments an existing line or inserts a new one. It reports the new
// quantity and whether the line already existed.
func (s *Store) Add(conversationID string, productID, quantity int) (total int, existed bool, err error) {
	if quantity <= 0 {
		return 0, false, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.get(conversationID, true)
	if err != nil {
		return 0, false, err
	}
	if held, ok := c.qty[productID]; ok {
		c.qty[productID] = held + quantity
		return held + quantity, true, nil
	}
	c.qty[productID] = quantity
	c.order = append(c.order, productID)
	return quantity, false, nil
}

// Update overwrites the quantity of an existing line.
func (s *Store) Update(conversationID string, productID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.get(conversationID, false)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrItemNotFound
	}
	if _, ok := c.qty[productID]; !ok {
		return ErrItemNotFound
	}
	c.qty[productID] = quantity
	return nil
}

// Remove decrements a line, deleting it when quantity >= the held amount.
// remaining is zero when the line was deleted.
func (s *Store) Remove(conversationID string, productID, quantity int) (remaining int, err error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.get(conversationID, false)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, ErrItemNotFound
	}
	held, ok := c.qty[productID]
	if !ok {
		return 0, ErrItemNotFound
	}
	if quantity < held {
		c.qty[productID] = held - quantity
		return held - quantity, nil
	}
	c.drop(productID)
	return 0, nil
}

// Clear empties the cart and returns the lines it held.
func (s *Store) Clear(conversationID string) ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.get(conversationID, false)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	lines := c.lines()
	delete(s.carts, strings.TrimSpace(conversationID))
	return lines, nil
}

// View returns the lines in insertion order.
func (s *Store) View(conversationID string) ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.get(conversationID, false)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return []Line{}, nil
	}
	return c.lines(), nil
}
