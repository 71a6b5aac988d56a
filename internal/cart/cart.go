package cart

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/tessler/haggle/internal/catalog"
)

var (
	// ErrLocked is returned for mutations attempted while a negotiation
	// session holds the cart.
	ErrLocked = errors.New("cart is locked by an active negotiation")

	// ErrNotFound is returned when a line for the given item does not exist.
	ErrNotFound = errors.New("cart line not found")
)

// Line is one cart entry. Price and FloorPrice are copied from the catalog at
// add time so a mid-session catalog change cannot move the floor under an
// active negotiation.
type Line struct {
	ItemID     string
	Name       string
	Quantity   int
	Price      float64 // unit price
	FloorPrice float64 // unit floor
}

// Coupon is a discount (or surcharge, when Percent is negative) applied to
// the whole cart.
type Coupon struct {
	Code      string
	Percent   int
	Reason    string
	AppliedAt time.Time
}

// Cart holds the session's shopping cart. A negotiation session locks it
// against quantity/item changes until the session resolves, so bargaining
// cannot race with cart edits from another UI surface.
type Cart struct {
	mu     sync.Mutex
	lines  []Line
	locked bool
	coupon *Coupon
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// Add puts quantity units of item into the cart, merging with an existing
// line for the same item.
func (c *Cart) Add(item catalog.Item, quantity int) error {
	if quantity <= 0 {
		quantity = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return ErrLocked
	}

	for i := range c.lines {
		if c.lines[i].ItemID == item.ID {
			c.lines[i].Quantity += quantity
			return nil
		}
	}
	c.lines = append(c.lines, Line{
		ItemID:     item.ID,
		Name:       item.Name,
		Quantity:   quantity,
		Price:      item.Price,
		FloorPrice: item.FloorPrice,
	})
	return nil
}

// Remove deletes the line for itemID.
func (c *Cart) Remove(itemID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return ErrLocked
	}

	for i := range c.lines {
		if c.lines[i].ItemID == itemID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Lines returns a copy of the cart lines.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// Total returns the undiscounted cart total.
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalLocked()
}

func (c *Cart) totalLocked() float64 {
	var sum float64
	for _, l := range c.lines {
		sum += l.Price * float64(l.Quantity)
	}
	return sum
}

// FloorTotal returns the sum of floor prices across all lines.
func (c *Cart) FloorTotal() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum float64
	for _, l := range c.lines {
		sum += l.FloorPrice * float64(l.Quantity)
	}
	return sum
}

// DiscountedTotal returns the total after the applied coupon, if any.
func (c *Cart) DiscountedTotal() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.totalLocked()
	if c.coupon == nil {
		return total
	}
	adjusted := total * (1 - float64(c.coupon.Percent)/100)
	return math.Round(adjusted*100) / 100
}

// Lock marks the cart as held by a negotiation session.
func (c *Cart) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = true
}

// Unlock releases the negotiation hold.
func (c *Cart) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = false
}

// Locked reports whether a negotiation session holds the cart.
func (c *Cart) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// ApplyCoupon sets the cart's coupon, replacing any previous one.
func (c *Cart) ApplyCoupon(cp Coupon) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coupon = &cp
}

// AppliedCoupon returns a copy of the applied coupon, or nil. Repeated reads
// between negotiations always observe the same code and percent.
func (c *Cart) AppliedCoupon() *Coupon {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coupon == nil {
		return nil
	}
	cp := *c.coupon
	return &cp
}
