package negotiation

import (
	"strings"
	"testing"
	"time"

	"github.com/tessler/haggle/internal/cart"
	"github.com/tessler/haggle/internal/catalog"
	"github.com/tessler/haggle/internal/reply"
)

// fakeClock steps time manually so cooldown behavior is testable.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func stockedCart(t *testing.T) *cart.Cart {
	t.Helper()
	c := cart.New()
	if err := c.Add(catalog.Item{ID: "a", Name: "Wool Coat", Price: 100, FloorPrice: 80}, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.Add(catalog.Item{ID: "b", Name: "Denim Jacket", Price: 200, FloorPrice: 150}, 1); err != nil {
		t.Fatal(err)
	}
	return c
}

func newTestManager(t *testing.T) (*Manager, *cart.Cart, *fakeClock) {
	t.Helper()
	c := stockedCart(t)
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewManagerWithClock(c, DefaultParams(), clk.now), c, clk
}

func TestBirthdayNegotiation(t *testing.T) {
	m, c, _ := newTestManager(t)

	turn := m.HandleTurn("it's my birthday, any chance of a discount?")
	if !turn.Handled || turn.Intent != reply.IntentProbeOpen {
		t.Fatalf("opening turn = %+v, want probe-open", turn)
	}
	if !c.Locked() {
		t.Error("cart not locked after session start")
	}

	turn = m.HandleTurn("I definitely want this, ready to buy today")
	if turn.Intent != reply.IntentProbeContinue {
		t.Fatalf("second turn = %+v, want probe-continue", turn)
	}

	turn = m.HandleTurn("yes, let's do it, birthday deal please")
	if turn.Intent != reply.IntentCouponGranted {
		t.Fatalf("third turn = %+v, want coupon grant", turn)
	}
	if turn.Coupon == nil {
		t.Fatal("coupon grant carried no coupon")
	}
	if turn.Coupon.Percent < 5 || turn.Coupon.Percent > 15 {
		t.Errorf("discount = %d%%, want within [5, 15]", turn.Coupon.Percent)
	}
	if !strings.HasPrefix(turn.Coupon.Code, "BDAY-") {
		t.Errorf("coupon code = %q, want BDAY- prefix", turn.Coupon.Code)
	}
	if c.Locked() {
		t.Error("cart still locked after resolution")
	}
	if got := c.AppliedCoupon(); got == nil || got.Code != turn.Coupon.Code {
		t.Error("coupon not applied to cart")
	}
}

func TestSuccessNeverBreachesFloorTotal(t *testing.T) {
	m, c, _ := newTestManager(t)

	m.HandleTurn("give me a discount")
	m.HandleTurn("I definitely want it, buying today")
	turn := m.HandleTurn("yes, it's a deal")

	if turn.Intent != reply.IntentCouponGranted {
		t.Fatalf("turn = %+v, want coupon grant", turn)
	}
	if got, floor := c.DiscountedTotal(), c.FloorTotal(); got < floor {
		t.Errorf("discounted total %.2f below floor total %.2f", got, floor)
	}
}

func TestStartRefusedWhenCartEmpty(t *testing.T) {
	clk := &fakeClock{t: time.Now()}
	m := NewManagerWithClock(cart.New(), DefaultParams(), clk.now)

	turn := m.HandleTurn("any discount for me?")
	if turn.Intent != reply.IntentEmptyCartRefusal {
		t.Errorf("turn = %+v, want empty-cart refusal", turn)
	}
	if m.Active() {
		t.Error("session opened despite empty cart")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.HandleTurn("can I get a discount?")
	first, ok := m.Snapshot()
	if !ok || first.State != StateProbing {
		t.Fatalf("no probing session after start: %+v", first)
	}

	m.HandleTurn("seriously, I want a discount")
	second, _ := m.Snapshot()
	if second.ID != first.ID {
		t.Errorf("repeated discount intent replaced the session: %s -> %s", first.ID, second.ID)
	}
	if second.State != StateProbing {
		t.Errorf("repeated start changed state to %v", second.State)
	}
}

func TestRudenessIncrementsByOnePerMatch(t *testing.T) {
	m, _, _ := newTestManager(t)

	turn := m.HandleTurn("this service is trash")
	if m.Rudeness() != 1 {
		t.Errorf("rudeness = %d after one insult, want 1", m.Rudeness())
	}
	if turn.Intent == reply.IntentSurchargeNotice {
		t.Error("surcharge fired below the threshold")
	}

	m.HandleTurn("honestly this is garbage")
	if m.Rudeness() != 2 {
		t.Errorf("rudeness = %d after two insults, want 2", m.Rudeness())
	}

	turn = m.HandleTurn("you are useless")
	if m.Rudeness() != 3 {
		t.Errorf("rudeness = %d after three insults, want 3", m.Rudeness())
	}
	if turn.Intent != reply.IntentSurchargeNotice {
		t.Fatalf("turn = %+v, want surcharge at rudeness 3", turn)
	}
	if turn.Coupon == nil || turn.Coupon.Percent != -15 {
		t.Errorf("surcharge coupon = %+v, want -15%%", turn.Coupon)
	}
}

func TestRudenessAlwaysResolvesNonPositive(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.HandleTurn("discount please")
	m.HandleTurn("this is trash and you are stupid and pathetic")

	s, ok := m.Snapshot()
	if !ok || s.Outcome != OutcomeSurcharged {
		t.Fatalf("session = %+v, want surcharged outcome", s)
	}
	if coupon := m.cart.AppliedCoupon(); coupon == nil || coupon.Percent > 0 {
		t.Errorf("coupon = %+v, want non-positive percent", coupon)
	}
}

func TestCooldownBlocksSecondNegotiation(t *testing.T) {
	m, c, clk := newTestManager(t)

	m.HandleTurn("discount please")
	m.HandleTurn("I definitely want it, buying today")
	turn := m.HandleTurn("yes, deal")
	if turn.Intent != reply.IntentCouponGranted {
		t.Fatalf("setup failed: %+v", turn)
	}

	clk.advance(time.Minute)
	turn = m.HandleTurn("how about another discount?")
	if turn.Intent != reply.IntentCooldownRefusal {
		t.Errorf("turn during cooldown = %+v, want refusal", turn)
	}
	if m.Active() {
		t.Error("new session opened during cooldown")
	}

	clk.advance(10 * time.Minute)
	c.Add(catalog.Item{ID: "c", Name: "Scarf", Price: 40, FloorPrice: 30}, 1)
	turn = m.HandleTurn("how about another discount?")
	if turn.Intent != reply.IntentProbeOpen {
		t.Errorf("turn after cooldown = %+v, want probe-open", turn)
	}
}

func TestNoCooldownAfterSurcharge(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.HandleTurn("this is trash, a total scam, you worst pathetic bot")
	s, _ := m.Snapshot()
	if s.Outcome != OutcomeSurcharged {
		t.Fatalf("setup failed, outcome = %v", s.Outcome)
	}

	turn := m.HandleTurn("okay okay, can I still get a discount?")
	if turn.Intent == reply.IntentCooldownRefusal {
		t.Error("surcharge started a cooldown, it must not")
	}
}

func TestDeclineReleasesCart(t *testing.T) {
	m, c, _ := newTestManager(t)

	m.HandleTurn("any deal for me?")
	turn := m.HandleTurn("actually no thanks, forget it")
	if turn.Intent != reply.IntentDeclined {
		t.Fatalf("turn = %+v, want declined", turn)
	}
	if c.Locked() {
		t.Error("cart still locked after decline")
	}
	if m.Active() {
		t.Error("session still active after decline")
	}
}

func TestOffTopicBranchThenDecline(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.HandleTurn("discount please")
	turn := m.HandleTurn("do you have any red scarves in stock?")
	if turn.Intent != reply.IntentStillInterested {
		t.Fatalf("first digression = %+v, want still-interested", turn)
	}
	s, _ := m.Snapshot()
	if s.TurnCount != 1 {
		t.Errorf("digression bumped turn count to %d", s.TurnCount)
	}

	turn = m.HandleTurn("what is your return policy?")
	if turn.Intent != reply.IntentDeclined {
		t.Errorf("second digression = %+v, want declined", turn)
	}
}

func TestBestPriceAlreadyWhenNoHeadroom(t *testing.T) {
	c := cart.New()
	c.Add(catalog.Item{ID: "x", Name: "Clearance Belt", Price: 50, FloorPrice: 50}, 1)
	clk := &fakeClock{t: time.Now()}
	m := NewManagerWithClock(c, DefaultParams(), clk.now)

	m.HandleTurn("discount please")
	m.HandleTurn("I definitely want it, buying today")
	turn := m.HandleTurn("yes, deal")
	if turn.Intent != reply.IntentBestPriceAlready {
		t.Errorf("turn = %+v, want best-price refusal", turn)
	}
	if c.AppliedCoupon() != nil {
		t.Error("coupon issued with zero headroom")
	}
}

func TestGenerateCouponGating(t *testing.T) {
	m, c, _ := newTestManager(t)

	if ok, _, _ := m.GenerateCoupon(10, "valued customer"); ok {
		t.Error("coupon accepted before any probing turns")
	}

	m.HandleTurn("discount please")
	m.HandleTurn("I definitely want it, buying today")
	m.HandleTurn("yes, deal")

	ok, code, applied := m.GenerateCoupon(50, "birthday")
	if !ok {
		t.Fatal("coupon rejected after threshold reached")
	}
	if applied > 23 {
		t.Errorf("applied percent %d exceeds floor-derived ceiling 23", applied)
	}
	if !strings.HasPrefix(code, "BDAY-") {
		t.Errorf("code = %q, want BDAY- prefix", code)
	}
	if got, floor := c.DiscountedTotal(), c.FloorTotal(); got < floor {
		t.Errorf("discounted total %.2f below floor total %.2f", got, floor)
	}
}
