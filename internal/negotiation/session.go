package negotiation

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tessler/haggle/internal/cart"
	"github.com/tessler/haggle/internal/reply"
)

// State is the lifecycle position of a negotiation session.
type State int

const (
	StateIdle State = iota
	StateProbing
	StateResolved
)

// Outcome records how a resolved session ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeDeclined
	OutcomeSurcharged
)

// Session is one bargaining exchange over the current cart. It lives only
// for the duration of the user's conversation; nothing is persisted.
type Session struct {
	ID         string
	State      State
	Outcome    Outcome
	TurnCount  int
	Commitment int
	StartedAt  time.Time

	offTopicWarned bool
	transcript     []string
}

// Params bound the discount math and the penalty behavior. All values come
// from config; DefaultParams mirrors the config defaults for tests.
type Params struct {
	TurnThreshold   int
	MaxDiscountCap  int
	BaseDiscountCap int
	MinDiscount     int
	Cooldown        time.Duration
	RudenessLimit   int
	SurchargeStep   int
	SurchargeCap    int
}

func DefaultParams() Params {
	return Params{
		TurnThreshold:   3,
		MaxDiscountCap:  30,
		BaseDiscountCap: 15,
		MinDiscount:     5,
		Cooldown:        5 * time.Minute,
		RudenessLimit:   3,
		SurchargeStep:   5,
		SurchargeCap:    25,
	}
}

// Turn is the manager's answer to one user message. Handled reports whether
// the manager consumed the message; when false the router keeps classifying.
type Turn struct {
	Handled bool
	Intent  reply.Intent
	Args    []any
	Coupon  *cart.Coupon
}

// Manager drives the per-cart negotiation state machine. One manager serves
// one conversation; turns are processed strictly one at a time, so no
// internal locking is needed.
type Manager struct {
	cart *cart.Cart
	p    Params
	now  func() time.Time

	session     *Session
	rudeness    int
	surcharged  bool
	lastSuccess time.Time
	hasSuccess  bool
}

func NewManager(c *cart.Cart, p Params) *Manager {
	return NewManagerWithClock(c, p, time.Now)
}

// NewManagerWithClock injects the clock used for cooldown bookkeeping.
func NewManagerWithClock(c *cart.Cart, p Params, now func() time.Time) *Manager {
	if p.TurnThreshold <= 0 {
		p = DefaultParams()
	}
	return &Manager{cart: c, p: p, now: now}
}

// Active reports whether a session is mid-bargain.
func (m *Manager) Active() bool {
	return m.session != nil && m.session.State == StateProbing
}

// Snapshot returns a copy of the current session, if any.
func (m *Manager) Snapshot() (Session, bool) {
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// TurnCount is the probing turn counter of the current session, 0 when idle.
func (m *Manager) TurnCount() int {
	if m.session == nil {
		return 0
	}
	return m.session.TurnCount
}

// Rudeness is the cumulative hostile-language counter for this conversation.
func (m *Manager) Rudeness() int { return m.rudeness }

// RudenessOverride reports whether the surcharge threshold has been reached.
func (m *Manager) RudenessOverride() bool { return m.rudeness >= m.p.RudenessLimit }

// HandleTurn processes one user message. It is called for every message,
// in any state: rudeness is scored first, then the active session consumes
// the message, then a discount-intent message may open a new session.
// Everything else is left for the router's remaining classifiers.
func (m *Manager) HandleTurn(msg string) Turn {
	m.rudeness += rudenessOf(msg)
	if m.RudenessOverride() && !m.surcharged {
		return m.resolveSurcharge()
	}

	if m.Active() {
		return m.probingTurn(msg)
	}

	if IsDiscountIntent(msg) {
		return m.start(msg)
	}

	return Turn{}
}

// start opens a session if the cart has lines and no cooldown is running.
// A repeated start while probing never reaches here; HandleTurn routes it
// through probingTurn, which leaves the existing session in place.
func (m *Manager) start(msg string) Turn {
	if m.hasSuccess && m.now().Sub(m.lastSuccess) < m.p.Cooldown {
		return Turn{Handled: true, Intent: reply.IntentCooldownRefusal}
	}
	if m.cart.IsEmpty() {
		return Turn{Handled: true, Intent: reply.IntentEmptyCartRefusal}
	}

	m.cart.Lock()
	m.session = &Session{
		ID:         uuid.NewString(),
		State:      StateProbing,
		TurnCount:  1,
		Commitment: averaged(signalBaseline, commitmentSignal(msg)),
		StartedAt:  m.now(),
		transcript: []string{msg},
	}
	return Turn{Handled: true, Intent: reply.IntentProbeOpen}
}

func (m *Manager) probingTurn(msg string) Turn {
	s := m.session

	if isDecline(msg) {
		return m.resolveDeclined()
	}

	if !isOnTopic(msg) {
		if s.offTopicWarned {
			return m.resolveDeclined()
		}
		s.offTopicWarned = true
		return Turn{Handled: true, Intent: reply.IntentStillInterested}
	}

	s.offTopicWarned = false
	s.TurnCount++
	s.Commitment = averaged(s.Commitment, commitmentSignal(msg))
	s.transcript = append(s.transcript, msg)

	if s.TurnCount >= m.p.TurnThreshold {
		return m.resolveSuccess()
	}
	return Turn{Handled: true, Intent: reply.IntentProbeContinue}
}

func (m *Manager) resolveDeclined() Turn {
	m.session.State = StateResolved
	m.session.Outcome = OutcomeDeclined
	m.cart.Unlock()
	return Turn{Handled: true, Intent: reply.IntentDeclined}
}

// resolveSuccess computes the discount, bounded below by the minimum and
// above by the floor-derived ceiling; when both constraints conflict the
// ceiling wins, so the cart can never be discounted under its floor total.
func (m *Manager) resolveSuccess() Turn {
	s := m.session
	ceiling := m.discountCeiling()
	if ceiling == 0 {
		s.State = StateResolved
		s.Outcome = OutcomeDeclined
		m.cart.Unlock()
		return Turn{Handled: true, Intent: reply.IntentBestPriceAlready}
	}

	base := m.p.BaseDiscountCap
	if ceiling < base {
		base = ceiling
	}
	bonus := s.Commitment / 100 * 5
	penalty := (s.TurnCount - m.p.TurnThreshold) * 2
	if penalty < 0 {
		penalty = 0
	}
	discount := base + bonus - penalty
	if discount < m.p.MinDiscount {
		discount = m.p.MinDiscount
	}
	if discount > ceiling {
		discount = ceiling
	}

	prefix, reason := inferReason(s.transcript)
	coupon := cart.Coupon{
		Code:      newCouponCode(prefix, discount),
		Percent:   discount,
		Reason:    reason,
		AppliedAt: m.now(),
	}

	s.State = StateResolved
	s.Outcome = OutcomeSuccess
	m.cart.Unlock()
	m.cart.ApplyCoupon(coupon)
	m.lastSuccess = m.now()
	m.hasSuccess = true

	return Turn{
		Handled: true,
		Intent:  reply.IntentCouponGranted,
		Args:    []any{discount, coupon.Code},
		Coupon:  &coupon,
	}
}

// resolveSurcharge applies the rudeness penalty as a negative coupon. A
// surcharge is not a success, so no cooldown starts.
func (m *Manager) resolveSurcharge() Turn {
	percent := m.rudeness * m.p.SurchargeStep
	if percent > m.p.SurchargeCap {
		percent = m.p.SurchargeCap
	}

	if m.session == nil {
		m.session = &Session{ID: uuid.NewString(), StartedAt: m.now()}
	}
	m.session.State = StateResolved
	m.session.Outcome = OutcomeSurcharged
	m.surcharged = true
	m.cart.Unlock()

	coupon := cart.Coupon{
		Code:      newCouponCode("RUDE", -percent),
		Percent:   -percent,
		Reason:    "rudeness surcharge",
		AppliedAt: m.now(),
	}
	m.cart.ApplyCoupon(coupon)

	return Turn{
		Handled: true,
		Intent:  reply.IntentSurchargeNotice,
		Args:    []any{percent},
		Coupon:  &coupon,
	}
}

// GenerateCoupon serves the tool-call path. The request is refused unless
// the session has earned it (enough probing turns, or the rudeness override
// is in force); an accepted percent is still re-clamped to the floor-derived
// ceiling.
func (m *Manager) GenerateCoupon(percent int, reason string) (accepted bool, code string, applied int) {
	if m.TurnCount() < m.p.TurnThreshold && !m.RudenessOverride() {
		return false, "", 0
	}

	if percent > 0 {
		ceiling := m.discountCeiling()
		if ceiling == 0 {
			return false, "", 0
		}
		if percent > ceiling {
			percent = ceiling
		}
	}

	prefix, inferred := inferReason([]string{reason})
	if reason == "" {
		reason = inferred
	}
	coupon := cart.Coupon{
		Code:      newCouponCode(prefix, percent),
		Percent:   percent,
		Reason:    reason,
		AppliedAt: m.now(),
	}
	m.cart.ApplyCoupon(coupon)
	return true, coupon.Code, percent
}

// discountCeiling is the largest percent that keeps every line at or above
// its floor price, capped by config.
func (m *Manager) discountCeiling() int {
	total := m.cart.Total()
	if total <= 0 {
		return 0
	}
	ceiling := int(math.Floor((total - m.cart.FloorTotal()) / total * 100))
	if ceiling > m.p.MaxDiscountCap {
		ceiling = m.p.MaxDiscountCap
	}
	if ceiling < 0 {
		ceiling = 0
	}
	return ceiling
}

func averaged(prev, signal int) int {
	return int(math.Round(float64(prev+signal) / 2))
}
