package reply

import (
	"fmt"
	"math/rand"
)

// Intent identifies what a scripted reply is saying, independent of which
// wording variant gets picked. Handlers and tests work in terms of intents;
// only the Phrasebook knows the actual text.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentGreeting
	IntentHelp
	IntentCartSummary
	IntentCartEmpty
	IntentCartAdded
	IntentCartRemoved
	IntentItemNotFound
	IntentNothingAvailable
	IntentDisplayUpdated
	IntentRecommendation
	IntentProbeOpen
	IntentProbeContinue
	IntentStillInterested
	IntentDeclined
	IntentCouponGranted
	IntentBestPriceAlready
	IntentSurchargeNotice
	IntentCooldownRefusal
	IntentEmptyCartRefusal
	IntentCheckout
	IntentTryAgainShortly
	IntentNeedMoreDetail
)

// Phraser turns an intent plus optional format arguments into user-facing
// text. Implementations pick one of several wording variants.
type Phraser interface {
	Phrase(intent Intent, args ...any) string
}

// Phrasebook is the default Phraser. Variant selection uses an injected
// rand source so tests can pin the choice.
type Phrasebook struct {
	rng *rand.Rand
}

// NewPhrasebook creates a Phrasebook drawing variants from src. A nil src
// falls back to a fixed-seed source, which keeps output deterministic.
func NewPhrasebook(src rand.Source) *Phrasebook {
	if src == nil {
		src = rand.NewSource(1)
	}
	return &Phrasebook{rng: rand.New(src)}
}

var variants = map[Intent][]string{
	IntentGreeting: {
		"Hey there! Looking for anything in particular today?",
		"Welcome back! What can I help you find?",
	},
	IntentHelp: {
		"I can search the catalog, manage your cart, and sometimes work out a better price. Just ask.",
		"Try asking me to find something, add it to your cart, or see what's in your cart.",
	},
	IntentCartSummary: {
		"Here's your cart:\n%s",
	},
	IntentCartEmpty: {
		"Your cart is empty right now.",
		"Nothing in your cart yet.",
	},
	IntentCartAdded: {
		"Added %s to your cart.",
		"Done, %s is in your cart.",
	},
	IntentCartRemoved: {
		"Removed %s from your cart.",
	},
	IntentItemNotFound: {
		"I couldn't find anything matching %q in the catalog.",
		"Sorry, nothing in stock matches %q.",
	},
	IntentNothingAvailable: {
		"I couldn't find anything matching that. Want to try different words?",
	},
	IntentDisplayUpdated: {
		"Updated the display for you.",
	},
	IntentRecommendation: {
		"You might like these:\n%s",
		"Based on what's popular, take a look at:\n%s",
	},
	IntentProbeOpen: {
		"Let's see what we can do. How committed are you to buying today?",
		"I might have some room on price. Are you ready to buy if we make this work?",
	},
	IntentProbeContinue: {
		"I hear you. Tell me more. Are you buying today?",
		"Okay, we're getting somewhere. How serious are you about this?",
	},
	IntentStillInterested: {
		"Are you still interested in working out a price?",
	},
	IntentDeclined: {
		"No problem, the offer's off the table. Let me know if you change your mind.",
	},
	IntentCouponGranted: {
		"Deal! %d%% off with code %s. It's already applied to your cart.",
		"You've earned it: %d%% off, code %s, applied to your cart.",
	},
	IntentBestPriceAlready: {
		"These are already at our best price, I can't go any lower.",
	},
	IntentSurchargeNotice: {
		"That attitude just cost you: a %d%% surcharge has been applied to your cart.",
	},
	IntentCooldownRefusal: {
		"I already helped you out once. Give it a little while before asking again.",
	},
	IntentEmptyCartRefusal: {
		"Your cart is empty. Pick something out first, then we can talk price.",
	},
	IntentCheckout: {
		"Ready when you are! Your total comes to $%.2f.",
	},
	IntentTryAgainShortly: {
		"I'm having trouble reaching my brain right now. Try again shortly.",
	},
	IntentNeedMoreDetail: {
		"I need a bit more detail to do that.",
	},
}

// Phrase picks a variant for the intent and interpolates args. Unknown
// intents fall back to the need-more-detail wording rather than panicking.
func (p *Phrasebook) Phrase(intent Intent, args ...any) string {
	vs, ok := variants[intent]
	if !ok || len(vs) == 0 {
		vs = variants[IntentNeedMoreDetail]
	}
	tpl := vs[0]
	if len(vs) > 1 {
		tpl = vs[p.rng.Intn(len(vs))]
	}
	if len(args) == 0 {
		return tpl
	}
	return fmt.Sprintf(tpl, args...)
}
