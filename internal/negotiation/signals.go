package negotiation

import "strings"

const (
	signalBaseline = 50
	positiveWeight = 15
	negativeWeight = 20
)

// Lexical cues used to score how committed a user sounds. Matching is
// substring-based over the lowercased message; each phrase counts once.
var positiveSignals = []string{
	"love it",
	"i want",
	"i need",
	"definitely",
	"ready to buy",
	"buying today",
	"take it",
	"let's do it",
	"sounds good",
	"i'll buy",
	"perfect",
}

var negativeSignals = []string{
	"too expensive",
	"not sure",
	"maybe later",
	"just looking",
	"thinking about it",
	"can't afford",
	"doubt",
}

// Hostile phrases that drive the surcharge counter. Kept narrow so a single
// insult scores a single point.
var rudenessSignals = []string{
	"trash",
	"garbage",
	"stupid",
	"idiot",
	"ripoff",
	"rip-off",
	"scam",
	"worst",
	"pathetic",
	"useless",
	"shut up",
}

var declineSignals = []string{
	"no thanks",
	"no thank you",
	"never mind",
	"nevermind",
	"forget it",
	"not interested",
	"no deal",
	"stop asking",
}

var discountSignals = []string{
	"discount",
	"cheaper",
	"lower price",
	"better price",
	"best price",
	"price match",
	"haggle",
	"bargain",
	"deal on",
	"a deal",
	"% off",
	"percent off",
	"knock off",
	"coupon",
}

// Words that keep a probing turn on topic. Anything outside this set while
// a session is active is treated as a digression.
var onTopicSignals = []string{
	"price", "cost", "pay", "buy", "deal", "discount", "percent", "%",
	"offer", "afford", "cheap", "expensive", "budget", "money", "dollar",
	"today", "interested", "yes", "sure", "okay",
}

type reasonRule struct {
	keywords []string
	prefix   string
	reason   string
}

var reasonRules = []reasonRule{
	{[]string{"birthday"}, "BDAY", "birthday"},
	{[]string{"student", "college", "university"}, "STUDENT", "student"},
	{[]string{"military", "veteran", "service member"}, "MIL", "military"},
	{[]string{"first purchase", "first order", "first time"}, "FIRST", "first purchase"},
	{[]string{"anniversary"}, "ANNIV", "anniversary"},
	{[]string{"bulk", "wholesale", "large order"}, "BULK", "bulk order"},
}

func countMatches(msg string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			n++
		}
	}
	return n
}

func containsAny(msg string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// commitmentSignal scores a single message: baseline 50, +15 per positive
// cue, -20 per negative cue, clamped to [0, 100].
func commitmentSignal(msg string) int {
	msg = strings.ToLower(msg)
	s := signalBaseline
	s += positiveWeight * countMatches(msg, positiveSignals)
	s -= negativeWeight * countMatches(msg, negativeSignals)
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// rudenessOf counts the distinct hostile cues in a message.
func rudenessOf(msg string) int {
	return countMatches(strings.ToLower(msg), rudenessSignals)
}

// IsDiscountIntent reports whether a message is asking for a better price.
// The router uses this to open a negotiation session.
func IsDiscountIntent(msg string) bool {
	return containsAny(strings.ToLower(msg), discountSignals)
}

func isDecline(msg string) bool {
	return containsAny(strings.ToLower(msg), declineSignals)
}

func isOnTopic(msg string) bool {
	return containsAny(strings.ToLower(msg), onTopicSignals)
}

// inferReason derives a coupon reason from everything the user said during
// the session. The first matching rule wins; the default is a generic
// valued-customer reason.
func inferReason(transcript []string) (prefix, reason string) {
	joined := strings.ToLower(strings.Join(transcript, " "))
	for _, rule := range reasonRules {
		if containsAny(joined, rule.keywords) {
			return rule.prefix, rule.reason
		}
	}
	return "VALUED", "valued customer"
}
