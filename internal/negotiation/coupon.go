package negotiation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// newCouponCode builds a REASON-PERCENT-SUFFIX code, e.g. BDAY-12-A1B2C3D4.
// The suffix is the first uuid group, which is enough entropy for a
// conversation-scoped code.
func newCouponCode(prefix string, percent int) string {
	suffix := strings.ToUpper(strings.SplitN(uuid.NewString(), "-", 2)[0])
	return fmt.Sprintf("%s-%d-%s", prefix, percent, suffix)
}
