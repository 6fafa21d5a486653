package settlement

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const idTimeLayout = "20060102_150405"

// IDGenerator mints transaction and order identifiers of the form
// PREFIX_yyyyMMdd_HHmmss_<8 hex>.
type IDGenerator struct {
	now    func() time.Time
	suffix func() string
}

// NewIDGenerator uses now for the timestamp part; nil means time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now, suffix: randomHex8}
}

func (g *IDGenerator) TransactionID() string {
	return g.mint("TXN")
}

func (g *IDGenerator) OrderID() string {
	return g.mint("ORD")
}

func (g *IDGenerator) mint(prefix string) string {
	return prefix + "_" + g.now().UTC().Format(idTimeLayout) + "_" + g.suffix()
}

// randomHex8 takes eight hex digits from a random v4 UUID.
func randomHex8() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
