package recorder

import (
	"fmt"
	"hash/fnv"

	"github.com/uxtrace/uxtrace/capture/dom"
)

// Fingerprint derives a low-entropy visitor identifier from ambient client
// signals. Distinct visitors can collide; that imprecision is the price of
// correlating return visits without a login identity.
func Fingerprint(page dom.Page) string {
	w, h := page.Screen()
	h64 := fnv.New64a()
	fmt.Fprintf(h64, "%s|%s|%s|%dx%d", page.UserAgent(), page.Language(), page.Timezone(), w, h)
	return fmt.Sprintf("%016x", h64.Sum64())
}
