// Package broadcast duplicates one AudioChunk stream onto two
// independent downstream streams.
package broadcast

import (
	"context"
	"log"

	"github.com/gmarchesi/verbatim/internal/events"
)

// Run forwards every chunk from in to both outputs, in order, with no
// reordering and no drop; both output streams are permutation-identical
// to the input. When in closes (or the context is cancelled) both
// outputs are closed exactly once so that both consumers terminate.
//
// Sends block: backpressure from either consumer slows the other, so
// the two workers always operate on identical audio.
func Run(ctx context.Context, in <-chan events.AudioChunk, outA, outB chan<- events.AudioChunk) {
	defer func() {
		close(outA)
		close(outB)
		log.Printf("Broadcast: outputs closed")
	}()

	forwarded := 0
	for {
		select {
		case chunk, ok := <-in:
			if !ok {
				log.Printf("Broadcast: input closed after %d chunks", forwarded)
				return
			}
			select {
			case outA <- chunk:
			case <-ctx.Done():
				return
			}
			select {
			case outB <- chunk:
			case <-ctx.Done():
				return
			}
			forwarded++
		case <-ctx.Done():
			return
		}
	}
}
