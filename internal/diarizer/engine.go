// Package diarizer attributes each utterance to a speaker using voice
// embeddings and online nearest-centroid clustering.
//
// The algorithm is single-pass with no reclustering: clusters are never
// merged or split after creation, and a mislabeled early utterance is
// never retroactively corrected. Speaker-count drift over a long session
// is an accepted limitation of the approach.
package diarizer

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/gmarchesi/verbatim/internal/events"
)

// Embedder converts an utterance into a fixed-length voice embedding.
// The model behind it is a black box; it only has to be synchronous
// from the engine's perspective.
type Embedder interface {
	Embed(ctx context.Context, samples []float32, sampleRate int) ([]float64, error)
}

type Config struct {
	// Threshold is the minimum cosine similarity for assigning an
	// utterance to an existing cluster.
	Threshold float64

	// InertiaWeight is added to the similarity score of whichever
	// cluster won the previous comparison. The sticky-speaker bias
	// suppresses label flapping on short utterances.
	InertiaWeight float64

	OutBufferSize int
}

type cluster struct {
	id       string
	centroid []float64 // unit-norm after every update
	count    int
}

// Engine owns the cluster table exclusively; it is mutated only by the
// Run goroutine, so no locking is needed.
type Engine struct {
	config   Config
	embedder Embedder

	clusters    []*cluster
	nextID      int
	lastSpeaker string
}

func New(config Config, embedder Embedder) *Engine {
	if config.OutBufferSize == 0 {
		config.OutBufferSize = 16
	}
	return &Engine{config: config, embedder: embedder}
}

// SpeakerCount reports how many clusters exist so far.
func (e *Engine) SpeakerCount() int {
	return len(e.clusters)
}

// Run consumes chunks until the input closes or the context is
// cancelled, emitting one DiarizationResult per chunk that embeds
// successfully. The output channel is closed on exit.
func (e *Engine) Run(ctx context.Context, in <-chan events.AudioChunk) <-chan events.DiarizationResult {
	out := make(chan events.DiarizationResult, e.config.OutBufferSize)

	go func() {
		defer close(out)
		log.Printf("Diarizer: started: threshold=%.2f inertia=%.2f",
			e.config.Threshold, e.config.InertiaWeight)

		for {
			select {
			case chunk, ok := <-in:
				if !ok {
					log.Printf("Diarizer: input closed, %d speakers discovered", len(e.clusters))
					return
				}
				speaker, ok := e.Identify(ctx, chunk)
				if !ok {
					continue // model error, chunk dropped
				}
				result := events.DiarizationResult{
					Speaker: speaker,
					Start:   chunk.Timestamp,
					End:     chunk.End(),
				}
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Identify labels one chunk. The boolean is false when the embedding
// call itself failed; stale audio is never retried.
func (e *Engine) Identify(ctx context.Context, chunk events.AudioChunk) (string, bool) {
	emb, err := e.embedder.Embed(ctx, chunk.Samples, chunk.SampleRate)
	if err != nil {
		log.Printf("Diarizer: embedding failed, dropping chunk: %v", err)
		return "", false
	}

	if !normalize(emb) {
		return events.SpeakerUnknown, true
	}

	best, bestSim := e.nearest(emb)

	if best != nil && bestSim > e.config.Threshold {
		e.absorb(best, emb)
		e.lastSpeaker = best.id
		return best.id, true
	}

	c := &cluster{
		id:       fmt.Sprintf("Speaker %d", e.nextID),
		centroid: emb,
		count:    1,
	}
	e.nextID++
	e.clusters = append(e.clusters, c)
	e.lastSpeaker = c.id
	log.Printf("Diarizer: new speaker %q (best similarity %.4f, threshold %.2f)",
		c.id, bestSim, e.config.Threshold)
	return c.id, true
}

// nearest returns the cluster with the highest cosine similarity to emb,
// with the inertia bonus applied to the previous winner.
func (e *Engine) nearest(emb []float64) (*cluster, float64) {
	var best *cluster
	bestSim := -1.0
	for _, c := range e.clusters {
		sim := dot(emb, c.centroid)
		if c.id == e.lastSpeaker {
			sim += e.config.InertiaWeight
		}
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}
	return best, bestSim
}

// absorb folds emb into the cluster centroid as a count-weighted running
// mean and re-normalizes to unit length.
func (e *Engine) absorb(c *cluster, emb []float64) {
	for i := range c.centroid {
		c.centroid[i] = (c.centroid[i]*float64(c.count) + emb[i]) / float64(c.count+1)
	}
	normalize(c.centroid)
	c.count++
}

// normalize scales v to unit length in place, reporting false for a
// degenerate zero-norm vector.
func normalize(v []float64) bool {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return false
	}
	for i := range v {
		v[i] /= norm
	}
	return true
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
