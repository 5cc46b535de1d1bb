package facegallery

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
)

// Dim is the embedding dimension produced by the dlib resnet model.
const Dim = 128

// Descriptor is one face embedding vector.
type Descriptor [Dim]float32

// Unknown is the label returned when no gallery entry matches.
const Unknown = "Unknown"

// Gallery maps person names to enrolled face embeddings. Multiple entries
// may share a name; more enrollments make matching more robust. The whole
// gallery is persisted as one file and rewritten on every enrollment, which
// is fine at portal scale.
type Gallery struct {
	mu        sync.Mutex
	path      string
	tolerance float64
	names     []string
	encodings []Descriptor
}

// persisted is the on-disk form: two index-aligned sequences.
type persisted struct {
	Names     []string
	Encodings []Descriptor
}

// Load reads the gallery file, or starts empty when it does not exist.
func Load(path string, tolerance float64) (*Gallery, error) {
	g := &Gallery{path: path, tolerance: tolerance}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return g, nil
		}
		return nil, err
	}
	defer f.Close()

	var data persisted
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode gallery %s: %w", path, err)
	}
	if len(data.Names) != len(data.Encodings) {
		return nil, fmt.Errorf("gallery %s: %d names vs %d encodings", path, len(data.Names), len(data.Encodings))
	}
	g.names = data.Names
	g.encodings = data.Encodings
	log.Printf("loaded %d known faces from %s", len(g.names), path)
	return g, nil
}

// save rewrites the whole gallery file. Caller holds g.mu.
func (g *Gallery) save() error {
	f, err := os.Create(g.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(persisted{Names: g.names, Encodings: g.encodings})
}

// Enroll appends an embedding under the given name and persists the gallery.
func (g *Gallery) Enroll(name string, d Descriptor) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.names = append(g.names, name)
	g.encodings = append(g.encodings, d)
	if err := g.save(); err != nil {
		// Roll back the in-memory append so memory and disk stay aligned.
		g.names = g.names[:len(g.names)-1]
		g.encodings = g.encodings[:len(g.encodings)-1]
		return err
	}
	return nil
}

// MatchBest finds the gallery entry nearest to the query embedding.
// Acceptance is argmin-then-confirm: the minimum-distance entry wins only
// if its distance also passes the tolerance. An empty gallery returns
// Unknown without computing any distance.
func (g *Gallery) MatchBest(d Descriptor) (name string, distance float64, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.encodings) == 0 {
		return Unknown, 0, false
	}

	best := 0
	bestDist := math.MaxFloat64
	for i := range g.encodings {
		if dist := Distance(g.encodings[i], d); dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	if bestDist > g.tolerance {
		return Unknown, bestDist, false
	}
	return g.names[best], bestDist, true
}

// Size returns the number of enrolled embeddings.
func (g *Gallery) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.names)
}

// Names returns a copy of the enrolled names, in enrollment order.
func (g *Gallery) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Distance is the Euclidean distance between two embeddings.
func Distance(a, b Descriptor) float64 {
	var sum float64
	for i := 0; i < Dim; i++ {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
