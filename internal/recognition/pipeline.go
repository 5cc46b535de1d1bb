package recognition

import (
	"context"
	"image"

	"studentportal/internal/facegallery"
)

// Detection is one face found in a frame: where it is and its embedding.
type Detection struct {
	Box       image.Rectangle
	Embedding facegallery.Descriptor
}

// Detector locates faces in an image and computes their embeddings.
type Detector interface {
	Detect(img []byte) ([]Detection, error)
	Close()
}

// Match is one recognized (or unrecognized) face in a frame.
type Match struct {
	Box      image.Rectangle `json:"box"`
	Label    string          `json:"label"`
	Distance float64         `json:"distance"`
	Matched  bool            `json:"matched"`
}

// Pipeline runs detection over a captured image and labels each face
// against the gallery. It never mutates anything: the result is a pure
// function of the image and the current gallery state.
type Pipeline struct {
	detector Detector
	gallery  *facegallery.Gallery
}

// New creates a pipeline.
func New(detector Detector, gallery *facegallery.Gallery) *Pipeline {
	return &Pipeline{detector: detector, gallery: gallery}
}

// Recognize detects every face in the image and matches each one
// independently. Faces below threshold or with an empty gallery are
// labeled Unknown. Zero detections yield an empty, non-nil slice.
func (p *Pipeline) Recognize(ctx context.Context, img []byte) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	detections, err := p.detector.Detect(img)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(detections))
	for _, d := range detections {
		name, dist, ok := p.gallery.MatchBest(d.Embedding)
		matches = append(matches, Match{Box: d.Box, Label: name, Distance: dist, Matched: ok})
	}
	return matches, nil
}

// EnrollFrom enrolls the first face found in the image under the given
// name. Returns false when no face is detected; extra faces in the frame
// are ignored rather than rejected.
func (p *Pipeline) EnrollFrom(ctx context.Context, img []byte, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	detections, err := p.detector.Detect(img)
	if err != nil {
		return false, err
	}
	if len(detections) == 0 {
		return false, nil
	}
	if err := p.gallery.Enroll(name, detections[0].Embedding); err != nil {
		return false, err
	}
	return true, nil
}
