package facegallery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptorWith(first float32) Descriptor {
	var d Descriptor
	d[0] = first
	return d
}

func TestMatchBestEmptyGallery(t *testing.T) {
	g, err := Load(filepath.Join(t.TempDir(), "faces.gob"), 0.6)
	require.NoError(t, err)

	name, dist, ok := g.MatchBest(descriptorWith(0.5))
	assert.Equal(t, Unknown, name)
	assert.Zero(t, dist)
	assert.False(t, ok)
}

func TestMatchBestPicksNearestWithinTolerance(t *testing.T) {
	g, err := Load(filepath.Join(t.TempDir(), "faces.gob"), 0.6)
	require.NoError(t, err)

	require.NoError(t, g.Enroll("alice", descriptorWith(0.0)))
	require.NoError(t, g.Enroll("bob", descriptorWith(1.0)))

	name, dist, ok := g.MatchBest(descriptorWith(0.9))
	assert.True(t, ok)
	assert.Equal(t, "bob", name)
	assert.InDelta(t, 0.1, dist, 1e-6)
}

func TestMatchBestNearestBeyondToleranceIsUnknown(t *testing.T) {
	g, err := Load(filepath.Join(t.TempDir(), "faces.gob"), 0.6)
	require.NoError(t, err)

	require.NoError(t, g.Enroll("alice", descriptorWith(0.0)))

	// Nearest entry exists but sits past the tolerance: argmin alone
	// is not enough for a match.
	name, dist, ok := g.MatchBest(descriptorWith(2.0))
	assert.False(t, ok)
	assert.Equal(t, Unknown, name)
	assert.InDelta(t, 2.0, dist, 1e-6)
}

func TestMultipleEnrollmentsPerName(t *testing.T) {
	g, err := Load(filepath.Join(t.TempDir(), "faces.gob"), 0.6)
	require.NoError(t, err)

	require.NoError(t, g.Enroll("alice", descriptorWith(0.0)))
	require.NoError(t, g.Enroll("alice", descriptorWith(3.0)))
	assert.Equal(t, 2, g.Size())

	name, _, ok := g.MatchBest(descriptorWith(3.1))
	assert.True(t, ok)
	assert.Equal(t, "alice", name)
}

func TestGalleryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.gob")

	g, err := Load(path, 0.6)
	require.NoError(t, err)
	require.NoError(t, g.Enroll("alice", descriptorWith(0.25)))
	require.NoError(t, g.Enroll("bob", descriptorWith(0.75)))
	require.NoError(t, g.Enroll("alice", descriptorWith(0.5)))

	reloaded, err := Load(path, 0.6)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob", "alice"}, reloaded.Names())
	assert.Equal(t, g.Size(), reloaded.Size())

	// Same ordered embeddings: each enrolled vector still matches where it did.
	name, dist, ok := reloaded.MatchBest(descriptorWith(0.75))
	assert.True(t, ok)
	assert.Equal(t, "bob", name)
	assert.Zero(t, dist)
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	g, err := Load(filepath.Join(t.TempDir(), "nope.gob"), 0.6)
	require.NoError(t, err)
	assert.Zero(t, g.Size())
}

func TestDistance(t *testing.T) {
	a := descriptorWith(0.0)
	b := descriptorWith(3.0)
	b[1] = 4.0

	assert.InDelta(t, 5.0, Distance(a, b), 1e-6)
	assert.Zero(t, Distance(a, a))
}
