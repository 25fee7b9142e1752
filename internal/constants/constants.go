// Package constants holds the scalar defaults for the scenario harness's
// configuration surface.
package constants

const (
	// DefaultLinkCapacity is the number of scalar elements carried in a
	// single channel element.
	DefaultLinkCapacity = 4

	// DefaultInFeatures is the default tile input feature count.
	DefaultInFeatures = 4

	// DefaultOutFeatures is the default tile output feature count.
	DefaultOutFeatures = 4

	// DefaultBufferCapacity is the default number of channel elements a
	// tile accumulates before firing.
	DefaultBufferCapacity = 2

	// DefaultNumMatmuls is the default termination bound per tile.
	DefaultNumMatmuls = 3

	// DefaultChannelCapacity is the default bounded capacity of every
	// timed channel the mesh builder wires up.
	DefaultChannelCapacity = 4

	// DefaultInitInterval is the default per-step slack cycles added
	// unconditionally to a tile's clock.
	DefaultInitInterval = 0

	// DefaultProducerInitDelay is the default start delay, in cycles,
	// applied by a producer before its first enqueue.
	DefaultProducerInitDelay = 0
)

// DefaultDims is the default mesh shape [R, C].
var DefaultDims = [2]int{1, 1}
