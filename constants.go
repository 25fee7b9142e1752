package xpusim

import "github.com/xpusim/xpusim/internal/constants"

// Re-exported scalar constants from the scenario harness's configuration surface.
const (
	LinkCapacity      = constants.DefaultLinkCapacity
	InFeatures        = constants.DefaultInFeatures
	OutFeatures       = constants.DefaultOutFeatures
	BufferCapacity    = constants.DefaultBufferCapacity
	NumMatmuls        = constants.DefaultNumMatmuls
	ChannelCapacity   = constants.DefaultChannelCapacity
)

// DefaultDims is the default mesh shape [R, C].
var DefaultDims = constants.DefaultDims
