package detections

const (
	DefaultInputSize     = 300
	DefaultMaxDetections = 10
	DefaultNumThreads    = 4

	// imageMean centers 8-bit channels for float models: (c-128)/128.
	imageMean = 128.0
	channels  = 3

	// Inputs at least this tall are encoded with one goroutine per row band.
	parallelEncodeMinRows = 256

	unknownLabel = "unknown"
)
