package domain

// VectorConfig holds the embedding/store pairing settings.
type VectorConfig struct {
	Model          string
	Dimensions     int
	DistanceMetric string
	DefaultK       int
	MaxK           int
}

// DefaultVectorConfig returns the pairing used by the legal case corpus:
// a 512-dimensional sentence encoder ranked by Euclidean distance.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:          "universal-sentence-encoder",
		Dimensions:     512,
		DistanceMetric: "l2",
		DefaultK:       5,
		MaxK:           50,
	}
}
