package storage

import (
	"encoding/json"
	"fmt"
)

// encodeVector serializes an embedding as a JSON array of numbers.
func encodeVector(vector []float32) (string, error) {
	if vector == nil {
		vector = []float32{}
	}
	data, err := json.Marshal(vector)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeVector parses a JSON-encoded embedding.
func decodeVector(encoded string) ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal([]byte(encoded), &vector); err != nil {
		return nil, fmt.Errorf("invalid embedding encoding: %w", err)
	}
	return vector, nil
}
