package kdag

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/birdayz/socflow/kstage"
)

type graphJSON struct {
	Stages []kstage.Descriptor `json:"stages"`
	Edges  []Edge              `json:"edges"`
}

// MarshalJSON encodes the graph canonically: stages and edges in insertion
// order. Equal graphs encode to equal bytes.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{
		Stages: g.Stages(),
		Edges:  append(make([]Edge, 0, len(g.Edges)), g.Edges...),
	})
}

// MaskedJSON encodes the graph like MarshalJSON with adapter secrets masked.
// The result is for display and must not be submitted.
func (g *Graph) MaskedJSON() ([]byte, error) {
	stages := g.Stages()
	for i, s := range stages {
		stages[i] = s.Masked()
	}
	return json.Marshal(graphJSON{
		Stages: stages,
		Edges:  append(make([]Edge, 0, len(g.Edges)), g.Edges...),
	})
}

// Fingerprint returns the hex encoded SHA-256 of the canonical encoding.
func (g *Graph) Fingerprint() (string, error) {
	data, err := g.MarshalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
