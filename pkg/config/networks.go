package config

import (
	_ "embed"
	"encoding/json"
	"os"

	"cryptick/pkg/models"
)

//go:embed networks.json
var defaultNetworks []byte

// LoadNetworks reads the networks catalog. A file at path overrides the
// embedded default; a missing file is not an error.
func LoadNetworks(path string) ([]models.Network, error) {
	data := defaultNetworks
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			data = b
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	var networks []models.Network
	if err := json.Unmarshal(data, &networks); err != nil {
		return nil, err
	}
	return networks, nil
}

// NetworkName resolves a network id to its display name, falling back to the id.
func NetworkName(networks []models.Network, id string) string {
	for _, n := range networks {
		if n.ID == id {
			return n.Name
		}
	}
	return id
}
