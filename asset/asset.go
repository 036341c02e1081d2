package asset

import (
	"bytes"
	"embed"
	"image"
	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder
	"path"
	"sort"

	"github.com/pagebound/jacket/util/log"
)

//go:embed images/*
var assets embed.FS

// PlaceholderSVGName is the file name of the product "no cover" artifact.
// It is served under the web path callers compare cover locations against.
const PlaceholderSVGName = "placeholder-book-cover.svg"

// referenceDir holds the known provider "image not available" images whose
// hashes are used to screen downloaded covers.
const referenceDir = "images/reference"

// Manager manages the loading of embedded assets.
type Manager struct{}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{}
}

// GetImage loads and decodes an embedded image asset by name.
func (am *Manager) GetImage(name string) (image.Image, error) {
	data, err := assets.ReadFile("images/" + name)
	if err != nil {
		log.Println("Error loading image:", err)
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Println("Error decoding image:", err)
		return nil, err
	}

	return img, nil
}

// GetRawImage loads and returns the raw bytes of an embedded image asset by name.
func (am *Manager) GetRawImage(name string) ([]byte, error) {
	return assets.ReadFile("images/" + name)
}

// PlaceholderSVG returns the bytes of the product placeholder artifact.
func (am *Manager) PlaceholderSVG() ([]byte, error) {
	return assets.ReadFile("images/" + PlaceholderSVGName)
}

// ReferenceImages returns the names of the embedded reference placeholder
// images, relative to the images directory, in stable order.
func (am *Manager) ReferenceImages() ([]string, error) {
	entries, err := assets.ReadDir(referenceDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, path.Join("reference", e.Name()))
	}
	sort.Strings(names)
	return names, nil
}
