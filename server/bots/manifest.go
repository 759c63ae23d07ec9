package bots

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is bot.json inside an unpacked artifact; bot.yaml is accepted too.
type Manifest struct {
	Run      string `json:"run" yaml:"run"`
	Language string `json:"language" yaml:"language"`
}

var manifestNames = []string{"bot.json", "bot.yaml", "bot.yml"}

// ReadManifest loads the manifest from botDir.
func ReadManifest(botDir string) (Manifest, error) {
	for _, name := range manifestNames {
		raw, err := os.ReadFile(filepath.Join(botDir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Manifest{}, fmt.Errorf("read %s: %w", name, err)
		}
		var m Manifest
		unmarshal := yaml.Unmarshal
		if filepath.Ext(name) == ".json" {
			unmarshal = json.Unmarshal
		}
		if err := unmarshal(raw, &m); err != nil {
			return Manifest{}, fmt.Errorf("parse %s: %w", name, err)
		}
		m.Run = strings.TrimSpace(m.Run)
		if m.Run == "" {
			return Manifest{}, fmt.Errorf("%s: run command is empty", name)
		}
		if m.Language == "" {
			return Manifest{}, fmt.Errorf("%s: language is empty", name)
		}
		return m, nil
	}
	return Manifest{}, fmt.Errorf("no manifest in %s", botDir)
}
