package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentstack/agent-acceptor/types"
)

// LoadCharacterTryPath loads a character file, trying the path as given and
// then with .json and .yaml extensions appended.
func LoadCharacterTryPath(path string) (*types.Character, error) {
	candidates := []string{path}
	if filepath.Ext(path) == "" {
		candidates = append(candidates, path+".json", path+".yaml", path+".yml")
	}

	var firstErr error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		switch strings.ToLower(filepath.Ext(candidate)) {
		case ".yaml", ".yml":
			return yamlToCharacter(data)
		default:
			return JSONToCharacter(data)
		}
	}
	return nil, fmt.Errorf("character file not found at %s: %w", path, firstErr)
}

// JSONToCharacter parses a JSON character definition.
func JSONToCharacter(data []byte) (*types.Character, error) {
	var ch types.Character
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("parsing character json: %w", err)
	}
	if ch.Name == "" {
		return nil, errors.New("character name is required")
	}
	return &ch, nil
}

func yamlToCharacter(data []byte) (*types.Character, error) {
	var ch types.Character
	if err := yaml.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("parsing character yaml: %w", err)
	}
	if ch.Name == "" {
		return nil, errors.New("character name is required")
	}
	return &ch, nil
}

// DefaultTestCharacter synthesizes the character used when a plugin is
// tested directly, without a project supplying its own agents.
func DefaultTestCharacter(pluginName string) types.Character {
	return types.Character{
		Name:   fmt.Sprintf("%s test agent", pluginName),
		System: "Minimal agent used for plugin acceptance testing.",
		Bio:    []string{"Synthesized by the test harness."},
	}
}
