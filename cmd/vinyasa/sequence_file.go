package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

// readSequence loads a sequence from YAML, or JSON when the file ends in .json.
func readSequence(path string) (*types.Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sequence: %w", err)
	}
	var seq types.Sequence
	if isJSON(path) {
		err = json.Unmarshal(data, &seq)
	} else {
		err = yaml.Unmarshal(data, &seq)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &seq, nil
}

func writeSequence(path string, seq *types.Sequence) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(seq, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(seq)
	}
	if err != nil {
		return fmt.Errorf("encode sequence: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sequence: %w", err)
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
