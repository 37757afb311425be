package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/generations-connect/connect-server-go/internal/model"
)

type interestSeed struct {
	Interests []model.Interest `yaml:"interests"`
}

type interestUpserter interface {
	Upsert(ctx context.Context, interest model.Interest) (*model.Interest, error)
}

// parseInterestSeed reads the catalog file. Names are trimmed and
// lower-cased to match how profile interests are compared.
func parseInterestSeed(r io.Reader) ([]model.Interest, error) {
	var seed interestSeed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("seed file is empty")
		}
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	seen := make(map[string]bool, len(seed.Interests))
	out := make([]model.Interest, 0, len(seed.Interests))
	for i, interest := range seed.Interests {
		interest.Name = strings.ToLower(strings.TrimSpace(interest.Name))
		if interest.Name == "" {
			return nil, fmt.Errorf("interest %d: name is required", i+1)
		}
		if !interest.Category.Valid() {
			return nil, fmt.Errorf("interest %q: unknown category %q", interest.Name, interest.Category)
		}
		if seen[interest.Name] {
			return nil, fmt.Errorf("interest %q is listed twice", interest.Name)
		}
		seen[interest.Name] = true
		out = append(out, interest)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("seed file lists no interests")
	}
	return out, nil
}

func seedInterests(ctx context.Context, repo interestUpserter, interests []model.Interest) (int, error) {
	for i, interest := range interests {
		if _, err := repo.Upsert(ctx, interest); err != nil {
			return i, fmt.Errorf("upsert interest %q: %w", interest.Name, err)
		}
	}
	return len(interests), nil
}
