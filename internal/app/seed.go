package app

import (
	"fmt"
	"os"
	"time"

	"toolrent-backend/internal/domain"
	"toolrent-backend/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type seedMember struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Inactive bool   `yaml:"inactive"`
}

type seedTool struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	CategoryID   string `yaml:"category_id"`
	PricePerDay  string `yaml:"price_per_day"`
	OutOfService bool   `yaml:"out_of_service"`
}

type seedFile struct {
	Members []seedMember `yaml:"members"`
	Tools   []seedTool   `yaml:"tools"`
}

// Seed is a catalog of members and tools loaded from YAML.
type Seed struct {
	Members []domain.Member
	Tools   []domain.Tool
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	now := time.Now().UTC()
	seed := &Seed{}
	for i, m := range f.Members {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			return nil, fmt.Errorf("member %d: invalid id %q", i, m.ID)
		}
		seed.Members = append(seed.Members, domain.Member{
			ID:        id,
			Name:      m.Name,
			Email:     m.Email,
			IsActive:  !m.Inactive,
			CreatedOn: now,
		})
	}
	for i, t := range f.Tools {
		id, err := uuid.Parse(t.ID)
		if err != nil {
			return nil, fmt.Errorf("tool %d: invalid id %q", i, t.ID)
		}
		var category uuid.UUID
		if t.CategoryID != "" {
			if category, err = uuid.Parse(t.CategoryID); err != nil {
				return nil, fmt.Errorf("tool %d: invalid category_id %q", i, t.CategoryID)
			}
		}
		price, err := decimal.NewFromString(t.PricePerDay)
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("tool %d: invalid price_per_day %q", i, t.PricePerDay)
		}
		seed.Tools = append(seed.Tools, domain.Tool{
			ID:          id,
			Name:        t.Name,
			CategoryID:  category,
			PricePerDay: price,
			IsAvailable: !t.OutOfService,
			CreatedOn:   now,
		})
	}
	return seed, nil
}

func (s *Seed) ApplyMemory(store *memory.Store) {
	for _, m := range s.Members {
		store.AddMember(m)
	}
	for _, t := range s.Tools {
		store.AddTool(t)
	}
}
