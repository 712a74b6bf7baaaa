package bot

import (
	"context"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"signal-trader/pkg/db"
)

// SeedFile is the on-disk bot configuration format. Bots declared here are
// upserted at startup so redeploys converge the table to the file.
type SeedFile struct {
	Bots []SeedBot `yaml:"bots"`
}

// SeedBot is one bot entry in the seed file.
type SeedBot struct {
	ID             string   `yaml:"id"`
	PortfolioID    string   `yaml:"portfolio_id"`
	Name           string   `yaml:"name"`
	Active         bool     `yaml:"active"`
	Symbols        []string `yaml:"symbols"`
	StopLossPct    float64  `yaml:"stop_loss_pct"`
	TakeProfitPct  float64  `yaml:"take_profit_pct"`
	CredentialsRef string   `yaml:"credentials_ref"`
}

// LoadSeedFile parses and validates a bot seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bot seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse bot seed file: %w", err)
	}
	for i, b := range seed.Bots {
		if b.ID == "" {
			return nil, fmt.Errorf("bot #%d: id is required", i+1)
		}
		if b.PortfolioID == "" {
			return nil, fmt.Errorf("bot %s: portfolio_id is required", b.ID)
		}
		if b.StopLossPct < 0 || b.TakeProfitPct < 0 {
			return nil, fmt.Errorf("bot %s: percentages must not be negative", b.ID)
		}
	}
	return &seed, nil
}

// Seed upserts all bots from the file at path. A missing file is not an
// error; it just means no bots are seeded.
func Seed(ctx context.Context, database *db.Database, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("[BOT] no seed file at %s, skipping", path)
		return nil
	}
	seed, err := LoadSeedFile(path)
	if err != nil {
		return err
	}
	for _, b := range seed.Bots {
		err := database.UpsertBot(ctx, db.Bot{
			ID:             b.ID,
			PortfolioID:    b.PortfolioID,
			Name:           b.Name,
			IsActive:       b.Active,
			Symbols:        b.Symbols,
			StopLossPct:    b.StopLossPct,
			TakeProfitPct:  b.TakeProfitPct,
			CredentialsRef: b.CredentialsRef,
		})
		if err != nil {
			return fmt.Errorf("upsert bot %s: %w", b.ID, err)
		}
	}
	log.Printf("[BOT] seeded %d bot(s) from %s", len(seed.Bots), path)
	return nil
}
