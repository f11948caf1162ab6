// Package seed loads a YAML world file into a fresh zone server. Every
// entry runs through the same admin command a live operator would use, so
// it is validated against the same schemas.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pdazone/engine/internal/dispatcher"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/handlers"
	"github.com/pdazone/engine/internal/identity"
	"github.com/pdazone/engine/internal/storage"
	"gopkg.in/yaml.v3"
)

// Entry is one record as written in the world file. Field names match the
// admin API bodies.
type Entry map[string]any

// World is the content of a world file.
type World struct {
	Items       []Entry `yaml:"items"`
	Zones       []Entry `yaml:"zones"`
	Traders     []Entry `yaml:"traders"`
	Players     []Entry `yaml:"players"`
	Inventories []Entry `yaml:"inventories"`
	Artifacts   []Entry `yaml:"artifacts"`
	Quests      []Entry `yaml:"quests"`
}

// Result counts applied and skipped entries.
type Result struct {
	Applied int
	Skipped int
}

// Operator is the identity seed commands run as.
var Operator = identity.Identity{PlayerID: "seed", Role: identity.RoleOperator}

// Load reads a world file.
func Load(path string) (World, error) {
	var w World
	raw, err := os.ReadFile(path)
	if err != nil {
		return w, err
	}
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return w, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// section pairs a world file section with its admin command. Order matters:
// traders and quests refer to items, inventories to players and traders.
type section struct {
	name    string
	command string
	entries []Entry
}

func (w World) sections() []section {
	return []section{
		{"items", handlers.CmdUpsertItem, w.Items},
		{"zones", handlers.CmdUpsertZone, w.Zones},
		{"traders", handlers.CmdUpsertTrader, w.Traders},
		{"players", handlers.CmdRegisterPlayer, w.Players},
		{"inventories", handlers.CmdStockInventory, w.Inventories},
		{"artifacts", handlers.CmdSpawnArtifact, w.Artifacts},
		{"quests", handlers.CmdPublishQuest, w.Quests},
	}
}

// Apply dispatches every entry of w. Entries that already exist are
// skipped; any other failure stops the load.
func Apply(ctx context.Context, d *dispatcher.Dispatcher, w World, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.Default()
	}
	var res Result
	for _, s := range w.sections() {
		for i, entry := range s.entries {
			body, err := json.Marshal(entry)
			if err != nil {
				return res, fmt.Errorf("%s[%d]: %w", s.name, i, err)
			}
			_, err = d.Dispatch(ctx, dispatcher.Event{
				Command:   s.command,
				Caller:    Operator,
				Body:      body,
				Timestamp: time.Now(),
			})
			switch {
			case err == nil:
				res.Applied++
			case errors.Is(err, gameerr.ErrConflict):
				log.Debug("seed entry exists", "section", s.name, "index", i, "error", err)
				res.Skipped++
			default:
				return res, fmt.Errorf("%s[%d]: %w", s.name, i, err)
			}
		}
	}
	log.Info("World loaded", "applied", res.Applied, "skipped", res.Skipped)
	return res, nil
}

// Fresh reports whether the store holds no zones and no artifacts.
func Fresh(ctx context.Context, store storage.Store) (bool, error) {
	fresh := false
	err := store.View(ctx, func(tx storage.Tx) error {
		zones, err := tx.Zones()
		if err != nil {
			return err
		}
		artifacts, err := tx.Artifacts()
		fresh = len(zones) == 0 && len(artifacts) == 0
		return err
	})
	return fresh, err
}

// LoadAndApply applies the world file at path to a fresh store. Stock
// quantities add up, so a store that was seeded before is left alone. An
// empty path is a no-op.
func LoadAndApply(ctx context.Context, d *dispatcher.Dispatcher, store storage.Store, path string, log *slog.Logger) (Result, error) {
	if path == "" {
		return Result{}, nil
	}
	fresh, err := Fresh(ctx, store)
	if err != nil || !fresh {
		return Result{}, err
	}
	w, err := Load(path)
	if err != nil {
		return Result{}, err
	}
	return Apply(ctx, d, w, log)
}
