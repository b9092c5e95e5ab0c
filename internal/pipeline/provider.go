package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pitabwire/util"

	"github.com/antinvestor/releasegate/internal/llm"
	"github.com/antinvestor/releasegate/internal/metrics"
)

// Provider yields the units of a run.
type Provider interface {
	Units(ctx context.Context) ([]Unit, error)
}

// =============================================================================
// In-memory units
// =============================================================================

// MemoryProvider serves a fixed list of units.
type MemoryProvider struct {
	units []Unit
}

// NewMemoryProvider creates a provider over units.
func NewMemoryProvider(units ...Unit) *MemoryProvider {
	return &MemoryProvider{units: slices.Clone(units)}
}

// Units implements Provider.
func (p *MemoryProvider) Units(_ context.Context) ([]Unit, error) {
	return slices.Clone(p.units), nil
}

// =============================================================================
// Directory trees
// =============================================================================

// DirProvider pairs files of an original tree with files of the same relative
// path in a candidate tree. Only files of a known language are considered and
// hidden entries are skipped. Files present only in the candidate tree become
// units with an empty original.
type DirProvider struct {
	originalDir  string
	candidateDir string
}

// NewDirProvider creates a provider over two directory trees. An empty
// candidateDir yields units without candidates.
func NewDirProvider(originalDir, candidateDir string) *DirProvider {
	return &DirProvider{originalDir: originalDir, candidateDir: candidateDir}
}

// Units implements Provider. Units are sorted by relative path.
func (p *DirProvider) Units(ctx context.Context) ([]Unit, error) {
	originals, err := readTree(ctx, p.originalDir)
	if err != nil {
		return nil, fmt.Errorf("read original tree: %w", err)
	}

	candidates := map[string]string{}
	if p.candidateDir != "" {
		candidates, err = readTree(ctx, p.candidateDir)
		if err != nil {
			return nil, fmt.Errorf("read candidate tree: %w", err)
		}
	}

	ids := make([]string, 0, len(originals)+len(candidates))
	for id := range originals {
		ids = append(ids, id)
	}
	for id := range candidates {
		if _, ok := originals[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	units := make([]Unit, 0, len(ids))
	for _, id := range ids {
		u := Unit{ID: id, Original: originals[id]}
		if cand, ok := candidates[id]; ok {
			u.Candidate = &cand
		}
		units = append(units, u)
	}
	return units, nil
}

func readTree(ctx context.Context, root string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || metrics.LanguageForPath(path) == metrics.LanguageUnknown {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// =============================================================================
// Candidate generation
// =============================================================================

// ModifyingProvider decorates a provider, asking the modification engine for
// a candidate of every unit that lacks one. A unit whose modification fails
// stays unmodified.
type ModifyingProvider struct {
	source Provider
	engine llm.Engine
	intent string
}

// NewModifyingProvider creates a decorating provider applying intent.
func NewModifyingProvider(source Provider, engine llm.Engine, intent string) *ModifyingProvider {
	return &ModifyingProvider{source: source, engine: engine, intent: intent}
}

// Units implements Provider.
func (p *ModifyingProvider) Units(ctx context.Context) ([]Unit, error) {
	log := util.Log(ctx)

	units, err := p.source.Units(ctx)
	if err != nil {
		return nil, err
	}

	for i := range units {
		if units[i].Candidate != nil {
			continue
		}

		lang := metrics.LanguageForPath(units[i].ID)
		if lang == metrics.LanguageUnknown {
			lang = metrics.LanguagePython
		}

		res, modErr := p.engine.Modify(ctx, llm.ModifyRequest{
			UnitID:   units[i].ID,
			Language: string(lang),
			Source:   units[i].Original,
			Intent:   p.intent,
		})
		if modErr != nil {
			if errors.Is(modErr, context.Canceled) || errors.Is(modErr, context.DeadlineExceeded) {
				return nil, modErr
			}
			log.WithError(modErr).Warn("modification failed, unit left unmodified", "unit", units[i].ID)
			continue
		}

		candidate := res.Candidate
		units[i].Candidate = &candidate
		log.Debug("candidate generated",
			"unit", units[i].ID,
			"provider", res.Provider,
			"attempts", res.Attempts,
			"tokens", res.Usage.TotalTokens,
		)
	}
	return units, nil
}
