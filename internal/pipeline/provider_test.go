package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/releasegate/internal/llm"
	"github.com/antinvestor/releasegate/internal/pipeline"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func unitIDs(units []pipeline.Unit) []string {
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	return ids
}

func TestMemoryProvider_ReturnsCopy(t *testing.T) {
	p := pipeline.NewMemoryProvider(pipeline.Unit{ID: "a.py", Original: "x = 1\n"})

	units, err := p.Units(context.Background())
	require.NoError(t, err)
	units[0].ID = "changed"

	again, err := p.Units(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a.py", again[0].ID)
}

func TestDirProvider_PairsTrees(t *testing.T) {
	orig := t.TempDir()
	cand := t.TempDir()

	writeFile(t, orig, "a.py", "x = 1\n")
	writeFile(t, orig, "sub/b.py", "y = 2\n")
	writeFile(t, orig, "README.md", "docs\n")
	writeFile(t, orig, ".venv/lib/c.py", "z = 3\n")
	writeFile(t, cand, "a.py", "x = 10\n")
	writeFile(t, cand, "new.py", "n = 0\n")

	units, err := pipeline.NewDirProvider(orig, cand).Units(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a.py", "new.py", "sub/b.py"}, unitIDs(units))

	assert.Equal(t, "x = 1\n", units[0].Original)
	require.NotNil(t, units[0].Candidate)
	assert.Equal(t, "x = 10\n", *units[0].Candidate)

	assert.Empty(t, units[1].Original)
	require.NotNil(t, units[1].Candidate)

	assert.Equal(t, "y = 2\n", units[2].Original)
	assert.Nil(t, units[2].Candidate)
}

func TestDirProvider_OriginalOnly(t *testing.T) {
	orig := t.TempDir()
	writeFile(t, orig, "a.py", "x = 1\n")

	units, err := pipeline.NewDirProvider(orig, "").Units(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Nil(t, units[0].Candidate)
}

func TestDirProvider_MissingTree(t *testing.T) {
	_, err := pipeline.NewDirProvider(filepath.Join(t.TempDir(), "absent"), "").Units(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type fakeEngine struct {
	calls []string
	fail  map[string]error
}

func (f *fakeEngine) Modify(_ context.Context, req llm.ModifyRequest) (*llm.ModifyResult, error) {
	f.calls = append(f.calls, req.UnitID+":"+req.Language)
	if err := f.fail[req.UnitID]; err != nil {
		return nil, err
	}
	return &llm.ModifyResult{
		Candidate: req.Source + "# " + req.Intent + "\n",
		Provider:  llm.ProviderAnthropic,
		Attempts:  1,
	}, nil
}

func TestModifyingProvider_FillsMissingCandidates(t *testing.T) {
	engine := &fakeEngine{fail: map[string]error{"broken.py": llm.ErrAllProvidersFailed}}
	source := pipeline.NewMemoryProvider(
		pipeline.Unit{ID: "done.py", Original: "a = 1\n", Candidate: ptr("a = 2\n")},
		pipeline.Unit{ID: "todo.py", Original: "b = 1\n"},
		pipeline.Unit{ID: "broken.py", Original: "c = 1\n"},
		pipeline.Unit{ID: "app.js", Original: "let d = 1;\n"},
	)

	units, err := pipeline.NewModifyingProvider(source, engine, "tidy up").Units(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"todo.py:python", "broken.py:python", "app.js:javascript"}, engine.calls)

	assert.Equal(t, "a = 2\n", *units[0].Candidate, "existing candidates are kept")
	require.NotNil(t, units[1].Candidate)
	assert.Equal(t, "b = 1\n# tidy up\n", *units[1].Candidate)
	assert.Nil(t, units[2].Candidate, "failed modification leaves the unit unmodified")
	require.NotNil(t, units[3].Candidate)
}

func TestModifyingProvider_CancellationAborts(t *testing.T) {
	engine := &fakeEngine{fail: map[string]error{"a.py": context.Canceled}}
	source := pipeline.NewMemoryProvider(pipeline.Unit{ID: "a.py", Original: "x = 1\n"})

	_, err := pipeline.NewModifyingProvider(source, engine, "x").Units(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

type failingProvider struct{}

func (failingProvider) Units(context.Context) ([]pipeline.Unit, error) {
	return nil, errors.New("source offline")
}

func TestModifyingProvider_SourceError(t *testing.T) {
	_, err := pipeline.NewModifyingProvider(failingProvider{}, &fakeEngine{}, "x").Units(context.Background())
	require.EqualError(t, err, "source offline")
}
