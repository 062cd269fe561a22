package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario: an output root that overlaps one of the target's own source
// roots is not safe to bulk-delete; CleanWholeProject must fall back to
// SelectiveClean for that target instead, still removing the tracked
// outputs one by one.
func TestCleaner_CleanWholeProject_OverlapFallsBackToSelectiveClean(t *testing.T) {
	tmp := t.TempDir()
	srcRoot := filepath.Join(tmp, "src")
	require.NoError(t, os.MkdirAll(srcRoot, 0o755))

	outFile := filepath.Join(srcRoot, "built.pkg")
	require.NoError(t, os.WriteFile(outFile, []byte("x"), 0o644))

	target := &Target{
		ID:          "a",
		Name:        "a",
		SourceRoots: []SourceRoot{{Path: srcRoot, InContent: true}},
		OutputRoots: []string{srcRoot},
	}

	dm := NewInMemoryDataManager()
	som := dm.GetSourceToOutputMap(target)
	som.SetOutputs("built.c", []string{outFile})

	cleaner := NewCleaner(StaticBuildRootIndex{}, PermissiveModuleExcludeIndex{}, dm)
	ctx := NewContext(&ProjectDescriptor{}, NewFullScope(false), NewMessageBus(), nil)

	err := cleaner.CleanWholeProject(ctx, []*Target{target})
	require.NoError(t, err)

	_, statErr := os.Stat(outFile)
	assert.True(t, os.IsNotExist(statErr), "selective clean fallback should still remove the tracked output")
	assert.Empty(t, som.Outputs("built.c"))
}

func TestCleaner_SelectiveClean_RemovesOutputsAndMarksCleared(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "out.o")
	require.NoError(t, os.WriteFile(out, []byte("x"), 0o644))

	target := mkTarget("a")
	dm := NewInMemoryDataManager()
	som := dm.GetSourceToOutputMap(target)
	som.SetOutputs("a.c", []string{out})

	cleaner := NewCleaner(StaticBuildRootIndex{}, PermissiveModuleExcludeIndex{}, dm)
	ctx := NewContext(&ProjectDescriptor{}, NewFullScope(false), NewMessageBus(), nil)

	err := cleaner.SelectiveClean(ctx, target)
	require.NoError(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, som.Outputs("a.c"))
	assert.True(t, clearedRegistry(ctx).IsCleared(target))
}

func TestCleaner_CleanOutputsForChangedFiles_DeletesDirtyOutputs(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "stale.o")
	require.NoError(t, os.WriteFile(out, []byte("x"), 0o644))

	target := mkTarget("a")
	dm := NewInMemoryDataManager()
	som := dm.GetSourceToOutputMap(target)
	som.SetOutputs("a.c", []string{out})

	dirtyState := NewInMemoryDirtyStateStore()
	dirtyState.MarkDirty(target, "root", "a.c")

	cleaner := NewCleaner(StaticBuildRootIndex{}, PermissiveModuleExcludeIndex{}, dm)
	ctx := NewContext(&ProjectDescriptor{}, NewFullScope(false), NewMessageBus(), nil)
	holder := &chunkDirtyFilesHolder{ctx: ctx, state: dirtyState, c: &Chunk{Targets: []*Target{target}}}

	changed := cleaner.CleanOutputsForChangedFiles(ctx, holder, []*Target{target})
	assert.Equal(t, []string{"a.c"}, changed[target])

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, som.Outputs("a.c"))
}
