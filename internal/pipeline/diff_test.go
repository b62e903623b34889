package pipeline

import (
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePatches(t *testing.T) {
	base := map[string]string{
		"index.html": "<h1>old headline</h1>",
		"styles.css": "body { margin: 0; }",
		"app.js":     "console.log('same');",
	}
	next := map[string]string{
		"index.html": "<h1>new headline</h1>",
		"app.js":     "console.log('same');",
		"about.html": "<p>fresh page</p>",
	}

	changed, patches := computePatches(base, next)

	t.Run("classifies added, modified and removed", func(t *testing.T) {
		require.Equal(t, []string{"about.html", "index.html", "styles.css"}, changed)

		byPath := map[string]FilePatch{}
		for _, p := range patches {
			byPath[p.Path] = p
		}
		assert.Equal(t, "added", byPath["about.html"].Status)
		assert.Equal(t, "modified", byPath["index.html"].Status)
		assert.Equal(t, "removed", byPath["styles.css"].Status)
	})

	t.Run("unchanged files are not reported", func(t *testing.T) {
		assert.NotContains(t, changed, "app.js")
	})

	t.Run("patches apply cleanly to the base content", func(t *testing.T) {
		var mod FilePatch
		for _, p := range patches {
			if p.Path == "index.html" {
				mod = p
			}
		}
		require.NotEmpty(t, mod.Patch)

		dmp := diffmatchpatch.New()
		parsed, err := dmp.PatchFromText(mod.Patch)
		require.NoError(t, err)

		applied, oks := dmp.PatchApply(parsed, base["index.html"])
		for _, ok := range oks {
			assert.True(t, ok)
		}
		assert.Equal(t, next["index.html"], applied)
	})

	t.Run("output is deterministic", func(t *testing.T) {
		again, againPatches := computePatches(base, next)
		assert.Equal(t, changed, again)
		assert.Equal(t, patches, againPatches)
	})
}

func TestComputePatches_GenerateFromNothing(t *testing.T) {
	next := map[string]string{
		"index.html": "<h1>hello</h1>",
		"styles.css": "h1 { color: teal; }",
	}

	changed, patches := computePatches(nil, next)

	assert.Equal(t, []string{"index.html", "styles.css"}, changed)
	for _, p := range patches {
		assert.Equal(t, "added", p.Status)
		assert.NotEmpty(t, p.Patch)
	}
}
