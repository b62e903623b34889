package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackage_Deterministic(t *testing.T) {
	files := map[string]string{
		"index.html":   "<html><body>hi</body></html>",
		"css/site.css": "body { margin: 0; }",
		"js/app.js":    "console.log('up');",
	}

	first, err := Package(files)
	require.NoError(t, err)
	second, err := Package(files)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same input must produce byte-identical archives")
}

func TestPackage_RoundTrip(t *testing.T) {
	files := map[string]string{
		"index.html": "<h1>home</h1>",
		"about.html": "<h1>about</h1>",
	}

	data, err := Package(files)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	// entries come out sorted by path
	assert.Equal(t, "about.html", zr.File[0].Name)
	assert.Equal(t, "index.html", zr.File[1].Name)

	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, files[f.Name], string(content))
	}
}

func TestPackage_SkipsBlankFiles(t *testing.T) {
	files := map[string]string{
		"index.html": "<h1>kept</h1>",
		"empty.css":  "",
		"blank.js":   "   \n\t  ",
	}

	data, err := Package(files)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "index.html", zr.File[0].Name)
}

func TestPackage_AllBlank(t *testing.T) {
	_, err := Package(map[string]string{"a.txt": "", "b.txt": " \n"})
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = Package(nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestWriteArchive_MatchesPackage(t *testing.T) {
	files := map[string]string{
		"index.html": "<h1>home</h1>",
		"app.js":     "console.log('up');",
	}

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, files))

	packaged, err := Package(files)
	require.NoError(t, err)
	assert.Equal(t, packaged, buf.Bytes())
}

func TestName(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		version int
		want    string
	}{
		{
			name:    "from manifest",
			files:   map[string]string{"package.json": `{"name":"my-portfolio"}`},
			version: 3,
			want:    "my-portfolio-v3.zip",
		},
		{
			name:    "scoped manifest name",
			files:   map[string]string{"package.json": `{"name":"@acme/landing"}`},
			version: 1,
			want:    "landing-v1.zip",
		},
		{
			name:    "name slugified",
			files:   map[string]string{"package.json": `{"name":"My Cool Site!"}`},
			version: 2,
			want:    "my-cool-site-v2.zip",
		},
		{
			name:    "no manifest",
			files:   map[string]string{"index.html": "<html></html>"},
			version: 5,
			want:    "website-v5.zip",
		},
		{
			name:    "malformed manifest",
			files:   map[string]string{"package.json": `{"name": what`},
			version: 1,
			want:    "website-v1.zip",
		},
		{
			name:    "empty manifest name",
			files:   map[string]string{"package.json": `{"name":"  "}`},
			version: 4,
			want:    "website-v4.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.files, tt.version))
		})
	}
}
