package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estrelajs/vite-plugin-estrela/pkg/metadata"
)

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	r, err := metadata.NewResolver("")
	require.NoError(t, err)
	assert.Equal(t, ".estrela", r.Extension())

	tests := []struct {
		name     string
		path     string
		override string
		want     metadata.Metadata
	}{
		{"nested path", "src/components/app-root.estrela", "", metadata.Metadata{Tag: "app-root", Filename: "app-root.estrela"}},
		{"single word", "app.estrela", "", metadata.Metadata{Tag: "app", Filename: "app.estrela"}},
		{"windows path", `C:\web\todo_list.estrela`, "", metadata.Metadata{Tag: "todo_list", Filename: "todo_list.estrela"}},
		{"override", "src/app-root.estrela", "my-app", metadata.Metadata{Tag: "my-app", Filename: "app-root.estrela"}},
		{"override without match", "inline", "x-inline", metadata.Metadata{Tag: "x-inline"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, resolveErr := r.Resolve(tt.path, tt.override)
			require.NoError(t, resolveErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_ResolveErrors(t *testing.T) {
	t.Parallel()

	r, err := metadata.NewResolver(".estrela")
	require.NoError(t, err)

	_, err = r.Resolve("src/app-root.ts", "")
	require.ErrorIs(t, err, metadata.ErrNoTag)

	_, err = r.Resolve("src/app.estrela", `bad"tag`)
	require.ErrorIs(t, err, metadata.ErrInvalidTag)
}

func TestResolver_Match(t *testing.T) {
	t.Parallel()

	r, err := metadata.NewResolver(".cmp")
	require.NoError(t, err)

	assert.True(t, r.Match("src/app-root.cmp"))
	assert.False(t, r.Match("src/app-root.estrela"))
	assert.False(t, r.Match("src/app-root.cmp.ts"))
	assert.False(t, r.Match("src/.cmp"))
}

func TestNewResolver_InvalidExtension(t *testing.T) {
	t.Parallel()

	for _, ext := range []string{"estrela", ".", "a/.b"} {
		_, err := metadata.NewResolver(ext)
		require.ErrorIs(t, err, metadata.ErrInvalidPattern, ext)
	}
}
