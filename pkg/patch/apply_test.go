package patch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estrelajs/vite-plugin-estrela/pkg/patch"
	"github.com/estrelajs/vite-plugin-estrela/pkg/span"
)

func TestApply_NoPatches(t *testing.T) {
	t.Parallel()

	res, err := patch.Apply("hello", patch.NewSet())
	require.NoError(t, err)

	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, []patch.Breakpoint{{Generated: 0, Original: 0, Kind: patch.Copied}}, res.Breakpoints)
}

func TestApply_NilSet(t *testing.T) {
	t.Parallel()

	res, err := patch.Apply("abc", nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Text)
}

func TestApply_InsertOverwriteRemove(t *testing.T) {
	t.Parallel()

	set := patch.NewSet()
	set.Overwrite(span.New(0, 3), "xyz")
	set.Prepend(4, "[")
	set.Append(7, "]")
	set.Remove(span.New(9, 11))

	res, err := patch.Apply("abc defg hi!", set)
	require.NoError(t, err)

	assert.Equal(t, "xyz [def]g !", res.Text)
	assert.Equal(t, []patch.Breakpoint{
		{Generated: 0, Original: 0, Kind: patch.Replaced},
		{Generated: 3, Original: 3, Kind: patch.Copied},
		{Generated: 4, Original: -1, Kind: patch.Synthetic},
		{Generated: 5, Original: 4, Kind: patch.Copied},
		{Generated: 8, Original: -1, Kind: patch.Synthetic},
		{Generated: 9, Original: 7, Kind: patch.Copied},
		{Generated: 11, Original: 11, Kind: patch.Copied},
	}, res.Breakpoints)
}

func TestApply_NestedWrapsShareBoundaries(t *testing.T) {
	t.Parallel()

	set := patch.NewSet()
	set.Wrap(span.New(0, 5), "outer(", ")")
	set.Wrap(span.New(0, 5), "inner(", ")!")
	set.Prepend(5, "$")

	res, err := patch.Apply("value next", set)
	require.NoError(t, err)

	assert.Equal(t, "outer(inner(value)!)$ next", res.Text)
}

func TestApply_CloserBeforeOpenerAtSameOffset(t *testing.T) {
	t.Parallel()

	set := patch.NewSet()
	set.Prepend(3, "$")
	set.Append(3, "`")

	res, err := patch.Apply("<b>{x}", set)
	require.NoError(t, err)

	assert.Equal(t, "<b>`${x}", res.Text)
}

func TestApply_InsertsAroundRangeEdit(t *testing.T) {
	t.Parallel()

	set := patch.NewSet()
	set.Overwrite(span.New(2, 4), "--")
	set.Append(2, "<")
	set.Prepend(4, ">")

	res, err := patch.Apply("ab__cd", set)
	require.NoError(t, err)

	assert.Equal(t, "ab<-->cd", res.Text)
}

func TestApply_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func(*patch.Set)
		want  error
	}{
		{
			name: "overlapping overwrites",
			build: func(s *patch.Set) {
				s.Overwrite(span.New(0, 4), "a")
				s.Remove(span.New(3, 6))
			},
			want: patch.ErrOverlap,
		},
		{
			name: "insert inside removed range",
			build: func(s *patch.Set) {
				s.Remove(span.New(1, 5))
				s.Prepend(3, "x")
			},
			want: patch.ErrInsertInRange,
		},
		{
			name: "out of bounds",
			build: func(s *patch.Set) {
				s.Prepend(42, "x")
			},
			want: patch.ErrOutOfBounds,
		},
		{
			name: "empty range",
			build: func(s *patch.Set) {
				s.Remove(span.At(2))
			},
			want: patch.ErrEmptyRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			set := patch.NewSet()
			tt.build(set)

			_, err := patch.Apply("0123456789", set)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApply_AdjacentRangesAreAllowed(t *testing.T) {
	t.Parallel()

	set := patch.NewSet()
	set.Overwrite(span.New(0, 2), "A")
	set.Remove(span.New(2, 4))
	set.Prepend(4, "|")

	res, err := patch.Apply("0123456", set)
	require.NoError(t, err)
	assert.Equal(t, "A|456", res.Text)
}

func TestSet_MergeShiftsIntoParentSpace(t *testing.T) {
	t.Parallel()

	sub := patch.NewSet()
	sub.Wrap(span.New(0, 1), "(", ")")

	root := patch.NewSet()
	root.Prepend(0, ">")
	root.Merge(sub, span.Root.Sub("script", 4))
	root.Merge(nil, span.Root)

	patches := root.Patches()
	require.Len(t, patches, 3)
	assert.Equal(t, 4, patches[1].Pos)
	assert.Equal(t, 5, patches[2].Pos)
	assert.Equal(t, 2, patches[2].Order)

	res, err := patch.Apply("abcdefg", root)
	require.NoError(t, err)
	assert.Equal(t, ">abcd(e)fg", res.Text)
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "insert", patch.Insert.String())
	assert.Equal(t, "overwrite", patch.Overwrite.String())
	assert.Equal(t, "remove", patch.Remove.String())
}
