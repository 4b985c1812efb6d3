package markup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderComment(t *testing.T) {
	t.Run("emphasis", func(t *testing.T) {
		require := require.New(t)

		require.Equal("<p>hello <strong>world</strong></p>", RenderComment("hello **world**"))
	})
	t.Run("strips scripts", func(t *testing.T) {
		require := require.New(t)

		got := RenderComment("hi <script>alert(1)</script>")
		require.NotContains(got, "<script>")
	})
	t.Run("strikethrough extension", func(t *testing.T) {
		require := require.New(t)

		require.Equal("<p><del>gone</del></p>", RenderComment("~~gone~~"))
	})
}

func TestExtractSource(t *testing.T) {
	t.Run("markdown source wins", func(t *testing.T) {
		require := require.New(t)

		require.Equal("**hi**", ExtractSource("<p><strong>hi</strong></p>", MediaType, "**hi**"))
	})
	t.Run("no source", func(t *testing.T) {
		require := require.New(t)

		require.Equal("plain", ExtractSource("plain", "", ""))
	})
	t.Run("foreign source type", func(t *testing.T) {
		require := require.New(t)

		require.Equal("<p>x</p>", ExtractSource("<p>x</p>", "text/x-org", "* x"))
	})
}
