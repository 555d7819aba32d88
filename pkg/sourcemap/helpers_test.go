package sourcemap_test

import "github.com/estrelajs/vite-plugin-estrela/pkg/span"

func spanOf(start, end int) span.Span {
	return span.New(start, end)
}
