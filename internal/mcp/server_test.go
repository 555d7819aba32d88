package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/estrelajs/vite-plugin-estrela/internal/build"
	"github.com/estrelajs/vite-plugin-estrela/internal/mcp"
	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
)

func newServer(t *testing.T) *mcp.Server {
	t.Helper()

	svc, err := build.NewService(build.Options{Compiler: compiler.DefaultOptions(), CacheSize: 1 << 20}, nil, nil)
	require.NoError(t, err)

	red, err := observability.NewREDMetrics(noopmetric.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	return mcp.NewServer(mcp.ServerDeps{
		Service: svc,
		Version: "test",
		Metrics: red,
		Tracer:  tracenoop.NewTracerProvider().Tracer("test"),
	})
}

// connect starts srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func callTool(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	return result
}

func firstText(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	return text.Text
}

func TestListToolNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{mcp.ToolNameCompile, mcp.ToolNameInspect}, newServer(t).ListToolNames())
}

func TestToolsList(t *testing.T) {
	t.Parallel()

	session := connect(t, newServer(t))

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}

	assert.ElementsMatch(t, []string{"estrela_compile", "estrela_inspect"}, names)
}

func TestCompileTool(t *testing.T) {
	t.Parallel()

	session := connect(t, newServer(t))

	result := callTool(t, session, mcp.ToolNameCompile, map[string]any{
		"code": "<p>{count}</p>",
		"path": "src/my-counter.estrela",
	})
	require.False(t, result.IsError, firstText(t, result))

	var payload mcp.CompileResult
	require.NoError(t, json.Unmarshal([]byte(firstText(t, result)), &payload))

	assert.Equal(t, "my-counter", payload.Tag)
	assert.Contains(t, payload.Code, `defineElement("my-counter"`)
	assert.Contains(t, string(payload.Map), `"mappings"`)
}

func TestCompileTool_DefaultPath(t *testing.T) {
	t.Parallel()

	session := connect(t, newServer(t))

	result := callTool(t, session, mcp.ToolNameCompile, map[string]any{"code": "<p></p>"})
	require.False(t, result.IsError, firstText(t, result))

	var payload mcp.CompileResult
	require.NoError(t, json.Unmarshal([]byte(firstText(t, result)), &payload))

	assert.Equal(t, "component", payload.Tag)
}

func TestCompileTool_Errors(t *testing.T) {
	t.Parallel()

	session := connect(t, newServer(t))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "empty code", args: map[string]any{"code": ""}, want: "code parameter is required"},
		{name: "wrong extension", args: map[string]any{"code": "<p></p>", "path": "a.ts"}, want: "not a component file"},
		{name: "parse error", args: map[string]any{"code": "<div>{a</div>", "path": "x-y.estrela"}, want: "x-y.estrela"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := callTool(t, session, mcp.ToolNameCompile, tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, firstText(t, result), tt.want)
		})
	}
}

func TestInspectTool(t *testing.T) {
	t.Parallel()

	session := connect(t, newServer(t))

	result := callTool(t, session, mcp.ToolNameInspect, map[string]any{
		"code": "<script tag=\"x-card\">\nconst title = prop();\n</script>\n<h2>{title}</h2>",
		"path": "card.estrela",
	})
	require.False(t, result.IsError, firstText(t, result))

	var report compiler.Report
	require.NoError(t, json.Unmarshal([]byte(firstText(t, result)), &report))

	assert.Equal(t, "x-card", report.Tag)
	assert.NotEmpty(t, report.Regions)
}
