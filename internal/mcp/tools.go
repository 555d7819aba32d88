package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
)

// Tool names.
const (
	ToolNameCompile = "estrela_compile"
	ToolNameInspect = "estrela_inspect"
)

// MaxCodeInputBytes is the maximum allowed size for inline code input (1 MB).
const MaxCodeInputBytes = 1 << 20

// defaultPathStem names the component when the caller gives no path.
const defaultPathStem = "component"

var (
	// ErrEmptyCode indicates the code parameter is empty.
	ErrEmptyCode = errors.New("code parameter is required and must not be empty")
	// ErrCodeTooLarge indicates the code input exceeds the size limit.
	ErrCodeTooLarge = errors.New("code input exceeds maximum size")
	// ErrNotComponentPath indicates the path does not use the component extension.
	ErrNotComponentPath = errors.New("path is not a component file")
)

// ComponentInput is the input schema shared by both tools.
type ComponentInput struct {
	Code string `json:"code"           jsonschema:"component source (script, template and style sections)"`
	Path string `json:"path,omitempty" jsonschema:"component file path; its base name becomes the default tag"`
}

// CompileResult is the payload of estrela_compile.
type CompileResult struct {
	Code     string             `json:"code"`
	Map      json.RawMessage    `json:"map"`
	Tag      string             `json:"tag"`
	Warnings []compiler.Warning `json:"warnings,omitempty"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// compileErrorResult renders a compile error with its source excerpt.
func compileErrorResult(err error, source string) (*mcpsdk.CallToolResult, ToolOutput, error) {
	var cErr *compiler.Error
	if errors.As(err, &cErr) {
		if excerpt := cErr.Excerpt(source); excerpt != "" {
			return errorResult(fmt.Errorf("%w\n%s", err, excerpt))
		}
	}

	return errorResult(err)
}

// resolveInput validates input and fills in the default path.
func (s *Server) resolveInput(input ComponentInput) (string, error) {
	if input.Code == "" {
		return "", ErrEmptyCode
	}

	if len(input.Code) > MaxCodeInputBytes {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrCodeTooLarge, len(input.Code), MaxCodeInputBytes)
	}

	if input.Path == "" {
		return defaultPathStem + s.svc.Compiler().Options().Extension, nil
	}

	if !s.svc.Match(input.Path) {
		return "", fmt.Errorf("%w: %s", ErrNotComponentPath, input.Path)
	}

	return input.Path, nil
}

func (s *Server) handleCompile(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input ComponentInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	path, err := s.resolveInput(input)
	if err != nil {
		return errorResult(err)
	}

	out, err := s.svc.Transform(ctx, path, input.Code)
	if err != nil {
		return compileErrorResult(err, input.Code)
	}

	return jsonResult(CompileResult{
		Code:     out.Code,
		Map:      out.Map,
		Tag:      out.Tag,
		Warnings: out.Warnings,
	})
}

func (s *Server) handleInspect(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input ComponentInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	path, err := s.resolveInput(input)
	if err != nil {
		return errorResult(err)
	}

	report, err := s.svc.Compiler().Inspect(ctx, input.Code, path)
	if err != nil {
		return compileErrorResult(err, input.Code)
	}

	return jsonResult(report)
}
