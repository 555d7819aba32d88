// Package lsp provides a Language Server Protocol server for estrela
// component files: compile diagnostics, completion and hover.
package lsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
)

const (
	serverName       = "estrela"
	diagnosticSource = "estrela"
	tracerName       = "estrela.lsp"
)

// DocumentStore is a thread-safe store for document contents keyed by URI.
type DocumentStore struct {
	documents map[string]string
	mu        sync.RWMutex
}

// NewDocumentStore creates a new empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]string),
	}
}

// Set stores document content for the given URI.
func (ds *DocumentStore) Set(uri, content string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.documents[uri] = content
}

// Get retrieves document content by URI.
func (ds *DocumentStore) Get(uri string) (string, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	content, ok := ds.documents[uri]

	return content, ok
}

// Delete removes document content by URI.
func (ds *DocumentStore) Delete(uri string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	delete(ds.documents, uri)
}

// Server implements the component LSP server.
type Server struct {
	store    *DocumentStore
	compiler *compiler.Compiler
	logger   *slog.Logger
	version  string
	handler  protocol.Handler
}

// NewServer creates an LSP server that checks documents with comp.
func NewServer(comp *compiler.Compiler, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	srv := &Server{
		store:    NewDocumentStore(),
		compiler: comp,
		logger:   logger,
		version:  version,
	}

	srv.handler = protocol.Handler{
		Initialize:             srv.initialize,
		Initialized:            srv.initialized,
		Shutdown:               srv.shutdown,
		SetTrace:               srv.setTrace,
		TextDocumentDidOpen:    srv.didOpen,
		TextDocumentDidChange:  srv.didChange,
		TextDocumentDidSave:    srv.didSave,
		TextDocumentDidClose:   srv.didClose,
		TextDocumentCompletion: srv.completion,
		TextDocumentHover:      srv.hover,
	}

	return srv
}

// Run serves the protocol on stdio until the client disconnects.
func (srv *Server) Run(ctx context.Context) error {
	lspServer := server.NewServer(&srv.handler, serverName, false)
	lspServer.Context = ctx

	err := lspServer.RunStdio()
	if err != nil {
		return fmt.Errorf("lsp server: %w", err)
	}

	return nil
}

func (srv *Server) initialize(_ *glsp.Context, _ *protocol.InitializeParams) (any, error) {
	capabilities := srv.handler.CreateServerCapabilities()

	if syncOpts, ok := capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions); ok {
		full := protocol.TextDocumentSyncKindFull
		syncOpts.Change = &full
	}

	version := srv.version

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &version,
		},
	}, nil
}

func (srv *Server) initialized(_ *glsp.Context, _ *protocol.InitializedParams) error {
	return nil
}

func (srv *Server) shutdown(_ *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)

	return nil
}

func (srv *Server) setTrace(_ *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)

	return nil
}

func (srv *Server) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI

	srv.store.Set(uri, params.TextDocument.Text)
	srv.publishDiagnostics(ctx, uri)

	return nil
}

func (srv *Server) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	text, _ := srv.store.Get(uri)
	text = applyChanges(text, params.ContentChanges)

	srv.store.Set(uri, text)
	srv.publishDiagnostics(ctx, uri)

	return nil
}

// applyChanges applies content change events in order.
func applyChanges(text string, changes []any) string {
	for _, change := range changes {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			text = c.Text
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				text = c.Text

				continue
			}

			start, end := c.Range.IndexesIn(text)
			if start > end {
				start, end = end, start
			}

			text = text[:start] + c.Text + text[end:]
		case map[string]any:
			if whole, ok := c["text"].(string); ok {
				text = whole
			}
		}
	}

	return text
}

func (srv *Server) didSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	uri := params.TextDocument.URI

	if params.Text != nil {
		srv.store.Set(uri, *params.Text)
	}

	if _, ok := srv.store.Get(uri); ok {
		srv.publishDiagnostics(ctx, uri)
	}

	return nil
}

func (srv *Server) didClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	srv.store.Delete(uri)

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})

	return nil
}

func (srv *Server) publishDiagnostics(ctx *glsp.Context, uri string) {
	text, ok := srv.store.Get(uri)
	if !ok {
		return
	}

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: srv.Diagnose(context.Background(), uri, text),
	})
}

// Diagnose compiles text and converts its error or warnings to diagnostics.
// Documents outside the component extension get none.
func (srv *Server) Diagnose(ctx context.Context, uri, text string) []protocol.Diagnostic {
	path := uriPath(uri)
	diagnostics := []protocol.Diagnostic{}

	if !srv.compiler.Match(path) {
		return diagnostics
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "estrela.lsp.diagnose")
	defer span.End()

	res, err := srv.compiler.Compile(ctx, text, path)
	if err != nil {
		var cErr *compiler.Error
		if !errors.As(err, &cErr) {
			srv.logger.ErrorContext(ctx, "lsp compile failed", "uri", uri, "error", err)

			return append(diagnostics, newDiagnostic(1, 1, protocol.DiagnosticSeverityError, err.Error()))
		}

		return append(diagnostics, newDiagnostic(cErr.Line, cErr.Column, protocol.DiagnosticSeverityError,
			fmt.Sprintf("%v: %v", cErr.Kind, cErr.Err)))
	}

	span.SetAttributes(attribute.Int("estrela.warnings", len(res.Warnings)))

	for _, w := range res.Warnings {
		diagnostics = append(diagnostics, newDiagnostic(w.Line, w.Column, protocol.DiagnosticSeverityWarning, w.Message))
	}

	return diagnostics
}

// newDiagnostic builds a one-character diagnostic at a one-based position.
// An unknown position (zero) falls back to the start of the document.
func newDiagnostic(line, column int, severity protocol.DiagnosticSeverity, message string) protocol.Diagnostic {
	pos := protocol.Position{
		Line:      protocol.UInteger(max(line-1, 0)),
		Character: protocol.UInteger(max(column-1, 0)),
	}
	end := pos
	end.Character++

	source := diagnosticSource

	return protocol.Diagnostic{
		Range:    protocol.Range{Start: pos, End: end},
		Severity: &severity,
		Source:   &source,
		Message:  message,
	}
}

// uriPath returns the file path of a file:// URI, or uri unchanged.
func uriPath(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme != "file" {
		return uri
	}

	return parsed.Path
}

var (
	sectionItems = []protocol.CompletionItem{
		snippetItem("script", protocol.CompletionItemKindModule, "Component script section",
			"<script>\n\t$0\n</script>"),
		snippetItem("template", protocol.CompletionItemKindModule, "Explicit template section",
			"<template>\n\t$0\n</template>"),
		snippetItem("style", protocol.CompletionItemKindModule, "Component styles",
			"<style>\n\t$0\n</style>"),
	}

	directiveItems = []protocol.CompletionItem{
		snippetItem("prop", protocol.CompletionItemKindFunction, "Declare a keyed property",
			"prop(${1})"),
		snippetItem("emitter", protocol.CompletionItemKindFunction, "Declare a keyed event emitter",
			"emitter(${1})"),
	}

	hoverDocs = map[string]string{
		"script": "The component script. Runs once per element instance; " +
			"top-level variables are visible to the template. A `tag` attribute names the element.",
		"template": "Optional wrapper for the markup. Its tags are removed and the content becomes the render function.",
		"style":    "Component styles, attached to the element's shadow root through `css`.",
		"prop": "`prop(initial?, options?)` declares a property. " +
			"The compiler adds `{ key: \"<variable>\" }` so the property is exposed under the variable name.",
		"emitter": "`emitter(options?)` declares an event emitter. " +
			"The compiler adds `{ key: \"<variable>\" }` so the event is dispatched under the variable name.",
		"tag": "Custom element tag name. Defaults to the file name without the extension.",
	}
)

func snippetItem(label string, kind protocol.CompletionItemKind, detail, snippet string) protocol.CompletionItem {
	format := protocol.InsertTextFormatSnippet

	return protocol.CompletionItem{
		Label:            label,
		Kind:             &kind,
		Detail:           &detail,
		InsertText:       &snippet,
		InsertTextFormat: &format,
	}
}

func (srv *Server) completion(_ *glsp.Context, params *protocol.CompletionParams) (any, error) {
	items := make([]protocol.CompletionItem, 0, len(sectionItems)+len(directiveItems))

	text, ok := srv.store.Get(params.TextDocument.URI)
	if !ok || !inScript(text, params.Position.IndexIn(text)) {
		items = append(items, sectionItems...)
	}

	items = append(items, directiveItems...)

	return protocol.CompletionList{IsIncomplete: false, Items: items}, nil
}

// inScript reports whether offset falls between an opening script tag and
// its closing tag.
func inScript(text string, offset int) bool {
	before := text[:min(offset, len(text))]

	open := strings.LastIndex(before, "<script")
	if open < 0 {
		return false
	}

	return !strings.Contains(before[open:], "</script>")
}

func (srv *Server) hover(_ *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := srv.store.Get(params.TextDocument.URI)
	if !ok {
		return nil, nil //nolint:nilnil // no hover when the document is unknown.
	}

	word := wordAt(text, params.Position.IndexIn(text))

	if doc, found := hoverDocs[word]; found {
		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: doc,
			},
		}, nil
	}

	return nil, nil //nolint:nilnil // no hover for unknown words.
}

// wordAt returns the identifier surrounding the byte offset.
func wordAt(text string, offset int) string {
	offset = min(max(offset, 0), len(text))

	start := offset
	for start > 0 && isWordChar(text[start-1]) {
		start--
	}

	end := offset
	for end < len(text) && isWordChar(text[end]) {
		end++
	}

	return text[start:end]
}

func isWordChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') || ch == '_' || ch == '$'
}
