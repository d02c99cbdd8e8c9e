// Package lsp implements a diagnostics-only language server for flow-fact
// files (spec §6 F4/FFX), structured exactly like the teacher's
// internal/lsp/handler.go: a handler struct tracking open-document text
// keyed by path, re-parsing on didOpen/didChange and republishing
// diagnostics, protocol glue via github.com/tliron/glsp. There is no
// completion or semantic-token surface here — flow-fact files have no
// source-language vocabulary to offer those over, so this handler
// publishes diagnostics only, on didOpen and didChange.
package lsp

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"wcet/internal/diag"
	"wcet/internal/flowfact"
	"wcet/internal/flowfact/f4"
	"wcet/internal/flowfact/ffx"
)

// Handler implements the LSP server handlers for flow-fact files.
type Handler struct {
	mu      sync.RWMutex
	content map[string]string
	facts   map[string]*flowfact.Facts
}

// NewHandler creates an empty Handler.
func NewHandler() *Handler {
	return &Handler{
		content: make(map[string]string),
		facts:   make(map[string]*flowfact.Facts),
	}
}

// Initialize advertises the server's (deliberately narrow) capabilities.
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Println("wcet-lsp Initialize called")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
		},
	}, nil
}

// Initialized is a no-op notification handler.
func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Println("wcet-lsp Initialized")
	return nil
}

// Shutdown handles the LSP shutdown request.
func (h *Handler) Shutdown(ctx *glsp.Context) error {
	log.Println("wcet-lsp Shutdown")
	return nil
}

// TextDocumentDidOpen re-parses the opened file and publishes diagnostics.
func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Printf("Opened flow-fact file: %s\n", params.TextDocument.URI)
	diagnostics, err := h.reparse(params.TextDocument.URI)
	if err != nil {
		return fmt.Errorf("failed to parse flow-fact file: %w", err)
	}
	sendDiagnostics(ctx, params.TextDocument.URI, diagnostics)
	return nil
}

// TextDocumentDidClose drops the tracked state for a closed file.
func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	log.Printf("Closed flow-fact file: %s\n", params.TextDocument.URI)
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.content, path)
	delete(h.facts, path)
	return nil
}

// TextDocumentDidChange re-parses the file from disk, the same
// re-read-on-notification approach the teacher's own DidChange handler
// uses (it re-reads via updateAST rather than trust the editor-sent
// delta), which sidesteps needing to reconstruct the document from
// incremental change events.
func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	log.Printf("Changed flow-fact file: %s\n", params.TextDocument.URI)
	diagnostics, err := h.reparse(params.TextDocument.URI)
	if err != nil {
		return fmt.Errorf("failed to parse flow-fact file: %w", err)
	}
	sendDiagnostics(ctx, params.TextDocument.URI, diagnostics)
	return nil
}

// reparse reads the file named by rawURI from disk, parses it as F4 or FFX
// (chosen by file extension), and converts any resulting diagnostic into
// LSP form. A successful parse clears any stale diagnostics (empty slice,
// not nil, so the client replaces the previous publish rather than
// leaving it stale).
func (h *Handler) reparse(rawURI protocol.DocumentUri) ([]protocol.Diagnostic, error) {
	path, err := uriToPath(rawURI)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var facts *flowfact.Facts
	var parseErr error
	if strings.EqualFold(filepath.Ext(path), ".ffx") || strings.EqualFold(filepath.Ext(path), ".xml") {
		facts, parseErr = ffx.Parse(path, content)
	} else {
		facts, parseErr = f4.Parse(path, string(content))
	}

	h.mu.Lock()
	h.content[path] = string(content)
	if parseErr == nil {
		h.facts[path] = facts
	}
	h.mu.Unlock()

	if parseErr == nil {
		return []protocol.Diagnostic{}, nil
	}
	return convertDiagnostic(parseErr), nil
}

// convertDiagnostic turns a flow-fact parse failure into LSP diagnostics,
// the same translation the teacher's ConvertParseErrors/ConvertScanErrors
// perform over parser.ParseError/ScanError.
func convertDiagnostic(err error) []protocol.Diagnostic {
	d, ok := err.(*diag.Diagnostic)
	if !ok {
		return []protocol.Diagnostic{{
			Severity: ptrSeverity(protocol.DiagnosticSeverityError),
			Source:   ptrString("wcet-flowfact"),
			Message:  err.Error(),
			Range: protocol.Range{
				Start: protocol.Position{Line: 0, Character: 0},
				End:   protocol.Position{Line: 0, Character: 1},
			},
		}}
	}

	line := d.Location.Line
	if line <= 0 {
		line = 1
	}
	col := d.Location.Column
	if col <= 0 {
		col = 1
	}
	return []protocol.Diagnostic{{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(line - 1), Character: uint32(col - 1)},
			End:   protocol.Position{Line: uint32(line - 1), Character: uint32(col + 5)},
		},
		Severity: ptrSeverity(protocol.DiagnosticSeverityError),
		Source:   ptrString("wcet-flowfact"),
		Message:  fmt.Sprintf("[%s] %s", d.Code, d.Message),
	}}
}

func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}
	path := u.Path
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

func sendDiagnostics(ctx *glsp.Context, uri protocol.URI, diagnostics []protocol.Diagnostic) {
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func ptrBool(b bool) *bool { return &b }

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind { return &k }

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity { return &s }

func ptrString(s string) *string { return &s }
