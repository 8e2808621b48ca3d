package server

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/manifest"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "kuri-lsp"

var lspLog = commonlog.GetLogger("kuri.lsp")

// lspDoc is the last compilation of an open document. Owned by the worker
// goroutine.
type lspDoc struct {
	ctx    *compiler.Context
	module *compiler.Module
}

// LspServer bridges LSP editor features to the compiler via CompileWorker.
type LspServer struct {
	worker *CompileWorker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	compiled map[string]*lspDoc // worker-owned

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server compiling with ws.
func NewLSP(ws *Workspace, version string) *LspServer {
	s := &LspServer{
		worker:   NewCompileWorker(ws),
		docs:     make(map[string]string),
		compiled: make(map[string]*lspDoc),
		version:  version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("kuri LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.notifyDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			text := whole.Text
			s.mu.Unlock()

			s.notifyDiagnostics(ctx, uri, text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	s.worker.Do(func(*Workspace) interface{} {
		delete(s.compiled, string(uri))
		return nil
	})

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI

	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(*Workspace) interface{} {
		var c *compiler.Context
		if doc := s.compiled[string(uri)]; doc != nil {
			c = doc.ctx
		}
		return completionItems(completions(c, prefix))
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI

	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(*Workspace) interface{} {
		return s.hover(s.compiled[string(uri)], word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	hover := result.(*protocol.Hover)
	if hover == nil {
		return nil, nil
	}
	return hover, nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI

	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(*Workspace) interface{} {
		return s.definition(uri, s.compiled[string(uri)], word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI

	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(*Workspace) interface{} {
		return references(uri, s.compiled[string(uri)], word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result.([]protocol.Location), nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Compiler-backed logic (called on worker goroutine) ---

// compileDocument compiles text as the root module named after uri and
// remembers the result for later queries.
func (s *LspServer) compileDocument(ws *Workspace, uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	path := uriPath(uri)
	name := manifest.ToModuleName(strings.TrimSuffix(filepath.Base(path), manifest.Extension))

	c := ws.newContext(true)
	m, err := c.AddModule(name, path, text, true)
	if err != nil {
		return []protocol.Diagnostic{lspDiagnostic(compiler.Diagnostic{Message: err.Error()}, "")}
	}
	s.compiled[string(uri)] = &lspDoc{ctx: c, module: m}

	err = c.Compile(m)
	if err == nil {
		return []protocol.Diagnostic{}
	}

	ds := compiler.Diagnostics(err)
	if len(ds) == 0 {
		return []protocol.Diagnostic{lspDiagnostic(compiler.Diagnostic{Message: err.Error()}, "")}
	}

	out := make([]protocol.Diagnostic, 0, len(ds))
	for _, d := range ds {
		if d.Path != "" && d.Path != path {
			// Reported against an imported module; anchor it on line 0.
			msg := *d
			msg.Message = fmt.Sprintf("%s: %s", d.Path, d.Message)
			msg.Token = compiler.Token{}
			out = append(out, lspDiagnostic(msg, ""))
			continue
		}
		out = append(out, lspDiagnostic(*d, d.LineText))
	}
	return out
}

func (s *LspServer) hover(doc *lspDoc, word string) *protocol.Hover {
	text := hoverText(doc, word)
	if text == "" {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: text,
		},
	}
}

// hoverText renders what is known about word: the overloads visible from
// the document's module, a structure layout, a global or a keyword.
func hoverText(doc *lspDoc, word string) string {
	if compiler.LookupKeyword(word) != compiler.TokenIdentifier {
		return fmt.Sprintf("**%s** (keyword)", word)
	}
	if doc == nil {
		return ""
	}
	c, m := doc.ctx, doc.module
	tt := c.Types

	var b strings.Builder
	for _, mod := range append([]*compiler.Module{m}, m.ImportedModules()...) {
		for _, f := range mod.Functions[word] {
			fmt.Fprintf(&b, "```\n%s\n```\n", f.Signature(tt))
			if mod != m {
				fmt.Fprintf(&b, "from module `%s`\n", mod.Name)
			}
		}
	}

	if st, ok := c.Structure(word); ok {
		if st.Enum {
			fmt.Fprintf(&b, "**énum %s**\n\n", st.Name)
			for _, mem := range st.Members {
				fmt.Fprintf(&b, "- %s = %d\n", mem.Name, mem.Value)
			}
		} else {
			fmt.Fprintf(&b, "**struct %s** (%d octets)\n\n", st.Name, tt.SizeOf(st.Type))
			for _, mem := range st.Members {
				fmt.Fprintf(&b, "- %s : %s\n", mem.Name, tt.Text(mem.Type))
			}
		}
	}

	for _, mod := range append([]*compiler.Module{m}, m.ImportedModules()...) {
		if g, ok := mod.Globals[word]; ok {
			kind := "soit"
			if g.Mutable {
				kind = "dyn"
			}
			fmt.Fprintf(&b, "```\n%s %s : %s\n```\n", kind, g.Name, tt.Text(g.Type))
		}
	}

	return b.String()
}

func (s *LspServer) definition(uri protocol.DocumentUri, doc *lspDoc, word string) []protocol.Location {
	if doc == nil {
		return nil
	}
	c, m := doc.ctx, doc.module

	var locations []protocol.Location
	at := func(mod *compiler.Module, tok compiler.Token) {
		target := uri
		if mod != m {
			target = pathURI(mod.Path)
		}
		locations = append(locations, protocol.Location{URI: target, Range: tokenRange(tok, lineOf(mod.Source, tok.Line))})
	}

	for _, mod := range append([]*compiler.Module{m}, m.ImportedModules()...) {
		for _, f := range mod.Functions[word] {
			at(mod, f.Token)
		}
		if g, ok := mod.Globals[word]; ok {
			at(mod, g.Token)
		}
	}
	if st, ok := c.Structure(word); ok && st.Module != nil {
		at(st.Module, st.Token)
	}

	return locations
}

// references lists every identifier token spelling word in the document.
func references(uri protocol.DocumentUri, doc *lspDoc, word string) []protocol.Location {
	if doc == nil {
		return nil
	}
	m := doc.module

	var locations []protocol.Location
	for _, tok := range m.Tokens {
		if tok.Kind == compiler.TokenIdentifier && tok.Text == word {
			locations = append(locations, protocol.Location{URI: uri, Range: tokenRange(tok, lineOf(m.Source, tok.Line))})
		}
	}
	return locations
}

// --- Diagnostics ---

func (s *LspServer) notifyDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(ws *Workspace) interface{} {
		return s.compileDocument(ws, uri, text)
	})
	if err != nil {
		lspLog.Errorf("compiling %s: %v", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

func lspDiagnostic(d compiler.Diagnostic, line string) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	code := protocol.IntegerOrString{Value: d.Kind.String()}
	return protocol.Diagnostic{
		Range:    tokenRange(d.Token, line),
		Severity: &severity,
		Code:     &code,
		Source:   &source,
		Message:  d.Message,
	}
}

func completionItems(items []CompletionItem) []protocol.CompletionItem {
	out := make([]protocol.CompletionItem, 0, len(items))
	for i, item := range items {
		if i == maxCompletions {
			break
		}
		kind := completionKind(item.Kind)
		detail := item.Kind
		if item.Detail != "" {
			detail = item.Detail
		}
		label := item.Label
		out = append(out, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}
	return out
}

func completionKind(kind string) protocol.CompletionItemKind {
	switch kind {
	case KindKeyword:
		return protocol.CompletionItemKindKeyword
	case KindFunction:
		return protocol.CompletionItemKindFunction
	case KindStructure:
		return protocol.CompletionItemKindStruct
	case KindEnum:
		return protocol.CompletionItemKindEnum
	case KindModule:
		return protocol.CompletionItemKindModule
	default:
		return protocol.CompletionItemKindVariable
	}
}

// --- Positions ---

// tokenRange converts a token to an LSP range. Token columns are byte
// offsets; LSP characters count UTF-16 code units of line. A «…» string
// may span lines, so the end follows the newlines of its text.
func tokenRange(tok compiler.Token, line string) protocol.Range {
	start := utf16Column(line, tok.Column)
	endLine := tok.Line
	var end int
	if nl := strings.LastIndexByte(tok.Text, '\n'); nl >= 0 {
		endLine += strings.Count(tok.Text, "\n")
		end = len(utf16.Encode([]rune(tok.Text[nl+1:])))
	} else {
		end = utf16Column(line, tok.Column+len(tok.Text))
		if end == start {
			end = start + 1
		}
	}
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(tok.Line), Character: protocol.UInteger(start)},
		End:   protocol.Position{Line: protocol.UInteger(endLine), Character: protocol.UInteger(end)},
	}
}

// utf16Column converts a byte offset within line to UTF-16 code units.
func utf16Column(line string, byteCol int) int {
	if byteCol > len(line) {
		return len(utf16.Encode([]rune(line))) + byteCol - len(line)
	}
	return len(utf16.Encode([]rune(line[:byteCol])))
}

// byteColumn converts a UTF-16 position within line to a byte offset.
func byteColumn(line string, char int) int {
	units := 0
	for i, r := range line {
		if units >= char {
			return i
		}
		units += utf16.RuneLen(r)
	}
	return len(line)
}

func lineOf(source string, n int) string {
	lines := strings.Split(source, "\n")
	if n < 0 || n >= len(lines) {
		return ""
	}
	return lines[n]
}

func uriPath(uri protocol.DocumentUri) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	return u.Path
}

func pathURI(path string) protocol.DocumentUri {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return protocol.DocumentUri((&url.URL{Scheme: "file", Path: abs}).String())
}

// --- Text extraction helpers ---

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line := lineOf(text, int(pos.Line))
	col := byteColumn(line, int(pos.Character))

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:start])
		if !isIdentRune(r) {
			break
		}
		start -= size
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line := lineOf(text, int(pos.Line))
	col := byteColumn(line, int(pos.Character))

	// Find start
	start := col
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:start])
		if !isIdentRune(r) {
			break
		}
		start -= size
	}

	// Find end
	end := col
	for end < len(line) {
		r, size := utf8.DecodeRuneInString(line[end:])
		if !isIdentRune(r) {
			break
		}
		end += size
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
