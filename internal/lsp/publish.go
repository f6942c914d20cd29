package lsp

import (
	"context"
	"sort"

	"fortio.org/safecast"

	"quill/internal/build"
	"quill/internal/diag"
)

// publish sends textDocument/publishDiagnostics for every file whose
// diagnostics changed since the previous publish.
func (s *Server) publish(ctx context.Context) error {
	patch, err := s.collection.GetPatch(ctx, s.registry.Sources())
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(patch))
	for path := range patch {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		list := patch[path]
		out := make([]lspDiagnostic, 0, len(list))
		for _, d := range list {
			out = append(out, toLSPDiagnostic(d))
		}
		s.notify(ctx, methodPublishDiagnostics, publishDiagnosticsParams{
			URI:         pathToURI(path),
			Diagnostics: out,
		})
	}
	return nil
}

func toLSPDiagnostic(d diag.Diagnostic) lspDiagnostic {
	return lspDiagnostic{
		Range: lspRange{
			Start: position{Line: toUint32(d.Range.StartLine), Character: toUint32(d.Range.StartCol)},
			End:   position{Line: toUint32(d.Range.EndLine), Character: toUint32(d.Range.EndCol)},
		},
		Severity: d.Severity.LSP(),
		Code:     d.Code.String(),
		Source:   d.Source,
		Message:  d.Message,
	}
}

// toUint32 clamps negative positions to zero.
func toUint32(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return 0
	}
	return v
}

func (s *Server) notify(ctx context.Context, method string, params any) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Notify(ctx, method, params); err != nil {
		s.logger.Debug("lsp: notify failed", "method", method, "err", err)
	}
}

func (s *Server) drainOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.outbox:
			s.notify(ctx, msg.method, msg.params)
		}
	}
}

func (s *Server) enqueue(method string, params any) {
	select {
	case s.outbox <- outgoing{method: method, params: params}:
	default:
		s.logger.Warn("lsp: outbox full, dropping notification", "method", method)
	}
}

// BuildStatus forwards a project's build status as quill/buildStatus.
func (s *Server) BuildStatus(root string, status build.Status) {
	s.enqueue(methodBuildStatus, buildStatusParams{URI: pathToURI(root), Status: string(status)})
}

// CriticalFailure shows an error message in the client.
func (s *Server) CriticalFailure(root string, message string) {
	s.logger.Error("lsp: critical build failure", "root", root, "message", message)
	s.enqueue(methodShowMessage, showMessageParams{Type: messageTypeError, Message: message})
}

var _ build.Notifier = (*Server)(nil)
