package rpc

import (
	"context"
	"time"

	"tbcv/internal/embedding"
	"tbcv/internal/llm"
	"tbcv/internal/logging"
	"tbcv/internal/service"
	"tbcv/internal/truth"
	"tbcv/internal/types"
	"tbcv/internal/workflow"
)

// Server owns the registry, the dispatcher and the method handlers.
type Server struct {
	registry   *Registry
	dispatcher *Dispatcher

	svc        *service.Service
	engine     *workflow.Engine
	truthIndex *truth.Index
	truthLoad  *truth.Loader
	llm        llm.Client
	embedder   embedding.Engine // may be nil
}

// NewServer builds the server and registers the full method catalogue.
func NewServer(svc *service.Service, engine *workflow.Engine, truthIndex *truth.Index,
	truthLoader *truth.Loader, llmClient llm.Client, embedder embedding.Engine) *Server {
	s := &Server{
		registry:   NewRegistry(),
		svc:        svc,
		engine:     engine,
		truthIndex: truthIndex,
		truthLoad:  truthLoader,
		llm:        llmClient,
		embedder:   embedder,
	}
	s.dispatcher = NewDispatcher(s.registry)
	s.registerValidation()
	s.registerApproval()
	s.registerEnhancement()
	s.registerRecommendation()
	s.registerWorkflow()
	s.registerAdmin()
	s.registerQuery()
	s.registerExport()
	logging.RPC("Registered %d RPC methods", len(s.registry.List()))
	return s
}

// Dispatcher exposes the dispatcher for transports.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Registry exposes the registry for introspection.
func (s *Server) Registry() *Registry { return s.registry }

// audit records a store mutation performed through a method. Audit failures
// are logged, never propagated; the mutation already happened.
func (s *Server) audit(ctx context.Context, method, kind, id, action, detail string) {
	entry := &types.AuditEntry{
		Method:     method,
		EntityKind: kind,
		EntityID:   id,
		Action:     action,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.svc.Store().AppendAudit(ctx, entry); err != nil {
		logging.Get(logging.CategoryRPC).Warn("Audit append failed for %s: %v", method, err)
	}
}

// idParam is the common required id parameter.
func idParam(name string) Param { return Param{Name: name, Type: TypeID} }
