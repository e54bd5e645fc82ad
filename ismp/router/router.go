// Package router implements a module registry that dispatches verified
// requests, responses and timeouts to application modules.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/oasisprotocol/ismp/common/logging"
	"github.com/oasisprotocol/ismp/ismp/api"
)

var _ api.Router = (*Router)(nil)

// Router resolves the module an item is addressed to by module identifier.
//
// Incoming requests are dispatched to the module named by `to`. Responses
// and timeouts are dispatched to the module that sent the original
// request, named by its `from`.
type Router struct {
	sync.RWMutex

	logger *logging.Logger

	modules  map[string]api.Module
	fallback api.Module
}

// RegisterModule registers a module under an identifier.
func (r *Router) RegisterModule(id []byte, module api.Module) error {
	r.Lock()
	defer r.Unlock()

	key := string(id)
	if _, ok := r.modules[key]; ok {
		return fmt.Errorf("router: module already registered: %x", id)
	}
	r.modules[key] = module

	r.logger.Debug("registered module",
		"module", fmt.Sprintf("%x", id),
	)
	return nil
}

// SetFallback sets the module items without a registered module are
// dispatched to.
func (r *Router) SetFallback(module api.Module) {
	r.Lock()
	defer r.Unlock()

	r.fallback = module
}

func (r *Router) resolve(id []byte) (api.Module, error) {
	r.RLock()
	defer r.RUnlock()

	if module, ok := r.modules[string(id)]; ok {
		return module, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %x", api.ErrModuleNotFound, id)
}

// HandleRequest dispatches an incoming request to its destination module.
func (r *Router) HandleRequest(ctx context.Context, req *api.Request) error {
	if req.Post == nil {
		return fmt.Errorf("%w: only post requests are delivered", api.ErrInvalidMessage)
	}

	module, err := r.resolve(req.Post.To)
	if err != nil {
		return err
	}
	return module.OnAccept(ctx, req)
}

// HandleResponse dispatches a response to the module that sent the request.
func (r *Router) HandleResponse(ctx context.Context, res *api.Response) error {
	module, err := r.resolve(res.Request().From())
	if err != nil {
		return err
	}
	return module.OnResponse(ctx, res)
}

// HandleTimeout dispatches a timed out request to the module that sent it.
func (r *Router) HandleTimeout(ctx context.Context, req *api.Request) error {
	module, err := r.resolve(req.From())
	if err != nil {
		return err
	}
	return module.OnTimeout(ctx, req)
}

// New creates a new empty router.
func New() *Router {
	return &Router{
		logger:  logging.GetLogger("ismp/router"),
		modules: make(map[string]api.Module),
	}
}
