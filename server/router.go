package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/saiset-co/sai-org-registry/types"
)

var methodIndex = map[string]uint8{
	"GET":     0,
	"POST":    1,
	"PUT":     2,
	"DELETE":  3,
	"PATCH":   4,
	"HEAD":    5,
	"OPTIONS": 6,
}

var methodNames = [...]string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

const methodCount = len(methodNames)

type RouteNode struct {
	staticChildren map[string]*RouteNode
	paramChild     *RouteNode
	paramName      string
	handlers       [methodCount]types.FastHTTPHandler
	configs        [methodCount]*types.RouteConfig
}

func newRouteNode() *RouteNode {
	return &RouteNode{staticChildren: make(map[string]*RouteNode)}
}

// FastHTTPRouter resolves static paths through a map and parameterised
// paths ("/people/{id}") through a segment trie. Static segments win over
// parameters at the same depth.
type FastHTTPRouter struct {
	mu            sync.RWMutex
	root          *RouteNode
	staticRoutes  map[string]*types.RouteInfo
	definitions   []types.RouteDefinition
	pendingRoutes []*RouteBuilder
}

func NewFastHTTPRouter() *FastHTTPRouter {
	return &FastHTTPRouter{
		root:         newRouteNode(),
		staticRoutes: make(map[string]*types.RouteInfo),
	}
}

func (r *FastHTTPRouter) Add(method, path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	methodIdx, exists := methodIndex[method]
	if !exists || handler == nil {
		return
	}

	if config == nil {
		config = &types.RouteConfig{}
	}

	path = normalizePath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.definitions = append(r.definitions, types.RouteDefinition{Method: method, Path: path, Config: config})

	if !strings.Contains(path, "{") {
		r.staticRoutes[method+":"+path] = &types.RouteInfo{Handler: handler, Config: config}
		return
	}

	node := r.root
	for _, segment := range splitPath(path) {
		if isParamSegment(segment) {
			if node.paramChild == nil {
				node.paramChild = newRouteNode()
				node.paramChild.paramName = segment[1 : len(segment)-1]
			}
			node = node.paramChild
			continue
		}

		child, ok := node.staticChildren[segment]
		if !ok {
			child = newRouteNode()
			node.staticChildren[segment] = child
		}
		node = child
	}

	node.handlers[methodIdx] = handler
	node.configs[methodIdx] = config
}

// Lookup finds the handler for method and path together with any captured
// path parameters.
func (r *FastHTTPRouter) Lookup(method, path string) (*types.RouteInfo, map[string]string) {
	methodIdx, exists := methodIndex[method]
	if !exists {
		return nil, nil
	}

	path = normalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.staticRoutes[method+":"+path]; ok {
		return info, nil
	}

	params := make(map[string]string, 2)
	node := r.findInNode(r.root, splitPath(path), methodIdx, params)
	if node == nil {
		return nil, nil
	}

	return &types.RouteInfo{Handler: node.handlers[methodIdx], Config: node.configs[methodIdx]}, params
}

func (r *FastHTTPRouter) findInNode(node *RouteNode, segments []string, methodIdx uint8, params map[string]string) *RouteNode {
	if len(segments) == 0 {
		if node.handlers[methodIdx] != nil {
			return node
		}
		return nil
	}

	segment := segments[0]

	if child, ok := node.staticChildren[segment]; ok {
		if found := r.findInNode(child, segments[1:], methodIdx, params); found != nil {
			return found
		}
	}

	if node.paramChild != nil {
		params[node.paramChild.paramName] = segment
		if found := r.findInNode(node.paramChild, segments[1:], methodIdx, params); found != nil {
			return found
		}
		delete(params, node.paramChild.paramName)
	}

	return nil
}

// Routes lists registered routes ordered by path then method.
func (r *FastHTTPRouter) Routes() []types.RouteDefinition {
	r.mu.RLock()
	out := append([]types.RouteDefinition(nil), r.definitions...)
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

func (r *FastHTTPRouter) Group(prefix string) types.GroupBuilder {
	return &GroupBuilder{
		router: r,
		prefix: prefix,
		config: &types.RouteConfig{},
	}
}

func (r *FastHTTPRouter) GET(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route("GET", path, handler)
}

func (r *FastHTTPRouter) POST(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route("POST", path, handler)
}

func (r *FastHTTPRouter) PUT(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route("PUT", path, handler)
}

func (r *FastHTTPRouter) DELETE(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.route("DELETE", path, handler)
}

func (r *FastHTTPRouter) route(method, path string, handler types.FastHTTPHandler) *RouteBuilder {
	rb := &RouteBuilder{
		router:  r,
		method:  method,
		path:    path,
		handler: handler,
		config:  &types.RouteConfig{},
	}

	r.mu.Lock()
	r.pendingRoutes = append(r.pendingRoutes, rb)
	r.mu.Unlock()

	return rb
}

// FinalizePendingRoutes registers every route created through the builder
// API. Builders may be configured until this is called.
func (r *FastHTTPRouter) FinalizePendingRoutes() error {
	r.mu.Lock()
	routes := r.pendingRoutes
	r.pendingRoutes = nil
	r.mu.Unlock()

	failed := 0
	for _, rb := range routes {
		if err := rb.finalize(); err != nil {
			failed++
		}
	}

	if failed > 0 {
		return types.Errorf(types.ErrMiddlewareOrderInvalid, "%d routes failed to finalize", failed)
	}
	return nil
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if path[0] != '/' {
		path = "/" + path
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func isParamSegment(segment string) bool {
	return len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}'
}
