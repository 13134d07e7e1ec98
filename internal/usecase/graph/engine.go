// Package graph is the in-memory lineage engine. It holds an immutable
// snapshot of the node and edge maps behind an atomic pointer; rebuilds
// construct a fresh snapshot and publish it wholesale, so readers never
// observe partial state.
package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain"
	domgraph "github.com/datacove/metaseek/internal/domain/graph"
	"github.com/datacove/metaseek/internal/metrics"
)

const piiFlowCacheSize = 512

// Store loads graph nodes and edges for a rebuild.
type Store interface {
	LoadNodes(ctx context.Context) ([]domgraph.Node, error)
	LoadEdges(ctx context.Context) ([]domgraph.Edge, error)
}

// snapshot is one immutable generation of the graph. The outgoing index is
// keyed by source id and the incoming index by target id, so both traversal
// directions cost one map lookup per hop. The PII-flow cache belongs to the
// generation: a trace still in flight when a rebuild swaps snapshots fills
// the old generation's cache, which is unreachable after the swap, so stale
// flows can never be served against the new graph.
type snapshot struct {
	nodes    map[string]domgraph.Node
	outgoing map[string][]domgraph.Edge
	incoming map[string][]domgraph.Edge
	piiFlows *lru.Cache
}

func newSnapshot(nodeCap int) (*snapshot, error) {
	cache, err := lru.New(piiFlowCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create pii flow cache: %w", err)
	}
	return &snapshot{
		nodes:    make(map[string]domgraph.Node, nodeCap),
		outgoing: make(map[string][]domgraph.Edge, nodeCap),
		incoming: make(map[string][]domgraph.Edge, nodeCap),
		piiFlows: cache,
	}, nil
}

// Engine exposes lineage reads over the current snapshot.
type Engine struct {
	store   Store
	current atomic.Pointer[snapshot]

	// rebuildMu serializes concurrent rebuild calls; readers never take it.
	rebuildMu sync.Mutex

	logger *zap.Logger
}

// New creates an engine with an empty snapshot. Call Rebuild to load data.
func New(store Store, logger *zap.Logger) (*Engine, error) {
	empty, err := newSnapshot(0)
	if err != nil {
		return nil, err
	}
	e := &Engine{store: store, logger: logger}
	e.current.Store(empty)
	return e, nil
}

// Rebuild reloads all nodes and edges from the store, builds a fresh
// snapshot and swaps it in. Concurrent rebuild calls serialize; a failed
// load leaves the previous snapshot intact.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	start := time.Now()
	nodes, err := e.store.LoadNodes(ctx)
	if err != nil {
		return fmt.Errorf("rebuild graph: %w", err)
	}
	edges, err := e.store.LoadEdges(ctx)
	if err != nil {
		return fmt.Errorf("rebuild graph: %w", err)
	}

	next, err := newSnapshot(len(nodes))
	if err != nil {
		return fmt.Errorf("rebuild graph: %w", err)
	}
	for _, n := range nodes {
		next.nodes[n.ID] = n
	}
	for _, ed := range edges {
		next.outgoing[ed.SourceID] = append(next.outgoing[ed.SourceID], ed)
		next.incoming[ed.TargetID] = append(next.incoming[ed.TargetID], ed)
	}

	e.current.Store(next)

	metrics.GraphRebuildDuration.Observe(time.Since(start).Seconds())
	metrics.GraphNodes.Set(float64(len(nodes)))
	metrics.GraphEdges.Set(float64(len(edges)))
	e.logger.Info("graph rebuilt",
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// NodeCount returns the number of nodes in the current snapshot.
func (e *Engine) NodeCount() int {
	return len(e.current.Load().nodes)
}

// Node returns a node by id.
func (e *Engine) Node(id string) (domgraph.Node, bool) {
	n, ok := e.current.Load().nodes[id]
	return n, ok
}

// FindDependents traverses outgoing edges (downstream consumers) from a
// node, depth bounded. The start node is not included in the results.
func (e *Engine) FindDependents(ctx context.Context, nodeID string, maxDepth int) ([]domgraph.TraversalHit, error) {
	return e.traverse(ctx, nodeID, maxDepth, false)
}

// FindDependencies traverses incoming edges (upstream producers) from a
// node, depth bounded. The start node is not included in the results.
func (e *Engine) FindDependencies(ctx context.Context, nodeID string, maxDepth int) ([]domgraph.TraversalHit, error) {
	return e.traverse(ctx, nodeID, maxDepth, true)
}

// traverse runs a depth-first, cycle-safe walk. Each node is visited at
// most once, so a node reachable via two paths is reported via whichever
// branch reaches it first.
func (e *Engine) traverse(ctx context.Context, startID string, maxDepth int, upstream bool) ([]domgraph.TraversalHit, error) {
	snap := e.current.Load()
	if _, ok := snap.nodes[startID]; !ok {
		return nil, fmt.Errorf("traverse from %s: %w", startID, domain.ErrNodeNotFound)
	}

	visited := map[string]bool{startID: true}
	var hits []domgraph.TraversalHit

	var walk func(id string, depth int) error
	walk = func(id string, depth int) error {
		if depth >= maxDepth {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, ed := range snap.neighbors(id, upstream) {
			next := ed.TargetID
			if upstream {
				next = ed.SourceID
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			node, ok := snap.nodes[next]
			if !ok {
				continue
			}
			hits = append(hits, domgraph.TraversalHit{Node: node, Depth: depth + 1, ParentID: id})
			if err := walk(next, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(startID, 0); err != nil {
		return nil, err
	}
	return hits, nil
}

func (s *snapshot) neighbors(id string, upstream bool) []domgraph.Edge {
	if upstream {
		return s.incoming[id]
	}
	return s.outgoing[id]
}

// FindLineagePath returns the shortest path between two nodes, treating the
// graph as undirected. Path finding cares about connectivity, not edge
// direction, unlike the dependents/dependencies traversals.
func (e *Engine) FindLineagePath(ctx context.Context, sourceID, targetID string) ([]domgraph.Node, error) {
	snap := e.current.Load()
	if _, ok := snap.nodes[sourceID]; !ok {
		return nil, fmt.Errorf("lineage source %s: %w", sourceID, domain.ErrNodeNotFound)
	}
	if _, ok := snap.nodes[targetID]; !ok {
		return nil, fmt.Errorf("lineage target %s: %w", targetID, domain.ErrNodeNotFound)
	}
	if sourceID == targetID {
		return []domgraph.Node{snap.nodes[sourceID]}, nil
	}

	parent := map[string]string{sourceID: ""}
	queue := []string{sourceID}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]
		for _, next := range snap.undirectedNeighbors(id) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = id
			if next == targetID {
				return snap.assemblePath(parent, targetID), nil
			}
			queue = append(queue, next)
		}
	}
	return nil, fmt.Errorf("no path from %s to %s: %w", sourceID, targetID, domain.ErrNotFound)
}

func (s *snapshot) undirectedNeighbors(id string) []string {
	out := s.outgoing[id]
	in := s.incoming[id]
	neighbors := make([]string, 0, len(out)+len(in))
	for _, ed := range out {
		neighbors = append(neighbors, ed.TargetID)
	}
	for _, ed := range in {
		neighbors = append(neighbors, ed.SourceID)
	}
	return neighbors
}

func (s *snapshot) assemblePath(parent map[string]string, targetID string) []domgraph.Node {
	var reversed []string
	for id := targetID; id != ""; id = parent[id] {
		reversed = append(reversed, id)
	}
	path := make([]domgraph.Node, len(reversed))
	for i, id := range reversed {
		path[len(reversed)-1-i] = s.nodes[id]
	}
	return path
}

// TracePiiFlow walks outgoing edges from a PII-bearing node and records a
// flow path whenever the walk reaches a sink. The walk backtracks, so a
// node shared by several branches appears in each branch's path. Results
// are cached per source in the snapshot the trace ran against, so a cache
// entry never outlives its graph generation.
func (e *Engine) TracePiiFlow(ctx context.Context, sourceID string) ([]domgraph.PiiFlowPath, error) {
	return e.tracePiiFlow(ctx, e.current.Load(), sourceID)
}

func (e *Engine) tracePiiFlow(ctx context.Context, snap *snapshot, sourceID string) ([]domgraph.PiiFlowPath, error) {
	if cached, ok := snap.piiFlows.Get(sourceID); ok {
		return cached.([]domgraph.PiiFlowPath), nil
	}

	source, ok := snap.nodes[sourceID]
	if !ok {
		return nil, fmt.Errorf("pii flow source %s: %w", sourceID, domain.ErrNodeNotFound)
	}
	if !source.IsPII {
		return nil, nil
	}

	var flows []domgraph.PiiFlowPath
	onPath := map[string]bool{sourceID: true}
	path := []string{sourceID}

	var walk func(id string) error
	walk = func(id string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := snap.outgoing[id]
		if len(out) == 0 {
			if len(path) > 1 {
				flows = append(flows, domgraph.PiiFlowPath{
					SourceID:      sourceID,
					PIIType:       source.PIIType,
					DestinationID: id,
					Path:          append([]string(nil), path...),
				})
			}
			return nil
		}
		for _, ed := range out {
			next := ed.TargetID
			if onPath[next] {
				continue
			}
			if _, exists := snap.nodes[next]; !exists {
				continue
			}
			onPath[next] = true
			path = append(path, next)
			err := walk(next)
			path = path[:len(path)-1]
			delete(onPath, next)
			if err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(sourceID); err != nil {
		return nil, err
	}

	snap.piiFlows.Add(sourceID, flows)
	return flows, nil
}

// GetAllPiiFlows unions the flow traces of every PII-flagged node. All
// traces run against the same snapshot the node scan used.
func (e *Engine) GetAllPiiFlows(ctx context.Context) ([]domgraph.PiiFlowPath, error) {
	snap := e.current.Load()
	var all []domgraph.PiiFlowPath
	for id, n := range snap.nodes {
		if !n.IsPII {
			continue
		}
		flows, err := e.tracePiiFlow(ctx, snap, id)
		if err != nil {
			return nil, err
		}
		all = append(all, flows...)
	}
	return all, nil
}
