package engine

import "sync"

// Coordinator serializes the rebalancing loop against the file importer.
// It carries three pieces of shared state:
//
//   - importing: true for the whole of an import's parse-to-persist window;
//     the engine must not read balances while it is set.
//   - changed: latched by the importer after a successful write batch,
//     cleared by the engine once it has reloaded its snapshot.
//   - the wake/skip handshake: the importer can request an immediate
//     rebalance pass; the engine then skips its next scheduled tick so one
//     import does not cause two evaluations.
type Coordinator struct {
	mu        sync.Mutex
	importing bool
	changed   bool
	skipNext  bool
	wake      chan struct{}
}

func NewCoordinator() *Coordinator {
	return &Coordinator{wake: make(chan struct{}, 1)}
}

// BeginImport marks an import as in flight. Returns false if one already is,
// in which case the caller must not proceed.
func (c *Coordinator) BeginImport() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.importing {
		return false
	}
	c.importing = true
	return true
}

// EndImport clears the in-flight marker
func (c *Coordinator) EndImport() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.importing = false
}

// Importing reports whether an import is in flight
func (c *Coordinator) Importing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.importing
}

// MarkChanged latches the stale-snapshot flag
func (c *Coordinator) MarkChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed = true
}

// Changed reports whether the balance snapshot is stale
func (c *Coordinator) Changed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// ClearChanged resets the latch after the engine has reloaded
func (c *Coordinator) ClearChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed = false
}

// RequestRebalance asks the engine for an out-of-band pass. Never blocks; a
// request while one is already pending is a no-op.
func (c *Coordinator) RequestRebalance() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Wake is the channel the engine selects on for out-of-band requests
func (c *Coordinator) Wake() <-chan struct{} {
	return c.wake
}

// SkipNextPass flags the next scheduled tick to be skipped
func (c *Coordinator) SkipNextPass() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipNext = true
}

// ConsumeSkip reports and clears the skip flag
func (c *Coordinator) ConsumeSkip() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	skip := c.skipNext
	c.skipNext = false
	return skip
}
