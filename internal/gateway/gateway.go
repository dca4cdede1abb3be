// Package gateway persists card sets and registry documents to the local
// cache and, when configured, to a remote document store.
//
// Reads try the remote store first and fall back to the local cache. Writes
// always land in the local cache before the call returns; how they reach the
// remote store depends on the Policy.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/knoldeck/internal/blobstore"
	"github.com/conorfennell/knoldeck/internal/codec"
	"github.com/conorfennell/knoldeck/internal/deferred"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/knol"
)

const (
	DefaultDebounce = 2 * time.Second
	DefaultMaxDelay = 20 * time.Second

	cardsKeyPrefix = "cards:"
	remoteTimeout  = 15 * time.Second
)

// Cache is the local key-value store. *storage.DB implements it.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Location addresses one document in both stores. An empty File keeps the
// document local.
type Location struct {
	Name     string // namespace or document name, for logs and errors
	CacheKey string
	File     string
}

// Source tells where loaded data came from.
type Source int

const (
	SourceNone Source = iota
	SourceLocal
	SourceRemote
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	default:
		return "none"
	}
}

// Loaded is the result of loading a namespace.
type Loaded struct {
	Cards     map[string]domain.Card
	Source    Source
	Shape     codec.Shape
	// Malformed is set when stored data existed but could not be decoded
	// and an empty set was substituted.
	Malformed bool
	// Migrated is set when a legacy layout was rewritten during the load.
	Migrated bool
}

// Options configures a Gateway. Zero values select defaults.
type Options struct {
	Policy   Policy
	Debounce time.Duration
	MaxDelay time.Duration
	// Files maps a namespace to its remote filename, overriding "<ns>.json".
	Files    map[string]string
	Deferrer deferred.Deferrer
	Now      func() time.Time
	Logger   *slog.Logger
}

// Gateway is the single owner of persisted state. It is safe for concurrent
// use; remote writes are serialised.
type Gateway struct {
	cache    Cache
	remote   blobstore.Store
	policy   Policy
	debounce time.Duration
	maxDelay time.Duration
	files    map[string]string
	deferrer deferred.Deferrer
	now      func() time.Time
	log      *slog.Logger

	writeMu sync.Mutex // serialises remote writes

	mu          sync.Mutex
	status      Status
	lastErr     error
	tokens      map[string]string  // file -> fingerprint at last read/write
	pending     map[string]*string // file -> content awaiting remote write, nil deletes
	pendingName map[string]string  // file -> location name
	cancelTimer deferred.CancelFunc
	cancelProbe deferred.CancelFunc
	lastSuccess time.Time
	listeners   []func(Status)
	closed      bool

	running sync.RWMutex // held shared by deferred callbacks while they run
}

// New builds a Gateway. remote may be nil, in which case everything stays
// local.
func New(cache Cache, remote blobstore.Store, opts Options) (*Gateway, error) {
	if cache == nil {
		return nil, fmt.Errorf("local cache is required")
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyDebounced
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	if policy == PolicyDebounced && remote != nil && opts.Deferrer == nil {
		return nil, fmt.Errorf("debounced policy requires a deferrer")
	}

	g := &Gateway{
		cache:       cache,
		remote:      remote,
		policy:      policy,
		debounce:    opts.Debounce,
		maxDelay:    opts.MaxDelay,
		files:       opts.Files,
		deferrer:    opts.Deferrer,
		now:         opts.Now,
		log:         opts.Logger,
		tokens:      make(map[string]string),
		pending:     make(map[string]*string),
		pendingName: make(map[string]string),
	}
	if g.debounce <= 0 {
		g.debounce = DefaultDebounce
	}
	if g.maxDelay <= 0 {
		g.maxDelay = DefaultMaxDelay
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	g.lastSuccess = g.now()
	if remote == nil {
		g.status = StatusLocal
	} else {
		g.status = StatusSynced
	}
	return g, nil
}

// Remote reports whether a remote store is configured.
func (g *Gateway) Remote() bool {
	return g.remote != nil
}

// Policy returns the write policy in use.
func (g *Gateway) Policy() Policy {
	return g.policy
}

// Status returns the sync indicator and the error behind it, if any.
func (g *Gateway) Status() (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, g.lastErr
}

// OnStatus registers fn to be called on every status change.
func (g *Gateway) OnStatus(fn func(Status)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Cards returns the location of a namespace's card set.
func (g *Gateway) Cards(namespace string) Location {
	file := namespace + ".json"
	if f, ok := g.files[namespace]; ok && f != "" {
		file = f
	}
	return Location{Name: namespace, CacheKey: cardsKeyPrefix + namespace, File: file}
}

// Load reads a namespace's cards. Remote failures fall back to the local
// cache; only a local cache failure is returned as an error.
func (g *Gateway) Load(ctx context.Context, namespace string) (Loaded, error) {
	loc := g.Cards(namespace)
	now := g.now()

	if content, ok := g.readRemote(ctx, loc); ok {
		decoded, err := codec.Decode([]byte(content), now)
		if err == nil {
			res := Loaded{Cards: decoded.Cards, Source: SourceRemote, Shape: decoded.Shape}
			g.logSkipped(loc, decoded)
			if decoded.NeedsMigration() {
				res.Migrated = true
				return res, g.migrate(ctx, loc, decoded)
			}
			return res, g.storeLocal(ctx, loc, decoded.Cards, now)
		}
		g.log.Warn("remote card data is malformed, using local cache",
			"namespace", namespace, "file", loc.File, "error", err)
		res, lerr := g.loadLocal(ctx, loc, now)
		res.Malformed = true
		return res, lerr
	}

	return g.loadLocal(ctx, loc, now)
}

func (g *Gateway) loadLocal(ctx context.Context, loc Location, now time.Time) (Loaded, error) {
	empty := Loaded{Cards: map[string]domain.Card{}, Source: SourceNone, Shape: codec.ShapeEmpty}

	raw, ok, err := g.cache.Get(ctx, loc.CacheKey)
	if err != nil {
		g.log.Error("failed to read local cache", "namespace", loc.Name, "error", err)
		return empty, fmt.Errorf("%w: %w", ErrLocalCache, err)
	}
	if !ok {
		return empty, nil
	}

	decoded, err := codec.Decode([]byte(raw), now)
	if err != nil {
		g.log.Warn("local card data is malformed, starting empty",
			"namespace", loc.Name, "error", err)
		empty.Source = SourceLocal
		empty.Shape = codec.ShapeInvalid
		empty.Malformed = true
		return empty, nil
	}
	g.logSkipped(loc, decoded)

	res := Loaded{Cards: decoded.Cards, Source: SourceLocal, Shape: decoded.Shape}
	if decoded.NeedsMigration() {
		res.Migrated = true
		if err := g.migrate(ctx, loc, decoded); err != nil {
			return res, err
		}
	}
	return res, nil
}

// migrate rewrites a legacy payload in the current layout, locally and
// remotely, before the cards are handed to the caller.
func (g *Gateway) migrate(ctx context.Context, loc Location, decoded codec.Decoded) error {
	g.log.Info("migrating legacy card data", "namespace", loc.Name, "shape", decoded.Shape.String(),
		"cards", len(decoded.Cards))
	data, err := codec.Marshal(decoded.Cards, g.now())
	if err != nil {
		return fmt.Errorf("failed to encode migrated cards: %w", err)
	}
	return g.write(ctx, loc, data, true)
}

func (g *Gateway) logSkipped(loc Location, decoded codec.Decoded) {
	if len(decoded.Skipped) > 0 {
		g.log.Warn("skipped unreadable card entries", "namespace", loc.Name, "keys", decoded.Skipped)
	}
}

func (g *Gateway) storeLocal(ctx context.Context, loc Location, cards map[string]domain.Card, now time.Time) error {
	data, err := codec.Marshal(cards, now)
	if err != nil {
		return fmt.Errorf("failed to encode cards: %w", err)
	}
	if err := g.cache.Set(ctx, loc.CacheKey, string(data)); err != nil {
		g.log.Error("failed to write local cache", "namespace", loc.Name, "error", err)
		return fmt.Errorf("%w: %w", ErrLocalCache, err)
	}
	return nil
}

// Save writes a namespace's cards. The local cache is written before Save
// returns. Remote failures are logged and reflected in Status; a rejected
// guarded write returns a *ConflictError.
func (g *Gateway) Save(ctx context.Context, namespace string, cards map[string]domain.Card) error {
	data, err := codec.Marshal(cards, g.now())
	if err != nil {
		return fmt.Errorf("failed to encode cards: %w", err)
	}
	return g.write(ctx, g.Cards(namespace), data, false)
}

// LoadDocument reads a raw document, remote first. found is false when
// neither store holds it.
func (g *Gateway) LoadDocument(ctx context.Context, loc Location) ([]byte, bool, error) {
	if content, ok := g.readRemote(ctx, loc); ok {
		if err := g.cache.Set(ctx, loc.CacheKey, content); err != nil {
			return []byte(content), true, fmt.Errorf("%w: %w", ErrLocalCache, err)
		}
		return []byte(content), true, nil
	}
	raw, ok, err := g.cache.Get(ctx, loc.CacheKey)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrLocalCache, err)
	}
	if !ok {
		return nil, false, nil
	}
	return []byte(raw), true, nil
}

// SaveDocument writes a raw document under the gateway's policy.
func (g *Gateway) SaveDocument(ctx context.Context, loc Location, data []byte) error {
	return g.write(ctx, loc, data, false)
}

// DeleteNamespace removes a namespace's cards locally and deletes its remote
// file in a single update. The remote delete is not debounced.
func (g *Gateway) DeleteNamespace(ctx context.Context, namespace string) error {
	loc := g.Cards(namespace)
	if err := g.cache.Remove(ctx, loc.CacheKey); err != nil {
		return fmt.Errorf("%w: %w", ErrLocalCache, err)
	}
	if g.remote == nil {
		return nil
	}
	g.mu.Lock()
	delete(g.pending, loc.File)
	delete(g.pendingName, loc.File)
	g.mu.Unlock()
	return g.pushNow(ctx, loc, nil)
}

// write stores data locally, then routes it to the remote store. force
// bypasses debouncing.
func (g *Gateway) write(ctx context.Context, loc Location, data []byte, force bool) error {
	if err := g.cache.Set(ctx, loc.CacheKey, string(data)); err != nil {
		g.log.Error("failed to write local cache", "namespace", loc.Name, "error", err)
		return fmt.Errorf("%w: %w", ErrLocalCache, err)
	}
	if g.remote == nil || loc.File == "" {
		return nil
	}

	content := string(data)
	if force || g.policy != PolicyDebounced {
		return g.pushNow(ctx, loc, &content)
	}

	g.mu.Lock()
	g.pending[loc.File] = &content
	g.pendingName[loc.File] = loc.Name
	overdue := g.now().Sub(g.lastSuccess) >= g.maxDelay
	if g.cancelTimer != nil {
		g.cancelTimer()
		g.cancelTimer = nil
	}
	g.mu.Unlock()

	if overdue {
		g.log.Debug("remote write overdue, flushing now", "namespace", loc.Name)
		_ = g.flushPending(ctx)
		return nil
	}

	g.setStatus(StatusSyncing, nil)
	cancel, err := g.deferrer.After(g.debounce, g.flushDeferred)
	if err != nil {
		g.log.Warn("failed to schedule remote write, flushing now", "error", err)
		_ = g.flushPending(ctx)
		return nil
	}
	g.mu.Lock()
	g.cancelTimer = cancel
	g.mu.Unlock()
	return nil
}

// pushNow writes one file to the remote store and waits for the outcome.
func (g *Gateway) pushNow(ctx context.Context, loc Location, content *string) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.setStatus(StatusSyncing, nil)

	if g.guarded(loc, content) {
		if err := g.checkToken(ctx, loc); err != nil {
			return err
		}
	}

	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	if _, err := g.remote.Patch(rctx, map[string]*string{loc.File: content}); err != nil {
		g.remoteFailed("failed to write remote file", loc, err)
		return nil
	}

	g.mu.Lock()
	g.tokens[loc.File] = fingerprint(content)
	g.lastSuccess = g.now()
	g.mu.Unlock()
	g.settle(false)
	g.log.Debug("wrote remote file", "namespace", loc.Name, "file", loc.File)
	return nil
}

// guarded reports whether a write to loc must pass the fingerprint check.
// Deleting a file this process never read has no baseline to compare with.
func (g *Gateway) guarded(loc Location, content *string) bool {
	if g.policy != PolicyGuarded {
		return false
	}
	g.mu.Lock()
	_, seen := g.tokens[loc.File]
	g.mu.Unlock()
	return content != nil || seen
}

// checkToken re-fetches the remote file and compares it with the fingerprint
// captured at the last read or write. A fetch failure is not a conflict.
func (g *Gateway) checkToken(ctx context.Context, loc Location) error {
	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	doc, err := g.remote.Fetch(rctx)
	if err != nil {
		g.remoteFailed("failed to check remote file", loc, err)
		return nil
	}
	current := ""
	if content, ok := doc.Content(loc.File); ok {
		current = knol.Hash(content)
	}

	g.mu.Lock()
	expected := g.tokens[loc.File]
	g.mu.Unlock()

	if current != expected {
		cerr := &ConflictError{Namespace: loc.Name, Expected: expected, Current: current}
		g.log.Warn("remote file changed, write discarded", "namespace", loc.Name, "file", loc.File,
			"error", cerr)
		g.setStatus(StatusConflict, cerr)
		return cerr
	}
	return nil
}

// Flush writes every pending file to the remote store in one update and
// waits for in-flight deferred writes. It must be called before shutdown.
// A failed flush keeps the files pending and returns an error wrapping
// ErrRemoteUnavailable; the data is already safe in the local cache.
func (g *Gateway) Flush(ctx context.Context) error {
	err := g.flushPending(ctx)
	g.running.Lock()
	defer g.running.Unlock()
	return err
}

// flushPending is Flush without waiting on in-flight work, for callbacks
// that are themselves in flight.
func (g *Gateway) flushPending(ctx context.Context) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.Lock()
	if g.cancelTimer != nil {
		g.cancelTimer()
		g.cancelTimer = nil
	}
	batch := g.pending
	names := g.pendingName
	g.pending = make(map[string]*string)
	g.pendingName = make(map[string]string)
	g.mu.Unlock()

	if len(batch) == 0 || g.remote == nil {
		return nil
	}

	g.setStatus(StatusSyncing, nil)
	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	if _, err := g.remote.Patch(rctx, batch); err != nil {
		g.mu.Lock()
		for file, content := range batch {
			if _, newer := g.pending[file]; !newer {
				g.pending[file] = content
				g.pendingName[file] = names[file]
			}
		}
		g.mu.Unlock()
		g.remoteFailed("failed to flush pending writes", Location{Name: "*"}, err)
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	g.mu.Lock()
	for file, content := range batch {
		g.tokens[file] = fingerprint(content)
	}
	g.lastSuccess = g.now()
	g.mu.Unlock()
	g.settle(false)
	g.log.Debug("flushed pending writes", "files", len(batch))
	return nil
}

func (g *Gateway) flushDeferred() {
	if !g.enter() {
		return
	}
	defer g.running.RUnlock()

	if err := g.flushPending(context.Background()); err != nil {
		g.log.Debug("deferred flush failed", "error", err)
	}
}

// Pending reports how many files await a remote write.
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// readRemote fetches loc's file. ok is false when no remote is configured,
// the call failed, or the file does not exist; the caller then falls back to
// the local cache.
func (g *Gateway) readRemote(ctx context.Context, loc Location) (string, bool) {
	if g.remote == nil || loc.File == "" {
		return "", false
	}
	g.mu.Lock()
	_, queued := g.pending[loc.File]
	g.mu.Unlock()
	if queued {
		if err := g.flushPending(ctx); err != nil {
			g.log.Warn("failed to flush before read", "namespace", loc.Name, "error", err)
		}
	}

	rctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	doc, err := g.remote.Fetch(rctx)
	if err != nil {
		g.remoteFailed("failed to read remote document", loc, err)
		return "", false
	}

	content, ok := doc.Content(loc.File)
	g.mu.Lock()
	if ok {
		g.tokens[loc.File] = knol.Hash(content)
	} else {
		g.tokens[loc.File] = ""
	}
	g.mu.Unlock()
	g.settle(true)

	if !ok {
		g.log.Info("no remote data for namespace yet", "namespace", loc.Name, "file", loc.File)
		return "", false
	}
	return content, true
}

// StartProbe periodically fetches the remote document to refresh the
// status and retry pending writes.
func (g *Gateway) StartProbe(every time.Duration) error {
	if g.remote == nil || g.deferrer == nil {
		return nil
	}
	cancel, err := g.deferrer.Every(every, g.probe)
	if err != nil {
		return fmt.Errorf("failed to start connectivity probe: %w", err)
	}
	g.mu.Lock()
	g.cancelProbe = cancel
	g.mu.Unlock()
	return nil
}

func (g *Gateway) probe() {
	if !g.enter() {
		return
	}
	defer g.running.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	if _, err := g.remote.Fetch(ctx); err != nil {
		g.remoteFailed("connectivity probe failed", Location{Name: "*"}, err)
		return
	}
	g.settle(false)
	if err := g.flushPending(ctx); err != nil {
		g.log.Warn("retry of pending writes failed", "error", err)
	}
}

// enter marks a deferred callback as running. It reports false once the
// gateway is closed; otherwise the caller must RUnlock g.running.
func (g *Gateway) enter() bool {
	g.running.RLock()
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		g.running.RUnlock()
		return false
	}
	return true
}

// Close stops the probe and flushes pending writes. Deferred callbacks that
// fire afterwards do nothing.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	if g.cancelProbe != nil {
		g.cancelProbe()
		g.cancelProbe = nil
	}
	g.mu.Unlock()
	return g.Flush(ctx)
}

func (g *Gateway) remoteFailed(msg string, loc Location, err error) {
	g.log.Warn(msg, "namespace", loc.Name, "file", loc.File, "error", err)
	g.setStatus(StatusError, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err))
}

// settle records a successful remote call. A conflict stays visible until a
// successful read clears it.
func (g *Gateway) settle(clearConflict bool) {
	g.mu.Lock()
	if g.status == StatusConflict && !clearConflict {
		g.mu.Unlock()
		return
	}
	next := StatusSynced
	if len(g.pending) > 0 {
		next = StatusSyncing
	}
	g.mu.Unlock()
	g.setStatus(next, nil)
}

func (g *Gateway) setStatus(s Status, err error) {
	g.mu.Lock()
	if g.remote == nil {
		s, err = StatusLocal, nil
	}
	changed := g.status != s
	g.status = s
	g.lastErr = err
	listeners := append([]func(Status){}, g.listeners...)
	g.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(s)
		}
	}
}

func fingerprint(content *string) string {
	if content == nil {
		return ""
	}
	return knol.Hash(*content)
}

// IsConflict reports whether err is a rejected guarded write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
