// Package registry keeps the list of decks and which one is active.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/gateway"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrDuplicateName = errors.New("deck name already exists")
	ErrNotFound      = errors.New("deck not found")
	ErrEmptyName     = errors.New("deck name is empty")
)

var (
	manifestLocation = gateway.Location{Name: "manifest", CacheKey: "registry", File: "_deck_manifest.json"}
	activeLocation   = gateway.Location{Name: "active", CacheKey: "registry:active"}
)

// Store persists registry documents and removes deck card sets.
// *gateway.Gateway implements it.
type Store interface {
	LoadDocument(ctx context.Context, loc gateway.Location) ([]byte, bool, error)
	SaveDocument(ctx context.Context, loc gateway.Location, data []byte) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

// Options configures a Registry.
type Options struct {
	// ManifestFile overrides the remote manifest filename.
	ManifestFile string
	// Format is used when no manifest exists yet.
	Format Format
	NewID  func() string
	Logger *slog.Logger
}

// Registry is the ordered list of decks plus the active pointer. The active
// pointer always names a member, or is empty when there are no decks.
type Registry struct {
	store    Store
	validate *validator.Validate
	log      *slog.Logger
	newID    func() string
	manifest gateway.Location

	mu     sync.Mutex
	decks  []domain.Deck
	format Format
	active string
}

// New creates an empty Registry. Call Load to read the stored one.
func New(store Store, opts Options) *Registry {
	r := &Registry{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      opts.Logger,
		newID:    opts.NewID,
		manifest: manifestLocation,
		format:   opts.Format,
	}
	if opts.ManifestFile != "" {
		r.manifest.File = opts.ManifestFile
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// Load reads the manifest and the active pointer, repairing the pointer if
// it names a deck that no longer exists.
func (r *Registry) Load(ctx context.Context) error {
	data, found, err := r.store.LoadDocument(ctx, r.manifest)
	if err != nil {
		return fmt.Errorf("failed to load deck manifest: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.decks = nil
	if found {
		decks, format, err := decodeManifest(data)
		if err != nil {
			r.log.Warn("deck manifest is malformed, starting empty", "error", err)
		} else {
			r.decks = dedupe(decks)
			r.format = format
		}
	}

	active, found, err := r.store.LoadDocument(ctx, activeLocation)
	if err != nil {
		return fmt.Errorf("failed to load active deck: %w", err)
	}
	r.active = ""
	if found {
		r.active = strings.TrimSpace(string(active))
	}
	if r.repairActive() {
		return r.saveActive(ctx)
	}
	return nil
}

// List returns the decks in display order.
func (r *Registry) List() []domain.Deck {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.decks)
}

// Active returns the active deck. ok is false when there are no decks.
func (r *Registry) Active() (domain.Deck, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(r.active)
	if i < 0 {
		return domain.Deck{}, false
	}
	return r.decks[i], true
}

// Find looks a deck up by id, then by name.
func (r *Registry) Find(idOrName string) (domain.Deck, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(idOrName); i >= 0 {
		return r.decks[i], true
	}
	if i := r.indexByName(idOrName); i >= 0 {
		return r.decks[i], true
	}
	return domain.Deck{}, false
}

// Create adds a deck. The first deck created becomes active.
func (r *Registry) Create(ctx context.Context, name string) (domain.Deck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, err := r.checkName(name, "")
	if err != nil {
		return domain.Deck{}, err
	}
	deck := domain.Deck{ID: r.newID(), Name: name}
	if r.format == FormatNames {
		deck.ID = name
	}
	if err := r.validate.Struct(deck); err != nil {
		return domain.Deck{}, fmt.Errorf("invalid deck: %w", err)
	}

	r.decks = append(r.decks, deck)
	if err := r.saveManifest(ctx); err != nil {
		r.decks = r.decks[:len(r.decks)-1]
		return domain.Deck{}, err
	}
	if r.active == "" {
		r.active = deck.ID
		if err := r.saveActive(ctx); err != nil {
			return deck, err
		}
	}
	r.log.Info("created deck", "id", deck.ID, "name", deck.Name)
	return deck, nil
}

// Rename changes a deck's display name. Decks stored as bare names cannot be
// renamed because the name is their id.
func (r *Registry) Rename(ctx context.Context, id, name string) (domain.Deck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return domain.Deck{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.format == FormatNames {
		return domain.Deck{}, fmt.Errorf("decks stored by name cannot be renamed")
	}
	name, err := r.checkName(name, id)
	if err != nil {
		return domain.Deck{}, err
	}
	deck := domain.Deck{ID: id, Name: name}
	if err := r.validate.Struct(deck); err != nil {
		return domain.Deck{}, fmt.Errorf("invalid deck: %w", err)
	}

	old := r.decks[i]
	r.decks[i] = deck
	if err := r.saveManifest(ctx); err != nil {
		r.decks[i] = old
		return domain.Deck{}, err
	}
	return deck, nil
}

// Delete removes a deck and its cards. Deleting the active deck promotes
// the first remaining deck; deleting the last leaves no active deck.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := r.decks[i]
	r.decks = slices.Delete(r.decks, i, i+1)
	if err := r.saveManifest(ctx); err != nil {
		r.decks = slices.Insert(r.decks, i, removed)
		return err
	}
	var errs []error
	if err := r.store.DeleteNamespace(ctx, removed.ID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete cards of deck %s: %w", removed.ID, err))
	} else {
		r.log.Info("deleted deck", "id", removed.ID, "name", removed.Name)
	}

	// The deck is gone from the manifest either way.
	if r.repairActive() {
		if err := r.saveActive(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetActive makes id the active deck.
func (r *Registry) SetActive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index(id) < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.active == id {
		return nil
	}
	r.active = id
	return r.saveActive(ctx)
}

// EnsureDefault creates a deck called name when the registry is empty and
// returns the active deck.
func (r *Registry) EnsureDefault(ctx context.Context, name string) (domain.Deck, error) {
	if deck, ok := r.Active(); ok {
		return deck, nil
	}
	if _, err := r.Create(ctx, name); err != nil {
		return domain.Deck{}, err
	}
	deck, _ := r.Active()
	return deck, nil
}

func (r *Registry) checkName(name, selfID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if i := r.indexByName(name); i >= 0 && r.decks[i].ID != selfID {
		return "", fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	return name, nil
}

// repairActive points active at a member. It reports whether it changed.
func (r *Registry) repairActive() bool {
	if r.active != "" && r.index(r.active) >= 0 {
		return false
	}
	next := ""
	if len(r.decks) > 0 {
		next = r.decks[0].ID
	}
	changed := next != r.active
	r.active = next
	return changed
}

func (r *Registry) index(id string) int {
	return slices.IndexFunc(r.decks, func(d domain.Deck) bool { return d.ID == id })
}

func (r *Registry) indexByName(name string) int {
	return slices.IndexFunc(r.decks, func(d domain.Deck) bool { return strings.EqualFold(d.Name, name) })
}

func (r *Registry) saveManifest(ctx context.Context) error {
	data, err := encodeManifest(r.decks, r.format)
	if err != nil {
		return fmt.Errorf("failed to encode deck manifest: %w", err)
	}
	if err := r.store.SaveDocument(ctx, r.manifest, data); err != nil {
		return fmt.Errorf("failed to save deck manifest: %w", err)
	}
	return nil
}

func (r *Registry) saveActive(ctx context.Context) error {
	if err := r.store.SaveDocument(ctx, activeLocation, []byte(r.active)); err != nil {
		return fmt.Errorf("failed to save active deck: %w", err)
	}
	return nil
}

// dedupe drops later decks that reuse an id or a name.
func dedupe(decks []domain.Deck) []domain.Deck {
	out := decks[:0]
	ids := make(map[string]bool, len(decks))
	names := make(map[string]bool, len(decks))
	for _, d := range decks {
		name := strings.ToLower(d.Name)
		if ids[d.ID] || names[name] {
			continue
		}
		ids[d.ID], names[name] = true, true
		out = append(out, d)
	}
	return out
}
