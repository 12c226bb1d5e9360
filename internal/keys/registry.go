package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/chainsync/internal/encryption"
	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// Tag is the chain tag registrations are written under.
const Tag = "key"

// Registration announces that a key was put into service.
type Registration struct {
	KeyID        string        `json:"key_id"`
	Host         record.HostID `json:"host"`
	RegisteredAt time.Time     `json:"registered_at"`
	// Previous is the id of the key this one replaces. It is empty for the
	// first key of a fleet.
	Previous string `json:"previous,omitempty"`

	// RecordID is the id of the record carrying the registration.
	RecordID record.ID `json:"-"`
}

// Registry reads and writes registrations in a Store.
type Registry struct {
	store store.Store
	enc   *encryption.Registry
	clock clockwork.Clock
	newID func() record.ID
}

// NewRegistry returns a Registry over st.
func NewRegistry(st store.Store, clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		store: st,
		enc:   encryption.Default(),
		clock: clock,
		newID: record.NewID,
	}
}

// Current returns the key currently in service, or nil if no key was ever
// registered.
//
// Registrations are replayed in (RegisteredAt, record id) order. The first one
// seeds the lineage; after that only a registration whose Previous is the
// current key moves it forward. Anything else, such as a second host
// bootstrapping its own key or a rotation that lost a race, is ignored.
func (r *Registry) Current(ctx context.Context) (*Registration, error) {
	rs, err := r.store.AllTagged(ctx, Tag)
	if err != nil {
		return nil, fmt.Errorf("load key registrations: %w", err)
	}

	regs := make([]Registration, 0, len(rs))
	for _, rec := range rs {
		reg, err := r.decode(rec)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return before(regs[i], regs[j]) })

	var cur *Registration
	for i := range regs {
		reg := regs[i]
		switch {
		case cur == nil:
			cur = &reg
		case reg.KeyID == cur.KeyID:
		case reg.Previous == cur.KeyID:
			cur = &reg
		default:
			slog.Debug("ignoring key registration outside the lineage",
				"key", reg.KeyID, "previous", reg.Previous, "host", reg.Host, "current", cur.KeyID)
		}
	}
	return cur, nil
}

func before(a, b Registration) bool {
	if !a.RegisteredAt.Equal(b.RegisteredAt) {
		return a.RegisteredAt.Before(b.RegisteredAt)
	}
	return a.RecordID < b.RecordID
}

func (r *Registry) decode(rec store.Record) (Registration, error) {
	// registrations use the none scheme, so no key is needed
	dec, err := r.enc.DecryptRecord(rec, encryption.Key{})
	if err != nil {
		return Registration{}, fmt.Errorf("key registration %s: %w", rec, err)
	}
	var reg Registration
	if err := json.Unmarshal(dec.Data, &reg); err != nil {
		return Registration{}, fmt.Errorf("key registration %s: %w", rec, err)
	}
	reg.RecordID = rec.ID
	return reg, nil
}

// Register appends a first registration of key to host's key chain. It only
// takes effect if no key is in service yet.
func (r *Registry) Register(ctx context.Context, host record.HostID, key encryption.Key) (Registration, error) {
	return r.write(ctx, Registration{KeyID: key.ID(), Host: host})
}

// Supersede registers newKey as the replacement of oldKey.
func (r *Registry) Supersede(ctx context.Context, host record.HostID, oldKey, newKey encryption.Key) (Registration, error) {
	return r.write(ctx, Registration{KeyID: newKey.ID(), Host: host, Previous: oldKey.ID()})
}

func (r *Registry) write(ctx context.Context, reg Registration) (Registration, error) {
	reg.RegisteredAt = r.clock.Now().UTC()
	payload, err := json.Marshal(reg)
	if err != nil {
		return Registration{}, fmt.Errorf("encode key registration: %w", err)
	}

	tail, err := r.store.Last(ctx, reg.Host, Tag)
	if err != nil {
		return Registration{}, fmt.Errorf("register key: %w", err)
	}
	b := &record.Builder{Host: reg.Host, Version: record.Version, Clock: r.clock, NewID: r.newID}
	rec, err := r.enc.EncryptRecord(encryption.NoneName, b.Next(Tag, tail, payload), encryption.Key{})
	if err != nil {
		return Registration{}, fmt.Errorf("register key: %w", err)
	}
	if err := r.store.Push(ctx, rec); err != nil {
		return Registration{}, fmt.Errorf("register key: %w", err)
	}

	reg.RecordID = rec.ID
	slog.Info("registered encryption key", "key", reg.KeyID, "previous", reg.Previous, "host", reg.Host, "record", rec.ID)
	return reg, nil
}

// StatusSource reports which chains a replica holds. remote.Client and
// store.Store both satisfy it.
type StatusSource interface {
	Status(ctx context.Context) (record.Status, error)
}

// Guard refuses keys that are not the current registration.
type Guard struct {
	Registry *Registry
	Host     record.HostID
	// Remote, if set, is asked whether any host has registered a key before
	// this one bootstraps its own.
	Remote StatusSource
}

// NewGuard returns a Guard that bootstraps registrations as host.
func NewGuard(reg *Registry, host record.HostID, remote StatusSource) *Guard {
	return &Guard{Registry: reg, Host: host, Remote: remote}
}

// Check returns nil if key is the current key. With no registration yet, key
// is registered and accepted, unless Remote already holds registrations, in
// which case ErrUnsyncedRegistry is returned. Otherwise it returns a
// *KeyError.
func (g *Guard) Check(ctx context.Context, key encryption.Key) error {
	cur, err := g.Registry.Current(ctx)
	if err != nil {
		return err
	}
	if cur == nil {
		if err := g.checkRemote(ctx); err != nil {
			return err
		}
		_, err := g.Registry.Register(ctx, g.Host, key)
		return err
	}
	if cur.KeyID != key.ID() {
		return &KeyError{Want: cur.KeyID, Got: key.ID()}
	}
	return nil
}

func (g *Guard) checkRemote(ctx context.Context) error {
	if g.Remote == nil {
		return nil
	}
	status, err := g.Remote.Status(ctx)
	if err != nil {
		return fmt.Errorf("check remote key registrations: %w", err)
	}
	for _, c := range status.Chains() {
		if c.Tag == Tag {
			return fmt.Errorf("%w: host %s registered a key", ErrUnsyncedRegistry, c.Host)
		}
	}
	return nil
}
