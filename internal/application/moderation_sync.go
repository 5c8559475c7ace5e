package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

var ErrModerationClosed = errors.New("moderation sync closed")

// ModerationUpdate carries a list after it changed.
type ModerationUpdate struct {
	Kind domain.ListKind
	IDs  []string
}

// ModerationSync keeps the blocked and muted lists. The remote account data
// is authoritative while an authenticated client is live; otherwise the
// local cache in the credential store is.
//
// Remote writes replace the whole list. Two clients editing the same list
// concurrently race and the last write wins.
type ModerationSync struct {
	sessions SessionSource
	store    ports.CredentialStore
	logger   zerolog.Logger

	// ops serializes add/remove within this process.
	ops sync.Mutex

	mu         sync.Mutex
	client     ports.ChatClient
	sessionSeq uint64
	views      map[domain.ListKind][]string
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc
	sessionSub ports.Subscription
	wg         sync.WaitGroup
	listeners  listeners[ModerationUpdate]
}

func NewModerationSync(sessions SessionSource, store ports.CredentialStore, logger zerolog.Logger) *ModerationSync {
	ctx, cancel := context.WithCancel(context.Background())
	s := &ModerationSync{
		sessions: sessions,
		store:    store,
		logger:   logger.With().Str("component", "moderation").Logger(),
		views:    map[domain.ListKind][]string{},
		ctx:      ctx,
		cancel:   cancel,
	}
	if client, ok := sessions.Client(); ok && client.Authenticated() {
		s.client = client
	}
	s.sessionSub = sessions.Subscribe(s.onSession)
	return s
}

// Open loads both lists and, when the store can report external changes,
// follows them.
func (s *ModerationSync) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrModerationClosed
	}
	s.mu.Unlock()

	s.refreshAll(ctx)

	watcher, ok := s.store.(ports.CredentialWatcher)
	if !ok {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrModerationClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := watcher.Watch(s.ctx, s.onLocalChange); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Msg("watch local lists")
		}
	}()
	return nil
}

func (s *ModerationSync) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.sessionSub.Close()
	s.cancel()
	s.wg.Wait()
}

func (s *ModerationSync) Subscribe(fn func(ModerationUpdate)) ports.Subscription {
	return s.listeners.add(fn)
}

// Get returns the current list. Remote failures fall back to the local
// cache, so only an unknown kind is an error.
func (s *ModerationSync) Get(ctx context.Context, kind domain.ListKind) ([]string, error) {
	spec, err := domain.SpecFor(kind)
	if err != nil {
		return nil, err
	}

	ids, _ := s.load(ctx, spec)
	s.setView(kind, ids)
	return slices.Clone(ids), nil
}

// Add puts id on the list. Adding a present id is a no-op.
func (s *ModerationSync) Add(ctx context.Context, kind domain.ListKind, id string) ([]string, error) {
	return s.update(ctx, kind, id, func(ids []string) ([]string, bool) {
		if slices.Contains(ids, id) {
			return ids, false
		}
		return append(slices.Clone(ids), id), true
	})
}

// Remove takes id off the list. Removing an absent id is a no-op.
func (s *ModerationSync) Remove(ctx context.Context, kind domain.ListKind, id string) ([]string, error) {
	return s.update(ctx, kind, id, func(ids []string) ([]string, bool) {
		idx := slices.Index(ids, id)
		if idx < 0 {
			return ids, false
		}
		return slices.Delete(slices.Clone(ids), idx, idx+1), true
	})
}

// IsBlocked answers from the in-memory view without I/O.
func (s *ModerationSync) IsBlocked(userID string) bool {
	return s.Contains(domain.ListBlocked, userID)
}

func (s *ModerationSync) IsMuted(userID string) bool {
	return s.Contains(domain.ListMuted, userID)
}

func (s *ModerationSync) Contains(kind domain.ListKind, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.views[kind], userID)
}

type listEdit func(ids []string) ([]string, bool)

func (s *ModerationSync) update(ctx context.Context, kind domain.ListKind, id string, edit listEdit) ([]string, error) {
	spec, err := domain.SpecFor(kind)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateUserID(id); err != nil {
		return nil, err
	}

	s.ops.Lock()
	defer s.ops.Unlock()

	current, remote := s.load(ctx, spec)
	next, changed := edit(current)
	if !changed {
		s.setView(kind, current)
		return slices.Clone(current), nil
	}

	if err := s.commit(ctx, spec, remote, next); err != nil {
		return nil, err
	}

	s.setView(kind, next)
	s.logger.Info().Str("list", string(kind)).Str("user_id", id).Int("size", len(next)).Msg("list updated")
	return slices.Clone(next), nil
}

// load reads the list and returns the remote client when the remote store
// may be written back to: either it answered or it has no entry yet.
func (s *ModerationSync) load(ctx context.Context, spec domain.ListSpec) ([]string, ports.ChatClient) {
	client := s.liveClient()
	if client != nil {
		ids, err := s.readRemote(ctx, client, spec)
		if err == nil {
			return ids, client
		}
		if errors.Is(err, domain.ErrAccountDataNotFound) {
			return s.readLocal(ctx, spec), client
		}
		s.logger.Warn().Err(err).Str("list", string(spec.Kind)).Msg("remote list unavailable, using local cache")
	}
	return s.readLocal(ctx, spec), nil
}

func (s *ModerationSync) commit(ctx context.Context, spec domain.ListSpec, remote ports.ChatClient, ids []string) error {
	var remoteErr error
	if remote != nil {
		if err := remote.SetAccountData(ctx, spec.AccountDataType, domain.EncodeUserList(spec.Field, ids)); err != nil {
			remoteErr = fmt.Errorf("%w: write %s: %w", domain.ErrRemoteSyncFailure, spec.AccountDataType, err)
			s.logger.Warn().Err(remoteErr).Msg("remote list write failed, writing local cache")
		}
	}

	if err := s.writeLocal(ctx, spec, ids); err != nil {
		if remote != nil && remoteErr == nil {
			s.logger.Debug().Err(err).Str("list", string(spec.Kind)).Msg("local cache write-through failed")
			return nil
		}
		return fmt.Errorf("write local %s list: %w", spec.Kind, errors.Join(remoteErr, err))
	}
	return nil
}

func (s *ModerationSync) readRemote(ctx context.Context, client ports.ChatClient, spec domain.ListSpec) ([]string, error) {
	raw, err := client.AccountData(ctx, spec.AccountDataType)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", spec.AccountDataType, err)
	}
	return domain.DecodeUserList(raw, spec.Field), nil
}

func (s *ModerationSync) readLocal(ctx context.Context, spec domain.ListSpec) []string {
	raw, err := s.store.Get(ctx, spec.StorageKey)
	if err != nil {
		if !errors.Is(err, domain.ErrCredentialNotFound) {
			s.logger.Warn().Err(err).Str("list", string(spec.Kind)).Msg("read local list")
		}
		return []string{}
	}
	return domain.DecodeUserList([]byte(raw), spec.Field)
}

func (s *ModerationSync) writeLocal(ctx context.Context, spec domain.ListSpec, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode %s list: %w", spec.Kind, err)
	}
	return s.store.Put(ctx, spec.StorageKey, string(raw))
}

func (s *ModerationSync) liveClient() ports.ChatClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *ModerationSync) setView(kind domain.ListKind, ids []string) {
	s.mu.Lock()
	if s.closed || slices.Equal(s.views[kind], ids) {
		s.mu.Unlock()
		return
	}
	s.views[kind] = slices.Clone(ids)
	s.mu.Unlock()

	s.listeners.notify(ModerationUpdate{Kind: kind, IDs: slices.Clone(ids)})
}

func (s *ModerationSync) refreshAll(ctx context.Context) {
	for _, kind := range domain.ListKinds() {
		if _, err := s.Get(ctx, kind); err != nil {
			s.logger.Warn().Err(err).Str("list", string(kind)).Msg("refresh list")
		}
	}
}

func (s *ModerationSync) onSession(ev SessionEvent) {
	var client ports.ChatClient
	if ev.Client != nil && ev.Client.Authenticated() {
		client = ev.Client
	}

	s.mu.Lock()
	if s.closed || ev.Seq <= s.sessionSeq {
		s.mu.Unlock()
		return
	}
	s.sessionSeq = ev.Seq
	if client == s.client {
		s.mu.Unlock()
		return
	}
	s.client = client
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.refreshAll(s.ctx)
	}()
}

// onLocalChange reloads a list whose local cache changed outside this
// process. While remote is authoritative the change is ignored.
func (s *ModerationSync) onLocalChange(key string) {
	if s.liveClient() != nil {
		return
	}
	for _, kind := range domain.ListKinds() {
		spec, _ := domain.SpecFor(kind)
		if spec.StorageKey != key {
			continue
		}
		s.setView(kind, s.readLocal(s.ctx, spec))
	}
}
