// Package keyrecovery implements the Key Recovery Service (spec §4.5): an
// items-key that arrives undecryptable is persisted and queued rather than
// discarded, and is worked off a FIFO one password-prompt at a time until
// either it decrypts under a freshly-derived root key or the account's own
// credentials are known to have moved on without it.
//
// Grounded on gosn-v2's DecryptAndParseItemsKeys
// (other_examples/jonhadfield-gosn-v2__items.go), which treats an
// undecryptable items key as a distinct recoverable case rather than a
// hard failure, generalized here into the full queue-drain state machine
// spec §4.5 describes.
package keyrecovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/eidolon-labs/notesync/internal/client/crypto"
	"github.com/eidolon-labs/notesync/internal/client/keys"
	"github.com/eidolon-labs/notesync/internal/client/lifecycle"
	"github.com/eidolon-labs/notesync/internal/client/manager"
	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/client/protocol"
	"github.com/eidolon-labs/notesync/internal/client/session"
	"github.com/eidolon-labs/notesync/internal/client/storage"
	"github.com/eidolon-labs/notesync/internal/client/transport"
	"github.com/eidolon-labs/notesync/internal/logging"
)

// ChallengePrompter is the out-of-band collaborator that asks the host
// application for a password (spec §6 "challenge UI prompts"). A false
// second return cancels the operation that requested it (spec §5
// "a challenge prompt returning null cancels the operation").
type ChallengePrompter interface {
	PromptForPassword(ctx context.Context, reason string) (password string, ok bool)
}

// DecryptionQueueItem is one pending recovery attempt: the undecryptable
// items-key payload plus the KeyParams candidate believed to unwrap it.
type DecryptionQueueItem struct {
	Key       payload.Payload
	KeyParams keys.KeyParams
	Attempts  int
}

// Service owns the FIFO decryption queue and the single in-process mutex
// guarding it (spec §5 "isProcessingQueue"). It subscribes to the Payload
// Manager as an Observer so every items-key arrival is inspected without
// the sync engine needing to know key recovery exists.
type Service struct {
	log       logging.Logger
	storage   *storage.Service
	auth      transport.AuthTransport
	sessionSvc *session.Service
	payloads  *manager.PayloadManager
	bus       *lifecycle.Bus
	prompter  ChallengePrompter

	requestIntegritySync func(context.Context) error

	mu           sync.Mutex
	processing   bool
	queue        []DecryptionQueueItem
	serverParams *keys.KeyParams
}

func NewService(
	log logging.Logger,
	store *storage.Service,
	auth transport.AuthTransport,
	sessionSvc *session.Service,
	payloads *manager.PayloadManager,
	bus *lifecycle.Bus,
	prompter ChallengePrompter,
	requestIntegritySync func(context.Context) error,
) *Service {
	s := &Service{
		log:                  log,
		storage:              store,
		auth:                 auth,
		sessionSvc:           sessionSvc,
		payloads:             payloads,
		bus:                  bus,
		prompter:             prompter,
		requestIntegritySync: requestIntegritySync,
	}
	payloads.Subscribe(s)
	return s
}

// PayloadsEmitted implements manager.Observer. Any items-key payload
// arriving with errorDecrypting=true from a non-local source (spec §4.5
// "source ≠ local") is persisted and enqueued for recovery.
func (s *Service) PayloadsEmitted(r manager.EmitResult) {
	if r.Source == manager.SourceLocalChanged {
		return
	}
	for _, group := range [][]payload.Payload{r.Inserted, r.Changed, r.Ignored} {
		for _, p := range group {
			if p.ContentType == payload.ContentTypeItemsKey && p.ErrorDecrypting {
				// PayloadsEmitted fires synchronously from inside
				// EmitPayloads with no caller context, matching
				// lifecycle.Bus.safeDispatch's own context.Background()
				// use for the same reason.
				s.enqueue(context.Background(), p)
			}
		}
	}
}

// enqueue runs spec §4.5 steps 1-2: persist the key into isolated storage
// keyed by uuid so it survives restart, then append a queue item.
func (s *Service) enqueue(ctx context.Context, key payload.Payload) {
	items, err := s.storage.KeyRecoveryUndecryptableItems(ctx)
	if err != nil {
		s.log.Error(ctx, "key recovery: read undecryptable items", "error", err)
		items = map[string]payload.Payload{}
	}
	items[key.UUID] = key
	if err := s.storage.SetKeyRecoveryUndecryptableItems(ctx, items); err != nil {
		s.log.Error(ctx, "key recovery: persist undecryptable item", "uuid", key.UUID, "error", err)
	}

	version, _ := crypto.VersionOf(key.Content)
	s.mu.Lock()
	s.queue = append(s.queue, DecryptionQueueItem{Key: key, KeyParams: keys.KeyParams{Version: version}})
	s.mu.Unlock()

	s.bus.Publish(lifecycle.KeyStatusChanged, map[string]interface{}{"uuid": key.UUID, "queued": true})
}

// Restore reloads any undecryptable items persisted from a previous
// process into the queue, run once at launch before the first
// ProcessQueue call (spec §4.5 step 1 "survives restart").
func (s *Service) Restore(ctx context.Context) error {
	items, err := s.storage.KeyRecoveryUndecryptableItems(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for uuid, key := range items {
		already := false
		for _, q := range s.queue {
			if q.Key.UUID == uuid {
				already = true
				break
			}
		}
		if already {
			continue
		}
		version, _ := crypto.VersionOf(key.Content)
		s.queue = append(s.queue, DecryptionQueueItem{Key: key, KeyParams: keys.KeyParams{Version: version}})
	}
	return nil
}

// Len reports how many items are currently queued for recovery.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ProcessQueue runs spec §4.5 steps 3-6 to completion: fetch server key
// params, sign in if no credentials exist locally, attempt each queued
// item in turn (prompting for a password per item), and once drained
// force a corrective sign-in or integrity sync if still needed. A single
// in-process flag guards against concurrent drains; a second call made
// while one is already running is a no-op.
func (s *Service) ProcessQueue(ctx context.Context, email string) error {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return nil
	}
	s.processing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	s.fetchServerParams(ctx, email)

	if _, ok := s.sessionSvc.RootKey(); !ok {
		if err := s.bootstrapSignIn(ctx, email); err != nil {
			return err
		}
	}

	recovered := 0
	// Each queued item gets exactly one attempt per ProcessQueue call — a
	// wrong password re-enqueues the item for a later call rather than
	// spinning the prompter in a tight retry loop against the same queue
	// length.
	for remaining := s.Len(); remaining > 0; remaining-- {
		item, ok := s.popFront()
		if !ok {
			break
		}

		password, ok := s.prompter.PromptForPassword(ctx, fmt.Sprintf("enter your password to recover key %s", item.Key.UUID))
		if !ok {
			// Cancellation aborts this drain; the item returns to the
			// front of the queue for the next attempt.
			s.pushFront(item)
			return nil
		}

		kp := item.KeyParams
		s.mu.Lock()
		if s.serverParams != nil {
			kp = *s.serverParams
		}
		s.mu.Unlock()

		candidate, err := keys.DeriveRootKey(password, kp)
		if err != nil {
			item.Attempts++
			s.pushBack(item)
			continue
		}

		scratch := protocol.NewService(s.log, nil)
		scratch.SetRootKey(&candidate)
		decrypted, err := scratch.Decrypt(ctx, item.Key)
		if err != nil || decrypted.ErrorDecrypting || decrypted.WaitingForKey {
			item.Attempts++
			s.pushBack(item)
			continue
		}

		s.forgetUndecryptable(ctx, item.Key.UUID)
		recovered++

		if s.matchesServerParams(kp) && s.isNewerThanAnyLocalItemsKey(decrypted) {
			s.installReplacementRootKey(ctx, &candidate)
			recovered += s.drainSharingParams(ctx, kp)
		}

		s.payloads.EmitPayloads([]payload.Payload{decrypted}, manager.SourceLocalChanged)
		s.bus.Publish(lifecycle.KeyStatusChanged, map[string]interface{}{"uuid": item.Key.UUID, "recovered": true})
	}

	return s.onDrained(ctx, email, recovered)
}

// onDrained implements spec §4.5 step 6: once the queue is empty, force a
// corrective sign-in if the server's key params are still ahead of the
// client's, and trigger an integrity sync if anything was actually
// recovered this round (newly-recovered items keys can unlock payloads
// that were saved locally but never successfully decrypted — an
// out-of-sync condition only this round's own recoveries could have
// caused).
func (s *Service) onDrained(ctx context.Context, email string, recovered int) error {
	s.mu.Lock()
	serverParams := s.serverParams
	s.mu.Unlock()

	if serverParams != nil {
		rk, ok := s.sessionSvc.RootKey()
		if !ok || rk.Params.Version != serverParams.Version || rk.Params.PwNonce != serverParams.PwNonce {
			password, ok := s.prompter.PromptForPassword(ctx, "re-enter your password to finish key recovery")
			if ok {
				if err := s.sessionSvc.SignIn(ctx, email, password); err != nil {
					s.log.Warn(ctx, "key recovery: corrective sign-in failed", "error", err)
				}
			}
		}
	}

	if recovered > 0 && s.requestIntegritySync != nil {
		if err := s.requestIntegritySync(ctx); err != nil {
			s.log.Warn(ctx, "key recovery: post-recovery integrity sync failed", "error", err)
		}
	}
	return nil
}

// bootstrapSignIn implements spec §4.5 step 4: with no local credentials
// at all, prompt for a password and sign in through session.Service.SignIn,
// whose root key becomes the active one. SignIn derives that key from the
// key params it fetches from the server; the queued key's own embedded
// params are not used for this sign-in.
func (s *Service) bootstrapSignIn(ctx context.Context, email string) error {
	password, ok := s.prompter.PromptForPassword(ctx, "sign in to continue key recovery")
	if !ok {
		return nil
	}
	return s.sessionSvc.SignIn(ctx, email, password)
}

// fetchServerParams implements spec §4.5 step 3: fetch the server's
// current key params and record them only if they're at least as new as
// the account's currently-active root key version (a stale/rolled-back
// server response must never regress what the client already trusts).
func (s *Service) fetchServerParams(ctx context.Context, email string) {
	wireKP, err := s.auth.KeyParams(ctx, transport.KeyParamsRequest{Email: email})
	if err != nil {
		s.log.Warn(ctx, "key recovery: fetch server key params", "error", err)
		return
	}
	kp := wireKP.ToDomain()

	localVersion := kp.Version
	if rk, ok := s.sessionSvc.RootKey(); ok {
		localVersion = rk.Params.Version
	}
	if crypto.Compare(kp.Version, localVersion) < 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverParams = &kp
}

func (s *Service) matchesServerParams(kp keys.KeyParams) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverParams != nil && s.serverParams.Version == kp.Version && s.serverParams.PwNonce == kp.PwNonce
}

// isNewerThanAnyLocalItemsKey approximates spec §4.5's "newer than any
// locally-valid items key" by comparing the recovered key's updatedAt
// against every SN|ItemsKey payload already held in the master
// collection — the closest proxy available without the Item Manager
// tracking a separate "currently valid" key set.
func (s *Service) isNewerThanAnyLocalItemsKey(decrypted payload.Payload) bool {
	for _, p := range s.payloads.All() {
		if p.ContentType != payload.ContentTypeItemsKey || p.UUID == decrypted.UUID {
			continue
		}
		if !p.ErrorDecrypting && !p.UpdatedAt.Before(decrypted.UpdatedAt) {
			return false
		}
	}
	return true
}

// installReplacementRootKey installs candidate as the active root key.
// Wrapping it under a current passcode (spec §4.5 "wrapping with current
// passcode if present") is out of scope here: this codebase never persists
// a wrapped root key anywhere else either (session.Service keeps RootKey
// in process memory only), so there is nothing for this step to hand off
// to — see DESIGN.md.
func (s *Service) installReplacementRootKey(ctx context.Context, candidate *keys.RootKey) {
	s.sessionSvc.InstallRootKey(candidate)
	if _, ok, err := s.storage.RootKeyWrapperParams(ctx); err == nil && ok {
		s.log.Info(ctx, "key recovery: passcode wrapper present, root key installed unwrapped in memory only")
	}
}

// drainSharingParams pulls every remaining queued item whose KeyParams
// match kp out of the queue and decrypts+emits them immediately, per
// spec §4.5 "emit decrypted key and any others in the queue sharing those
// params" — they're already known-good candidates once one key under the
// same params has proven itself.
func (s *Service) drainSharingParams(ctx context.Context, kp keys.KeyParams) int {
	rk, ok := s.sessionSvc.RootKey()
	if !ok {
		return 0
	}
	scratch := protocol.NewService(s.log, nil)
	scratch.SetRootKey(rk)

	s.mu.Lock()
	var remaining []DecryptionQueueItem
	var matched []DecryptionQueueItem
	for _, q := range s.queue {
		if q.KeyParams.Version == kp.Version && q.KeyParams.PwNonce == kp.PwNonce {
			matched = append(matched, q)
		} else {
			remaining = append(remaining, q)
		}
	}
	s.queue = remaining
	s.mu.Unlock()

	count := 0
	for _, q := range matched {
		decrypted, err := scratch.Decrypt(ctx, q.Key)
		if err != nil || decrypted.ErrorDecrypting || decrypted.WaitingForKey {
			s.pushBack(q)
			continue
		}
		s.forgetUndecryptable(ctx, q.Key.UUID)
		s.payloads.EmitPayloads([]payload.Payload{decrypted}, manager.SourceLocalChanged)
		count++
	}
	return count
}

func (s *Service) forgetUndecryptable(ctx context.Context, uuid string) {
	items, err := s.storage.KeyRecoveryUndecryptableItems(ctx)
	if err != nil {
		s.log.Error(ctx, "key recovery: read undecryptable items", "error", err)
		return
	}
	if _, ok := items[uuid]; !ok {
		return
	}
	delete(items, uuid)
	if err := s.storage.SetKeyRecoveryUndecryptableItems(ctx, items); err != nil {
		s.log.Error(ctx, "key recovery: clear undecryptable item", "uuid", uuid, "error", err)
	}
}

func (s *Service) popFront() (DecryptionQueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return DecryptionQueueItem{}, false
	}
	item := s.queue[0]
	s.queue = s.queue[1:]
	return item, true
}

func (s *Service) pushFront(item DecryptionQueueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append([]DecryptionQueueItem{item}, s.queue...)
}

func (s *Service) pushBack(item DecryptionQueueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, item)
}
