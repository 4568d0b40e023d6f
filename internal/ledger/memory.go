package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/attaboy/seamless/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store for tests and LEDGER_DRIVER=memory runs.
//
// Writes inside InTx are staged and applied on commit. Create reserves its
// ext id immediately, like a unique index entry, so a concurrent scope with the
// same key fails before it reaches the wallet. SettleBet takes a row-lock style
// reservation: a second scope waits for the holder to commit or roll back.
type MemoryStore struct {
	mu       sync.Mutex
	seq      int64
	players  map[string]*domain.Player
	records  map[string]*memRecord
	reserved map[string]chan struct{}
	outbox   []memOutbox
	outSeq   int64
}

type memRecord struct {
	seq int64
	rec domain.TransactionRecord
}

type memOutbox struct {
	row       domain.OutboxRow
	published bool
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players:  make(map[string]*domain.Player),
		records:  make(map[string]*memRecord),
		reserved: make(map[string]chan struct{}),
	}
}

// reversalKey mirrors the partial unique index on (provider, provider_txn_id, leg)
// for cancel and rollback legs.
func reversalKey(rec *domain.TransactionRecord) string {
	if rec.Kind != domain.TxCancel && rec.Kind != domain.TxRollback {
		return ""
	}
	leg := rec.Leg
	if leg <= 0 {
		leg = 1
	}
	return fmt.Sprintf("reversal\x00%s\x00%s\x00%d", rec.Provider, rec.ProviderTxnID, leg)
}

func (s *MemoryStore) hasReversalLocked(rec *domain.TransactionRecord) bool {
	want := reversalKey(rec)
	for _, m := range s.records {
		if reversalKey(&m.rec) == want {
			return true
		}
	}
	return false
}

func recordKey(provider, extID string) string { return provider + "\x00" + extID }

func (s *MemoryStore) PlayerByPlayID(_ context.Context, provider, playID string) (*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[recordKey(provider, playID)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpsertPlayer(_ context.Context, params domain.UpsertPlayerParams) (*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	key := recordKey(params.Provider, params.PlayID)
	p, ok := s.players[key]
	if !ok {
		p = &domain.Player{
			ID:        uuid.New(),
			Provider:  params.Provider,
			PlayID:    params.PlayID,
			Currency:  params.Currency,
			CreatedAt: now,
		}
		s.players[key] = p
	}
	p.Username = params.Username
	if params.Token != nil {
		token := *params.Token
		p.Token = &token
	}
	p.UpdatedAt = now
	s.appendOutboxLocked(domain.NewPlayerLaunchedEvent(p))

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) FindByExtID(_ context.Context, provider, extID string) (*domain.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(provider, extID), nil
}

func (s *MemoryStore) ListByProviderTxnID(_ context.Context, provider, providerTxnID string) ([]domain.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(provider, providerTxnID, nil), nil
}

func (s *MemoryStore) findLocked(provider, extID string) *domain.TransactionRecord {
	m, ok := s.records[recordKey(provider, extID)]
	if !ok {
		return nil
	}
	cp := m.rec
	return &cp
}

func (s *MemoryStore) listLocked(provider, providerTxnID string, staged map[string]*memRecord) []domain.TransactionRecord {
	merged := make(map[string]*memRecord)
	for k, m := range s.records {
		if m.rec.Provider == provider && m.rec.ProviderTxnID == providerTxnID {
			merged[k] = m
		}
	}
	for k, m := range staged {
		if m.rec.Provider == provider && m.rec.ProviderTxnID == providerTxnID {
			merged[k] = m
		}
	}
	list := make([]*memRecord, 0, len(merged))
	for _, m := range merged {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	out := make([]domain.TransactionRecord, 0, len(list))
	for _, m := range list {
		out = append(out, m.rec)
	}
	return out
}

// Records returns every committed leg in insertion order.
func (s *MemoryStore) Records() []domain.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*memRecord, 0, len(s.records))
	for _, m := range s.records {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]domain.TransactionRecord, 0, len(list))
	for _, m := range list {
		out = append(out, m.rec)
	}
	return out
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{store: s, staged: make(map[string]*memRecord)}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	committed = true
	return nil
}

// FetchUnpublished implements infra.OutboxSource.
func (s *MemoryStore) FetchUnpublished(_ context.Context, limit int) ([]domain.OutboxRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []domain.OutboxRow
	for _, o := range s.outbox {
		if o.published {
			continue
		}
		rows = append(rows, o.row)
		if len(rows) == limit {
			break
		}
	}
	return rows, nil
}

// MarkPublished implements infra.OutboxSource.
func (s *MemoryStore) MarkPublished(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := make(map[int64]bool, len(ids))
	for _, id := range ids {
		marked[id] = true
	}
	for i := range s.outbox {
		if marked[s.outbox[i].row.SeqID] {
			s.outbox[i].published = true
		}
	}
	return nil
}

func (s *MemoryStore) appendOutboxLocked(draft domain.OutboxDraft) {
	s.outSeq++
	s.outbox = append(s.outbox, memOutbox{row: domain.OutboxRow{SeqID: s.outSeq, OutboxDraft: draft}})
}

type memTx struct {
	store    *MemoryStore
	staged   map[string]*memRecord
	reserved []string
	events   []domain.OutboxDraft
}

func (t *memTx) FindByExtID(_ context.Context, provider, extID string) (*domain.TransactionRecord, error) {
	if m, ok := t.staged[recordKey(provider, extID)]; ok {
		cp := m.rec
		return &cp, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.findLocked(provider, extID), nil
}

func (t *memTx) ListByProviderTxnID(_ context.Context, provider, providerTxnID string) ([]domain.TransactionRecord, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.listLocked(provider, providerTxnID, t.staged), nil
}

func (t *memTx) Create(_ context.Context, rec *domain.TransactionRecord) (*domain.TransactionRecord, error) {
	key := recordKey(rec.Provider, rec.ExtID)
	if _, ok := t.staged[key]; ok {
		return nil, domain.ErrTransactionAlreadyExists(rec.ExtID)
	}

	rkey := reversalKey(rec)

	t.store.mu.Lock()
	if _, held := t.store.reserved[key]; held {
		t.store.mu.Unlock()
		return nil, domain.ErrTransactionAlreadyExists(rec.ExtID)
	}
	if _, ok := t.store.records[key]; ok {
		t.store.mu.Unlock()
		return nil, domain.ErrTransactionAlreadyExists(rec.ExtID)
	}
	if _, held := t.store.reserved[rkey]; rkey != "" && (held || t.store.hasReversalLocked(rec)) {
		t.store.mu.Unlock()
		return nil, domain.ErrTransactionAlreadyExists(rec.ExtID)
	}
	t.store.reserved[key] = make(chan struct{})
	if rkey != "" {
		t.store.reserved[rkey] = make(chan struct{})
		t.reserved = append(t.reserved, rkey)
	}
	t.store.seq++
	seq := t.store.seq
	t.store.mu.Unlock()
	t.reserved = append(t.reserved, key)

	cp := *rec
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	if cp.Leg <= 0 {
		cp.Leg = 1
	}
	if len(cp.Metadata) == 0 {
		cp.Metadata = json.RawMessage(`{}`)
	}
	t.staged[key] = &memRecord{seq: seq, rec: cp}
	t.events = append(t.events, domain.NewTransactionRecordedEvent(&cp))

	out := cp
	return &out, nil
}

func (t *memTx) SettleBet(ctx context.Context, params domain.SettleParams) (*domain.TransactionRecord, error) {
	if err := t.lock(ctx, "settle\x00"+recordKey(params.Provider, params.ExtID)); err != nil {
		return nil, fmt.Errorf("lock %s: %w", params.ExtID, err)
	}

	existing, _ := t.FindByExtID(ctx, params.Provider, params.ExtID)
	if existing == nil {
		return t.createSettled(ctx, params)
	}
	if existing.Settled() && !params.Resettle {
		return nil, domain.ErrTransactionAlreadySettled(params.ExtID)
	}

	settledAt := params.SettledAt
	existing.WinAmount = params.WinAmount
	existing.SettledAt = &settledAt
	t.stage(existing)
	t.events = append(t.events, domain.NewTransactionSettledEvent(existing))

	out := *existing
	return &out, nil
}

func (t *memTx) createSettled(ctx context.Context, params domain.SettleParams) (*domain.TransactionRecord, error) {
	settledAt := params.SettledAt
	rec, err := t.Create(ctx, &domain.TransactionRecord{
		Provider:      params.Provider,
		ExtID:         params.ExtID,
		ProviderTxnID: params.ProviderTxnID,
		Kind:          domain.TxWager,
		PlayerID:      params.PlayerID,
		PlayID:        params.PlayID,
		Currency:      params.Currency,
		GameCode:      params.GameCode,
		RoundID:       params.RoundID,
		WinAmount:     params.WinAmount,
		SettledAt:     &settledAt,
	})
	if err != nil {
		return nil, err
	}
	t.events[len(t.events)-1] = domain.NewTransactionSettledEvent(rec)
	return rec, nil
}

func (t *memTx) SetBalanceAfter(ctx context.Context, provider, extID string, balance decimal.Decimal) error {
	existing, _ := t.FindByExtID(ctx, provider, extID)
	if existing == nil {
		return domain.ErrTransactionNotFound(extID)
	}
	existing.BalanceAfter = &balance
	t.stage(existing)
	return nil
}

// lock claims key for this scope, waiting while another open scope holds it.
func (t *memTx) lock(ctx context.Context, key string) error {
	for _, k := range t.reserved {
		if k == key {
			return nil
		}
	}
	for {
		t.store.mu.Lock()
		released, held := t.store.reserved[key]
		if !held {
			t.store.reserved[key] = make(chan struct{})
			t.store.mu.Unlock()
			t.reserved = append(t.reserved, key)
			return nil
		}
		t.store.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// stage overlays an updated copy of an existing record, keeping its position.
func (t *memTx) stage(rec *domain.TransactionRecord) {
	key := recordKey(rec.Provider, rec.ExtID)
	if m, ok := t.staged[key]; ok {
		t.staged[key] = &memRecord{seq: m.seq, rec: *rec}
		return
	}
	t.store.mu.Lock()
	seq := t.store.records[key].seq
	t.store.mu.Unlock()
	t.staged[key] = &memRecord{seq: seq, rec: *rec}
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for k, m := range t.staged {
		t.store.records[k] = m
	}
	t.releaseLocked()
	for _, e := range t.events {
		t.store.appendOutboxLocked(e)
	}
}

func (t *memTx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.releaseLocked()
}

func (t *memTx) releaseLocked() {
	for _, k := range t.reserved {
		close(t.store.reserved[k])
		delete(t.store.reserved, k)
	}
	t.reserved = nil
}
