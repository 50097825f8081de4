/*
Package redis provides a Redis-backed implementation of the ledger store.

KEYS:
  <prefix>:case:<id>   JSON case document (STRING)
  <prefix>:cases       Set of case ids
  <prefix>:reports     Report snapshots, newest first (LIST)
  <prefix>:changes     Pub/sub channel; the changed case id is published

WRITES:
  A case document and its index entry are written in one MULTI/EXEC
  transaction, so a failed write leaves neither behind.

CHANGE FEED:
  Every committed write publishes on the changes channel. A failed publish
  is logged and does not fail the write; the next change or resubscribe
  brings subscribers up to date. Subscribe listens on that
  channel and delivers a fresh full snapshot per message, so writers in
  other processes are observed too. If the subscription drops, subscribers
  receive a Snapshot with Err set and keep their last good state.

MERGE:
  Update is GET, merge, SET. There is no WATCH: concurrent edits to the same
  case are last-write-wins.
*/
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/billing-ledger/ledger"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "ledger"

// MaxReports caps the stored report list.
const MaxReports = 500

// ErrFeedClosed is delivered to subscribers when the pub/sub channel closes.
var ErrFeedClosed = errors.New("redis change feed closed")

type Store struct {
	rdb    *redis.Client
	prefix string
	mu     sync.Mutex

	// NewID assigns case ids. Defaults to random UUIDs.
	NewID func() string
}

func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix, NewID: uuid.NewString}
}

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *Store) caseKey(id ledger.CaseID) string { return s.prefix + ":case:" + string(id) }
func (s *Store) indexKey() string                { return s.prefix + ":cases" }
func (s *Store) reportsKey() string              { return s.prefix + ":reports" }
func (s *Store) channel() string                 { return s.prefix + ":changes" }

// =============================================================================
// DOCUMENT STORE
// =============================================================================

func (s *Store) Create(ctx context.Context, doc ledger.Document) (ledger.CaseID, error) {
	id := ledger.CaseID(s.NewID())
	if err := s.put(ctx, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Put writes doc under a caller-chosen id, replacing any existing document.
func (s *Store) Put(ctx context.Context, id ledger.CaseID, doc ledger.Document) error {
	return s.put(ctx, id, doc)
}

func (s *Store) put(ctx context.Context, id ledger.CaseID, doc ledger.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode case: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.caseKey(id), string(data), 0)
		pipe.SAdd(ctx, s.indexKey(), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("write case %s: %w", id, err)
	}
	s.publish(ctx, id)
	return nil
}

func (s *Store) Update(ctx context.Context, id ledger.CaseID, fields ledger.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc.Merge(fields))
	if err != nil {
		return fmt.Errorf("encode case: %w", err)
	}
	if err := s.rdb.Set(ctx, s.caseKey(id), string(data), 0).Err(); err != nil {
		return fmt.Errorf("set case %s: %w", id, err)
	}
	s.publish(ctx, id)
	return nil
}

func (s *Store) Get(ctx context.Context, id ledger.CaseID) (ledger.Document, error) {
	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id ledger.CaseID) (ledger.Document, error) {
	raw, err := s.rdb.Get(ctx, s.caseKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ledger.ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get case %s: %w", id, err)
	}
	return ledger.DecodeDocument([]byte(raw))
}

// List returns every indexed document, ordered by id. Ids whose document
// has vanished are skipped.
func (s *Store) List(ctx context.Context) ([]ledger.Record, error) {
	ids, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list case ids: %w", err)
	}
	records := []ledger.Record{}
	if len(ids) == 0 {
		return records, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.caseKey(ledger.CaseID(id))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load cases: %w", err)
	}

	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		doc, err := ledger.DecodeDocument([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", ids[i], err)
		}
		records = append(records, ledger.Record{ID: ledger.CaseID(ids[i]), Doc: doc})
	}
	return records, nil
}

// publish notifies subscribers of a committed write.
func (s *Store) publish(ctx context.Context, id ledger.CaseID) {
	if err := s.rdb.Publish(ctx, s.channel(), string(id)).Err(); err != nil {
		zap.S().Errorw("redis change notification failed", "channel", s.channel(), "case_id", id, "error", err)
	}
}

// =============================================================================
// CHANGE FEED
// =============================================================================

// Subscribe listens on the changes channel. The current snapshot is
// delivered before Subscribe returns; later snapshots arrive on a
// background goroutine until cancel is called or ctx is done.
func (s *Store) Subscribe(ctx context.Context, fn func(ledger.Snapshot)) (func(), error) {
	ps := s.rdb.Subscribe(ctx, s.channel())
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel(), err)
	}

	subCtx, stop := context.WithCancel(ctx)
	fn(s.snapshot(subCtx))

	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					if subCtx.Err() == nil {
						fn(ledger.Snapshot{Err: ErrFeedClosed})
					}
					return
				}
				fn(s.snapshot(subCtx))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			ps.Close()
		})
	}, nil
}

func (s *Store) snapshot(ctx context.Context) ledger.Snapshot {
	recs, err := s.List(ctx)
	return ledger.Snapshot{Records: recs, Err: err}
}

// =============================================================================
// REPORT STORE
// =============================================================================

type reportEnvelope struct {
	ID      string          `json:"id"`
	Reason  string          `json:"reason"`
	TakenAt string          `json:"taken_at"`
	Report  json.RawMessage `json:"report"`
}

func (s *Store) SaveReport(ctx context.Context, snap ledger.ReportSnapshot) error {
	report, err := ledger.EncodeReport(snap.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	data, err := json.Marshal(reportEnvelope{
		ID:      snap.ID,
		Reason:  string(snap.Reason),
		TakenAt: snap.TakenAt.UTC().Format(time.RFC3339Nano),
		Report:  report,
	})
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.reportsKey(), string(data))
		pipe.LTrim(ctx, s.reportsKey(), 0, MaxReports-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// ListReports returns the newest snapshots first. limit <= 0 means all.
func (s *Store) ListReports(ctx context.Context, limit int) ([]ledger.ReportSnapshot, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raws, err := s.rdb.LRange(ctx, s.reportsKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	snaps := make([]ledger.ReportSnapshot, 0, len(raws))
	for _, raw := range raws {
		var env reportEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		report, err := ledger.DecodeReport(env.Report)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", env.ID, err)
		}
		takenAt, err := time.Parse(time.RFC3339Nano, env.TakenAt)
		if err != nil {
			return nil, fmt.Errorf("report %s taken_at: %w", env.ID, err)
		}
		snaps = append(snaps, ledger.ReportSnapshot{
			ID:      env.ID,
			TakenAt: takenAt,
			Reason:  ledger.SnapshotReason(env.Reason),
			Report:  report,
		})
	}
	return snaps, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset deletes every case and report under the prefix (for demo loading).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("list case ids: %w", err)
	}
	keys := []string{s.indexKey(), s.reportsKey()}
	for _, id := range ids {
		keys = append(keys, s.caseKey(ledger.CaseID(id)))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	s.publish(ctx, "")
	return nil
}

// Compile-time interface checks.
var (
	_ ledger.DocumentStore = (*Store)(nil)
	_ ledger.ReportStore   = (*Store)(nil)
)
