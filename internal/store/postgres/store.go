package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-legal/custodia/internal/domain"
)

type Store struct {
	pool        *pgxpool.Pool
	ledger      *LedgerRepo
	exhibits    *ExhibitRepo
	alerts      *AlertRepo
	quarantines *QuarantineRepo
	tombstones  *TombstoneRepo
	auditRuns   *AuditRunRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:        pool,
		ledger:      NewLedgerRepo(pool),
		exhibits:    NewExhibitRepo(pool),
		alerts:      NewAlertRepo(pool),
		quarantines: NewQuarantineRepo(pool),
		tombstones:  NewTombstoneRepo(pool),
		auditRuns:   NewAuditRunRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ledger() domain.LedgerRepository          { return s.ledger }
func (s *Store) Exhibits() domain.ExhibitRepository       { return s.exhibits }
func (s *Store) Alerts() domain.AlertRepository           { return s.alerts }
func (s *Store) Quarantines() domain.QuarantineRepository { return s.quarantines }
func (s *Store) Tombstones() domain.TombstoneRepository   { return s.tombstones }
func (s *Store) AuditRuns() domain.AuditRunRepository     { return s.auditRuns }
