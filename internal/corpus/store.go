package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/convobench/inbenta-relay-go/internal/database"
	"github.com/convobench/inbenta-relay-go/internal/model"
)

// Store persists the local training corpus: utterance sets keyed by
// name, plus optional conversation scaffolds generated during import.
type Store interface {
	List(ctx context.Context) ([]model.UtteranceSet, error)
	Get(ctx context.Context, name string) (*model.UtteranceSet, error)
	Upsert(ctx context.Context, set model.UtteranceSet) error
	Delete(ctx context.Context, name string) error
	SaveConvo(ctx context.Context, convo model.Convo) error
	ListConvos(ctx context.Context) ([]model.Convo, error)
}

type postgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db *database.DB) Store {
	return &postgresStore{db: db}
}

// EnsureSchema creates the corpus tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *database.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS utterance_sets (
			name        TEXT PRIMARY KEY,
			external_id BIGINT,
			utterances  TEXT[] NOT NULL DEFAULT '{}',
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS convos (
			name       TEXT PRIMARY KEY,
			steps      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

type utteranceSetRow struct {
	Name       string         `db:"name"`
	ExternalID sql.NullInt64  `db:"external_id"`
	Utterances pq.StringArray `db:"utterances"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r utteranceSetRow) toModel() model.UtteranceSet {
	set := model.UtteranceSet{
		Name:       r.Name,
		Utterances: []string(r.Utterances),
		UpdatedAt:  r.UpdatedAt,
	}
	if r.ExternalID.Valid {
		id := r.ExternalID.Int64
		set.ExternalID = &id
	}
	return set
}

func (s *postgresStore) List(ctx context.Context) ([]model.UtteranceSet, error) {
	var rows []utteranceSetRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT name, external_id, utterances, updated_at
		FROM utterance_sets
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}

	sets := make([]model.UtteranceSet, 0, len(rows))
	for _, row := range rows {
		sets = append(sets, row.toModel())
	}
	return sets, nil
}

func (s *postgresStore) Get(ctx context.Context, name string) (*model.UtteranceSet, error) {
	var row utteranceSetRow
	err := s.db.GetContext(ctx, &row, `
		SELECT name, external_id, utterances, updated_at
		FROM utterance_sets
		WHERE name = $1
	`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	set := row.toModel()
	return &set, nil
}

func (s *postgresStore) Upsert(ctx context.Context, set model.UtteranceSet) error {
	var externalID sql.NullInt64
	if set.ExternalID != nil {
		externalID = sql.NullInt64{Int64: *set.ExternalID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO utterance_sets (name, external_id, utterances, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			utterances  = EXCLUDED.utterances,
			updated_at  = NOW()
	`, set.Name, externalID, pq.StringArray(set.Utterances))
	return err
}

func (s *postgresStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM utterance_sets WHERE name = $1
	`, name)
	return err
}

func (s *postgresStore) SaveConvo(ctx context.Context, convo model.Convo) error {
	steps, err := json.Marshal(convo.Steps)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO convos (name, steps, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			steps      = EXCLUDED.steps,
			updated_at = NOW()
	`, convo.Name, steps)
	return err
}

func (s *postgresStore) ListConvos(ctx context.Context) ([]model.Convo, error) {
	var rows []struct {
		Name  string `db:"name"`
		Steps []byte `db:"steps"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT name, steps FROM convos ORDER BY name
	`)
	if err != nil {
		return nil, err
	}

	convos := make([]model.Convo, 0, len(rows))
	for _, row := range rows {
		var steps []model.ConvoStep
		if err := json.Unmarshal(row.Steps, &steps); err != nil {
			return nil, err
		}
		convos = append(convos, model.Convo{Name: row.Name, Steps: steps})
	}
	return convos, nil
}
