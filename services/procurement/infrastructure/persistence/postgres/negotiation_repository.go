package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/ghuser/procureflow/pkg/database"
	"github.com/ghuser/procureflow/pkg/events"
	"github.com/ghuser/procureflow/services/procurement/domain"
	domainevents "github.com/ghuser/procureflow/services/procurement/domain/events"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

const negotiationColumns = `id, organization_id, supplier_id, status, initial_offer, counter_offers, final_terms,
	savings, metadata, expires_at, completed_at, created_at, updated_at, version`

const insertMessage = `
	INSERT INTO negotiation_messages (id, negotiation_id, direction, subject, body, external_id, delivery_id, created_at)
	VALUES (:id, :negotiation_id, :direction, :subject, :body, :external_id, :delivery_id, :created_at)`

// NegotiationRepository implements repositories.NegotiationRepository against PostgreSQL.
type NegotiationRepository struct {
	db  *database.Database
	bus *events.EventBus
}

// NewNegotiationRepository returns a NegotiationRepository. The bus publishes
// NegotiationClosedEvents; nil disables publishing.
func NewNegotiationRepository(db *database.Database, bus *events.EventBus) *NegotiationRepository {
	return &NegotiationRepository{db: db, bus: bus}
}

// Create inserts the negotiation and its first outbound message in one transaction.
func (r *NegotiationRepository) Create(ctx context.Context, n *models.Negotiation, first *models.NegotiationMessage) error {
	row, err := negotiationToRow(n)
	if err != nil {
		return err
	}
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO negotiations (`+negotiationColumns+`)
			VALUES (:id, :organization_id, :supplier_id, :status, :initial_offer, :counter_offers, :final_terms,
				:savings, :metadata, :expires_at, :completed_at, :created_at, :updated_at, :version)`, row); err != nil {
			return fmt.Errorf("insert negotiation: %w", err)
		}
		if first != nil {
			if _, err := tx.NamedExecContext(ctx, insertMessage, messageToRow(first)); err != nil {
				return fmt.Errorf("insert first message: %w", err)
			}
		}
		return nil
	})
}

// GetByID returns ErrNegotiationNotFound if id is unknown.
func (r *NegotiationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Negotiation, error) {
	var row negotiationRow
	if err := r.db.DB().GetContext(ctx, &row, `SELECT `+negotiationColumns+` FROM negotiations WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNegotiationNotFound
		}
		return nil, fmt.Errorf("query negotiation: %w", err)
	}
	return rowToNegotiation(row)
}

// ListMessages returns the message log, oldest first.
func (r *NegotiationRepository) ListMessages(ctx context.Context, negotiationID uuid.UUID) ([]models.NegotiationMessage, error) {
	var rows []messageRow
	err := r.db.DB().SelectContext(ctx, &rows, `
		SELECT id, negotiation_id, direction, subject, body, external_id, delivery_id, created_at
		FROM negotiation_messages WHERE negotiation_id = $1 ORDER BY created_at, id`, negotiationID)
	if err != nil {
		return nil, fmt.Errorf("query negotiation messages: %w", err)
	}
	out := make([]models.NegotiationMessage, len(rows))
	for i, row := range rows {
		out[i] = rowToMessage(row)
	}
	return out, nil
}

// AppendMessage inserts m unless it is an inbound reply already logged with
// the same delivery id.
func (r *NegotiationRepository) AppendMessage(ctx context.Context, m *models.NegotiationMessage) (bool, error) {
	res, err := r.db.DB().NamedExecContext(ctx, insertMessage+`
		ON CONFLICT (negotiation_id, delivery_id) WHERE direction = 'inbound' AND delivery_id <> '' DO NOTHING`,
		messageToRow(m))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, domain.ErrNegotiationNotFound
		}
		return false, fmt.Errorf("insert negotiation message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert negotiation message: %w", err)
	}
	return n > 0, nil
}

// Update saves n and appends msgs if the stored row is still at n.Version,
// and returns ErrNegotiationConflict otherwise. On success n.Version moves
// forward. The first transition into a terminal status publishes a
// NegotiationClosedEvent in the same transaction.
func (r *NegotiationRepository) Update(ctx context.Context, n *models.Negotiation, msgs ...*models.NegotiationMessage) error {
	row, err := negotiationToRow(n)
	if err != nil {
		return err
	}
	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var prev struct {
			Status  string `db:"status"`
			Version int64  `db:"version"`
		}
		if err := tx.GetContext(ctx, &prev, `SELECT status, version FROM negotiations WHERE id = $1 FOR UPDATE`, n.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNegotiationNotFound
			}
			return fmt.Errorf("lock negotiation: %w", err)
		}
		if prev.Version != n.Version {
			return fmt.Errorf("%w: read at version %d, stored %d", domain.ErrNegotiationConflict, n.Version, prev.Version)
		}

		if _, err := tx.NamedExecContext(ctx, `
			UPDATE negotiations SET status = :status, counter_offers = :counter_offers, final_terms = :final_terms,
				savings = :savings, metadata = :metadata, completed_at = :completed_at, updated_at = :updated_at,
				version = version + 1
			WHERE id = :id`, row); err != nil {
			return fmt.Errorf("update negotiation: %w", err)
		}
		for _, m := range msgs {
			if _, err := tx.NamedExecContext(ctx, insertMessage, messageToRow(m)); err != nil {
				return fmt.Errorf("insert negotiation message: %w", err)
			}
		}

		if r.bus == nil || !n.Status.Terminal() || models.NegotiationStatus(prev.Status).Terminal() {
			return nil
		}
		event := domainevents.NegotiationClosedEvent{
			EventID:        uuid.New(),
			Version:        1,
			NegotiationID:  n.ID,
			OrganizationID: n.OrganizationID,
			SupplierID:     n.SupplierID,
			Status:         string(n.Status),
			Savings:        n.Savings,
			OccurredAt:     n.UpdatedAt,
		}
		msg, err := events.NewJSONMessage(event.EventID.String(), event.Version, event)
		if err != nil {
			return err
		}
		if err := r.bus.PublishTx(ctx, tx.Tx, domainevents.TopicNegotiationClosed, msg); err != nil {
			return fmt.Errorf("publish negotiation closed: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	n.Version++
	return nil
}

// ListExpired returns in_progress negotiations whose expiry is before now.
func (r *NegotiationRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.Negotiation, error) {
	var rows []negotiationRow
	err := r.db.DB().SelectContext(ctx, &rows, `
		SELECT `+negotiationColumns+` FROM negotiations
		WHERE status = 'in_progress' AND expires_at < $1 ORDER BY expires_at`, now)
	if err != nil {
		return nil, fmt.Errorf("query expired negotiations: %w", err)
	}
	out := make([]*models.Negotiation, 0, len(rows))
	for _, row := range rows {
		n, err := rowToNegotiation(row)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
