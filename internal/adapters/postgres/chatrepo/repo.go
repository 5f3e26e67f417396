package chatrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/carpool-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/carpool-api/internal/domain"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/chatrepo"
)

// Repo is a Postgres implementation of chatrepo.Repository.
//
// The (user_lo, user_hi) unique constraint guarantees one conversation per pair;
// AppendMessage and Delete lock the conversation row.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const convColumns = `c.id, c.external_id, c.user_lo, c.user_hi, c.name_lo, c.name_hi, c.created_at`

type messageRow struct {
	ConversationID int64     `db:"conversation_id"`
	ExternalID     uuid.UUID `db:"external_id"`
	SenderID       string    `db:"sender_id"`
	Body           string    `db:"body"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r *Repo) GetOrCreate(ctx context.Context, c domain.Conversation) (domain.Conversation, bool, error) {
	if r.pool == nil {
		return domain.Conversation{}, false, errors.New("nil postgres pool")
	}
	convUUID, err := uuid.Parse(string(c.ID))
	if err != nil {
		return domain.Conversation{}, false, fmt.Errorf("invalid conversation id: %w", err)
	}

	var (
		out     domain.Conversation
		created bool
	)
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO conversations (external_id, user_lo, user_hi, name_lo, name_hi, created_at, last_activity_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT ON CONSTRAINT conversations_pair_uniq DO NOTHING
		`,
			convUUID,
			string(c.Pair.Lo),
			string(c.Pair.Hi),
			c.Participants[0].DisplayName,
			c.Participants[1].DisplayName,
			c.CreatedAt.UTC(),
		)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return chatrepo.ErrAlreadyExists
			}
			return err
		}
		created = tag.RowsAffected() == 1

		internalID, conv, err := scanConversation(tx.QueryRow(ctx,
			`SELECT `+convColumns+` FROM conversations c WHERE c.user_lo = $1 AND c.user_hi = $2`,
			string(c.Pair.Lo), string(c.Pair.Hi)))
		if err != nil {
			return err
		}
		if created {
			if err := insertMessages(ctx, tx, internalID, c.Messages); err != nil {
				return err
			}
		}
		conv.Messages, err = loadMessages(ctx, tx, internalID, conv.ID)
		out = conv
		return err
	})
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return out, created, nil
}

// insertMessages stores the opening messages of a conversation created in tx.
func insertMessages(ctx context.Context, tx pgx.Tx, internalID int64, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range msgs {
		msgUUID, err := uuid.Parse(string(m.ID))
		if err != nil {
			return fmt.Errorf("invalid message id: %w", err)
		}
		batch.Queue(`
			INSERT INTO messages (external_id, conversation_id, sender_id, body, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, msgUUID, internalID, string(m.SenderID), m.Text, m.CreatedAt.UTC())
	}
	last := msgs[len(msgs)-1].CreatedAt.UTC()
	batch.Queue(`UPDATE conversations SET last_activity_at = $2 WHERE id = $1`, internalID, last)
	return tx.SendBatch(ctx, batch).Close()
}

func (r *Repo) Get(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	if r.pool == nil {
		return domain.Conversation{}, errors.New("nil postgres pool")
	}
	convUUID, err := uuid.Parse(string(id))
	if err != nil {
		return domain.Conversation{}, chatrepo.ErrNotFound
	}
	var out domain.Conversation
	err = pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		internalID, conv, err := loadConversation(ctx, tx, convUUID, false)
		if err != nil {
			return err
		}
		conv.Messages, err = loadMessages(ctx, tx, internalID, conv.ID)
		out = conv
		return err
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return out, nil
}

func (r *Repo) AppendMessage(ctx context.Context, id domain.ConversationID, fn chatrepo.ComposeFunc) (domain.Message, error) {
	if r.pool == nil {
		return domain.Message{}, errors.New("nil postgres pool")
	}
	convUUID, err := uuid.Parse(string(id))
	if err != nil {
		return domain.Message{}, chatrepo.ErrNotFound
	}

	var out domain.Message
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		internalID, conv, err := loadConversation(ctx, tx, convUUID, true)
		if err != nil {
			return err
		}
		if conv.Messages, err = loadMessages(ctx, tx, internalID, conv.ID); err != nil {
			return err
		}
		m, err := fn(conv)
		if err != nil {
			return err
		}
		msgUUID, err := uuid.Parse(string(m.ID))
		if err != nil {
			return fmt.Errorf("invalid message id: %w", err)
		}
		m.ConversationID = id
		m.CreatedAt = m.CreatedAt.UTC()

		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (external_id, conversation_id, sender_id, body, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, msgUUID, internalID, string(m.SenderID), m.Text, m.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE conversations SET last_activity_at = $2 WHERE id = $1`, internalID, m.CreatedAt); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return out, nil
}

func (r *Repo) Delete(ctx context.Context, id domain.ConversationID, check func(domain.Conversation) error) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	convUUID, err := uuid.Parse(string(id))
	if err != nil {
		return chatrepo.ErrNotFound
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		internalID, conv, err := loadConversation(ctx, tx, convUUID, true)
		if err != nil {
			return err
		}
		if check != nil {
			if conv.Messages, err = loadMessages(ctx, tx, internalID, conv.ID); err != nil {
				return err
			}
			if err := check(conv); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, internalID)
		return err
	})
}

func (r *Repo) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}

	out := make([]domain.Conversation, 0)
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+convColumns+`
			FROM conversations c
			WHERE c.user_lo = $1 OR c.user_hi = $1
			ORDER BY c.last_activity_at DESC, c.external_id
		`, string(userID))
		if err != nil {
			return err
		}
		byInternal := map[int64]int{}
		for rows.Next() {
			internalID, conv, err := scanConversation(rows)
			if err != nil {
				rows.Close()
				return err
			}
			byInternal[internalID] = len(out)
			out = append(out, conv)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}

		mrows, err := tx.Query(ctx, `
			SELECT m.conversation_id, m.external_id, m.sender_id, m.body, m.created_at
			FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE c.user_lo = $1 OR c.user_hi = $1
			ORDER BY m.conversation_id, m.id
		`, string(userID))
		if err != nil {
			return err
		}
		msgs, err := pgx.CollectRows(mrows, pgx.RowToStructByName[messageRow])
		if err != nil {
			return err
		}
		for _, mr := range msgs {
			i, ok := byInternal[mr.ConversationID]
			if !ok {
				continue
			}
			out[i].Messages = append(out[i].Messages, toMessage(mr, out[i].ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func loadConversation(ctx context.Context, tx pgx.Tx, id uuid.UUID, forUpdate bool) (int64, domain.Conversation, error) {
	q := `SELECT ` + convColumns + ` FROM conversations c WHERE c.external_id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	return scanConversation(tx.QueryRow(ctx, q, id))
}

func scanConversation(row pgx.Row) (int64, domain.Conversation, error) {
	var (
		internalID int64
		extID      uuid.UUID
		lo, hi     string
		nameLo     string
		nameHi     string
		createdAt  time.Time
	)
	if err := row.Scan(&internalID, &extID, &lo, &hi, &nameLo, &nameHi, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.Conversation{}, chatrepo.ErrNotFound
		}
		return 0, domain.Conversation{}, err
	}
	c := domain.Conversation{
		ID:   domain.ConversationID(extID.String()),
		Pair: domain.PairKey{Lo: domain.UserID(lo), Hi: domain.UserID(hi)},
		Participants: [2]domain.Participant{
			{UserID: domain.UserID(lo), DisplayName: nameLo},
			{UserID: domain.UserID(hi), DisplayName: nameHi},
		},
		Messages:  []domain.Message{},
		CreatedAt: createdAt.UTC(),
	}
	return internalID, c, nil
}

func loadMessages(ctx context.Context, tx pgx.Tx, internalID int64, convID domain.ConversationID) ([]domain.Message, error) {
	rows, err := tx.Query(ctx, `
		SELECT conversation_id, external_id, sender_id, body, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY id
	`, internalID)
	if err != nil {
		return nil, err
	}
	mrs, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(mrs))
	for _, mr := range mrs {
		out = append(out, toMessage(mr, convID))
	}
	return out, nil
}

func toMessage(mr messageRow, convID domain.ConversationID) domain.Message {
	return domain.Message{
		ID:             domain.MessageID(mr.ExternalID.String()),
		ConversationID: convID,
		SenderID:       domain.UserID(mr.SenderID),
		Text:           mr.Body,
		CreatedAt:      mr.CreatedAt.UTC(),
	}
}
