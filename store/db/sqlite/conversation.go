package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/divinesense-console/client/model"
)

func (d *DB) UpsertConversations(ctx context.Context, convs []model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin upsert tx")
	}
	defer tx.Rollback()

	stmt := `INSERT INTO conversation (id, title, pinned, owner, created_ts, last_message_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			pinned = excluded.pinned,
			owner = excluded.owner,
			created_ts = excluded.created_ts,
			last_message_ts = excluded.last_message_ts`
	for _, conv := range convs {
		if _, err := tx.ExecContext(ctx, stmt,
			conv.ID, conv.Title, conv.Pinned, conv.Owner,
			conv.CreatedAt.Unix(), conv.LastMessageAt.Unix(),
		); err != nil {
			return errors.Wrapf(err, "upsert conversation %s", conv.ID)
		}
	}

	return errors.Wrap(tx.Commit(), "commit upsert tx")
}

func (d *DB) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	query := `SELECT id, title, pinned, owner, created_ts, last_message_ts
		FROM conversation ORDER BY pinned DESC, last_message_ts DESC`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list cached conversations")
	}
	defer rows.Close()

	list := make([]model.Conversation, 0)
	for rows.Next() {
		var conv model.Conversation
		var createdTs, lastMessageTs int64
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.Pinned, &conv.Owner, &createdTs, &lastMessageTs); err != nil {
			return nil, errors.Wrap(err, "scan cached conversation")
		}
		conv.CreatedAt = time.Unix(createdTs, 0)
		conv.LastMessageAt = time.Unix(lastMessageTs, 0)
		list = append(list, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate cached conversations")
	}

	return list, nil
}

func (d *DB) DeleteConversation(ctx context.Context, id string) error {
	if err := d.execContext(ctx, `DELETE FROM conversation WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "delete cached conversation %s", id)
	}
	return nil
}
