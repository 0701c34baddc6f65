package store

import (
	"fmt"
	"time"
)

// MessageRecord is one archived group message.
type MessageRecord struct {
	ID        int64
	GroupID   int64
	UserID    int64
	MessageID int64
	Content   string
	CreatedAt time.Time
}

// SenderCount pairs a user with how many messages they sent.
type SenderCount struct {
	UserID int64
	Count  int64
}

// MessageStore archives group chat for the stats and report plugins.
type MessageStore struct {
	db *DB
}

// NewMessageStore creates a message archive using the given database.
func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

// Insert archives one message. A zero CreatedAt means now. Timestamps
// are stored in UTC so they compare cleanly with datetime('now').
func (s *MessageStore) Insert(rec MessageRecord) error {
	ts := rec.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.sql.Exec(
		`INSERT INTO messages (group_id, user_id, message_id, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.GroupID, rec.UserID, rec.MessageID, rec.Content, ts.UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// Count returns the total number of archived messages.
func (s *MessageStore) Count() (int64, error) {
	var count int64
	if err := s.db.sql.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// CountSince returns how many messages a group produced after the cutoff.
func (s *MessageStore) CountSince(group int64, since time.Time) (int64, error) {
	var count int64
	err := s.db.sql.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE group_id = ? AND created_at >= ?`,
		group, since.UTC().Format(time.DateTime),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages for group %d: %w", group, err)
	}
	return count, nil
}

// PruneBefore deletes messages archived before the cutoff and reports
// how many rows went away.
func (s *MessageStore) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.sql.Exec(
		`DELETE FROM messages WHERE created_at < ?`,
		cutoff.UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning messages: %w", err)
	}
	return res.RowsAffected()
}

// TopSenders returns the most active users of a group after the cutoff,
// busiest first. Ties break on user id for stable output.
func (s *MessageStore) TopSenders(group int64, since time.Time, limit int) ([]SenderCount, error) {
	rows, err := s.db.sql.Query(
		`SELECT user_id, COUNT(*) AS n FROM messages
		 WHERE group_id = ? AND created_at >= ?
		 GROUP BY user_id ORDER BY n DESC, user_id ASC LIMIT ?`,
		group, since.UTC().Format(time.DateTime), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ranking senders for group %d: %w", group, err)
	}
	defer rows.Close()

	var top []SenderCount
	for rows.Next() {
		var sc SenderCount
		if err := rows.Scan(&sc.UserID, &sc.Count); err != nil {
			return nil, err
		}
		top = append(top, sc)
	}
	return top, rows.Err()
}
