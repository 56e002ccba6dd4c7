package database

import (
	"context"
	"database/sql"
	"fmt"

	"signalhub/internal/models"
)

// SaveSubscriber persists a verified subscriber. The signing secret is
// encrypted at rest when encryption is enabled.
func (d *Database) SaveSubscriber(ctx context.Context, callbackURL, secret string) (int64, error) {
	encryptedSecret, err := d.encryptor.Encrypt(secret)
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	result, err := d.db.ExecContext(ctx, InsertSubscriberQuery, callbackURL, encryptedSecret)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("subscriber already registered for %s", callbackURL)
		}
		return 0, fmt.Errorf("failed to save subscriber: %w", err)
	}

	return result.LastInsertId()
}

func (d *Database) GetSubscriberByID(ctx context.Context, id int64) (*models.Subscriber, error) {
	row := d.db.QueryRowContext(ctx, SelectSubscriberByIDQuery, id)
	sub, err := d.scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return sub, nil
}

func (d *Database) GetSubscriberByURL(ctx context.Context, callbackURL string) (*models.Subscriber, error) {
	row := d.db.QueryRowContext(ctx, SelectSubscriberByURLQuery, callbackURL)
	sub, err := d.scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return sub, nil
}

// ListActiveSubscribers returns the point-in-time snapshot used for one
// dispatch round.
func (d *Database) ListActiveSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	return d.listSubscribers(ctx, SelectActiveSubscribersQuery)
}

// ListSubscribers returns all subscribers including deactivated ones.
func (d *Database) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	return d.listSubscribers(ctx, SelectAllSubscribersQuery)
}

func (d *Database) listSubscribers(ctx context.Context, query string) ([]models.Subscriber, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var subscribers []models.Subscriber
	for rows.Next() {
		sub, err := d.scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subscribers = append(subscribers, *sub)
	}
	return subscribers, rows.Err()
}

// DeactivateSubscriber flips a subscriber inactive. It reports whether an
// active subscriber was found.
func (d *Database) DeactivateSubscriber(ctx context.Context, id int64) (bool, error) {
	result, err := d.db.ExecContext(ctx, DeactivateSubscriberQuery, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate subscriber: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// RecordSubscriberOutcome updates the consecutive-failure counter for one
// delivery outcome. Success resets the counter and stamps last_notified_at;
// a failure that reaches the threshold deactivates the subscriber. It
// returns the subscriber state after the update.
func (d *Database) RecordSubscriberOutcome(ctx context.Context, id int64, success bool, failureThreshold int) (*models.Subscriber, error) {
	var err error
	if success {
		_, err = d.db.ExecContext(ctx, RecordSubscriberSuccessQuery, id)
	} else {
		_, err = d.db.ExecContext(ctx, RecordSubscriberFailureQuery, failureThreshold, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record subscriber outcome: %w", err)
	}

	return d.GetSubscriberByID(ctx, id)
}

func (d *Database) scanSubscriber(row rowScanner) (*models.Subscriber, error) {
	var sub models.Subscriber
	var encryptedSecret string
	var lastNotifiedAt sql.NullTime

	err := row.Scan(
		&sub.ID,
		&sub.CallbackURL,
		&encryptedSecret,
		&sub.Active,
		&sub.ConsecutiveFailures,
		&sub.CreatedAt,
		&lastNotifiedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Secret, err = d.encryptor.Decrypt(encryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}

	if lastNotifiedAt.Valid {
		t := lastNotifiedAt.Time
		sub.LastNotifiedAt = &t
	}
	return &sub, nil
}
