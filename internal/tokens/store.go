package tokens

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/taskhub/internal/models"
)

// ErrInvalidToken covers every redemption failure: unknown id, wrong type,
// hash mismatch, expired, revoked, consumed, or a lost consumption race.
var ErrInvalidToken = errors.New("tokens: invalid or expired token")

// Option customises Store behaviour.
type Option func(*Store)

// WithClock overrides the time source used for expiry and consumption.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Store persists action tokens. Every method takes the caller's transaction
// handle so issuance and consumption join the surrounding unit of work.
type Store struct {
	codec *Codec
	now   func() time.Time
}

func NewStore(codec *Codec, opts ...Option) *Store {
	s := &Store{
		codec: codec,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Codec exposes the codec the store hashes with.
func (s *Store) Codec() *Codec {
	return s.codec
}

// IssueParams describe a token to issue.
type IssueParams struct {
	Type       models.TokenType
	SubjectKey string
	UserID     *string
	GroupID    *string
	IssuedByID *string
	Payload    models.TokenPayload
	TTL        time.Duration
}

// Issued carries the only copy of the raw secret that ever leaves the store.
type Issued struct {
	ID        string
	Secret    string
	ExpiresAt time.Time
}

// Issue upserts the token row for p.SubjectKey. An existing row keeps its id
// but receives the new hash and expiry and has its consumed and revoked markers
// cleared, which invalidates any previously issued secret.
func (s *Store) Issue(tx *gorm.DB, p IssueParams) (Issued, error) {
	if !p.Type.Valid() {
		return Issued{}, fmt.Errorf("tokens: unknown token type %q", p.Type)
	}
	if p.SubjectKey == "" {
		return Issued{}, errors.New("tokens: subject key is required")
	}
	if p.TTL <= 0 {
		return Issued{}, errors.New("tokens: ttl must be positive")
	}

	secret, err := s.codec.GenerateSecret()
	if err != nil {
		return Issued{}, fmt.Errorf("tokens: generate secret: %w", err)
	}

	now := s.now()
	row := models.ActionToken{
		Type:       p.Type,
		SubjectKey: p.SubjectKey,
		TokenHash:  s.codec.DeriveHash(secret),
		UserID:     p.UserID,
		GroupID:    p.GroupID,
		IssuedByID: p.IssuedByID,
		Payload:    datatypes.NewJSONType(p.Payload),
		ExpiresAt:  now.Add(p.TTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subject_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "token_hash", "user_id", "group_id", "issued_by_id",
			"payload", "expires_at", "consumed_at", "revoked_at", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return Issued{}, fmt.Errorf("tokens: upsert: %w", err)
	}

	var stored models.ActionToken
	if err := tx.Select("id", "expires_at").Where("subject_key = ?", p.SubjectKey).First(&stored).Error; err != nil {
		return Issued{}, fmt.Errorf("tokens: reload: %w", err)
	}

	return Issued{ID: stored.ID, Secret: secret, ExpiresAt: row.ExpiresAt}, nil
}

// LookupActive returns the usable token with the given id and type.
func (s *Store) LookupActive(tx *gorm.DB, typ models.TokenType, id string) (*models.ActionToken, error) {
	if id == "" {
		return nil, ErrInvalidToken
	}

	var row models.ActionToken
	err := tx.
		Where("id = ? AND type = ?", id, typ).
		Where("consumed_at IS NULL AND revoked_at IS NULL AND expires_at > ?", s.now()).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("tokens: lookup: %w", err)
	}
	return &row, nil
}

// Authenticate looks up an active token and checks secret against its hash.
// Absent and mismatched tokens are indistinguishable to the caller.
func (s *Store) Authenticate(tx *gorm.DB, typ models.TokenType, id, secret string) (*models.ActionToken, error) {
	row, err := s.LookupActive(tx, typ, id)
	if err != nil {
		return nil, err
	}
	if secret == "" || !s.codec.Verify(row.TokenHash, s.codec.DeriveHash(secret)) {
		return nil, ErrInvalidToken
	}
	return row, nil
}

// Predicate narrows a consumption to rows matching an extra condition.
type Predicate struct {
	Query string
	Args  []any
}

// ForUser restricts consumption to tokens targeting userID.
func ForUser(userID string) Predicate {
	return Predicate{Query: "user_id = ?", Args: []any{userID}}
}

// Consume marks the token consumed with a single conditional update and
// returns the number of rows changed. Exactly one means this caller won.
func (s *Store) Consume(tx *gorm.DB, id string, preds ...Predicate) (int64, error) {
	now := s.now()
	q := tx.Model(&models.ActionToken{}).
		Where("id = ?", id).
		Where("consumed_at IS NULL AND revoked_at IS NULL AND expires_at > ?", now)
	for _, p := range preds {
		q = q.Where(p.Query, p.Args...)
	}

	res := q.Updates(map[string]any{"consumed_at": now, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("tokens: consume: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ConsumeOnce wraps Consume and maps any count other than one to ErrInvalidToken.
func (s *Store) ConsumeOnce(tx *gorm.DB, id string, preds ...Predicate) error {
	n, err := s.Consume(tx, id, preds...)
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Revoke invalidates the outstanding token for subjectKey, if any.
func (s *Store) Revoke(tx *gorm.DB, subjectKey string) (int64, error) {
	now := s.now()
	res := tx.Model(&models.ActionToken{}).
		Where("subject_key = ? AND consumed_at IS NULL AND revoked_at IS NULL", subjectKey).
		Updates(map[string]any{"revoked_at": now, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("tokens: revoke: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeInactive deletes tokens that were consumed, revoked or expired before cutoff.
func (s *Store) PurgeInactive(tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := tx.
		Where("consumed_at < ? OR revoked_at < ? OR expires_at < ?", cutoff, cutoff, cutoff).
		Delete(&models.ActionToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("tokens: purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}
