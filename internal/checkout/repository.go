package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository is the durable store of checkout sessions. Every mutation after
// creation is a conditional update so concurrent writers cannot clobber each other.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.CheckoutSession) error
	FindForUser(ctx context.Context, sessionID, userID uuid.UUID) (*models.CheckoutSession, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) (*models.CheckoutSession, error)
	ListPendingForUser(ctx context.Context, userID uuid.UUID) ([]models.CheckoutSession, error)
	DeletePendingForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
	BindPaymentIntent(ctx context.Context, sessionID, userID uuid.UUID, intentID string) (bool, string, error)
	Transition(ctx context.Context, sessionID uuid.UUID, from, to enums.CheckoutSessionStatus, at time.Time) (bool, error)
	TransitionIfIntent(ctx context.Context, sessionID uuid.UUID, from, to enums.CheckoutSessionStatus, at time.Time, intentID string) (bool, error)
	MarkMaterialized(ctx context.Context, sessionID, orderID uuid.UUID, at time.Time) (bool, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CheckoutSession, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout session repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	if session == nil {
		return errors.New("session required")
	}
	if len(session.Items) == 0 {
		return errors.New("session requires at least one item")
	}
	if !session.TotalAmount.IsPositive() {
		return errors.New("session total must be positive")
	}
	if session.Status == "" {
		session.Status = enums.CheckoutSessionStatusPending
	}
	return r.db.WithContext(ctx).Create(session).Error
}

// FindForUser returns nil when the session does not exist or belongs to someone else.
func (r *repository) FindForUser(ctx context.Context, sessionID, userID uuid.UUID) (*models.CheckoutSession, error) {
	return r.first(ctx, r.db.Where("id = ? AND user_id = ?", sessionID, userID))
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.CheckoutSession, error) {
	if intentID == "" {
		return nil, nil
	}
	return r.first(ctx, r.db.Where("payment_intent_id = ?", intentID))
}

func (r *repository) ListPendingForUser(ctx context.Context, userID uuid.UUID) ([]models.CheckoutSession, error) {
	var sessions []models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.CheckoutSessionStatusPending).
		Order("created_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *repository) DeletePendingForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.CheckoutSessionStatusPending).
		Delete(&models.CheckoutSession{})
	return res.RowsAffected, res.Error
}

// Delete removes a pending session owned by the user.
func (r *repository) Delete(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status = ?", sessionID, userID, enums.CheckoutSessionStatusPending).
		Delete(&models.CheckoutSession{})
	return res.RowsAffected > 0, res.Error
}

// BindPaymentIntent sets the intent reference once. When another writer got
// there first it returns false with the winning id.
func (r *repository) BindPaymentIntent(ctx context.Context, sessionID, userID uuid.UUID, intentID string) (bool, string, error) {
	if intentID == "" {
		return false, "", errors.New("payment intent id required")
	}
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND user_id = ? AND payment_intent_id IS NULL", sessionID, userID).
		Update("payment_intent_id", intentID)
	if res.Error != nil {
		return false, "", res.Error
	}
	if res.RowsAffected == 1 {
		return true, intentID, nil
	}

	current, err := r.FindForUser(ctx, sessionID, userID)
	if err != nil {
		return false, "", err
	}
	if current == nil {
		return false, "", gorm.ErrRecordNotFound
	}
	return false, current.IntentID(), nil
}

// Transition moves the session from one status to another and stamps the
// matching timestamp column. False means the session was not in from.
func (r *repository) Transition(ctx context.Context, sessionID uuid.UUID, from, to enums.CheckoutSessionStatus, at time.Time) (bool, error) {
	return r.transition(ctx, sessionID, from, to, at, "")
}

// TransitionIfIntent is Transition that also requires the bound intent to
// still be intentID; an empty intentID requires that none is bound. False
// covers both a status change and a rebound intent.
func (r *repository) TransitionIfIntent(ctx context.Context, sessionID uuid.UUID, from, to enums.CheckoutSessionStatus, at time.Time, intentID string) (bool, error) {
	if intentID == "" {
		return r.transition(ctx, sessionID, from, to, at, " AND payment_intent_id IS NULL")
	}
	return r.transition(ctx, sessionID, from, to, at, " AND payment_intent_id = ?", intentID)
}

func (r *repository) transition(ctx context.Context, sessionID uuid.UUID, from, to enums.CheckoutSessionStatus, at time.Time, guard string, guardArgs ...any) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, errors.New("transition " + from.String() + " -> " + to.String() + " not allowed")
	}
	updates := map[string]any{"status": to}
	switch to {
	case enums.CheckoutSessionStatusPaid:
		updates["paid_at"] = at
	case enums.CheckoutSessionStatusFailed:
		updates["failed_at"] = at
	case enums.CheckoutSessionStatusCanceled:
		updates["canceled_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?"+guard, append([]any{sessionID, from}, guardArgs...)...).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkMaterialized records the order created for the session. False means a
// marker was already present.
func (r *repository) MarkMaterialized(ctx context.Context, sessionID, orderID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND order_id IS NULL", sessionID).
		Updates(map[string]any{"order_id": orderID, "materialized_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.CheckoutSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var sessions []models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.CheckoutSessionStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func (r *repository) first(ctx context.Context, query *gorm.DB) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := query.WithContext(ctx).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}
