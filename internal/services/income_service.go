package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/XabSaRon/cashflowr/internal/amqp"
	"github.com/XabSaRon/cashflowr/internal/core"
	"github.com/XabSaRon/cashflowr/internal/log"
	"github.com/XabSaRon/cashflowr/internal/projection"
)

var (
	// ErrNotMember is returned when the acting user does not belong to the home.
	ErrNotMember = errors.New("not a member of this home")
	// ErrForbidden is returned when a member may see a record but not change it.
	ErrForbidden = errors.New("operation not allowed for this user")
	// ErrNotRecurring is returned when an amendment targets a one-off income.
	ErrNotRecurring = errors.New("only recurring income can be amended")
	// ErrInvalidInput marks request data the caller can fix.
	ErrInvalidInput = errors.New("invalid input")
)

// IncomeStore is the persistence surface the income service needs.
type IncomeStore interface {
	CreateHome(ctx context.Context, h core.Home) error
	GetHome(ctx context.Context, id string) (*core.Home, error)
	AddMember(ctx context.Context, homeID, uid string) error
	IsMember(ctx context.Context, homeID, uid string) (bool, error)
	ListHomesForUser(ctx context.Context, uid string) ([]core.Home, error)
	CreateIncome(ctx context.Context, rec core.IncomeRecord) error
	GetIncome(ctx context.Context, id string) (*core.IncomeRecord, error)
	ListIncomes(ctx context.Context, homeID string) ([]core.IncomeRecord, error)
	AmendIncome(ctx context.Context, id string, endDate core.Date, successor core.IncomeRecord) error
	DeleteIncome(ctx context.Context, id string) error
}

// SyncPublisher queues income records for the Google Sheets mirror.
type SyncPublisher interface {
	PublishIncomeSync(ctx context.Context, id, action string) error
}

// IncomeService orchestrates income operations across SQLite and AMQP
type IncomeService struct {
	store     IncomeStore
	publisher SyncPublisher
	logger    *log.Logger
}

func NewIncomeService(store IncomeStore, publisher SyncPublisher, logger *log.Logger) *IncomeService {
	return &IncomeService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentIncome),
	}
}

// CreateHome creates a home owned by the given user. The owner becomes its
// first member.
func (s *IncomeService) CreateHome(ctx context.Context, name, ownerUID string, personal bool) (*core.Home, error) {
	home := core.Home{
		ID:       uuid.NewString(),
		Name:     name,
		OwnerUID: ownerUID,
		Personal: personal,
	}
	if err := home.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.CreateHome(ctx, home); err != nil {
		return nil, fmt.Errorf("create home: %w", err)
	}
	return &home, nil
}

// AddMember adds a user to a home. Only existing members can invite.
func (s *IncomeService) AddMember(ctx context.Context, homeID, actorUID, memberUID string) error {
	if err := s.requireMember(ctx, homeID, actorUID); err != nil {
		return err
	}
	if memberUID == "" {
		return errors.New("member uid is required")
	}
	if err := s.store.AddMember(ctx, homeID, memberUID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// ListHomes returns the homes the user belongs to.
func (s *IncomeService) ListHomes(ctx context.Context, uid string) ([]core.Home, error) {
	return s.store.ListHomesForUser(ctx, uid)
}

// CreateIncome validates and saves an income record, then queues it for the
// sheets mirror. Missing IDs are generated; a fresh record starts its own
// amendment group.
func (s *IncomeService) CreateIncome(ctx context.Context, rec core.IncomeRecord) (*core.IncomeRecord, error) {
	if err := s.requireMember(ctx, rec.HomeID, rec.CreatedByUID); err != nil {
		return nil, err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.GroupID == "" {
		rec.GroupID = uuid.NewString()
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.CreateIncome(ctx, rec); err != nil {
		return nil, fmt.Errorf("save income: %w", err)
	}

	s.publishSync(ctx, rec.ID, amqp.ActionUpsert)
	return &rec, nil
}

// ListIncomes returns all live income records of a home the viewer can see.
func (s *IncomeService) ListIncomes(ctx context.Context, homeID, viewerUID string) ([]core.IncomeRecord, error) {
	if err := s.requireMember(ctx, homeID, viewerUID); err != nil {
		return nil, err
	}
	records, err := s.store.ListIncomes(ctx, homeID)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	return projection.FilterVisible(records, viewerUID), nil
}

// AmendIncome changes the amount of a recurring income from a cut-off date
// forward. The original record is closed at endDate and a successor with the
// new amount starts at the first occurrence after it; both stay linked
// through the group ID so history is preserved.
func (s *IncomeService) AmendIncome(ctx context.Context, id, actorUID string, endDate core.Date, newAmount core.Money) (*core.IncomeRecord, error) {
	orig, err := s.store.GetIncome(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, orig.HomeID, actorUID); err != nil {
		return nil, err
	}
	if orig.Scope.OrShared() == core.ScopePersonal && orig.CreatedByUID != actorUID {
		return nil, ErrForbidden
	}
	if !orig.Frequency.Recurring() {
		return nil, ErrNotRecurring
	}
	if err := endDate.Validate(); err != nil {
		return nil, fmt.Errorf("%w: end date: %v", ErrInvalidInput, err)
	}
	if endDate.Before(orig.Date.Time) {
		return nil, fmt.Errorf("%w: end date %s precedes the income start", ErrInvalidInput, endDate.Format("2006-01-02"))
	}
	if err := newAmount.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	successor := *orig
	successor.ID = uuid.NewString()
	successor.Amount = newAmount
	successor.EndDate = core.Date{}
	successor.CreatedByUID = actorUID
	successor.Date = core.Date{Time: projection.FirstOnOrAfter(
		orig.Date.Time, endDate.AddDate(0, 0, 1), orig.Frequency)}

	if err := s.store.AmendIncome(ctx, id, endDate, successor); err != nil {
		return nil, fmt.Errorf("amend income: %w", err)
	}

	s.publishSync(ctx, id, amqp.ActionUpsert)
	s.publishSync(ctx, successor.ID, amqp.ActionUpsert)
	return &successor, nil
}

// DeleteIncome soft-deletes an income record and queues its removal from the
// mirror. Personal income can only be deleted by its creator. The deleted
// record is returned so callers can invalidate per-home state.
func (s *IncomeService) DeleteIncome(ctx context.Context, id, actorUID string) (*core.IncomeRecord, error) {
	rec, err := s.store.GetIncome(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, rec.HomeID, actorUID); err != nil {
		return nil, err
	}
	if rec.Scope.OrShared() == core.ScopePersonal && rec.CreatedByUID != actorUID {
		return nil, ErrForbidden
	}

	if err := s.store.DeleteIncome(ctx, id); err != nil {
		return nil, fmt.Errorf("delete income: %w", err)
	}

	s.publishSync(ctx, id, amqp.ActionDelete)
	return rec, nil
}

func (s *IncomeService) requireMember(ctx context.Context, homeID, uid string) error {
	if homeID == "" || uid == "" {
		return ErrNotMember
	}
	ok, err := s.store.IsMember(ctx, homeID, uid)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

// publishSync queues a mirror message. Failures are logged, never surfaced:
// the local write already succeeded and the worker backfills pending rows.
func (s *IncomeService) publishSync(ctx context.Context, id, action string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishIncomeSync(ctx, id, action); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldIncomeID, id,
			log.FieldOperation, action,
			log.FieldError, err.Error())
	}
}

// Close closes any owned component that supports closing.
func (s *IncomeService) Close() error {
	var errs []error

	if c, ok := s.store.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close income service: %v", errs)
	}
	return nil
}

// now is split out for tests.
var now = time.Now
