package services

import (
	"context"
	"errors"
	"testing"

	"github.com/XabSaRon/cashflowr/internal/amqp"
	"github.com/XabSaRon/cashflowr/internal/core"
	"github.com/XabSaRon/cashflowr/internal/log"
	"github.com/XabSaRon/cashflowr/internal/storage"
)

type fakeStore struct {
	homes   map[string]core.Home
	members map[string]map[string]bool
	incomes map[string]core.IncomeRecord

	amendCalls int
	failWith   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		homes:   make(map[string]core.Home),
		members: make(map[string]map[string]bool),
		incomes: make(map[string]core.IncomeRecord),
	}
}

func (f *fakeStore) CreateHome(_ context.Context, h core.Home) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.homes[h.ID] = h
	f.addMember(h.ID, h.OwnerUID)
	return nil
}

func (f *fakeStore) GetHome(_ context.Context, id string) (*core.Home, error) {
	h, ok := f.homes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &h, nil
}

func (f *fakeStore) addMember(homeID, uid string) {
	if f.members[homeID] == nil {
		f.members[homeID] = make(map[string]bool)
	}
	f.members[homeID][uid] = true
}

func (f *fakeStore) AddMember(_ context.Context, homeID, uid string) error {
	f.addMember(homeID, uid)
	return nil
}

func (f *fakeStore) IsMember(_ context.Context, homeID, uid string) (bool, error) {
	return f.members[homeID][uid], nil
}

func (f *fakeStore) ListHomesForUser(_ context.Context, uid string) ([]core.Home, error) {
	var out []core.Home
	for id, h := range f.homes {
		if f.members[id][uid] {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateIncome(_ context.Context, rec core.IncomeRecord) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.incomes[rec.ID] = rec
	return nil
}

func (f *fakeStore) GetIncome(_ context.Context, id string) (*core.IncomeRecord, error) {
	rec, ok := f.incomes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeStore) ListIncomes(_ context.Context, homeID string) ([]core.IncomeRecord, error) {
	var out []core.IncomeRecord
	for _, rec := range f.incomes {
		if rec.HomeID == homeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) AmendIncome(_ context.Context, id string, endDate core.Date, successor core.IncomeRecord) error {
	rec, ok := f.incomes[id]
	if !ok {
		return storage.ErrNotFound
	}
	f.amendCalls++
	rec.EndDate = endDate
	f.incomes[id] = rec
	f.incomes[successor.ID] = successor
	return nil
}

func (f *fakeStore) DeleteIncome(_ context.Context, id string) error {
	if _, ok := f.incomes[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.incomes, id)
	return nil
}

type fakePublisher struct {
	published []string // "action:id"
	failWith  error
}

func (f *fakePublisher) PublishIncomeSync(_ context.Context, id, action string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, action+":"+id)
	return nil
}

func testLogger() *log.Logger {
	return log.New(log.DefaultConfig())
}

func setupService(t *testing.T) (*IncomeService, *fakeStore, *fakePublisher) {
	t.Helper()
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := NewIncomeService(store, pub, testLogger())

	home := core.Home{ID: "home-1", Name: "Casa", OwnerUID: "uid-a"}
	if err := store.CreateHome(context.Background(), home); err != nil {
		t.Fatalf("seed home: %v", err)
	}
	store.addMember("home-1", "uid-b")
	return svc, store, pub
}

func validIncome() core.IncomeRecord {
	return core.IncomeRecord{
		HomeID:       "home-1",
		Source:       "salary",
		Amount:       core.Money{Cents: 250000},
		Frequency:    core.Monthly,
		Scope:        core.ScopeShared,
		CreatedByUID: "uid-a",
		Date:         core.NewDate(2024, 1, 15),
	}
}

func TestCreateHome(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()

	home, err := svc.CreateHome(ctx, "Sommerhus", "uid-c", false)
	if err != nil {
		t.Fatalf("CreateHome() error = %v", err)
	}
	if home.ID == "" {
		t.Error("CreateHome() should assign an ID")
	}
	if ok, _ := store.IsMember(ctx, home.ID, "uid-c"); !ok {
		t.Error("owner should be a member of the new home")
	}

	if _, err := svc.CreateHome(ctx, "", "uid-c", false); !errors.Is(err, core.ErrEmptyHomeName) {
		t.Errorf("CreateHome(empty name) error = %v, want ErrEmptyHomeName", err)
	}
}

func TestAddMember(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()

	if err := svc.AddMember(ctx, "home-1", "uid-a", "uid-d"); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if ok, _ := store.IsMember(ctx, "home-1", "uid-d"); !ok {
		t.Error("uid-d should be a member after AddMember")
	}

	if err := svc.AddMember(ctx, "home-1", "uid-x", "uid-e"); !errors.Is(err, ErrNotMember) {
		t.Errorf("AddMember by non-member error = %v, want ErrNotMember", err)
	}
}

func TestCreateIncome(t *testing.T) {
	svc, store, pub := setupService(t)
	ctx := context.Background()

	created, err := svc.CreateIncome(ctx, validIncome())
	if err != nil {
		t.Fatalf("CreateIncome() error = %v", err)
	}
	if created.ID == "" || created.GroupID == "" {
		t.Errorf("CreateIncome() should assign ID and group ID: %+v", created)
	}
	if _, ok := store.incomes[created.ID]; !ok {
		t.Error("record not persisted")
	}
	if len(pub.published) != 1 || pub.published[0] != amqp.ActionUpsert+":"+created.ID {
		t.Errorf("published = %v", pub.published)
	}
}

func TestCreateIncomeRejectsNonMember(t *testing.T) {
	svc, _, _ := setupService(t)

	rec := validIncome()
	rec.CreatedByUID = "uid-stranger"
	if _, err := svc.CreateIncome(context.Background(), rec); !errors.Is(err, ErrNotMember) {
		t.Errorf("CreateIncome(non-member) error = %v, want ErrNotMember", err)
	}
}

func TestCreateIncomeRejectsInvalid(t *testing.T) {
	svc, _, pub := setupService(t)

	rec := validIncome()
	rec.Amount = core.Money{}
	if _, err := svc.CreateIncome(context.Background(), rec); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("CreateIncome(zero amount) error = %v, want ErrInvalidAmount", err)
	}
	if len(pub.published) != 0 {
		t.Error("invalid record must not be published")
	}
}

func TestCreateIncomePublishFailureIsNotFatal(t *testing.T) {
	svc, store, pub := setupService(t)
	pub.failWith = errors.New("broker down")

	created, err := svc.CreateIncome(context.Background(), validIncome())
	if err != nil {
		t.Fatalf("CreateIncome() error = %v, want nil despite publish failure", err)
	}
	if _, ok := store.incomes[created.ID]; !ok {
		t.Error("record should be persisted even when publishing fails")
	}
}

func TestAmendIncome(t *testing.T) {
	svc, store, pub := setupService(t)
	ctx := context.Background()

	created, err := svc.CreateIncome(ctx, validIncome())
	if err != nil {
		t.Fatalf("CreateIncome() error = %v", err)
	}
	pub.published = nil

	successor, err := svc.AmendIncome(ctx, created.ID, "uid-b",
		core.NewDate(2024, 6, 30), core.Money{Cents: 275000})
	if err != nil {
		t.Fatalf("AmendIncome() error = %v", err)
	}

	if successor.GroupID != created.GroupID {
		t.Errorf("successor group = %s, want %s", successor.GroupID, created.GroupID)
	}
	if successor.Amount.Cents != 275000 {
		t.Errorf("successor amount = %d, want 275000", successor.Amount.Cents)
	}
	// First monthly occurrence after 30 June for a day-15 anchor is 15 July.
	if successor.Date.Year() != 2024 || successor.Date.Month() != 7 || successor.Date.Day() != 15 {
		t.Errorf("successor anchor = %v, want 2024-07-15", successor.Date)
	}
	if store.amendCalls != 1 {
		t.Errorf("amend calls = %d, want 1", store.amendCalls)
	}
	if len(pub.published) != 2 {
		t.Errorf("published = %v, want both records queued", pub.published)
	}

	ended := store.incomes[created.ID]
	if ended.EndDate.IsZero() || ended.EndDate.Day() != 30 {
		t.Errorf("original end date = %v, want 2024-06-30", ended.EndDate)
	}
}

func TestAmendIncomeClampedAnchor(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	rec := validIncome()
	rec.Date = core.NewDate(2023, 1, 31)
	created, err := svc.CreateIncome(ctx, rec)
	if err != nil {
		t.Fatalf("CreateIncome() error = %v", err)
	}

	successor, err := svc.AmendIncome(ctx, created.ID, "uid-a",
		core.NewDate(2024, 4, 30), core.Money{Cents: 300000})
	if err != nil {
		t.Fatalf("AmendIncome() error = %v", err)
	}

	// The day-31 anchor clamped to the 28th at the first February, so the
	// chain pays on the 28th; the successor must keep that rhythm instead of
	// re-anchoring on the 31st.
	if successor.Date.Year() != 2024 || successor.Date.Month() != 5 || successor.Date.Day() != 28 {
		t.Errorf("successor anchor = %v, want 2024-05-28", successor.Date)
	}
}

func TestAmendIncomeRules(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	once := validIncome()
	once.Frequency = core.Once
	createdOnce, err := svc.CreateIncome(ctx, once)
	if err != nil {
		t.Fatalf("CreateIncome(once) error = %v", err)
	}

	personal := validIncome()
	personal.Scope = core.ScopePersonal
	createdPersonal, err := svc.CreateIncome(ctx, personal)
	if err != nil {
		t.Fatalf("CreateIncome(personal) error = %v", err)
	}

	amount := core.Money{Cents: 1000}
	end := core.NewDate(2024, 6, 30)

	if _, err := svc.AmendIncome(ctx, createdOnce.ID, "uid-a", end, amount); !errors.Is(err, ErrNotRecurring) {
		t.Errorf("amend once error = %v, want ErrNotRecurring", err)
	}
	if _, err := svc.AmendIncome(ctx, createdPersonal.ID, "uid-b", end, amount); !errors.Is(err, ErrForbidden) {
		t.Errorf("amend other's personal income error = %v, want ErrForbidden", err)
	}
	if _, err := svc.AmendIncome(ctx, "missing", "uid-a", end, amount); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("amend missing error = %v, want ErrNotFound", err)
	}

	shared := validIncome()
	createdShared, err := svc.CreateIncome(ctx, shared)
	if err != nil {
		t.Fatalf("CreateIncome(shared) error = %v", err)
	}
	if _, err := svc.AmendIncome(ctx, createdShared.ID, "uid-a", core.NewDate(2023, 12, 31), amount); err == nil {
		t.Error("end date before the anchor must be rejected")
	}
}

func TestDeleteIncome(t *testing.T) {
	svc, store, pub := setupService(t)
	ctx := context.Background()

	personal := validIncome()
	personal.Scope = core.ScopePersonal
	created, err := svc.CreateIncome(ctx, personal)
	if err != nil {
		t.Fatalf("CreateIncome() error = %v", err)
	}
	pub.published = nil

	if _, err := svc.DeleteIncome(ctx, created.ID, "uid-b"); !errors.Is(err, ErrForbidden) {
		t.Errorf("delete other's personal income error = %v, want ErrForbidden", err)
	}

	deleted, err := svc.DeleteIncome(ctx, created.ID, "uid-a")
	if err != nil {
		t.Fatalf("DeleteIncome() error = %v", err)
	}
	if deleted.HomeID != "home-1" {
		t.Errorf("deleted record home = %q, want home-1", deleted.HomeID)
	}
	if _, ok := store.incomes[created.ID]; ok {
		t.Error("record should be gone after delete")
	}
	if len(pub.published) != 1 || pub.published[0] != amqp.ActionDelete+":"+created.ID {
		t.Errorf("published = %v", pub.published)
	}

	if _, err := svc.DeleteIncome(ctx, created.ID, "uid-a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("delete missing error = %v, want ErrNotFound", err)
	}
}

func TestListIncomesFiltersScope(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	personal := validIncome()
	personal.Scope = core.ScopePersonal
	if _, err := svc.CreateIncome(ctx, personal); err != nil {
		t.Fatalf("CreateIncome(personal) error = %v", err)
	}
	if _, err := svc.CreateIncome(ctx, validIncome()); err != nil {
		t.Fatalf("CreateIncome(shared) error = %v", err)
	}

	asCreator, err := svc.ListIncomes(ctx, "home-1", "uid-a")
	if err != nil {
		t.Fatalf("ListIncomes(creator) error = %v", err)
	}
	if len(asCreator) != 2 {
		t.Errorf("creator sees %d records, want 2", len(asCreator))
	}

	asOther, err := svc.ListIncomes(ctx, "home-1", "uid-b")
	if err != nil {
		t.Fatalf("ListIncomes(member) error = %v", err)
	}
	if len(asOther) != 1 {
		t.Errorf("member sees %d records, want 1", len(asOther))
	}

	if _, err := svc.ListIncomes(ctx, "home-1", "uid-x"); !errors.Is(err, ErrNotMember) {
		t.Errorf("ListIncomes(stranger) error = %v, want ErrNotMember", err)
	}
}
