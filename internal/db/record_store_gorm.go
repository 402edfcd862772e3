package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/metrics"
	"spacewh/mis/internal/models/entities"
	gormModels "spacewh/mis/internal/models/gorm"
	"spacewh/mis/internal/providers"
)

// GormRecordStore implements providers.RecordStore on a relational database.
type GormRecordStore struct {
	db          *gorm.DB
	metrics     *metrics.MetricsRegistry
	collections map[constants.Collection]collection
}

var _ providers.RecordStore = (*GormRecordStore)(nil)

// NewGormRecordStore creates a record store over an open GORM connection
func NewGormRecordStore(db *gorm.DB, m *metrics.MetricsRegistry) *GormRecordStore {
	return &GormRecordStore{
		db:      db,
		metrics: m,
		collections: map[constants.Collection]collection{
			constants.CollectionInvitations: invitationCollection,
			constants.CollectionOnboarding:  onboardingCollection,
			constants.CollectionMemberships: membershipCollection,
		},
	}
}

// GetProviderType returns the provider type identifier
func (s *GormRecordStore) GetProviderType() string {
	return "gorm:" + s.db.Dialector.Name()
}

func (s *GormRecordStore) Create(ctx context.Context, name constants.Collection, record providers.Record) (providers.Record, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rec, err := c.create(ctx, s.db, record)
	s.observe(name, "create", start, err)
	return rec, err
}

func (s *GormRecordStore) Query(ctx context.Context, name constants.Collection, filter providers.Filter) ([]providers.Record, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	recs, err := c.query(ctx, s.db, filter)
	s.observe(name, "query", start, err)
	return recs, err
}

func (s *GormRecordStore) Update(ctx context.Context, name constants.Collection, filter providers.Filter, patch providers.Record) ([]providers.Record, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return nil, &providers.StoreError{
			Code:    constants.ErrCodeStoreBadRequest,
			Message: "Refusing unfiltered update of " + name.String(),
		}
	}
	start := time.Now()
	recs, err := c.update(ctx, s.db, filter, patch)
	s.observe(name, "update", start, err)
	return recs, err
}

func (s *GormRecordStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return translateError("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return translateError("ping", err)
	}
	return nil
}

func (s *GormRecordStore) collection(name constants.Collection) (collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, &providers.StoreError{
			Status:  http.StatusNotFound,
			Code:    constants.ErrCodeStoreUnknownTable,
			Message: fmt.Sprintf("%s: %s", constants.GetErrorMessage(constants.ErrCodeStoreUnknownTable), name),
		}
	}
	return c, nil
}

func (s *GormRecordStore) observe(name constants.Collection, op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.StoreRequestsTotal.WithLabelValues(name.String(), op, outcome).Inc()
	s.metrics.StoreRequestDuration.WithLabelValues(name.String(), op).Observe(time.Since(start).Seconds())
}

// ============================================================================
// Collections
// ============================================================================

type collection interface {
	create(ctx context.Context, db *gorm.DB, rec providers.Record) (providers.Record, error)
	query(ctx context.Context, db *gorm.DB, filter providers.Filter) ([]providers.Record, error)
	update(ctx context.Context, db *gorm.DB, filter providers.Filter, patch providers.Record) ([]providers.Record, error)
}

// gormCollection maps records of one collection onto a GORM model M.
type gormCollection[M any] struct {
	toModel  func(providers.Record) (*M, error)
	toRecord func(*M) (providers.Record, error)
}

func (c gormCollection[M]) create(ctx context.Context, db *gorm.DB, rec providers.Record) (providers.Record, error) {
	model, err := c.toModel(rec)
	if err != nil {
		return nil, &providers.StoreError{
			Code:    constants.ErrCodeStoreBadRequest,
			Message: "record does not match collection schema",
			Err:     err,
		}
	}
	if err := db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, translateError("create", err)
	}
	return c.encode(model)
}

func (c gormCollection[M]) query(ctx context.Context, db *gorm.DB, filter providers.Filter) ([]providers.Record, error) {
	var rows []M
	tx := db.WithContext(ctx)
	if len(filter) > 0 {
		tx = tx.Where(map[string]any(filter))
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, translateError("query", err)
	}
	return c.encodeAll(rows)
}

func (c gormCollection[M]) update(ctx context.Context, db *gorm.DB, filter providers.Filter, patch providers.Record) ([]providers.Record, error) {
	var rows []M
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(new(M)).Where(map[string]any(filter)).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Model(new(M)).Where("id IN ?", ids).Updates(map[string]any(patch)).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Find(&rows).Error
	})
	if err != nil {
		return nil, translateError("update", err)
	}
	return c.encodeAll(rows)
}

func (c gormCollection[M]) encode(model *M) (providers.Record, error) {
	rec, err := c.toRecord(model)
	if err != nil {
		return nil, &providers.StoreError{
			Code:    constants.ErrCodeStoreDecode,
			Message: constants.GetErrorMessage(constants.ErrCodeStoreDecode),
			Err:     err,
		}
	}
	return rec, nil
}

func (c gormCollection[M]) encodeAll(rows []M) ([]providers.Record, error) {
	out := make([]providers.Record, 0, len(rows))
	for i := range rows {
		rec, err := c.encode(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

var invitationCollection = gormCollection[gormModels.Invitation]{
	toModel: func(rec providers.Record) (*gormModels.Invitation, error) {
		inv, err := providers.DecodeRecord[entities.Invitation](rec)
		if err != nil {
			return nil, err
		}
		m := &gormModels.Invitation{
			Code:        inv.Code,
			Pin:         inv.Pin,
			InvitedName: inv.InvitedName,
			Status:      inv.Status.String(),
		}
		if inv.CreatedAt != nil {
			m.CreatedAt = inv.CreatedAt.Time
		}
		return m, nil
	},
	toRecord: func(m *gormModels.Invitation) (providers.Record, error) {
		createdAt := entities.NewStoreTime(m.CreatedAt)
		return withID(providers.EncodeRecord(entities.Invitation{
			Code:        m.Code,
			Pin:         m.Pin,
			InvitedName: m.InvitedName,
			Status:      constants.InviteStatus(m.Status),
			CreatedAt:   &createdAt,
		}))(m.ID)
	},
}

var onboardingCollection = gormCollection[gormModels.Onboarding]{
	toModel: func(rec providers.Record) (*gormModels.Onboarding, error) {
		ob, err := providers.DecodeRecord[entities.OnboardingRecord](rec)
		if err != nil {
			return nil, err
		}
		m := &gormModels.Onboarding{
			InvitationCode: ob.InvitationCode,
			VoiceConsent:   ob.VoiceConsent,
			Responses:      ob.Responses,
		}
		if ob.SubmittedAt != nil {
			m.SubmittedAt = ob.SubmittedAt.Time
		}
		return m, nil
	},
	toRecord: func(m *gormModels.Onboarding) (providers.Record, error) {
		submittedAt := entities.NewStoreTime(m.SubmittedAt)
		return withID(providers.EncodeRecord(entities.OnboardingRecord{
			InvitationCode: m.InvitationCode,
			VoiceConsent:   m.VoiceConsent,
			Responses:      m.Responses,
			SubmittedAt:    &submittedAt,
		}))(m.ID)
	},
}

var membershipCollection = gormCollection[gormModels.Membership]{
	toModel: func(rec providers.Record) (*gormModels.Membership, error) {
		ms, err := providers.DecodeRecord[entities.Membership](rec)
		if err != nil {
			return nil, err
		}
		return &gormModels.Membership{
			InvitationCode: ms.InvitationCode,
			MembershipCode: ms.MembershipCode,
			MembershipKey:  ms.MembershipKey,
			IssuedTo:       ms.IssuedTo,
			Active:         ms.Active,
			IssuedAt:       ms.IssuedAt.Time,
		}, nil
	},
	toRecord: func(m *gormModels.Membership) (providers.Record, error) {
		return withID(providers.EncodeRecord(entities.Membership{
			InvitationCode: m.InvitationCode,
			MembershipCode: m.MembershipCode,
			MembershipKey:  m.MembershipKey,
			IssuedTo:       m.IssuedTo,
			Active:         m.Active,
			IssuedAt:       entities.NewStoreTime(m.IssuedAt),
		}))(m.ID)
	},
}

func withID(rec providers.Record, err error) func(uint) (providers.Record, error) {
	return func(id uint) (providers.Record, error) {
		if err != nil {
			return nil, err
		}
		rec["id"] = id
		return rec, nil
	}
}

// translateError maps driver errors onto StoreError, keeping uniqueness
// violations distinguishable as conflicts.
func translateError(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return &providers.StoreError{
			Status:  http.StatusConflict,
			Code:    constants.ErrCodeStoreConflict,
			Message: op + ": " + constants.GetErrorMessage(constants.ErrCodeStoreConflict),
			Err:     err,
		}
	}
	return &providers.StoreError{
		Status:  http.StatusInternalServerError,
		Code:    constants.ErrCodeStoreInternal,
		Message: op + ": " + constants.GetErrorMessage(constants.ErrCodeStoreInternal),
		Err:     err,
	}
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
