package registry

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ollamad/internal/apperr"
	"ollamad/pkg/types"
)

// modelRow is the persisted form of a types.Model. Seq preserves insertion order.
type modelRow struct {
	Seq           uint   `gorm:"primaryKey;autoIncrement"`
	ModelID       string `gorm:"column:model_id;uniqueIndex;not null"`
	Name          string `gorm:"index"`
	Family        string
	Path          string
	TokenizerPath string
	SizeBytes     int64
	Quant         string
	CreatedAt     time.Time
}

func (modelRow) TableName() string { return "models" }

func rowFromModel(m types.Model) modelRow {
	return modelRow{
		ModelID:       m.ID,
		Name:          m.Name,
		Family:        string(m.Family),
		Path:          m.Path,
		TokenizerPath: m.TokenizerPath,
		SizeBytes:     m.SizeBytes,
		Quant:         m.Quant,
		CreatedAt:     m.CreatedAt,
	}
}

func (r modelRow) model() types.Model {
	return types.Model{
		ID:            r.ModelID,
		Name:          r.Name,
		Family:        types.ParseFamily(r.Family),
		Path:          r.Path,
		TokenizerPath: r.TokenizerPath,
		SizeBytes:     r.SizeBytes,
		Quant:         r.Quant,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

// SQLStore is a Store backed by SQLite through gorm.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) the catalog database at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperr.RegistryFailure("registry.open", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := db.AutoMigrate(&modelRow{}); err != nil {
		return nil, apperr.RegistryFailure("registry.migrate", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (types.Model, bool, error) {
	var row modelRow
	err := s.db.WithContext(ctx).Where("model_id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Model{}, false, nil
	}
	if err != nil {
		return types.Model{}, false, apperr.RegistryFailure("registry.get", err)
	}
	return row.model(), true, nil
}

func (s *SQLStore) List(ctx context.Context) ([]types.Model, error) {
	var rows []modelRow
	if err := s.db.WithContext(ctx).Order("seq asc").Find(&rows).Error; err != nil {
		return nil, apperr.RegistryFailure("registry.list", err)
	}
	out := make([]types.Model, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *SQLStore) Upsert(ctx context.Context, m types.Model) error {
	row := rowFromModel(m)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing modelRow
		err := tx.Where("model_id = ?", m.ID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}
		row.Seq = existing.Seq
		if row.CreatedAt.IsZero() {
			row.CreatedAt = existing.CreatedAt
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		return apperr.RegistryFailure("registry.upsert", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("model_id = ?", id).Delete(&modelRow{})
	if res.Error != nil {
		return false, apperr.RegistryFailure("registry.delete", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
