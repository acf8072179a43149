package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	ExportJob() ExportJob
	Document() Document
	Template() Template
	Close() error
}

type DataStore struct {
	db        *gorm.DB
	exportJob ExportJob
	document  Document
	template  Template
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:        db,
		exportJob: NewExportJobStore(db),
		document:  NewDocumentStore(db),
		template:  NewTemplateStore(db),
	}
}

func (s *DataStore) ExportJob() ExportJob { return s.exportJob }
func (s *DataStore) Document() Document   { return s.document }
func (s *DataStore) Template() Template   { return s.template }

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func getDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx)
}
