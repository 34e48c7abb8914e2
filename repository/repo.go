package repository

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chat-archive/config"
	"chat-archive/constant"
	"chat-archive/entities"
)

type StreamRepository interface {
	Transaction(ctx context.Context, callback func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB
	Retry(ctx context.Context, op func() error) error
	Migrate(ctx context.Context) error
	Close() error
	CreateStream(ctx context.Context, stream *entities.Stream) error
	FindStreamByID(ctx context.Context, id uint) (*entities.Stream, error)
	FindActiveStreamByURL(ctx context.Context, url string) (*entities.Stream, error)
	ListStreams(ctx context.Context) ([]*entities.Stream, error)
	FindStreamsByIDs(ctx context.Context, ids []uint) ([]*entities.Stream, error)
	ListStreamsByDownloadStatus(ctx context.Context, status constant.DownloadStatus) ([]*entities.Stream, error)
	UpdateStream(ctx context.Context, id uint, updates map[string]interface{}) error
	UpdateResumeTimestampIfPaused(ctx context.Context, id uint, resumeAt *time.Time) error
	UpdateStreamIfDownloading(ctx context.Context, id uint, updates map[string]interface{}) (bool, error)
	DeleteStream(ctx context.Context, id uint, messageModel interface{}) error
}

type repo struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	policy RetryPolicy
}

func NewRepo(db *sql.DB, database config.Database, retry config.Retry) (StreamRepository, error) {
	var dialector gorm.Dialector
	if database.IsPostgres() {
		dialector = postgres.New(postgres.Config{Conn: db})
	} else {
		dialector = sqlite.New(sqlite.Config{DriverName: config.DriverSQLite, Conn: db})
	}

	logLevel := logger.Warn
	if database.Debug {
		logLevel = logger.Info
	}
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	return &repo{
		db:     gormDB,
		sqlDB:  db,
		policy: NewRetryPolicy(retry),
	}, nil
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Retry(ctx context.Context, op func() error) error {
	return r.policy.Do(ctx, op)
}

func (r *repo) Transaction(ctx context.Context, callback func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	return r.GetDB().WithContext(ctx).Transaction(callback, opts...)
}

func (r *repo) Migrate(ctx context.Context) error {
	return r.Retry(ctx, func() error {
		return r.GetDB().WithContext(ctx).AutoMigrate(entities.All()...)
	})
}

func (r *repo) Close() error {
	return r.sqlDB.Close()
}

func (r *repo) CreateStream(ctx context.Context, stream *entities.Stream) error {
	return r.Retry(ctx, func() error {
		return r.GetDB().WithContext(ctx).Create(stream).Error
	})
}

func (r *repo) FindStreamByID(ctx context.Context, id uint) (*entities.Stream, error) {
	stream := &entities.Stream{}
	err := r.Retry(ctx, func() error {
		return r.GetDB().WithContext(ctx).First(stream, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	return stream, nil
}

// FindActiveStreamByURL returns the most recent downloading or paused
// stream for url, or gorm.ErrRecordNotFound.
func (r *repo) FindActiveStreamByURL(ctx context.Context, url string) (*entities.Stream, error) {
	stream := &entities.Stream{}
	active := []constant.DownloadStatus{constant.DownloadStatusDownloading, constant.DownloadStatusPaused}
	err := r.Retry(ctx, func() error {
		return r.GetDB().WithContext(ctx).
			Where("url = ? AND download_status IN ?", url, active).
			Order("id DESC").
			First(stream).Error
	})
	if err != nil {
		return nil, err
	}

	return stream, nil
}

func (r *repo) ListStreams(ctx context.Context) ([]*entities.Stream, error) {
	var streams []*entities.Stream
	err := r.Retry(ctx, func() error {
		return r.GetDB().WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&streams).Error
	})
	if err != nil {
		return nil, err
	}
	return streams, nil
}

func (r *repo) FindStreamsByIDs(ctx context.Context, ids []uint) ([]*entities.Stream, error) {
	var streams []*entities.Stream
	if len(ids) == 0 {
		return streams, nil
	}
	err := r.Retry(ctx, func() error {
		return r.GetDB().WithContext(ctx).Where("id IN ?", ids).Find(&streams).Error
	})
	if err != nil {
		return nil, err
	}
	return streams, nil
}

func (r *repo) ListStreamsByDownloadStatus(ctx context.Context, status constant.DownloadStatus) ([]*entities.Stream, error) {
	var streams []*entities.Stream
	err := r.Retry(ctx, func() error {
		return r.GetDB().WithContext(ctx).Where("download_status = ?", status).Find(&streams).Error
	})
	if err != nil {
		return nil, err
	}
	return streams, nil
}

func (r *repo) UpdateStream(ctx context.Context, id uint, updates map[string]interface{}) error {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.Retry(ctx, func() error {
		return r.GetDB().WithContext(ctx).Model(&entities.Stream{}).Where("id = ?", id).Updates(updates).Error
	})
}

// UpdateResumeTimestampIfPaused records the resume watermark only while the
// stream is still paused, so a concurrent stop that cleared it wins.
func (r *repo) UpdateResumeTimestampIfPaused(ctx context.Context, id uint, resumeAt *time.Time) error {
	return r.Retry(ctx, func() error {
		return r.GetDB().WithContext(ctx).Model(&entities.Stream{}).
			Where("id = ? AND download_status = ?", id, constant.DownloadStatusPaused).
			Updates(map[string]interface{}{
				"resume_timestamp": resumeAt,
				"updated_at":       time.Now().UTC(),
			}).Error
	})
}

// UpdateStreamIfDownloading applies updates only while the stream is still
// downloading. It reports whether the row was changed.
func (r *repo) UpdateStreamIfDownloading(ctx context.Context, id uint, updates map[string]interface{}) (bool, error) {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	var updated bool
	err := r.Retry(ctx, func() error {
		res := r.GetDB().WithContext(ctx).Model(&entities.Stream{}).
			Where("id = ? AND download_status = ?", id, constant.DownloadStatusDownloading).
			Updates(updates)
		updated = res.RowsAffected > 0
		return res.Error
	})
	return updated, err
}

// DeleteStream removes the stream and all of its messages in one transaction.
func (r *repo) DeleteStream(ctx context.Context, id uint, messageModel interface{}) error {
	return r.Retry(ctx, func() error {
		return r.Transaction(ctx, func(tx *gorm.DB) error {
			if err := tx.Where("stream_id = ?", id).Delete(messageModel).Error; err != nil {
				return err
			}
			return tx.Delete(&entities.Stream{}, id).Error
		})
	})
}
