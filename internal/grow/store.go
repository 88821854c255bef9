package grow

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/errors"
)

// RecentEventLimit bounds how many events are embedded with a cultivation.
const RecentEventLimit = 10

// Store abstracts read access to cultivations and their event histories.
type Store interface {
	// GetCultivation fetches a cultivation by id with its user and the most
	// recent events (date descending, bounded to RecentEventLimit).
	GetCultivation(ctx context.Context, id string) (*Cultivation, error)
	// ListActiveCultivations returns cultivations eligible for batch
	// evaluation, filtered by status.
	ListActiveCultivations(ctx context.Context) ([]Cultivation, error)
	// ListCompletedCultivations returns finished cultivations with their full
	// event history, used as baseline learning input.
	ListCompletedCultivations(ctx context.Context) ([]Cultivation, error)
	// EventsSince returns the sensor-bearing events of a cultivation dated
	// strictly after since, in ascending date order. A zero since returns
	// the full sample history.
	EventsSince(ctx context.Context, cultivationID string, since time.Time) ([]Event, error)
	Close() error
}

// DataStore implements Store using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// NewDataStore opens the configured database backend and migrates the
// cultivation schema.
func NewDataStore(settings *conf.Settings) (*DataStore, error) {
	var dialector gorm.Dialector
	switch {
	case settings.Database.SQLite.Enabled:
		dialector = sqlite.Open(settings.Database.SQLite.Path)
	case settings.Database.MySQL.Enabled:
		my := settings.Database.MySQL
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			my.Username, my.Password, my.Host, my.Port, my.Database)
		dialector = mysql.Open(dsn)
	default:
		return nil, errors.Newf("no database backend enabled").
			Component("growstore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	logLevel := gormlogger.Silent
	if settings.Debug {
		logLevel = gormlogger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("growstore").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Build()
	}

	if err := db.AutoMigrate(&User{}, &Cultivation{}, &Event{}); err != nil {
		return nil, errors.New(err).
			Component("growstore").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}

	return &DataStore{DB: db}, nil
}

// GetCultivation fetches a cultivation with user and recent events.
func (ds *DataStore) GetCultivation(ctx context.Context, id string) (*Cultivation, error) {
	var cultivation Cultivation
	err := ds.DB.WithContext(ctx).
		Preload("User").
		Preload("Events", func(db *gorm.DB) *gorm.DB {
			return db.Order("date DESC").Limit(RecentEventLimit)
		}).
		First(&cultivation, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("cultivation not found: %s", id).
				Component("growstore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("growstore").
			Category(errors.CategoryDatabase).
			Context("cultivation_id", id).
			Build()
	}
	return &cultivation, nil
}

// ListActiveCultivations returns cultivations in an active growing status.
func (ds *DataStore) ListActiveCultivations(ctx context.Context) ([]Cultivation, error) {
	var cultivations []Cultivation
	err := ds.DB.WithContext(ctx).
		Where("status IN ?", []string{StatusActive, StatusVegetative, StatusFlowering}).
		Find(&cultivations).Error
	if err != nil {
		return nil, errors.New(err).
			Component("growstore").
			Category(errors.CategoryDatabase).
			Context("operation", "list_active").
			Build()
	}
	return cultivations, nil
}

// ListCompletedCultivations returns finished cultivations with full history.
func (ds *DataStore) ListCompletedCultivations(ctx context.Context) ([]Cultivation, error) {
	var cultivations []Cultivation
	err := ds.DB.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB {
			return db.Order("date ASC")
		}).
		Where("status = ?", StatusCompleted).
		Find(&cultivations).Error
	if err != nil {
		return nil, errors.New(err).
			Component("growstore").
			Category(errors.CategoryDatabase).
			Context("operation", "list_completed").
			Build()
	}
	return cultivations, nil
}

// EventsSince returns sensor-bearing events after since in ascending date order.
func (ds *DataStore) EventsSince(ctx context.Context, cultivationID string, since time.Time) ([]Event, error) {
	query := ds.DB.WithContext(ctx).
		Where("cultivation_id = ?", cultivationID).
		Where("ph IS NOT NULL OR ec IS NOT NULL OR temperature_c IS NOT NULL OR humidity_pct IS NOT NULL")
	if !since.IsZero() {
		query = query.Where("date > ?", since)
	}
	var events []Event
	err := query.Order("date ASC").Find(&events).Error
	if err != nil {
		return nil, errors.New(err).
			Component("growstore").
			Category(errors.CategoryDatabase).
			Context("cultivation_id", cultivationID).
			Build()
	}
	return events, nil
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
