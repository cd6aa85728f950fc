package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/config"
	"github.com/Rogue-Bear-Innovations/bookstore-back/internal/models"
)

var Module = fx.Provide(NewGormClient)

// SQLiteDriverName is go-sqlite3 with ulower registered on every connection.
// The built-in LOWER only folds ASCII letters.
const SQLiteDriverName = "sqlite3_bookstore"

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("ulower", strings.ToLower, true)
		},
	})
}

func NewGormClient(lc fx.Lifecycle, cfg *config.Config, l *zap.SugaredLogger) (*gorm.DB, error) {
	logLevel := logger.Info
	if cfg.LogMode == config.LogModeProduction {
		logLevel = logger.Warn
	}
	newLogger := logger.New(zap.NewStdLog(l.Desugar()), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logLevel,
		Colorful:                  cfg.LogMode == config.LogModeDevelopment,
		IgnoreRecordNotFoundError: true,
	})

	db, err := Open(cfg, &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	lc.Append(fx.StopHook(func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		l.Info("Closing database connection.")
		return sqlDB.Close()
	}))

	return db, nil
}

// Open connects to the database selected by cfg.DBDriver.
func Open(cfg *config.Config, gormCfg *gorm.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DriverSQLite:
		dialector = sqlite.New(sqlite.Config{
			DriverName: SQLiteDriverName,
			DSN:        sqliteDSN(cfg.DBPath),
		})
	default:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if cfg.DBDriver == config.DriverSQLite {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "get sql db")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// sqliteDSN turns on foreign key enforcement, which sqlite leaves off by default.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}); err != nil {
		return errors.Wrap(err, "migrate user")
	}
	if err := db.AutoMigrate(&models.Book{}); err != nil {
		return errors.Wrap(err, "migrate book")
	}
	if err := db.AutoMigrate(&models.UserBookRelation{}); err != nil {
		return errors.Wrap(err, "migrate user book relation")
	}
	return nil
}
