package directory

import (
	"database/sql"
	"errors"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// HeardStation is one station the engine has seen transmit a UI frame.
type HeardStation struct {
	Callsign  string `gorm:"primaryKey"`
	LastHeard time.Time
	LastText  string
	HitCount  uint32
}

// ConnectionRecord is one connected-mode session, open or closed.
type ConnectionRecord struct {
	SessionID string `gorm:"primaryKey"`
	Peer      string
	OpenedAt  time.Time
	ClosedAt  time.Time
	BytesSent uint64
	BytesRecv uint64
	Outcome   string
}

// Store is the GORM-backed SQLite directory of heard stations and
// connection history. It is fed by the session engine on every inbound
// UI frame and every link state transition; L1-L3 never read it.
type Store struct {
	db *gorm.DB
}

// NewStore opens (creating if necessary) a SQLite-backed Store at path,
// using the pure-Go modernc.org/sqlite driver.
func NewStore(path string, logWriter *log.Logger) (*Store, error) {
	var gormLog logger.Interface
	if logWriter != nil {
		gormLog = logger.New(logWriter, logger.Config{
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		})
	} else {
		gormLog = logger.Default.LogMode(logger.Silent)
	}

	dialector := sqlite.Dialector{DriverName: "sqlite", DSN: path}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&HeardStation{}, &ConnectionRecord{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// RecordHeard upserts a HeardStation, bumping its hit count and last-heard
// fields.
func (s *Store) RecordHeard(callsign, text string, when time.Time) error {
	var station HeardStation
	err := s.db.First(&station, "callsign = ?", callsign).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		station = HeardStation{Callsign: callsign, LastHeard: when, LastText: text, HitCount: 1}
		return s.db.Create(&station).Error
	case err != nil:
		return err
	}
	station.LastHeard = when
	station.LastText = text
	station.HitCount++
	return s.db.Save(&station).Error
}

// OpenConnection records the start of a connected-mode session.
func (s *Store) OpenConnection(sessionID, peer string, when time.Time) error {
	return s.db.Create(&ConnectionRecord{SessionID: sessionID, Peer: peer, OpenedAt: when}).Error
}

// CloseConnection fills in the closing fields of a previously opened
// session.
func (s *Store) CloseConnection(sessionID string, when time.Time, bytesSent, bytesRecv uint64, outcome string) error {
	return s.db.Model(&ConnectionRecord{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"closed_at":  when,
			"bytes_sent": bytesSent,
			"bytes_recv": bytesRecv,
			"outcome":    outcome,
		}).Error
}

// RecentlyHeard returns up to limit stations, most recently heard first.
func (s *Store) RecentlyHeard(limit int) ([]HeardStation, error) {
	var stations []HeardStation
	err := s.db.Order("last_heard desc").Limit(limit).Find(&stations).Error
	return stations, err
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Stats returns the underlying connection pool's statistics, for /status.
func (s *Store) Stats() sql.DBStats {
	sqlDB, _ := s.db.DB()
	return sqlDB.Stats()
}
