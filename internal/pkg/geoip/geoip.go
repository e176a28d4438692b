package geoip

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// Location is the coarse position attached to ingested events.
type Location struct {
	Country string
	Region  string
	City    string
}

// Locator resolves IP addresses against a GeoLite2 City database.
// A nil *Locator is valid and resolves nothing.
type Locator struct {
	db     *geoip2.Reader
	logger *slog.Logger
}

// Open loads the database at path. An empty path or a missing file disables
// lookups and returns a nil locator without error.
func Open(path string, logger *slog.Logger) (*Locator, error) {
	if path == "" {
		logger.Debug("GeoIP database path not configured - GeoIP features disabled")
		return nil, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - GeoIP features disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil, nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoLite2 database %s: %w", path, err)
	}

	logger.Info("GeoLite2 database initialized successfully", slog.String("path", path))
	return &Locator{db: db, logger: logger}, nil
}

// Lookup returns the location of ip. ok is false when the locator is
// disabled, the address is invalid or the database has no record.
func (l *Locator) Lookup(ip string) (Location, bool) {
	if l == nil || l.db == nil {
		return Location{}, false
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, false
	}

	record, err := l.db.City(parsed)
	if err != nil {
		l.logger.Debug("geoip lookup failed", slog.Any("error", err))
		return Location{}, false
	}

	loc := Location{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].IsoCode
	}
	if loc.Country == "" {
		return Location{}, false
	}
	return loc, true
}

func (l *Locator) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
