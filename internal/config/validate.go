package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateLock(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("market: %w", err)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverBolt, DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s driver", c.Store.Driver)
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	case DriverMongo:
		if c.Store.URI == "" || c.Store.Database == "" {
			return errors.New("store.uri and store.database are required for the mongo driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of memory, bolt, sqlite, postgres, mongo", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateLock() error {
	switch c.Lock.Driver {
	case LockLocal:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			return errors.New("lock.redis_addr is required for the redis lock")
		}
	default:
		return fmt.Errorf("lock.driver %q is not one of local, redis", c.Lock.Driver)
	}
	if c.Lock.LeaseSeconds < 0 {
		return errors.New("lock.lease_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
