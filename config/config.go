package config

import "time"

type Config struct {
	Web    Web
	DB     DB
	Redis  Redis
	Oidc   Oidc
	Player Player
	Rate   Rate
	Cors   Cors
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	Driver       string `conf:"default:postgres"`
	User         string `conf:"default:postgres"`
	Password     string `conf:"default:postgres,mask"`
	Host         string `conf:"default:localhost:5432"`
	Name         string `conf:"default:postgres"`
	Path         string `conf:"default:progress.sqlite"`
	MaxIdleConns int    `conf:"default:0"`
	MaxOpenConns int    `conf:"default:0"`
	DisableTLS   bool   `conf:"default:true"`
}

// Redis selects the notification channel; an empty address keeps
// notifications in-process.
type Redis struct {
	Addr     string
	Password string `conf:"mask"`
	DB       int    `conf:"default:0"`
	Prefix   string `conf:"default:progress"`
}

type Oidc struct {
	Issuer           string `conf:"default:https://accounts.google.com"`
	ClientID         string
	RoleClaim        string        `conf:"default:role"`
	DiscoveryTimeout time.Duration `conf:"default:10s"`
}

type Player struct {
	DebounceWindow   time.Duration `conf:"default:5s"`
	MinAdvance       float64       `conf:"default:3"`
	Rewind           float64       `conf:"default:2"`
	FlushInterval    time.Duration `conf:"default:30s"`
	AutoRestoreRatio float64       `conf:"default:0.6"`
	IdleTimeout      time.Duration `conf:"default:30m"`
}

type Rate struct {
	EventsPerSecond float64 `conf:"default:10"`
	Burst           int     `conf:"default:20"`
	ExpiryMinutes   int     `conf:"default:10"`
}

type Cors struct {
	Origin string
}
