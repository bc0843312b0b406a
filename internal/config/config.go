package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Tournament seeding policies
const (
	SeedArrival = "arrival"
	SeedRandom  = "random"
	SeedRanked  = "ranked"
)

// Game holds the simulation constants. All distances are court units
// with the origin at the center of the court.
type Game struct {
	CourtHalfWidth   float64
	CourtHalfHeight  float64
	PaddleHalfHeight float64
	PaddleHalfWidth  float64
	PaddleX          float64 // |x| of each paddle center
	BallRadius       float64
	PaddleSpeed      float64 // units/s
	BallSpeed        float64 // base velocity
	BallFactor       float64 // multiplier on BallSpeed
	MinDir           float64 // minimum |x| of a unit serve/bounce direction
	MoveTolerance    float64 // paddle anti-cheat slack, fraction of expected travel
	PaddleDeflection bool    // bounce angle depends on where the ball meets the paddle
	WinScore         int
	TickInterval     time.Duration
	StartDelay       time.Duration
}

// MaxPaddleY is the largest |y| a paddle center may reach
func (g Game) MaxPaddleY() float64 {
	return g.CourtHalfHeight - g.PaddleHalfHeight
}

// ServeSpeed is the magnitude of the ball velocity
func (g Game) ServeSpeed() float64 {
	return g.BallSpeed * g.BallFactor
}

// Config is the deployment configuration
type Config struct {
	Addr string
	Game Game

	TournamentSize int

	// Per-connection message rate (messages/s) and burst
	MessageRate  float64
	MessageBurst int

	MaxConnsPerIP int
	MaxTotalConns int

	// IdentitySecret, when set, requires identify messages to carry an
	// HS256 token minted by the identity service.
	IdentitySecret string

	Store      string
	SQLitePath string
	RedisURL   string

	// Seeding picks how a tournament group is paired: arrival, random
	// or ranked
	Seeding string

	MetricsEvery     time.Duration
	BracketRetention time.Duration
}

// DefaultGame returns the stock constants
func DefaultGame() Game {
	return Game{
		CourtHalfWidth:   1600,
		CourtHalfHeight:  785,
		PaddleHalfHeight: 280,
		PaddleHalfWidth:  100,
		PaddleX:          1300,
		BallRadius:       60,
		PaddleSpeed:      800,
		BallSpeed:        1000,
		BallFactor:       1.5,
		MinDir:           0.5,
		MoveTolerance:    0.1,
		PaddleDeflection: true,
		WinScore:         10,
		TickInterval:     16 * time.Millisecond,
		StartDelay:       3 * time.Second,
	}
}

// Default returns the full default configuration
func Default() Config {
	return Config{
		Addr:             ":8080",
		Game:             DefaultGame(),
		TournamentSize:   4,
		MessageRate:      30,
		MessageBurst:     30,
		MaxConnsPerIP:    5,
		MaxTotalConns:    1000,
		Store:            StoreMemory,
		SQLitePath:       "pong.db",
		RedisURL:         "redis://localhost:6379",
		Seeding:          SeedArrival,
		MetricsEvery:     30 * time.Second,
		BracketRetention: 10 * time.Minute,
	}
}

// Load reads an optional env file and overlays PONG_* variables on the
// defaults. A missing env file is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PONG_ADDR", &c.Addr)
	str("PONG_STORE", &c.Store)
	str("PONG_SQLITE_PATH", &c.SQLitePath)
	str("PONG_REDIS_URL", &c.RedisURL)
	str("PONG_IDENTITY_SECRET", &c.IdentitySecret)
	str("PONG_SEEDING", &c.Seeding)

	num("PONG_COURT_HALF_WIDTH", &c.Game.CourtHalfWidth)
	num("PONG_COURT_HALF_HEIGHT", &c.Game.CourtHalfHeight)
	num("PONG_PADDLE_HALF_HEIGHT", &c.Game.PaddleHalfHeight)
	num("PONG_BALL_RADIUS", &c.Game.BallRadius)
	num("PONG_PADDLE_SPEED", &c.Game.PaddleSpeed)
	num("PONG_BALL_SPEED", &c.Game.BallSpeed)
	num("PONG_BALL_FACTOR", &c.Game.BallFactor)
	num("PONG_MIN_DIR", &c.Game.MinDir)
	num("PONG_MESSAGE_RATE", &c.MessageRate)

	integer("PONG_WIN_SCORE", &c.Game.WinScore)
	integer("PONG_TOURNAMENT_SIZE", &c.TournamentSize)
	integer("PONG_MESSAGE_BURST", &c.MessageBurst)
	integer("PONG_MAX_CONNS_PER_IP", &c.MaxConnsPerIP)
	integer("PONG_MAX_TOTAL_CONNS", &c.MaxTotalConns)

	dur("PONG_TICK_INTERVAL", &c.Game.TickInterval)
	dur("PONG_START_DELAY", &c.Game.StartDelay)
	dur("PONG_METRICS_EVERY", &c.MetricsEvery)
	dur("PONG_BRACKET_RETENTION", &c.BracketRetention)

	return errors.Join(errs...)
}

// Validate checks the constants are usable
func (c Config) Validate() error {
	g := c.Game
	switch {
	case g.CourtHalfWidth <= 0 || g.CourtHalfHeight <= 0:
		return errors.New("court dimensions must be positive")
	case g.PaddleHalfHeight <= 0 || g.PaddleHalfHeight >= g.CourtHalfHeight:
		return errors.New("paddle half height must be positive and smaller than the court")
	case g.PaddleX <= 0 || g.PaddleX+g.PaddleHalfWidth >= g.CourtHalfWidth:
		return errors.New("paddles must sit inside the court")
	case g.PaddleSpeed <= 0 || g.BallSpeed <= 0 || g.BallFactor <= 0:
		return errors.New("speeds must be positive")
	case g.MoveTolerance < 0:
		return errors.New("move tolerance must not be negative")
	case g.MinDir <= 0 || g.MinDir >= 1:
		return errors.New("min direction component must be in (0, 1)")
	case g.WinScore <= 0:
		return errors.New("win score must be positive")
	case g.TickInterval <= 0:
		return errors.New("tick interval must be positive")
	case g.StartDelay < 0:
		return errors.New("start delay must not be negative")
	case c.TournamentSize != 4:
		return fmt.Errorf("tournament size %d unsupported, brackets are 4 players", c.TournamentSize)
	case c.MessageRate <= 0 || c.MessageBurst <= 0:
		return errors.New("message rate limit must be positive")
	case c.MaxConnsPerIP <= 0 || c.MaxTotalConns <= 0:
		return errors.New("connection limits must be positive")
	case c.MetricsEvery <= 0 || c.BracketRetention <= 0:
		return errors.New("housekeeping intervals must be positive")
	}
	switch c.Seeding {
	case SeedArrival, SeedRandom, SeedRanked:
	default:
		return fmt.Errorf("unknown seeding %q", c.Seeding)
	}
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}
