// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all server tunables.
//
// IMPORTANT: When changing defaults, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// GameConfig holds per-match simulation settings.
type GameConfig struct {
	TickHz       int   // Simulation ticks per second
	MaxPlayers   int   // Hard cap on players per match
	MinPlayers   int   // Players required before waiting -> active
	ScoreLimit   int   // Kills required to finish the match (0 = disabled)
	TimeLimitMs  int64 // Match duration cap in milliseconds (0 = disabled)
	RegenDelayMs int64 // Quiet time after damage before stamina/mana regen
	EmptyReapMs  int64 // Delay before an empty match is reaped
	InputQueue   int   // Bounded input queue size, at least 2*TickHz
}

// DefaultGame returns the default simulation configuration.
func DefaultGame() GameConfig {
	return GameConfig{
		TickHz:       60,
		MaxPlayers:   8,
		MinPlayers:   2,
		ScoreLimit:   10,
		TimeLimitMs:  5 * 60 * 1000,
		RegenDelayMs: 3000,
		EmptyReapMs:  30_000,
		InputQueue:   128,
	}
}

// GameFromEnv returns simulation configuration with environment variable
// overrides. Environment variables take precedence over defaults.
func GameFromEnv() GameConfig {
	cfg := DefaultGame()

	if v := getEnvInt("TICK_HZ", 0); v > 0 {
		cfg.TickHz = v
	}
	if v := getEnvInt("MAX_PLAYERS", 0); v > 0 {
		cfg.MaxPlayers = v
	}
	if v := getEnvInt("MIN_PLAYERS", 0); v > 0 {
		cfg.MinPlayers = v
	}
	if v := getEnvInt("SCORE_LIMIT", -1); v >= 0 {
		cfg.ScoreLimit = v
	}
	if v := getEnvInt("MATCH_TIMEOUT_MS", -1); v >= 0 {
		cfg.TimeLimitMs = int64(v)
	} else if v := getEnvInt("MATCH_TIME_LIMIT_MS", -1); v >= 0 {
		// older deployments used the long name
		cfg.TimeLimitMs = int64(v)
	}
	if v := getEnvInt("REGEN_DELAY_MS", -1); v >= 0 {
		cfg.RegenDelayMs = int64(v)
	}
	if v := getEnvInt("EMPTY_REAP_MS", 0); v > 0 {
		cfg.EmptyReapMs = int64(v)
	}

	// Input queue must absorb at least two full ticks of buffered input
	if cfg.InputQueue < 2*cfg.TickHz {
		cfg.InputQueue = 2 * cfg.TickHz
	}

	return cfg
}

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig holds arena bounds and movement physics settings.
// These values are shared between the simulation and the preview renderer.
type WorldConfig struct {
	Width    float64 // Arena width in world units
	Height   float64 // Arena height in world units
	Inset    float64 // Playable-area inset from the hard edge
	Friction float64 // Per-tick velocity decay factor
	MaxVel   float64 // Velocity magnitude cap in units per second
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:    1280,
		Height:   720,
		Inset:    20,
		Friction: 0.92,
		MaxVel:   600,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if v := getEnvFloat("WORLD_WIDTH", 0); v > 0 {
		cfg.Width = v
	}
	if v := getEnvFloat("WORLD_HEIGHT", 0); v > 0 {
		cfg.Height = v
	}
	if v := getEnvFloat("WORLD_FRICTION", 0); v > 0 && v <= 1 {
		cfg.Friction = v
	}
	if v := getEnvFloat("WORLD_MAX_VEL", 0); v > 0 {
		cfg.MaxVel = v
	}

	return cfg
}

// =============================================================================
// MATCHMAKING CONFIGURATION
// =============================================================================

// MatchmakingConfig holds queue pairing and rating settings.
type MatchmakingConfig struct {
	TickMs         int64 // Pairing pass interval
	BaseSkillTol   int   // Starting rating tolerance
	MaxSkillTol    int   // Tolerance cap after wait widening
	LatencyTolMs   int   // Hard latency-difference gate
	QueueTimeoutMs int64 // Queue entry expiry

	RatingDefault int // Rating assigned to unknown players
	RatingFloor   int
	RatingCeiling int
	KFactor       int
	DecayDays     int // Inactive days before rating decay starts
	DecayPerDay   int // Rating points lost per decayed day
}

// DefaultMatchmaking returns the default matchmaking configuration.
func DefaultMatchmaking() MatchmakingConfig {
	return MatchmakingConfig{
		TickMs:         1000,
		BaseSkillTol:   100,
		MaxSkillTol:    300,
		LatencyTolMs:   150,
		QueueTimeoutMs: 30_000,
		RatingDefault:  1200,
		RatingFloor:    100,
		RatingCeiling:  3000,
		KFactor:        32,
		DecayDays:      30,
		DecayPerDay:    5,
	}
}

// MatchmakingFromEnv returns matchmaking configuration with environment
// variable overrides.
func MatchmakingFromEnv() MatchmakingConfig {
	cfg := DefaultMatchmaking()

	if v := getEnvInt("MATCH_TICK_MS", 0); v > 0 {
		cfg.TickMs = int64(v)
	}
	if v := getEnvInt("BASE_SKILL_TOL", 0); v > 0 {
		cfg.BaseSkillTol = v
	}
	if v := getEnvInt("MAX_SKILL_TOL", 0); v > 0 {
		cfg.MaxSkillTol = v
	}
	if v := getEnvInt("LATENCY_TOL_MS", 0); v > 0 {
		cfg.LatencyTolMs = v
	}
	if v := getEnvInt("QUEUE_TIMEOUT_MS", 0); v > 0 {
		cfg.QueueTimeoutMs = int64(v)
	}

	return cfg
}

// =============================================================================
// BROADCAST CONFIGURATION
// =============================================================================

// BroadcastConfig holds state fan-out settings.
type BroadcastConfig struct {
	FullStateIntervalMs int64 // Keyframe interval
	CompressThreshold   int   // Payload size in bytes before compression kicks in
	SubscriberQueue     int   // Bounded per-subscriber outgoing queue
}

// DefaultBroadcast returns the default broadcast configuration.
func DefaultBroadcast() BroadcastConfig {
	return BroadcastConfig{
		FullStateIntervalMs: 5000,
		CompressThreshold:   1024,
		SubscriberQueue:     64,
	}
}

// BroadcastFromEnv returns broadcast configuration with environment variable
// overrides.
func BroadcastFromEnv() BroadcastConfig {
	cfg := DefaultBroadcast()

	if v := getEnvInt("FULL_STATE_INTERVAL_MS", 0); v > 0 {
		cfg.FullStateIntervalMs = int64(v)
	}
	if v := getEnvInt("COMPRESS_THRESHOLD", 0); v > 0 {
		cfg.CompressThreshold = v
	}
	if v := getEnvInt("SUBSCRIBER_QUEUE", 0); v > 0 {
		cfg.SubscriberQueue = v
	}

	return cfg
}

// =============================================================================
// SPECTATOR & REPLAY CONFIGURATION
// =============================================================================

// ReplayConfig holds spectator room and replay ring settings.
type ReplayConfig struct {
	MaxSpectators      int
	MaxSnapshots       int    // Ring capacity, oldest dropped on overflow
	RetentionMs        int64  // Entries older than this are pruned
	SnapshotIntervalMs int64  // Sampling floor, sub-interval records discarded
	SweepIntervalMs    int64  // Retention sweep period
	ArchiveDir         string // When set, finished replays stream to disk
}

// DefaultReplay returns the default replay configuration.
func DefaultReplay() ReplayConfig {
	return ReplayConfig{
		MaxSpectators:      100,
		MaxSnapshots:       10_000,
		RetentionMs:        30 * 60 * 1000,
		SnapshotIntervalMs: 100,
		SweepIntervalMs:    60_000,
	}
}

// ReplayFromEnv returns replay configuration with environment variable
// overrides.
func ReplayFromEnv() ReplayConfig {
	cfg := DefaultReplay()

	if v := getEnvInt("MAX_SPECTATORS", 0); v > 0 {
		cfg.MaxSpectators = v
	}
	if v := getEnvInt("MAX_SNAPSHOTS", 0); v > 0 {
		cfg.MaxSnapshots = v
	}
	if v := getEnvInt("REPLAY_RETENTION_MS", 0); v > 0 {
		cfg.RetentionMs = int64(v)
	}
	if v := getEnvInt("SNAPSHOT_INTERVAL_MS", 0); v > 0 {
		cfg.SnapshotIntervalMs = int64(v)
	}
	if v := getEnvInt("REPLAY_SWEEP_MS", 0); v > 0 {
		cfg.SweepIntervalMs = int64(v)
	}
	if v := os.Getenv("REPLAY_ARCHIVE_DIR"); v != "" {
		cfg.ArchiveDir = v
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int
	MaxConns      int // Total WebSocket connection cap
	MaxConnsPerIP int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:          3000,
		MaxConns:      500,
		MaxConnsPerIP: 10,
	}
}

// ServerFromEnv returns server configuration with environment variable
// overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if v := getEnvInt("PORT", 0); v > 0 {
		cfg.Port = v
	}
	if v := getEnvInt("MAX_WS_CONNS", 0); v > 0 {
		cfg.MaxConns = v
	}
	if v := getEnvInt("MAX_WS_CONNS_PER_IP", 0); v > 0 {
		cfg.MaxConnsPerIP = v
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Game        GameConfig
	World       WorldConfig
	Matchmaking MatchmakingConfig
	Broadcast   BroadcastConfig
	Replay      ReplayConfig
	Server      ServerConfig
}

// Load returns the complete configuration with environment overrides applied.
// A validation failure is a fatal startup error, never a silent fallback.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		Game:        GameFromEnv(),
		World:       WorldFromEnv(),
		Matchmaking: MatchmakingFromEnv(),
		Broadcast:   BroadcastFromEnv(),
		Replay:      ReplayFromEnv(),
		Server:      ServerFromEnv(),
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c AppConfig) Validate() error {
	if c.Game.TickHz <= 0 || c.Game.TickHz > 240 {
		return fmt.Errorf("config: TICK_HZ %d out of range (1-240)", c.Game.TickHz)
	}
	if c.Game.MinPlayers < 1 || c.Game.MinPlayers > c.Game.MaxPlayers {
		return fmt.Errorf("config: MIN_PLAYERS %d exceeds MAX_PLAYERS %d", c.Game.MinPlayers, c.Game.MaxPlayers)
	}
	if c.World.Width <= 2*c.World.Inset || c.World.Height <= 2*c.World.Inset {
		return fmt.Errorf("config: world %gx%g too small for inset %g", c.World.Width, c.World.Height, c.World.Inset)
	}
	if c.Matchmaking.BaseSkillTol > c.Matchmaking.MaxSkillTol {
		return fmt.Errorf("config: BASE_SKILL_TOL %d exceeds MAX_SKILL_TOL %d", c.Matchmaking.BaseSkillTol, c.Matchmaking.MaxSkillTol)
	}
	if c.Replay.SnapshotIntervalMs <= 0 {
		return fmt.Errorf("config: SNAPSHOT_INTERVAL_MS must be positive")
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
