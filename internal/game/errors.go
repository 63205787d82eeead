package game

import "errors"

// Sentinel errors returned by match and combat operations. The API layer
// maps these to wire error reasons, so messages stay snake_case.
var (
	ErrMatchFull            = errors.New("game_full")
	ErrAlreadyJoined        = errors.New("already_joined")
	ErrMatchFinished        = errors.New("match_finished")
	ErrNotFound             = errors.New("not_found")
	ErrOnCooldown           = errors.New("on_cooldown")
	ErrInsufficientResource = errors.New("insufficient_resource")
	ErrOutOfRange           = errors.New("out_of_range")
	ErrDead                 = errors.New("dead")
)
