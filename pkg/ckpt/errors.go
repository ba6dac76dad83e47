package ckpt

import "errors"

var (
	ErrFileNotFound = errors.New("checkpoint file not found")
	ErrMapFailed    = errors.New("checkpoint map failed")
	ErrSizeMismatch = errors.New("checkpoint size mismatch")
	ErrRegionClosed = errors.New("checkpoint region closed")
	ErrRegionInUse  = errors.New("checkpoint region still borrowed")
	ErrUnknownArch  = errors.New("unknown recurrent architecture")
)
