package conversation

import "errors"

var (
	ErrEmptyQuestion  = errors.New("question is empty")
	ErrCorruptHistory = errors.New("history ordinals are not contiguous")
	ErrOrdinalTaken   = errors.New("turn ordinal already recorded")
)
