package model

import "errors"

var (
	ErrNotConfigured      = errors.New("Home Assistant is not configured")
	ErrConverterNotFound  = errors.New("converter not found")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDuplicateClimate   = errors.New("climate entity already converted")
	ErrInvalidEntityID    = errors.New("invalid entity id")
	ErrInvalidConfig      = errors.New("invalid converter config")
	ErrNotEditable        = errors.New("converter is not editable")
	ErrModeNotAvailable   = errors.New("mode not available")
	ErrFanModeUnsupported = errors.New("climate entity has no fan modes")
)
