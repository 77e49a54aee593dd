package model

import "github.com/amimof/huego"

type HueMetadata struct {
	Type             string
	ModelID          string
	ManufacturerName string
}

// Device is a converter as seen by Hue clients.
type Device struct {
	ID          string // Hue light id
	Name        string
	ConverterID string
	ExternalID  string // Home Assistant climate entity
	State       *huego.State
}
