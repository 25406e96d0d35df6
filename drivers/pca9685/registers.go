package pca9685

// Default I2C address (A0..A5 low).
const Address = 0x40

// Register map.
const (
	regMode1      = 0x00
	regMode2      = 0x01
	regLED0OnL    = 0x06
	regAllLEDOffH = 0xFD
	regPreScale   = 0xFE
)

// MODE1 bits.
const (
	mode1Restart = 0x80
	mode1AI      = 0x20 // register auto-increment
	mode1Sleep   = 0x10
	mode1AllCall = 0x01
)

// MODE2 bits.
const (
	mode2Invert = 0x10
	mode2OutDrv = 0x04 // totem-pole outputs
)

// LEDn_ON_H / LEDn_OFF_H bit 4 forces the output fully on / off.
const fullBit = 0x1000

const (
	// Channels per chip.
	Channels = 16
	// Steps per PWM period.
	Resolution = 4096

	internalOscHz = 25_000_000
	minPrescale   = 3
	maxPrescale   = 255
)
