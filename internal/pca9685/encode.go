package pca9685

import "math"

const (
	NumChannels = 16

	// Resolution is the number of steps in one PWM period (12 bit).
	Resolution = 4096
	maxCount   = Resolution - 1

	oscillatorHz = 25_000_000.0

	// The chip runs fast by roughly 10%; scale the requested frequency down
	// before computing the prescaler.
	frequencyCorrection = 0.9

	minPrescale = 3
	maxPrescale = 255
)

// Register map.
const (
	regMode1    = 0x00
	regPrescale = 0xFE
	regLED0OnL  = 0x06
)

// MODE1 bits.
const (
	mode1Restart = 0x80
	mode1AI      = 0x20
	mode1Sleep   = 0x10
)

// channelReg is the LEDn_ON_L register for a channel; ON_H, OFF_L and OFF_H
// follow it.
func channelReg(channel int) byte {
	return byte(regLED0OnL + 4*channel)
}

// Prescale computes the PRE_SCALE register value for a PWM frequency.
func Prescale(frequencyHz float64) byte {
	p := oscillatorHz/Resolution/(frequencyHz*frequencyCorrection) - 1
	p = math.Round(p)
	if p < minPrescale {
		p = minPrescale
	}
	if p > maxPrescale {
		p = maxPrescale
	}
	return byte(p)
}

// DutyCounts converts a duty cycle in percent to OFF counts, clamped to 0..4095.
func DutyCounts(percent float64) uint16 {
	if math.IsNaN(percent) {
		return 0
	}
	v := int(percent * maxCount / 100)
	if v > maxCount {
		v = maxCount
	}
	if v < 0 {
		v = 0
	}
	return uint16(v)
}

// EncodeServo converts a pulse width in milliseconds at the given PWM
// frequency into OFF counts.
func EncodeServo(pulseMs, frequencyHz float64) uint16 {
	// Pulse width as a percentage of the period.
	duty := pulseMs * frequencyHz * 100 / 1000
	return DutyCounts(duty)
}

// encodeOnOff packs ON and OFF counts as LEDn_ON_L, ON_H, OFF_L, OFF_H.
func encodeOnOff(on, off uint16) []byte {
	return []byte{
		byte(on & 0xFF), byte(on >> 8),
		byte(off & 0xFF), byte(off >> 8),
	}
}
