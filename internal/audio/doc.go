// Package audio drives a single audio output device for sentence playback.
// Player talks to the system device through oto/v3; MockDriver stands in for
// it in tests and headless runs.
package audio
