// Package driver keeps audio playing in step with a player's master clock.
//
// A Driver owns one output.Host and one Worker goroutine. Each playback session
// gets an AudioPlayer bound to its source's PCM format. While playing, the Worker
// calls AudioPlayer.Work every tick: the play cursor is read back from the
// backend, due timeline events are dispatched, the backend is refilled towards
// the ideal buffer size and end of stream is reported exactly once.
//
// Every refill also measures drift between the audio the listener hears and the
// master clock. Once eight samples agree that audio is more than 30ms off, 12ms of
// audio is repeated or skipped per refill. Audio that falls more than 280ms behind
// skips the lag outright.
//
// Example:
//
//	drv := driver.Open(driver.BackendAuto)
//	defer drv.Close()
//
//	ap, err := drv.CreateAudioPlayer(src, owner)
//	ap.Prefill()
//	err = ap.Play()
package driver
