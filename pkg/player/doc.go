// ABOUTME: Package documentation for the media player
// ABOUTME: Describes playlist sequencing and audio/video synchronization
// Package player sequences media sources and keeps their audio and video in step
// with a master clock.
//
// Audio runs through a driver.AudioPlayer that corrects its own drift against the
// Player's clock; video frames are pulled on the Scheduler's goroutine by
// UpdateTexture, which drops late frames rather than letting video fall behind.
// Events are delivered to observers on the Scheduler's goroutine.
package player
