// Package pipeline runs render jobs end to end: probe clip durations,
// allocate a bitrate from the delivery size budget, drive one ffmpeg encode,
// validate the artifact against the upload ceiling, deliver it, and always
// remove the job's scratch files.
//
// Submit returns as soon as the job is persisted; execution happens on a
// bounded worker pool. Every terminal path (delivered, rejected, any
// failure) runs cleanup exactly once, and every fatal error after the status
// message exists produces exactly one user-visible status edit.
package pipeline
