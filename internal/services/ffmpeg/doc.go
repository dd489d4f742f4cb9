// Package ffmpeg wraps the ffmpeg command line as a blocking encode call.
//
// The engine's native start/progress/terminate event stream is adapted
// internally: Encode returns once with either nil (output written) or an
// error, and fires the progress callback for each parsed progress report.
// A context deadline kills the whole ffmpeg process group so a hung engine
// cannot wedge a render worker.
package ffmpeg
