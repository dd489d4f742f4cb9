// Package render resolves the encode specification for a job: it allocates a
// video bitrate from the delivery size budget, selects a resolution tier for
// single-clip trims, and builds the ffmpeg filter graph and argument list.
//
// Everything in this package is a pure computation over probed clip metadata;
// process execution lives in services/ffmpeg.
package render
