// Package services defines the error taxonomy shared by pipeline stages and
// external collaborator clients (ffmpeg, ffprobe, Discord).
package services
