// Package main hosts the clipforge CLI entrypoint and command graph.
//
// The Cobra-based command tree starts the render daemon, inspects the job
// history, and scaffolds configuration. It centralizes configuration
// resolution and logging setup so subcommands can focus on user experience;
// the heavy lifting lives in the internal packages.
package main
