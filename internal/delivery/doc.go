// Package delivery defines the minimal delivery-channel contract the render
// pipeline needs (resolve a channel, post and edit an ephemeral status line,
// send the finished artifact) and implements it for Discord.
//
// The pipeline receives a Messenger by injection so tests can substitute a
// fake; nothing outside this package imports discordgo.
package delivery
