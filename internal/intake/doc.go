// Package intake exposes the HTTP surface of the daemon: multipart clip
// uploads that feed the render pipeline, plus health and metrics endpoints.
// Upload requests are acknowledged as soon as the files hit the scratch
// directory; rendering happens asynchronously.
package intake
