// Package shop builds the public repository index that console clients
// consume. The index is a flat JSON document listing every downloadable
// file as a URL whose fragment carries the display name, plus the file
// size. Local library entries are merged with entries mirrored from
// upstream shops; when both know a title, the local entry wins.
package shop
