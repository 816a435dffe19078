// Package export acquires and streams TMDB daily ID exports.
//
// TMDB publishes one gzip file of newline-delimited JSON per entity kind per
// day. The Acquirer keeps a date-stamped cache of those files and serializes
// downloads with a lock file; the Reader streams entries out of a cached file
// with the video, adult, and popularity filters applied at the source.
package export
