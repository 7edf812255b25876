// Package endpoint resolves the filesystem address of a channel socket.
//
// Resolve(runtimeDir, uid, namespace, key) returns the Address
// <runtimeDir>/<uid>/<namespace>/<key> and creates its parent directories.
// Keys name a socket file, never a directory: a key ending in "/" is
// rejected before anything touches the filesystem, as is any empty, "." or
// ".." segment. One leading "/" is stripped so every key is relative to the
// namespace root.
//
// Resolution is idempotent. A leftover socket file at the address is not
// detected here; binding reports it.
package endpoint
