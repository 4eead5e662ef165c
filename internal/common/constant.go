// Package common contains shared constants and sentinel errors used across
// datafetch components.
package common

// AppName is the tool name used for the binary, the profile directory
// and the environment variable prefix.
const AppName = "datafetch"

// ClusterDSOC is the cluster tag NGAS hosts at the Science Operations
// Center report; only files on this cluster are eligible for direct copy.
const ClusterDSOC = "DSOC"

// StreamingChunkSize is the buffer size used when streaming NGAS payloads
// to disk.
const StreamingChunkSize = 8192

// DirectCopyPlugin is the NGAS processing plugin that writes a retrieved
// file straight to a destination path the server can reach.
const DirectCopyPlugin = "ngamsDirectCopyDppi"
