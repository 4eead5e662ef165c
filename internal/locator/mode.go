package locator

import "github.com/dmitrijs2005/datafetch/internal/common"

// RetrievalMode says how a file's bytes reach the destination.
type RetrievalMode string

const (
	// ModeStream pulls the file over HTTP and writes it locally.
	ModeStream RetrievalMode = "stream"
	// ModeCopy asks the NGAS host to write the file to the destination
	// path itself. Only possible when client and server share a
	// filesystem.
	ModeCopy RetrievalMode = "copy"
)

// SelectMode picks the retrieval mode for one file. Direct copy requires
// the caller to ask for it, the holding cluster to be DSOC and the server
// location to match the execution site; everything else streams.
func SelectMode(server Server, directCopy bool, executionSite string) RetrievalMode {
	if directCopy && server.Cluster == common.ClusterDSOC && server.Location == executionSite {
		return ModeCopy
	}
	return ModeStream
}
