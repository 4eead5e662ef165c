package ngas

import (
	"encoding/xml"
	"io"
)

// ngamsStatus is the XML document NGAS returns for failed requests. Only
// the human-readable message attribute is of interest.
type ngamsStatus struct {
	XMLName xml.Name `xml:"NgamsStatus"`
	Status  struct {
		Message string `xml:"Message,attr"`
	} `xml:"Status"`
}

// ngamsMessage extracts the status message from an NGAS error body, if one
// is there. Bodies are capped; error replies are small.
func ngamsMessage(r io.Reader) string {
	var st ngamsStatus
	if err := xml.NewDecoder(io.LimitReader(r, 1<<16)).Decode(&st); err != nil {
		return ""
	}
	return st.Status.Message
}
