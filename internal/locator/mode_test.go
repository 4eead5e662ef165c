package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectMode(t *testing.T) {
	dsoc := Server{Host: "nmngas01.aoc.nrao.edu:7777", Location: "DSOC", Cluster: "DSOC"}

	tests := []struct {
		name       string
		server     Server
		directCopy bool
		site       string
		want       RetrievalMode
	}{
		{"default is streaming", dsoc, false, "DSOC", ModeStream},
		{"direct copy on matching site", dsoc, true, "DSOC", ModeCopy},
		{"direct copy from another site", dsoc, true, "NAASC", ModeStream},
		{"direct copy off the DSOC cluster", Server{Host: "h:1", Location: "DSOC", Cluster: "NAASC"}, true, "DSOC", ModeStream},
		{"location mismatch", Server{Host: "h:1", Location: "NAASC", Cluster: "DSOC"}, true, "DSOC", ModeStream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectMode(tt.server, tt.directCopy, tt.site))
		})
	}
}

func TestParseIdentifierType(t *testing.T) {
	t.Run("all known types", func(t *testing.T) {
		for _, s := range []string{
			"product-locator", "location-file", "report-json",
			"ngas-file", "archive-file", "file-group", "fileset",
		} {
			typ, err := ParseIdentifierType(s)
			assert.NoError(t, err)
			assert.Equal(t, IdentifierType(s), typ)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ParseIdentifierType("carrier-pigeon")
		assert.Error(t, err)
	})
}

func TestIdentifierTypeTraits(t *testing.T) {
	assert.True(t, TypeNGASFile.NeedsMetadataDB())
	assert.True(t, TypeArchiveFile.NeedsMetadataDB())
	assert.True(t, TypeFileGroup.NeedsMetadataDB())
	assert.True(t, TypeFileset.NeedsMetadataDB())
	assert.False(t, TypeProductLocator.NeedsMetadataDB())
	assert.False(t, TypeLocationFile.NeedsMetadataDB())
	assert.False(t, TypeReportJSON.NeedsMetadataDB())

	assert.True(t, TypeLocationFile.TakesFilePath())
	assert.True(t, TypeReportJSON.TakesFilePath())
	assert.False(t, TypeProductLocator.TakesFilePath())
}
