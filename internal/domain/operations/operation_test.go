package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbang/xdesktop/internal/domain/vfs"
)

func TestParseOperation(t *testing.T) {
	for _, op := range All() {
		parsed, err := ParseOperation(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, parsed)
	}

	for _, name := range []string{"", "INDEX", "list", "download-archive"} {
		_, err := ParseOperation(name)
		require.Error(t, err, name)
		assert.Equal(t, vfs.KindUnknownOperation, vfs.Classify(err))
	}
}

func TestOperationVocabulary(t *testing.T) {
	assert.Len(t, All(), 15)
	assert.Equal(t, "download_archive", OpDownloadArchive.String())
	assert.Equal(t, "unknown", Operation(-1).String())
	assert.False(t, Operation(-1).Valid())
}

func TestOperationClasses(t *testing.T) {
	var public []Operation
	for _, op := range All() {
		if op.Public() {
			public = append(public, op)
		}
	}
	assert.Equal(t, []Operation{OpPreview, OpDownload}, public)

	assert.True(t, OpSave.Mutating())
	assert.True(t, OpUnarchive.Mutating())
	assert.False(t, OpIndex.Mutating())
	assert.False(t, OpDownloadArchive.Mutating())
}
