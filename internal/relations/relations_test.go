package relations

import (
	"context"
	"strings"
	"testing"

	"codegraph/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileFeedExtractor_Extract(t *testing.T) {
	feed := strings.Join([]string{
		`{"source_path":"a.go","source_byte_range":[0,10],"target_path":"b.go","target_byte_range":[20,30],"relation":"calls"}`,
		`{"source_path":"a.go","source_byte_range":[40,50],"target_path":"c.go","target_byte_range":[0,5],"relation":"implements"}`,
		`{"source_path":"a.go","source_byte_range":[60,70],"target_path":"d.go","target_byte_range":[0,5],"relation":"writes_to"}`,
	}, "\n")

	e := &FileFeedExtractor{Reader: strings.NewReader(feed)}
	rows, err := e.Extract(context.Background(), "/unused")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, store.RelationCalls, rows[0].Relation)
	assert.Equal(t, [2]int{0, 10}, rows[0].SourceByteRange)
	assert.Equal(t, "b.go", rows[0].TargetPath)

	assert.Equal(t, store.RelationInherits, rows[1].Relation, "implements folds onto inherits")
	assert.Equal(t, store.RelationReadsFrom, rows[2].Relation, "writes_to folds onto reads_from")
}

func TestFileFeedExtractor_Extract_UnknownRelation(t *testing.T) {
	e := &FileFeedExtractor{Reader: strings.NewReader(`{"source_path":"a.go","relation":"teleports_to"}`)}
	_, err := e.Extract(context.Background(), "/unused")
	assert.Error(t, err)
}

func TestFileFeedExtractor_Extract_BlankLinesIgnored(t *testing.T) {
	feed := "\n\n" + `{"source_path":"a.go","source_byte_range":[0,1],"target_path":"b.go","target_byte_range":[0,1],"relation":"references"}` + "\n\n"
	e := &FileFeedExtractor{Reader: strings.NewReader(feed)}
	rows, err := e.Extract(context.Background(), "/unused")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, store.RelationReferences, rows[0].Relation)
}
