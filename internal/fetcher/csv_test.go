package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, s *CSVStream) ([]CSVRow, error) {
	t.Helper()
	var rows []CSVRow
	for row := range s.Rows {
		rows = append(rows, row)
	}
	return rows, s.Err()
}

func TestOpenCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	s, err := OpenCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, s.Header)

	rows, err := collectRows(t, s)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, CSVRow{Line: 2, Fields: []string{"1", "2", "3"}}, rows[0])
	assert.Equal(t, CSVRow{Line: 3, Fields: []string{"4", "5", "6"}}, rows[1])
}

func TestOpenCSV_BOMStrippedFromHeader(t *testing.T) {
	input := "\xEF\xBB\xBFGEO_ID,NAME,B17001_002E\n0500000US17019,Champaign County,31000\n"
	s, err := OpenCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"GEO_ID", "NAME", "B17001_002E"}, s.Header)

	rows, err := collectRows(t, s)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0500000US17019", rows[0].Fields[0])
}

func TestOpenCSV_ShortInputWithoutBOM(t *testing.T) {
	s, err := OpenCSV(context.Background(), strings.NewReader("a\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, s.Header)

	rows, err := collectRows(t, s)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOpenCSV_Empty(t *testing.T) {
	_, err := OpenCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = OpenCSV(context.Background(), strings.NewReader("\xEF\xBB\xBF"), CSVOptions{})
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestOpenCSV_TrimSpace(t *testing.T) {
	input := " GEOID , RATE \n 17001 , 18.2 \n"
	s, err := OpenCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"GEOID", "RATE"}, s.Header)

	rows, err := collectRows(t, s)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"17001", "18.2"}, rows[0].Fields)
}

func TestOpenCSV_Delimiter(t *testing.T) {
	s, err := OpenCSV(context.Background(), strings.NewReader("a;b\n1;2\n"), CSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.Header)

	rows, err := collectRows(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, rows[0].Fields)
}

func TestOpenCSV_Malformed(t *testing.T) {
	input := "a,b\n1,\"2\n"
	s, err := OpenCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)

	_, err = collectRows(t, s)
	assert.Error(t, err)
}

func TestOpenCSV_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := OpenCSV(ctx, strings.NewReader("a\nb\n"), CSVOptions{})
	require.NoError(t, err)

	_, err = collectRows(t, s)
	assert.ErrorIs(t, err, context.Canceled)
}
