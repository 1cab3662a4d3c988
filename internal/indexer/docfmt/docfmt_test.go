package docfmt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_JSONKeepsKeyOrder(t *testing.T) {
	recs, err := Decode(JSON, []byte(`[{"title":"a","movie_id":1,"tags":["x"]},{"movie_id":2}]`))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, []string{"title", "movie_id", "tags"}, recs[0].Keys)
	assert.Equal(t, json.Number("1"), recs[0].Values["movie_id"])
	assert.Equal(t, []any{"x"}, recs[0].Values["tags"])
	assert.Equal(t, []string{"movie_id"}, recs[1].Keys)
}

func TestDecode_JSONRejects(t *testing.T) {
	for _, payload := range []string{`{"id":1}`, `[1,2]`, `[{"id":1}] trailing`, `[{"id":`} {
		_, err := Decode(JSON, []byte(payload))
		assert.Error(t, err, payload)
	}
}

func TestDecode_JSONStream(t *testing.T) {
	recs, err := Decode(JSONStream, []byte("{\"id\":\"a\"}\n{\"id\":\"b\",\"n\":2}\n"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[1].Values["id"])

	recs, err = Decode(JSONStream, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = Decode(JSONStream, []byte(`{"id":"a"} [1]`))
	assert.Error(t, err)
}

func TestDecode_CSV(t *testing.T) {
	recs, err := Decode(CSV, []byte("id,title,year\n1,Carol,\n2,\"Wonder, Woman\",2017\n"))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, []string{"id", "title", "year"}, recs[0].Keys)
	assert.Nil(t, recs[0].Values["year"])
	assert.Equal(t, "Wonder, Woman", recs[1].Values["title"])

	_, err = Decode(CSV, []byte("id,title\n1\n"))
	assert.Error(t, err)
}

func TestDecode_UnknownFormat(t *testing.T) {
	_, err := Default.Decode(Format("Xml"), []byte("<a/>"))
	assert.Error(t, err)
}
