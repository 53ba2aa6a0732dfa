package meme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument_Array(t *testing.T) {
	doc, err := ParseDocument([]byte(`[{"name":"a.jpg","url":"http://x/a.jpg"}]`))

	require.NoError(t, err)
	assert.False(t, doc.Wrapped)
	require.Len(t, doc.Records, 1)
	assert.Equal(t, "a.jpg", doc.Records[0].Name)
	assert.Equal(t, "http://x/a.jpg", doc.Records[0].URL)
}

func TestParseDocument_Wrapped(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"version":2,"data":[{"name":"a.jpg"},{"name":"b.png"}]}`))

	require.NoError(t, err)
	assert.True(t, doc.Wrapped)
	assert.Len(t, doc.Records, 2)
}

func TestParseDocument_WrappedRoundTrip(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"version":2,"data":[{"name":"a.jpg"},{"name":"b.gif"}]}`))
	require.NoError(t, err)

	out, err := doc.Marshal(doc.Records[:1])
	require.NoError(t, err)

	again, err := ParseDocument(out)
	require.NoError(t, err)
	assert.True(t, again.Wrapped)
	require.Len(t, again.Records, 1)
	assert.Equal(t, "a.jpg", again.Records[0].Name)
}

func TestParseDocument_Invalid(t *testing.T) {
	for _, bad := range []string{`"hello"`, `{"items":[]}`, `42`, `{`} {
		_, err := ParseDocument([]byte(bad))
		assert.Error(t, err, "input: %s", bad)
	}
}

func TestValidateNames(t *testing.T) {
	err := ValidateNames([]Record{{Name: "a"}, {Name: "b"}})
	assert.NoError(t, err)

	err = ValidateNames([]Record{{Name: "a"}, {Name: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a"`)

	err = ValidateNames([]Record{{Name: "a"}, {Name: ""}})
	assert.Error(t, err)
}
