package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripTags(t *testing.T) {
	assert.Equal(t, "First.\nSecond.", StripTags("<p>First.</p><p>Second.</p>"))
	assert.Equal(t, "bold and plain", StripTags("<b>bold</b> and plain"))
	assert.Equal(t, "line one\nline two", StripTags("line one<br/>line two"))
	assert.Equal(t, "kept", StripTags("<script>alert(1)</script>kept"))
	assert.Equal(t, "", StripTags(""))
	assert.Equal(t, "no markup at all", StripTags("no markup at all"))
}
