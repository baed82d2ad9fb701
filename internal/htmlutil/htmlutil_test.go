package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<form>
	<input name="__RequestVerificationToken" type="hidden" value="tok-123" />
	<input name="bare" type="hidden" />
</form>
<div class="cell">
	Hello
	<b>world</b>
</div>
</body></html>`

func TestAttr(t *testing.T) {
	doc, err := Parse([]byte(page))
	if err != nil {
		t.Fatal(err)
	}

	value, err := Attr(doc.Selection, `[name="__RequestVerificationToken"]`, "value")
	require.NoError(t, err)
	require.Equal(t, "tok-123", value)

	_, err = Attr(doc.Selection, `[name="bare"]`, "value")
	require.ErrorIs(t, err, ErrNoAttribute)

	_, err = Attr(doc.Selection, `#missing`, "value")
	require.ErrorIs(t, err, ErrNoElement)
}

func TestText(t *testing.T) {
	doc, err := Parse([]byte(page))
	if err != nil {
		t.Fatal(err)
	}

	text, err := Text(doc.Selection, "div.cell")
	require.NoError(t, err)
	require.Equal(t, "Hello world", text)

	_, err = Text(doc.Selection, "span")
	require.ErrorIs(t, err, ErrNoElement)
}
