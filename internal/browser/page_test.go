package browser

import (
	"strings"
	"testing"
)

// TestClickCollectScript tests the in-page routine template.
func TestClickCollectScript(t *testing.T) {
	t.Parallel()

	t.Run("embeds the selector as a JS string literal", func(t *testing.T) {
		t.Parallel()

		script := clickCollectScript(`button.load-more`)
		if !strings.Contains(script, `"button.load-more"`) {
			t.Errorf("selector not embedded: %s", script)
		}
	})

	t.Run("escapes quotes in the selector", func(t *testing.T) {
		t.Parallel()

		script := clickCollectScript(`a[data-kind="next"]`)
		if !strings.Contains(script, `\"next\"`) {
			t.Errorf("quotes not escaped: %s", script)
		}
		if strings.Contains(script, `querySelectorAll(a[data`) {
			t.Error("selector leaked unquoted into the script")
		}
	})

	t.Run("restores window.open", func(t *testing.T) {
		t.Parallel()

		script := clickCollectScript("button")
		if !strings.Contains(script, "window.open = origOpen") {
			t.Error("script must restore window.open")
		}
	})

	t.Run("resolves recorded URLs against the page location", func(t *testing.T) {
		t.Parallel()

		script := clickCollectScript("button")
		if !strings.Contains(script, "new URL(u, location.href).href") {
			t.Error("script must resolve relative window.open targets to absolute URLs")
		}
	})
}
