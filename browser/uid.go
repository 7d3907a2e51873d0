package browser

import (
	"fmt"
	"strconv"
	"strings"
)

// UIDPrefix starts every uid the browser assigns while tagging a page.
const UIDPrefix = "nav-"

var selectorEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// IsValidUID reports whether uid has the form assigned by the tagging script.
func IsValidUID(uid string) bool {
	n, ok := strings.CutPrefix(uid, UIDPrefix)
	if !ok || n == "" {
		return false
	}
	_, err := strconv.Atoi(n)
	return err == nil
}

// ElementQuery is the CSS selector of the element tagged with uid.
func ElementQuery(uidKey, uid string) string {
	return fmt.Sprintf(`[%s="%s"]`, uidKey, selectorEscaper.Replace(uid))
}
