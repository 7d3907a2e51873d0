package printx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	ColorGray   = color.New(color.FgHiBlack)
	ColorYellow = color.New(color.FgYellow)
	ColorGreen  = color.New(color.FgGreen)
	ColorCyan   = color.New(color.FgCyan)
	ColorRed    = color.New(color.FgRed)
)

// Output is where the helpers print. Tests swap it for a buffer.
var Output io.Writer = os.Stdout

func PrintStandardHeader(header string) {
	hBar := strings.Repeat("-", 80)
	fmt.Fprintln(Output, "\n"+hBar+"\n"+header+"\n"+hBar)
}

func PrintInColor(c *color.Color, text string) {
	fmt.Fprintln(Output, Colorize(c, text))
}

// Colorize leaves text as is when colour output is disabled, for example
// when stdout is not a terminal or NO_COLOR is set.
func Colorize(c *color.Color, text string) string {
	return c.Sprint(text)
}
