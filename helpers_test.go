package tracetree

import (
	"io"
	"strconv"
	"strings"
)

func linesReader(lines []string) io.Reader {
	return strings.NewReader(strings.Join(lines, "\n"))
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
