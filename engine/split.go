package engine

import "strings"

// unit is a piece of code run under one echo mode.
type unit struct {
	source string
	echo   bool
}

// plan decides which blocks run with echo. A lone block echoes. With several
// blocks, all but the last run without echo and the last echoes only when it
// spans at most echoMax lines; otherwise it joins the no-echo unit.
func plan(blocks []Block, echoMax int) []unit {
	switch len(blocks) {
	case 0:
		return nil
	case 1:
		return []unit{{source: blocks[0].Source, echo: true}}
	}

	last := blocks[len(blocks)-1]
	if last.Lines() > echoMax {
		return []unit{{source: join(blocks), echo: false}}
	}
	return []unit{
		{source: join(blocks[:len(blocks)-1]), echo: false},
		{source: last.Source, echo: true},
	}
}

func join(blocks []Block) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Source
	}
	return strings.Join(parts, "\n")
}
