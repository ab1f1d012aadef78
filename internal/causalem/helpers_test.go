package causalem

import (
	"strings"

	"github.com/causalbp/causalbp/internal/causalbp"
	"github.com/causalbp/causalbp/internal/causalgraph"
)

func newTestEngine(g *causalgraph.Graph) *causalbp.Engine {
	e := causalbp.New(g, causalbp.DefaultOptions(), nil)
	e.Init()
	e.Run()
	return e
}

func stringsReader(s string) *strings.Reader { return strings.NewReader(s) }
