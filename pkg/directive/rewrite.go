package directive

import (
	"fmt"
	"strconv"

	"github.com/estrelajs/vite-plugin-estrela/pkg/patch"
)

// Rewrite returns the patches that key every directive call in a:
//
//	prop()            -> prop(undefined, { key: "x" })
//	prop(v)           -> prop(v, { key: "x" })
//	prop({ ... })     -> prop(undefined, { key: "x", ...{ ... } })
//	prop(v, opts)     -> prop(v, { key: "x", ...opts })
//	emitter()         -> emitter({ key: "x" })
//	emitter(opts)     -> emitter({ key: "x", ...opts })
//
// Original argument text is kept in place so it stays mapped.
func Rewrite(a *Analysis) *patch.Set {
	set := patch.NewSet()

	for _, call := range a.Calls {
		rewriteCall(set, call)
	}

	return set
}

func keyObject(variable string) string {
	return fmt.Sprintf("{ key: %s }", strconv.Quote(variable))
}

func keySpread(variable string) string {
	return fmt.Sprintf("{ key: %s, ...", strconv.Quote(variable))
}

func rewriteCall(set *patch.Set, call Call) {
	if opts, ok := call.Options(); ok {
		set.Wrap(opts, keySpread(call.Variable), " }")

		return
	}

	switch {
	case call.Kind == Emitter:
		set.Append(call.CloseParen, keyObject(call.Variable))
	case len(call.Args) == 0:
		set.Append(call.CloseParen, "undefined, "+keyObject(call.Variable))
	case call.ObjectLiteral[0]:
		set.Wrap(call.Args[0], "undefined, "+keySpread(call.Variable), " }")
	default:
		set.Append(call.Args[0].End, ", "+keyObject(call.Variable))
	}
}
