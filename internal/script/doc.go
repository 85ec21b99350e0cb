// Package script turns Lua files into value observers.
//
// A script may define two global functions:
//
//	function on_change(key, value) end
//	function on_remove(key) end
//
// and an optional global table naming the keys it wants:
//
//	keys = {"A", "B"}
//
// Scripts run in a sandboxed state with only the base, table, string and
// math libraries. A global log(msg) function writes to the process logger.
//
// A script stays subscribed until Close is called. Its registry reference
// is a resolver, so a closed script is pruned on the next notification pass
// without an explicit unsubscribe.
package script
