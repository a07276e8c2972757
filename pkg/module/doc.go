// Package module imports plugin modules from disk.
//
// # Formats
//
// Lua (.lua): the file runs in a restricted gopher-lua state and must return
// a table. See package lua for the export names.
//
// Declarative (.yaml, .yml, .json): a document describing commands and simple
// extensions without code:
//
//	command:
//	  name: hello
//	  description: Print a greeting
//	  exec: ["echo", "hello"]
//	processors:
//	  - name: footer
//	    kind: append        # replace | prepend | append
//	    text: "\n-- generated"
//	validators:
//	  - name: no-todo
//	    forbidden: ["TODO"]
//	contextProviders:
//	  - name: team
//	    priority: 5
//	    values: {team: platform}
//	fileGenerators:
//	  - name: readme
//	    files:
//	      - path: "{{name}}.md"
//	        content: "{{content}}"
//
// Builtin: Go code registers exports for a path with RegisterBuiltin. Builtins
// take precedence over files at the same path.
//
// # Caching
//
// Importer caches exports in an expiring LRU keyed by path, modification time
// and size. Importing the same unchanged Lua file twice returns the same
// exports, backed by a single Lua state.
package module
