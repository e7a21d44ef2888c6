// Package manifest implements the declarative command schema and the
// validation engine that checks request arguments against it.
//
// A manifest describes the commands a server accepts: their argument
// names, declared types, defaults, and per-argument constraints. The
// dispatch engine consults the manifest before invoking a handler, so a
// handler only ever sees arguments that already passed validation.
//
// # Document Shape
//
// Manifests are YAML documents (JSON works too, since every JSON document
// is valid YAML):
//
//	version: "1.0"
//	name: workspace-api
//	models:
//	  Owner:
//	    properties:
//	      name: {type: string, required: true}
//	      email: {type: string}
//	commands:
//	  createWorkspace:
//	    description: Create a named workspace
//	    args:
//	      name:
//	        type: string
//	        required: true
//	        validation:
//	          pattern: "^[a-zA-Z0-9_-]+$"
//	          maxLength: 100
//	      owner: {type: Owner}
//	    response: {type: object}
//	    errorCodes: ["-32602"]
//
// The legacy top-level key "channels" is accepted as an alias for
// "commands"; a document may use one or the other, not both.
//
// # Types and Models
//
// An argument's type is one of the built-ins (string, integer, number,
// boolean, array, object, null) or the name of a declared model. Models
// are reusable object shapes; referencing one validates the value as an
// object against the model's properties, honoring the model's own
// required list. Array specs may carry a nested "items" spec describing
// their element type, recursively.
//
// # Validation Order
//
// For each declared argument: presence/required is checked first, then
// the runtime type, then constraints in a fixed order (length bounds,
// pattern, numeric bounds, enumeration), failing fast on the first
// violation. Array elements are validated after the array's own
// constraints. Rejections carry the offending field path (for example
// "tags[2]" or "owner.email") in the error's data.
//
// # Hot Reload
//
// Watcher re-reads the manifest file when it changes on disk and swaps
// it into the engine atomically. A reload that fails to parse keeps the
// previous manifest in service; a reload whose content fingerprint is
// unchanged is skipped.
package manifest
