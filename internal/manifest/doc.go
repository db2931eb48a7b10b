// Package manifest loads device and pipeline files.
//
// Both kinds of file may be YAML or JSON, chosen by extension (.json is
// JSON, anything else is YAML). Device files come in two shapes:
//
//	# list form
//	- id: cam1
//	  type: generic-camera
//	  params: {base_delay: 0.1}
//
//	# map form: every key other than type is a parameter
//	cam1:
//	  type: generic-camera
//	  base_delay: 0.1
//
// Pipeline files are either a bare list of steps or {name, steps}.
//
// Documents are normalised to the list/object shape and then checked
// against embedded JSON schemas. Every violation is reported at once in a
// *SchemaError, which unwraps to ErrInvalidManifest.
package manifest
