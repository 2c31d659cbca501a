// Package fragments defines configuration fragment type descriptors and the
// read-only registry that rule definitions resolve fragment names against.
//
// A FragmentType declares an explicit set of fields, each with a value type,
// a visibility and an accessor. Field resolution is a table lookup; nothing
// inspects fragment implementations at run time.
//
// Registries are populated once, through a Builder or from a Catalog file,
// and published with Build. After that they are immutable and may be shared
// by any number of concurrent rule-definition evaluations.
//
// A catalog file looks like:
//
//	version: "1"
//	fragments:
//	  - name: cpp
//	    fields:
//	      - name: compiler
//	        type: label
//	      - name: cc_toolchain
//	        type: label
//	        default_label: //tools/cpp:current_cc_toolchain
//	        default_in_tools_repository: true
//	      - name: internal_flags
//	        type: string_list
//	        visibility: private
package fragments
