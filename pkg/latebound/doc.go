// Package latebound builds late-bound defaults: immutable descriptors that
// name a field of a configuration fragment at rule-definition time and
// extract its value later, once a build configuration exists.
//
// ForConfigurationField is the factory. It resolves the field name against
// the fragment's declared fields with an exact match and rejects absent and
// private fields alike with an *Error of kind KindInvalidConfigurationField.
//
//	cpp, _ := registry.Lookup("cpp")
//	d, err := latebound.ForConfigurationField(cpp, "compiler", "@bazel_tools")
//	if err != nil {
//	    return err
//	}
//
//	// Later, per configuration:
//	value, err := d.Resolve(cfg)
//
// The factory never logs; the returned error is the only diagnostic.
package latebound
