// Package signature holds the type tag model and signature descriptors shared by
// both directions of the bridge.
//
// A Descriptor is built once, from a native method table or a plugin manifest,
// and never changes afterwards. Parameters typed Function may carry a Prototype
// describing the callbacks they accept.
package signature
