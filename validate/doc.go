// Package validate checks a script method's real signature against the native
// descriptor it should implement, reporting all mismatches in one pass.
package validate
