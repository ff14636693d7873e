// Package locspec implements code to parse a string into a specific
// location specification.
//
// Location spec examples:
//
// locStr ::= <index> | <line> | *<offset> | <function>
// * <index> is the ordinal, starting at zero, of a call to the instrumentation hook
// * <line> is the source line of a call to the instrumentation hook
// * *<offset> is a hexadecimal offset into the executable file of the target
// * <function> ::= <package path>.<name> | <package>.<name> | <name>, and must be unambiguous
//
// How a location without a '*' prefix is interpreted depends on the
// location kind selected on the command line.
package locspec
